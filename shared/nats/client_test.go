package nats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestContext(t *testing.T) {
	tests := []struct {
		name           string
		requestTimeout time.Duration
		ctxTimeout     time.Duration
		wantWithin     time.Duration
	}{
		{
			name:           "request timeout caps a longer job deadline",
			requestTimeout: 50 * time.Millisecond,
			ctxTimeout:     time.Hour,
			wantWithin:     50 * time.Millisecond,
		},
		{
			name:           "earlier job deadline wins",
			requestTimeout: time.Hour,
			ctxTimeout:     20 * time.Millisecond,
			wantWithin:     20 * time.Millisecond,
		},
		{
			name:           "no deadline uses request timeout",
			requestTimeout: 100 * time.Millisecond,
			wantWithin:     100 * time.Millisecond,
		},
		{
			name:       "unset request timeout falls back to default",
			wantWithin: defaultRequestTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &Client{config: &Config{RequestTimeout: tt.requestTimeout}}

			parent := context.Background()
			if tt.ctxTimeout > 0 {
				var cancel context.CancelFunc
				parent, cancel = context.WithTimeout(parent, tt.ctxTimeout)
				defer cancel()
			}

			start := time.Now()
			ctx, cancel := client.requestContext(parent)
			defer cancel()
			end := time.Now()

			deadline, ok := ctx.Deadline()
			require.True(t, ok)
			assert.False(t, deadline.After(end.Add(tt.wantWithin)), "deadline %s too late", deadline.Sub(start))
			assert.True(t, deadline.After(start.Add(tt.wantWithin-10*time.Millisecond)), "deadline %s too early", deadline.Sub(start))
		})
	}
}

func TestClient_HealthCheckWithoutConnection(t *testing.T) {
	client := &Client{config: &Config{}}

	err := client.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}
