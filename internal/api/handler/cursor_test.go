package handler

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/cuongbtq/meeting-jobs/internal/engine/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceCursor_RoundTrip(t *testing.T) {
	cursor := &domain.InstanceCursor{
		CreatedAt:  time.Date(2026, 3, 1, 12, 30, 0, 123456789, time.UTC),
		InstanceID: "6f1f3c52-8d3e-4a8e-9a55-2b7c0e4d91a7",
	}

	decoded, err := DecodeInstanceCursor(EncodeInstanceCursor(cursor))
	require.NoError(t, err)
	assert.True(t, cursor.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, cursor.InstanceID, decoded.InstanceID)
}

func TestDecodeInstanceCursor(t *testing.T) {
	encode := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }

	tests := []struct {
		name    string
		cursor  string
		wantNil bool
		wantErr string
	}{
		{name: "empty", cursor: "", wantNil: true},
		{name: "bad encoding", cursor: "!!!", wantErr: "invalid cursor encoding"},
		{name: "missing separator", cursor: encode("12345"), wantErr: "invalid cursor format"},
		{name: "missing instance", cursor: encode("12345|"), wantErr: "invalid cursor format"},
		{name: "bad timestamp", cursor: encode("yesterday|abc"), wantErr: "invalid createdAt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cursor, err := DecodeInstanceCursor(tt.cursor)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Nil(t, cursor)
		})
	}
}
