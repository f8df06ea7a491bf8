package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const defaultRequestTimeout = 30 * time.Second

// Config holds NATS connection configuration
type Config struct {
	URL            string
	Name           string
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// Client wraps a NATS connection with JSON helpers
type Client struct {
	nc     *nats.Conn
	config *Config
	logger *slog.Logger
}

// NewClient connects to NATS. The connection reconnects forever once established.
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	reconnectWait := config.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	connectTimeout := config.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}

	logger.Info("Connecting to NATS", slog.String("url", config.URL))

	nc, err := nats.Connect(config.URL,
		nats.Name(config.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
		nats.Timeout(connectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("Disconnected from NATS", slog.Any("error", err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("Reconnected to NATS", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("Successfully connected to NATS", slog.String("server", nc.ConnectedUrl()))

	return &Client{nc: nc, config: config, logger: logger}, nil
}

// PublishJSON encodes v and publishes it on subject
func (c *Client) PublishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode message for %s: %w", subject, err)
	}
	if err := c.nc.Publish(subject, b); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// RequestJSON sends req on subject and decodes the reply into resp. The
// request is bounded by the configured request timeout or the deadline of
// ctx, whichever comes first.
func (c *Client) RequestJSON(ctx context.Context, subject string, req, resp any) error {
	b, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode request for %s: %w", subject, err)
	}

	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	msg, err := c.nc.RequestWithContext(ctx, subject, b)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", subject, err)
	}

	if err := json.Unmarshal(msg.Data, resp); err != nil {
		return fmt.Errorf("failed to decode reply from %s: %w", subject, err)
	}
	return nil
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.config.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// HealthCheck reports whether the connection is usable
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.nc == nil || !c.nc.IsConnected() {
		return fmt.Errorf("nats connection is %s", c.status())
	}
	return c.nc.FlushWithContext(ctx)
}

// Close drains the connection
func (c *Client) Close() {
	if c.nc == nil {
		return
	}
	c.logger.Info("Closing NATS connection")
	if err := c.nc.Drain(); err != nil {
		c.logger.Error("Failed to drain NATS connection", slog.Any("error", err))
	}
}

func (c *Client) status() string {
	if c.nc == nil {
		return "closed"
	}
	return c.nc.Status().String()
}
