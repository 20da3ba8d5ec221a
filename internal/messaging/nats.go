package messaging

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/cbusillo/product-connect/pkg/config"
)

// NATSClient publishes sync events and notifications to NATS subjects so
// other systems (dashboards, chat bridges) can follow sync activity.
type NATSClient struct {
	conn    *nats.Conn
	encoder *nats.EncodedConn
	logger  *logrus.Entry
	cfg     *config.NATSConfig
}

// NewNATSClient creates a new NATS client
func NewNATSClient(cfg *config.NATSConfig, logger *logrus.Logger) (*NATSClient, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnect),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	// Create encoded connection for JSON
	encoder, err := nats.NewEncodedConn(conn, nats.JSON_ENCODER)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create encoded connection: %w", err)
	}

	return &NATSClient{
		conn:    conn,
		encoder: encoder,
		logger:  logger.WithField("component", "nats"),
		cfg:     cfg,
	}, nil
}

// Close closes the NATS connection
func (nc *NATSClient) Close() error {
	nc.encoder.Close()
	nc.conn.Close()
	return nil
}

// Publish sends a JSON-encoded message on a subject.
func (nc *NATSClient) Publish(subject string, v interface{}) error {
	if err := nc.encoder.Publish(subject, v); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// IsConnected reports the connection state.
func (nc *NATSClient) IsConnected() bool {
	return nc.conn.IsConnected()
}
