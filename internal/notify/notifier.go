package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cbusillo/product-connect/internal/messaging"
	"github.com/cbusillo/product-connect/internal/store"
	"github.com/cbusillo/product-connect/pkg/config"
)

const historyRetention = 7 * 24 * time.Hour

// messageStore is the slice of the store notifications go through.
type messageStore interface {
	PostMessage(ctx context.Context, channel, subject, body string, productID *int64) error
	CountRecentNotifications(ctx context.Context, subject, channel string, window time.Duration) (int, error)
	RecordNotification(ctx context.Context, subject, channel string) error
	CleanupNotifications(ctx context.Context, retention time.Duration) error
}

// Notifier posts messages to named channels in the local store and mirrors
// them to NATS. Repeated identical notifications are rate limited per
// subject/channel per hour, and history older than a week is pruned.
type Notifier struct {
	store  messageStore
	nats   *messaging.NATSClient
	logger *logrus.Entry
	cfg    *config.SyncConfig
}

// Event is the payload mirrored to NATS for every notification.
type Event struct {
	Channel   string    `json:"channel"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	ProductID *int64    `json:"product_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates a notifier. The NATS client may be nil; notifications then stay
// local.
func New(st *store.Store, nats *messaging.NATSClient, cfg *config.SyncConfig, logger *logrus.Logger) *Notifier {
	return &Notifier{
		store:  st,
		nats:   nats,
		logger: logger.WithField("component", "notifier"),
		cfg:    cfg,
	}
}

// Notify posts a message to a channel, optionally scoped to a product record
// and carrying recent log lines.
func (n *Notifier) Notify(ctx context.Context, subject, body, channel string, productID *int64, logs []string) error {
	recent, err := n.store.CountRecentNotifications(ctx, subject, channel, time.Hour)
	if err != nil {
		return err
	}
	if recent >= n.cfg.NotifyRateLimit {
		n.logger.WithFields(logrus.Fields{
			"subject": subject,
			"channel": channel,
		}).Info("Too many notifications in the last hour, dropping")
		return nil
	}

	if len(logs) > 0 {
		body += "\n\nRecent logs:\n" + strings.Join(logs, "\n")
	}

	if err := n.store.PostMessage(ctx, channel, subject, body, productID); err != nil {
		return err
	}
	if err := n.store.RecordNotification(ctx, subject, channel); err != nil {
		return err
	}
	if err := n.store.CleanupNotifications(ctx, historyRetention); err != nil {
		return err
	}

	n.publish(channel, subject, body, productID)
	return nil
}

// NotifyOnError escalates a failure to the errors channel. It is best effort:
// a notification failure is logged, never raised, so it cannot mask the
// original error.
func (n *Notifier) NotifyOnError(ctx context.Context, subject, body string, productID *int64, logs []string) {
	if err := n.Notify(ctx, subject, body, n.cfg.ErrorChannel, productID, logs); err != nil {
		n.logger.WithError(err).WithField("subject", subject).Error("Failed to deliver error notification")
	}
}

func (n *Notifier) publish(channel, subject, body string, productID *int64) {
	if n.nats == nil {
		return
	}

	event := Event{
		Channel:   channel,
		Subject:   subject,
		Body:      body,
		ProductID: productID,
		Timestamp: time.Now().UTC(),
	}
	subjectName := fmt.Sprintf("catalog.notifications.%s", channel)
	if err := n.nats.Publish(subjectName, event); err != nil {
		n.logger.WithError(err).WithField("subject", subjectName).Warn("Failed to publish notification")
	}
}
