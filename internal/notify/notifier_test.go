package notify

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbusillo/product-connect/pkg/config"
)

type postedMessage struct {
	channel string
	subject string
	body    string
}

type fakeMessageStore struct {
	recent   int
	posted   []postedMessage
	recorded int
	cleaned  int
}

func (f *fakeMessageStore) PostMessage(_ context.Context, channel, subject, body string, _ *int64) error {
	f.posted = append(f.posted, postedMessage{channel: channel, subject: subject, body: body})
	return nil
}

func (f *fakeMessageStore) CountRecentNotifications(_ context.Context, _, _ string, _ time.Duration) (int, error) {
	return f.recent, nil
}

func (f *fakeMessageStore) RecordNotification(_ context.Context, _, _ string) error {
	f.recorded++
	return nil
}

func (f *fakeMessageStore) CleanupNotifications(_ context.Context, _ time.Duration) error {
	f.cleaned++
	return nil
}

func newTestNotifier(st messageStore) *Notifier {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return &Notifier{
		store:  st,
		logger: log.WithField("component", "notifier"),
		cfg:    &config.SyncConfig{NotifyRateLimit: 5, ErrorChannel: "errors"},
	}
}

func TestNotify_PostsUnderRateLimit(t *testing.T) {
	st := &fakeMessageStore{recent: 4}
	n := newTestNotifier(st)

	err := n.Notify(context.Background(), "Sync failed", "details", "errors", nil, nil)
	require.NoError(t, err)

	require.Len(t, st.posted, 1)
	assert.Equal(t, "errors", st.posted[0].channel)
	assert.Equal(t, 1, st.recorded)
	assert.Equal(t, 1, st.cleaned)
}

// Five identical notifications in the window exhaust the budget; the sixth
// is dropped.
func TestNotify_DropsAtRateLimit(t *testing.T) {
	st := &fakeMessageStore{recent: 5}
	n := newTestNotifier(st)

	err := n.Notify(context.Background(), "Sync failed", "details", "errors", nil, nil)
	require.NoError(t, err)

	assert.Empty(t, st.posted)
	assert.Zero(t, st.recorded)
}

func TestNotify_AppendsRecentLogs(t *testing.T) {
	st := &fakeMessageStore{}
	n := newTestNotifier(st)

	err := n.Notify(context.Background(), "Sync failed", "details", "errors", nil,
		[]string{"line one", "line two"})
	require.NoError(t, err)

	require.Len(t, st.posted, 1)
	assert.Contains(t, st.posted[0].body, "details")
	assert.Contains(t, st.posted[0].body, "line one\nline two")
}
