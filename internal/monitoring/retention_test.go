package monitoring

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePruner struct {
	deleted    int64
	err        error
	calls      int
	lastCutoff time.Time
}

func (f *fakePruner) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.calls++
	f.lastCutoff = cutoff
	return f.deleted, f.err
}

type fakeNotificationPruner struct {
	deleted    int64
	err        error
	calls      int
	lastCutoff time.Time
}

func (f *fakeNotificationPruner) DeleteReadEphemeralOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.calls++
	f.lastCutoff = cutoff
	return f.deleted, f.err
}

type fakeRedeliverer struct {
	redelivered int
	err         error
	calls       int
	lastLimit   int
}

func (f *fakeRedeliverer) RedeliverOpen(ctx context.Context, limit int) (int, error) {
	f.calls++
	f.lastLimit = limit
	return f.redelivered, f.err
}

func newTestSweeper(t *testing.T, events *fakePruner, alerts *fakePruner, notifications *fakeNotificationPruner, redeliver *fakeRedeliverer, days int) *RetentionSweeper {
	t.Helper()
	sweeper, err := NewRetentionSweeper(events, alerts, notifications, redeliver, "0 3 * * *", days)
	require.NoError(t, err)
	return sweeper
}

func TestNewRetentionSweeper_RejectsBadCron(t *testing.T) {
	_, err := NewRetentionSweeper(&fakePruner{}, &fakePruner{}, &fakeNotificationPruner{}, &fakeRedeliverer{}, "every day at dawn", 30)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid retention cron expression")
}

func TestNewRetentionSweeper_DefaultsRetentionDays(t *testing.T) {
	sweeper := newTestSweeper(t, &fakePruner{}, &fakePruner{}, &fakeNotificationPruner{}, &fakeRedeliverer{}, 0)
	assert.Equal(t, 90, sweeper.retentionDays)

	sweeper = newTestSweeper(t, &fakePruner{}, &fakePruner{}, &fakeNotificationPruner{}, &fakeRedeliverer{}, -5)
	assert.Equal(t, 90, sweeper.retentionDays)
}

func TestRetentionSweeper_Sweep(t *testing.T) {
	events := &fakePruner{deleted: 12}
	alerts := &fakePruner{deleted: 4}
	notifications := &fakeNotificationPruner{deleted: 2}
	redeliver := &fakeRedeliverer{redelivered: 1}
	sweeper := newTestSweeper(t, events, alerts, notifications, redeliver, 30)

	sweeper.Sweep()

	assert.Equal(t, 1, redeliver.calls)
	assert.Equal(t, 500, redeliver.lastLimit)

	wantCutoff := time.Now().AddDate(0, 0, -30)
	assert.Equal(t, 1, events.calls)
	assert.WithinDuration(t, wantCutoff, events.lastCutoff, time.Minute)
	assert.Equal(t, 1, alerts.calls)
	assert.WithinDuration(t, wantCutoff, alerts.lastCutoff, time.Minute)
	assert.Equal(t, 1, notifications.calls)
	assert.WithinDuration(t, wantCutoff, notifications.lastCutoff, time.Minute)
}

func TestRetentionSweeper_SweepContinuesPastFailures(t *testing.T) {
	events := &fakePruner{err: fmt.Errorf("database is locked")}
	alerts := &fakePruner{}
	notifications := &fakeNotificationPruner{}
	redeliver := &fakeRedeliverer{err: fmt.Errorf("dispatch outage")}
	sweeper := newTestSweeper(t, events, alerts, notifications, redeliver, 45)

	sweeper.Sweep()

	// Every stage ran despite the redelivery and event-prune failures.
	assert.Equal(t, 1, redeliver.calls)
	assert.Equal(t, 1, events.calls)
	assert.Equal(t, 1, alerts.calls)
	assert.Equal(t, 1, notifications.calls)
}
