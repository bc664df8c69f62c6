package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/ajvera/storeguard-be/internal/database"
	"github.com/ajvera/storeguard-be/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEventService_InsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	svc := NewEventService(db, time.Second)
	ctx := context.Background()

	deviceID := "register-2"
	event := models.Event{
		StoreID:   "store-1",
		DeviceID:  &deviceID,
		EventType: "pos_void",
		Severity:  "warn",
		Payload:   map[string]any{"amount": 42.5, "device_type": "register"},
	}

	persisted, err := svc.Insert(ctx, event)
	require.NoError(t, err)
	assert.NotEmpty(t, persisted.ID)
	assert.False(t, persisted.CapturedAt.IsZero())

	got, err := svc.GetByID(ctx, persisted.ID)
	require.NoError(t, err)
	assert.Equal(t, "pos_void", got.EventType)
	require.NotNil(t, got.DeviceID)
	assert.Equal(t, "register-2", *got.DeviceID)
	assert.Equal(t, 42.5, got.Payload["amount"])

	_, err = svc.GetByID(ctx, "missing")
	assert.Error(t, err)
}

func TestEventService_CountWindowBounds(t *testing.T) {
	db := setupTestDB(t)
	svc := NewEventService(db, time.Second)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, offset := range []time.Duration{-15 * time.Minute, -10 * time.Minute, -5 * time.Minute, 0} {
		_, err := svc.Insert(ctx, models.Event{
			StoreID:    "store-1",
			EventType:  "pos_void",
			Severity:   "warn",
			CapturedAt: base.Add(offset),
		})
		require.NoError(t, err)
	}
	// Different type and different store stay out of the count.
	_, err := svc.Insert(ctx, models.Event{StoreID: "store-1", EventType: "pos_sale", Severity: "info", CapturedAt: base})
	require.NoError(t, err)
	_, err = svc.Insert(ctx, models.Event{StoreID: "store-2", EventType: "pos_void", Severity: "warn", CapturedAt: base})
	require.NoError(t, err)

	// Both bounds are inclusive.
	count, err := svc.Count(ctx, "store-1", "pos_void", "", base.Add(-10*time.Minute), base)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = svc.Count(ctx, "store-1", "pos_void", "", base.Add(-9*time.Minute), base.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEventService_CountDeviceTypeFilter(t *testing.T) {
	db := setupTestDB(t)
	svc := NewEventService(db, time.Second)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	_, err := svc.Insert(ctx, models.Event{
		StoreID: "store-1", EventType: "pos_void", Severity: "warn", CapturedAt: base,
		Payload: map[string]any{"device_type": "register"},
	})
	require.NoError(t, err)
	_, err = svc.Insert(ctx, models.Event{
		StoreID: "store-1", EventType: "pos_void", Severity: "warn", CapturedAt: base,
		Payload: map[string]any{"device_type": "kiosk"},
	})
	require.NoError(t, err)
	_, err = svc.Insert(ctx, models.Event{
		StoreID: "store-1", EventType: "pos_void", Severity: "warn", CapturedAt: base,
	})
	require.NoError(t, err)

	count, err := svc.Count(ctx, "store-1", "pos_void", "register", base.Add(-time.Minute), base)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = svc.Count(ctx, "store-1", "pos_void", "", base.Add(-time.Minute), base)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestEventService_Exists(t *testing.T) {
	db := setupTestDB(t)
	svc := NewEventService(db, time.Second)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	_, err := svc.Insert(ctx, models.Event{StoreID: "store-1", EventType: "pos_sale", Severity: "info", CapturedAt: base})
	require.NoError(t, err)

	ok, err := svc.Exists(ctx, "store-1", "pos_sale", base.Add(-time.Minute), base.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Exists(ctx, "store-1", "pos_sale", base.Add(time.Second), base.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEventService_FindByNaturalKey(t *testing.T) {
	db := setupTestDB(t)
	svc := NewEventService(db, time.Second)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	persisted, err := svc.Insert(ctx, models.Event{StoreID: "store-1", EventType: "drawer_open", Severity: "warn", CapturedAt: base})
	require.NoError(t, err)

	got, err := svc.FindByNaturalKey(ctx, "store-1", "drawer_open", persisted.CapturedAt)
	require.NoError(t, err)
	assert.Equal(t, persisted.ID, got.ID)

	_, err = svc.FindByNaturalKey(ctx, "store-1", "drawer_open", base.Add(time.Second))
	assert.Error(t, err)
}

func TestEventService_RecentByStore(t *testing.T) {
	db := setupTestDB(t)
	svc := NewEventService(db, time.Second)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := svc.Insert(ctx, models.Event{
			StoreID:    "store-1",
			EventType:  "pos_sale",
			Severity:   "info",
			CapturedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	events, err := svc.RecentByStore(ctx, "store-1", 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.True(t, events[0].CapturedAt.After(events[1].CapturedAt))
	assert.True(t, events[1].CapturedAt.After(events[2].CapturedAt))
}

func TestEventService_DeleteOlderThan(t *testing.T) {
	db := setupTestDB(t)
	svc := NewEventService(db, time.Second)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	old, err := svc.Insert(ctx, models.Event{StoreID: "store-1", EventType: "pos_sale", Severity: "info", CapturedAt: base.AddDate(0, 0, -100)})
	require.NoError(t, err)
	recent, err := svc.Insert(ctx, models.Event{StoreID: "store-1", EventType: "pos_sale", Severity: "info", CapturedAt: base})
	require.NoError(t, err)

	n, err := svc.DeleteOlderThan(ctx, base.AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = svc.GetByID(ctx, old.ID)
	assert.Error(t, err)
	_, err = svc.GetByID(ctx, recent.ID)
	assert.NoError(t, err)
}
