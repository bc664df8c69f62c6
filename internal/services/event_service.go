package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ajvera/storeguard-be/internal/models"
	"github.com/google/uuid"
)

// EventServiceProvider is the query surface of the event store. The evaluator
// and alert manager compile against this boundary, not the database.
type EventServiceProvider interface {
	Insert(ctx context.Context, event models.Event) (models.Event, error)
	GetByID(ctx context.Context, id string) (models.Event, error)
	Count(ctx context.Context, storeID, eventType, deviceType string, from, to time.Time) (int, error)
	Exists(ctx context.Context, storeID, eventType string, from, to time.Time) (bool, error)
	FindByNaturalKey(ctx context.Context, storeID, eventType string, capturedAt time.Time) (models.Event, error)
	RecentByStore(ctx context.Context, storeID string, limit int) ([]models.Event, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// EventService provides access to captured events.
type EventService struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// NewEventService creates a new EventService. Every query carries the given
// timeout; zero selects a 5 second default.
func NewEventService(db *sql.DB, queryTimeout time.Duration) *EventService {
	if queryTimeout <= 0 {
		queryTimeout = 5 * time.Second
	}
	return &EventService{db: db, queryTimeout: queryTimeout}
}

func (s *EventService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

// Insert persists a captured event. Events are immutable after this point.
// Timestamps are normalized to UTC so windowed range queries compare cleanly.
func (s *EventService) Insert(ctx context.Context, event models.Event) (models.Event, error) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CapturedAt.IsZero() {
		event.CapturedAt = time.Now()
	}
	event.CapturedAt = event.CapturedAt.UTC()
	event.PrepareForDB()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, store_id, device_id, event_type, severity, payload_json, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.StoreID, event.DeviceID, event.EventType, event.Severity, event.PayloadJSON, event.CapturedAt)
	if err != nil {
		return models.Event{}, fmt.Errorf("inserting event: %w", err)
	}
	return event, nil
}

// GetByID retrieves a single event.
func (s *EventService) GetByID(ctx context.Context, id string) (models.Event, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, device_id, event_type, severity, payload_json, captured_at
		FROM events WHERE id = ?`, id)
	return s.scanEvent(row)
}

// Count returns the number of events of the given type captured for the store
// in [from, to], both bounds inclusive. A non-empty deviceType additionally
// matches the device_type payload field stamped by the ingester.
func (s *EventService) Count(ctx context.Context, storeID, eventType, deviceType string, from, to time.Time) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT COUNT(*) FROM events
		WHERE store_id = ? AND event_type = ? AND captured_at BETWEEN ? AND ?`
	args := []any{storeID, eventType, from.UTC(), to.UTC()}
	if deviceType != "" {
		query += ` AND json_extract(payload_json, '$.device_type') = ?`
		args = append(args, deviceType)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return count, nil
}

// Exists reports whether at least one event of the given type was captured for
// the store in [from, to].
func (s *EventService) Exists(ctx context.Context, storeID, eventType string, from, to time.Time) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM events
		WHERE store_id = ? AND event_type = ? AND captured_at BETWEEN ? AND ?
		LIMIT 1`,
		storeID, eventType, from.UTC(), to.UTC()).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking event existence: %w", err)
	}
	return true, nil
}

// FindByNaturalKey resolves the persisted event by (store, type, capture
// timestamp). Alert creation joins through this lookup and treats a miss as a
// hard error.
func (s *EventService) FindByNaturalKey(ctx context.Context, storeID, eventType string, capturedAt time.Time) (models.Event, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, device_id, event_type, severity, payload_json, captured_at
		FROM events WHERE store_id = ? AND event_type = ? AND captured_at = ?`,
		storeID, eventType, capturedAt.UTC())
	return s.scanEvent(row)
}

// RecentByStore retrieves the store's most recent events, newest first.
func (s *EventService) RecentByStore(ctx context.Context, storeID string, limit int) ([]models.Event, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, device_id, event_type, severity, payload_json, captured_at
		FROM events WHERE store_id = ? ORDER BY captured_at DESC LIMIT ?`, storeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		event, err := s.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// DeleteOlderThan removes events captured before the cutoff. Used by the
// retention sweeper.
func (s *EventService) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE captured_at < ?", cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// scanEvent is a helper to scan a single row into an Event struct.
func (s *EventService) scanEvent(scanner interface{ Scan(...any) error }) (models.Event, error) {
	var event models.Event
	var payloadJSON sql.NullString
	err := scanner.Scan(
		&event.ID,
		&event.StoreID,
		&event.DeviceID,
		&event.EventType,
		&event.Severity,
		&payloadJSON,
		&event.CapturedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Event{}, fmt.Errorf("event not found")
		}
		return models.Event{}, err
	}
	if payloadJSON.Valid {
		event.PayloadJSON = payloadJSON.String
	}
	event.PrepareForAPI()
	return event, nil
}
