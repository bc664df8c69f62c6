package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ajvera/storeguard-be/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// AlertServiceProvider defines the interface for alert management. Record is
// the pipeline's write path; ListOpen backs redelivery of alerts that never
// made it to a notification.
type AlertServiceProvider interface {
	Record(ctx context.Context, event models.Event, matches []models.RuleMatch) ([]models.Alert, error)
	GetAlertByID(ctx context.Context, id string) (models.Alert, error)
	GetByEventAndRule(ctx context.Context, eventID, ruleID string) (models.Alert, error)
	ListOpen(ctx context.Context, createdBefore time.Time, limit int) ([]models.Alert, error)
	ListByStore(ctx context.Context, storeID string, limit int) ([]models.Alert, error)
	MarkSent(ctx context.Context, id string) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AlertService persists rule matches as alerts. The alerts table carries a
// UNIQUE(event_id, rule_id) constraint, which is the authoritative guard
// against duplicate alerts when the same event is evaluated more than once.
type AlertService struct {
	db     *sql.DB
	events EventServiceProvider
}

// NewAlertService creates a new AlertService.
func NewAlertService(db *sql.DB, events EventServiceProvider) *AlertService {
	return &AlertService{db: db, events: events}
}

// Record persists one alert per rule match against the given event. The
// originating event is resolved by its natural key first; a miss means the
// alert would dangle, so that match is logged and skipped without retry.
// Matches already recorded by a previous attempt are returned only while
// still open, so callers never dispatch an alert twice.
func (s *AlertService) Record(ctx context.Context, event models.Event, matches []models.RuleMatch) ([]models.Alert, error) {
	var alerts []models.Alert
	for _, match := range matches {
		persisted, err := s.events.FindByNaturalKey(ctx, event.StoreID, event.EventType, event.CapturedAt)
		if err != nil {
			log.Error().Err(err).
				Str("rule_id", match.RuleID).
				Str("event_id", event.ID).
				Str("store_id", event.StoreID).
				Msg("Originating event not found while recording alert, skipping match")
			continue
		}

		alert := models.Alert{
			ID:        uuid.New().String(),
			EventID:   persisted.ID,
			RuleID:    match.RuleID,
			Severity:  match.Severity,
			Message:   match.Message,
			Channels:  models.DefaultChannels(),
			CreatedAt: time.Now().UTC(),
		}
		alert.PrepareForDB()

		res, err := s.db.ExecContext(ctx, `
			INSERT INTO alerts (id, event_id, rule_id, severity, message, channels_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (event_id, rule_id) DO NOTHING`,
			alert.ID, alert.EventID, alert.RuleID, alert.Severity, alert.Message, alert.ChannelsJSON, alert.CreatedAt)
		if err != nil {
			return alerts, fmt.Errorf("inserting alert for rule %s: %w", match.RuleID, err)
		}

		inserted, err := res.RowsAffected()
		if err != nil {
			return alerts, err
		}
		if inserted == 0 {
			// Another attempt already recorded this (event, rule) pair.
			existing, err := s.GetByEventAndRule(ctx, persisted.ID, match.RuleID)
			if err != nil {
				return alerts, err
			}
			if existing.IsOpen() {
				alerts = append(alerts, existing)
			}
			continue
		}

		created, err := s.GetAlertByID(ctx, alert.ID)
		if err != nil {
			return alerts, err
		}
		alerts = append(alerts, created)
	}
	return alerts, nil
}

// GetAlertByID retrieves a single alert.
func (s *AlertService) GetAlertByID(ctx context.Context, id string) (models.Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, event_id, rule_id, severity, message, channels_json, sent_at, created_at
		FROM alerts WHERE id = ?`, id)
	return s.scanAlert(row)
}

// GetByEventAndRule retrieves the alert recorded for an (event, rule) pair.
func (s *AlertService) GetByEventAndRule(ctx context.Context, eventID, ruleID string) (models.Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, event_id, rule_id, severity, message, channels_json, sent_at, created_at
		FROM alerts WHERE event_id = ? AND rule_id = ?`, eventID, ruleID)
	return s.scanAlert(row)
}

// ListOpen returns alerts never marked sent, oldest first, created before the
// given cutoff. The cutoff keeps alerts currently in flight out of redelivery.
func (s *AlertService) ListOpen(ctx context.Context, createdBefore time.Time, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, rule_id, severity, message, channels_json, sent_at, created_at
		FROM alerts WHERE sent_at IS NULL AND created_at < ?
		ORDER BY created_at ASC LIMIT ?`, createdBefore.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanAlerts(rows)
}

// ListByStore returns a store's alerts, newest first, via the events join.
func (s *AlertService) ListByStore(ctx context.Context, storeID string, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.event_id, a.rule_id, a.severity, a.message, a.channels_json, a.sent_at, a.created_at
		FROM alerts a JOIN events e ON e.id = a.event_id
		WHERE e.store_id = ?
		ORDER BY a.created_at DESC LIMIT ?`, storeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanAlerts(rows)
}

// MarkSent closes an alert after its notification has been created.
func (s *AlertService) MarkSent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE alerts SET sent_at = ? WHERE id = ? AND sent_at IS NULL",
		time.Now().UTC(), id)
	return err
}

// DeleteOlderThan prunes alerts created before the cutoff, sent or not.
func (s *AlertService) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM alerts WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// scanAlerts is a helper to scan multiple rows into a slice of Alerts.
func (s *AlertService) scanAlerts(rows *sql.Rows) ([]models.Alert, error) {
	var alerts []models.Alert
	for rows.Next() {
		alert, err := s.scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// scanAlert is a helper to scan a single row into an Alert struct.
func (s *AlertService) scanAlert(scanner interface{ Scan(...any) error }) (models.Alert, error) {
	var alert models.Alert
	var channelsJSON sql.NullString
	var sentAt sql.NullTime
	err := scanner.Scan(
		&alert.ID,
		&alert.EventID,
		&alert.RuleID,
		&alert.Severity,
		&alert.Message,
		&channelsJSON,
		&sentAt,
		&alert.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Alert{}, fmt.Errorf("alert not found")
		}
		return models.Alert{}, err
	}
	if channelsJSON.Valid {
		alert.ChannelsJSON = channelsJSON.String
	}
	if sentAt.Valid {
		t := sentAt.Time
		alert.SentAt = &t
	}
	alert.PrepareForAPI()
	return alert, nil
}
