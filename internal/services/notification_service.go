package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ajvera/storeguard-be/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// NotificationServiceProvider defines the interface for the notification feed,
// per-user preferences and push-token registry.
type NotificationServiceProvider interface {
	Create(ctx context.Context, notification models.Notification) (models.Notification, error)
	GetNotificationByID(ctx context.Context, id string) (models.Notification, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) error
	Delete(ctx context.Context, id, userID string) error
	GetPreferences(ctx context.Context, userID string) models.NotificationPreferences
	SavePreferences(ctx context.Context, userID string, prefs models.NotificationPreferences) error
	RegisterPushToken(ctx context.Context, token models.PushToken) error
	TokensForUser(ctx context.Context, userID string) ([]models.PushToken, error)
	DeleteReadEphemeralOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// NotificationService provides business logic for notifications. Creation and
// read-state flips keep the user's unread counter in step inside one
// transaction.
type NotificationService struct {
	db *sql.DB
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(db *sql.DB) *NotificationService {
	return &NotificationService{db: db}
}

// Create inserts a notification and increments the owner's unread counter.
func (s *NotificationService) Create(ctx context.Context, notification models.Notification) (models.Notification, error) {
	if notification.ID == "" {
		notification.ID = uuid.New().String()
	}
	if notification.Severity == "" {
		notification.Severity = models.SeverityInfo
	}
	notification.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Notification{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, message, type, severity, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, FALSE, ?)`,
		notification.ID, notification.UserID, notification.Message, notification.Type, notification.Severity, notification.CreatedAt)
	if err != nil {
		return models.Notification{}, fmt.Errorf("inserting notification: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE users SET unread_count = unread_count + 1 WHERE id = ?", notification.UserID)
	if err != nil {
		return models.Notification{}, fmt.Errorf("incrementing unread count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Notification{}, err
	}
	return s.GetNotificationByID(ctx, notification.ID)
}

// GetNotificationByID retrieves a single notification.
func (s *NotificationService) GetNotificationByID(ctx context.Context, id string) (models.Notification, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, message, type, severity, is_read, created_at
		FROM notifications WHERE id = ?`, id)
	return s.scanNotification(row)
}

// ListForUser returns the user's notification feed, newest first.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, message, type, severity, is_read, created_at
		FROM notifications WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		notification, err := s.scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, notification)
	}
	return notifications, rows.Err()
}

// UnreadCount returns the user's unread counter.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT unread_count FROM users WHERE id = ?", userID).Scan(&count)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("user not found")
		}
		return 0, err
	}
	return count, nil
}

// MarkRead flips a notification to read and decrements the unread counter.
// Flipping an already-read notification is a no-op.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE id = ? AND user_id = ? AND is_read = FALSE`, id, userID)
	if err != nil {
		return err
	}
	flipped, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if flipped > 0 {
		_, err = tx.ExecContext(ctx,
			"UPDATE users SET unread_count = MAX(unread_count - 1, 0) WHERE id = ?", userID)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// MarkAllRead flips every unread notification for the user and zeroes the
// unread counter.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"UPDATE notifications SET is_read = TRUE WHERE user_id = ? AND is_read = FALSE", userID)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		"UPDATE users SET unread_count = 0 WHERE id = ?", userID)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes a notification from the user's feed. Only ephemeral and test
// notifications may be deleted; everything else is permanent record.
func (s *NotificationService) Delete(ctx context.Context, id, userID string) error {
	notification, err := s.GetNotificationByID(ctx, id)
	if err != nil {
		return err
	}
	if notification.UserID != userID {
		return fmt.Errorf("notification not found")
	}
	if !notification.Deletable() {
		return fmt.Errorf("notification cannot be deleted")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, "DELETE FROM notifications WHERE id = ?", id)
	if err != nil {
		return err
	}
	if !notification.IsRead {
		_, err = tx.ExecContext(ctx,
			"UPDATE users SET unread_count = MAX(unread_count - 1, 0) WHERE id = ?", userID)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetPreferences loads the user's delivery preferences. A missing row or an
// unparseable blob yields the safe defaults rather than an error, so dispatch
// is never blocked on a bad preference record.
func (s *NotificationService) GetPreferences(ctx context.Context, userID string) models.NotificationPreferences {
	var blob string
	err := s.db.QueryRowContext(ctx,
		"SELECT prefs_json FROM notification_preferences WHERE user_id = ?", userID).Scan(&blob)
	if err != nil {
		if err != sql.ErrNoRows {
			log.Warn().Err(err).Str("user_id", userID).Msg("Failed to load notification preferences, using defaults")
		}
		return models.DefaultPreferences()
	}

	var prefs models.NotificationPreferences
	if err := json.Unmarshal([]byte(blob), &prefs); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Stored notification preferences are unreadable, using defaults")
		return models.DefaultPreferences()
	}
	return prefs
}

// SavePreferences validates and stores the user's delivery preferences.
func (s *NotificationService) SavePreferences(ctx context.Context, userID string, prefs models.NotificationPreferences) error {
	if err := prefs.Validate(); err != nil {
		return err
	}
	blob, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notification_preferences (user_id, prefs_json) VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET prefs_json = excluded.prefs_json`,
		userID, string(blob))
	return err
}

// RegisterPushToken stores a device push token. Re-registering the same token
// refreshes its platform.
func (s *NotificationService) RegisterPushToken(ctx context.Context, token models.PushToken) error {
	if token.Token == "" {
		return fmt.Errorf("token is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO push_tokens (user_id, token, platform) VALUES (?, ?, ?)
		ON CONFLICT (user_id, token) DO UPDATE SET platform = excluded.platform`,
		token.UserID, token.Token, token.Platform)
	return err
}

// TokensForUser returns the user's registered push tokens, newest first.
func (s *NotificationService) TokensForUser(ctx context.Context, userID string) ([]models.PushToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, token, platform, created_at
		FROM push_tokens WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []models.PushToken
	for rows.Next() {
		var token models.PushToken
		if err := rows.Scan(&token.UserID, &token.Token, &token.Platform, &token.CreatedAt); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

// DeleteReadEphemeralOlderThan prunes read ephemeral and test notifications
// created before the cutoff. Unread or permanent notifications are never
// touched.
func (s *NotificationService) DeleteReadEphemeralOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM notifications
		WHERE is_read = TRUE AND type IN (?, ?) AND created_at < ?`,
		models.NotificationTypeEphemeral, models.NotificationTypeTest, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// scanNotification is a helper to scan a single row into a Notification struct.
func (s *NotificationService) scanNotification(scanner interface{ Scan(...any) error }) (models.Notification, error) {
	var notification models.Notification
	var notifType sql.NullString
	err := scanner.Scan(
		&notification.ID,
		&notification.UserID,
		&notification.Message,
		&notifType,
		&notification.Severity,
		&notification.IsRead,
		&notification.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Notification{}, fmt.Errorf("notification not found")
		}
		return models.Notification{}, err
	}
	if notifType.Valid {
		t := notifType.String
		notification.Type = &t
	}
	return notification, nil
}
