package models

import "time"

// Notification severities. Rule-defined match severities ("warn",
// "suspicious", ...) are mapped onto this closed set at dispatch time.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Notification types that a user may delete from their feed. Everything else
// is permanent record.
const (
	NotificationTypeEphemeral = "ephemeral"
	NotificationTypeTest      = "test"
)

// Notification is a user-facing message derived from an alert or a synthetic
// system message. This struct is both the persisted shape and the wire shape
// delivered to subscribers; additions must be additive fields only.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	Type      *string   `json:"type,omitempty"`
	Severity  string    `json:"severity"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// Deletable reports whether the user may remove this notification from their
// feed. Only ephemeral and test notifications qualify.
func (n *Notification) Deletable() bool {
	if n.Type == nil {
		return false
	}
	return *n.Type == NotificationTypeEphemeral || *n.Type == NotificationTypeTest
}

// PushToken is a registered push-delivery token for one of a user's devices.
type PushToken struct {
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	Platform  string    `json:"platform"` // "web", "ios", "android"
	CreatedAt time.Time `json:"created_at"`
}
