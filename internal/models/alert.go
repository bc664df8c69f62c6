package models

import (
	"encoding/json"
	"time"
)

// Delivery channels observed on alerts. The set is open: consumers treat
// unknown values as no-ops rather than errors.
const (
	ChannelEmail = "email"
	ChannelPush  = "push"
	ChannelSMS   = "sms"
)

// Alert records that one rule matched one event. At most one alert exists per
// (event, rule) pair; the database enforces this. sent_at is null while the
// alert is still waiting for dispatch.
type Alert struct {
	ID           string     `json:"id"`
	EventID      string     `json:"event_id"`
	RuleID       string     `json:"rule_id"`
	Severity     string     `json:"severity"` // rule-defined, not the event's severity
	Message      string     `json:"message"`
	ChannelsJSON string     `json:"-"` // Stored as JSON array string
	Channels     []string   `json:"channels"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// DefaultChannels returns the channel set assigned to newly created alerts.
func DefaultChannels() []string {
	return []string{ChannelEmail, ChannelPush}
}

// IsOpen reports whether the alert is still awaiting dispatch.
func (a *Alert) IsOpen() bool {
	return a.SentAt == nil
}

// PrepareForDB marshals the channel set into its JSON string form before saving.
func (a *Alert) PrepareForDB() {
	if a.Channels != nil {
		if b, err := json.Marshal(a.Channels); err == nil {
			a.ChannelsJSON = string(b)
		}
	}
}

// PrepareForAPI unmarshals the stored channel set for API responses.
func (a *Alert) PrepareForAPI() {
	if a.ChannelsJSON != "" {
		var channels []string
		if err := json.Unmarshal([]byte(a.ChannelsJSON), &channels); err == nil {
			a.Channels = channels
		}
	}
}

// HasChannel reports whether the alert is assigned the given delivery channel.
func (a *Alert) HasChannel(channel string) bool {
	for _, c := range a.Channels {
		if c == channel {
			return true
		}
	}
	return false
}
