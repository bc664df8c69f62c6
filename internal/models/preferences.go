package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Sound cues the dashboard can play for a notification. "none" disables sound
// but not visual delivery.
const (
	SoundDefault = "default"
	SoundChime   = "chime"
	SoundAlert   = "alert"
	SoundNone    = "none"
)

// Severity filter levels for notification delivery.
const (
	SeverityFilterAll                = "all"
	SeverityFilterWarningAndCritical = "warning_and_critical"
	SeverityFilterCriticalOnly       = "critical_only"
)

// NotificationPreferences holds a user's delivery settings, persisted as a
// single JSON blob keyed by user id. Consulted on every dispatch decision.
type NotificationPreferences struct {
	EmailEnabled      bool     `json:"email_enabled"`
	PushEnabled       bool     `json:"push_enabled"`
	SMSEnabled        bool     `json:"sms_enabled"`
	SoundType         string   `json:"sound_type"`
	SeverityFilter    string   `json:"severity_filter"`
	QuietHoursEnabled bool     `json:"quiet_hours_enabled"`
	QuietHoursStart   string   `json:"quiet_hours_start"` // "HH:MM"
	QuietHoursEnd     string   `json:"quiet_hours_end"`   // "HH:MM"
	MutedEventTypes   []string `json:"muted_event_types"`
}

// DefaultPreferences is the safe fallback used when a user has no stored
// preferences or the stored blob cannot be parsed: deliver everything, no
// quiet hours.
func DefaultPreferences() NotificationPreferences {
	return NotificationPreferences{
		EmailEnabled:   true,
		PushEnabled:    true,
		SMSEnabled:     false,
		SoundType:      SoundDefault,
		SeverityFilter: SeverityFilterAll,
	}
}

// Validate checks the enumerated fields and, when quiet hours are enabled,
// the window's clock values.
func (p *NotificationPreferences) Validate() error {
	switch p.SoundType {
	case SoundDefault, SoundChime, SoundAlert, SoundNone:
	default:
		return fmt.Errorf("invalid sound_type %q", p.SoundType)
	}
	switch p.SeverityFilter {
	case SeverityFilterAll, SeverityFilterWarningAndCritical, SeverityFilterCriticalOnly:
	default:
		return fmt.Errorf("invalid severity_filter %q", p.SeverityFilter)
	}
	if p.QuietHoursEnabled {
		if _, err := parseClock(p.QuietHoursStart); err != nil {
			return err
		}
		if _, err := parseClock(p.QuietHoursEnd); err != nil {
			return err
		}
	}
	return nil
}

// AllowsSeverity applies the severity filter to a mapped notification severity.
func (p *NotificationPreferences) AllowsSeverity(severity string) bool {
	switch p.SeverityFilter {
	case SeverityFilterCriticalOnly:
		return severity == SeverityCritical
	case SeverityFilterWarningAndCritical:
		return severity != SeverityInfo
	default:
		return true
	}
}

// IsMuted reports whether the user muted the given event type.
func (p *NotificationPreferences) IsMuted(eventType string) bool {
	for _, muted := range p.MutedEventTypes {
		if muted == eventType {
			return true
		}
	}
	return false
}

// InQuietHours reports whether t falls inside the user's quiet-hours window
// [start, end), wrapping past midnight when start > end. A window that cannot
// be parsed, or where start equals end, never matches.
func (p *NotificationPreferences) InQuietHours(t time.Time) bool {
	if !p.QuietHoursEnabled {
		return false
	}
	start, err := parseClock(p.QuietHoursStart)
	if err != nil {
		return false
	}
	end, err := parseClock(p.QuietHoursEnd)
	if err != nil {
		return false
	}
	if start == end {
		return false
	}
	minute := t.Hour()*60 + t.Minute()
	if start < end {
		return minute >= start && minute < end
	}
	return minute >= start || minute < end
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour*60 + minute, nil
}
