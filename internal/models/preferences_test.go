package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationPreferences_AllowsSeverity(t *testing.T) {
	prefs := DefaultPreferences()
	assert.True(t, prefs.AllowsSeverity(SeverityInfo))
	assert.True(t, prefs.AllowsSeverity(SeverityWarning))
	assert.True(t, prefs.AllowsSeverity(SeverityCritical))

	prefs.SeverityFilter = SeverityFilterWarningAndCritical
	assert.False(t, prefs.AllowsSeverity(SeverityInfo))
	assert.True(t, prefs.AllowsSeverity(SeverityWarning))
	assert.True(t, prefs.AllowsSeverity(SeverityCritical))

	prefs.SeverityFilter = SeverityFilterCriticalOnly
	assert.False(t, prefs.AllowsSeverity(SeverityInfo))
	assert.False(t, prefs.AllowsSeverity(SeverityWarning))
	assert.True(t, prefs.AllowsSeverity(SeverityCritical))
}

func TestNotificationPreferences_IsMuted(t *testing.T) {
	prefs := DefaultPreferences()
	assert.False(t, prefs.IsMuted("door_forced"))

	prefs.MutedEventTypes = []string{"door_forced", "camera_offline"}
	assert.True(t, prefs.IsMuted("door_forced"))
	assert.True(t, prefs.IsMuted("camera_offline"))
	assert.False(t, prefs.IsMuted("pos_void"))
}

func TestNotificationPreferences_InQuietHours(t *testing.T) {
	at := func(hour, minute int) time.Time {
		return time.Date(2025, 6, 1, hour, minute, 0, 0, time.UTC)
	}

	prefs := NotificationPreferences{
		QuietHoursEnabled: true,
		QuietHoursStart:   "22:00",
		QuietHoursEnd:     "07:00",
	}

	// Window wraps past midnight.
	assert.True(t, prefs.InQuietHours(at(23, 30)))
	assert.True(t, prefs.InQuietHours(at(2, 0)))
	assert.True(t, prefs.InQuietHours(at(6, 59)))
	assert.False(t, prefs.InQuietHours(at(7, 0)))
	assert.False(t, prefs.InQuietHours(at(12, 0)))
	assert.True(t, prefs.InQuietHours(at(22, 0)))
	assert.False(t, prefs.InQuietHours(at(21, 59)))

	// Same-day window.
	prefs.QuietHoursStart = "09:00"
	prefs.QuietHoursEnd = "17:00"
	assert.True(t, prefs.InQuietHours(at(9, 0)))
	assert.True(t, prefs.InQuietHours(at(12, 0)))
	assert.False(t, prefs.InQuietHours(at(17, 0)))
	assert.False(t, prefs.InQuietHours(at(8, 59)))

	// Disabled, zero-length or unparseable windows never match.
	prefs.QuietHoursEnabled = false
	assert.False(t, prefs.InQuietHours(at(12, 0)))

	prefs.QuietHoursEnabled = true
	prefs.QuietHoursStart = "09:00"
	prefs.QuietHoursEnd = "09:00"
	assert.False(t, prefs.InQuietHours(at(9, 0)))

	prefs.QuietHoursStart = "not-a-clock"
	assert.False(t, prefs.InQuietHours(at(12, 0)))
}

func TestNotificationPreferences_Validate(t *testing.T) {
	prefs := DefaultPreferences()
	require.NoError(t, prefs.Validate())

	prefs.SoundType = "airhorn"
	assert.Error(t, prefs.Validate())

	prefs = DefaultPreferences()
	prefs.SeverityFilter = "loud_only"
	assert.Error(t, prefs.Validate())

	prefs = DefaultPreferences()
	prefs.QuietHoursEnabled = true
	prefs.QuietHoursStart = "25:00"
	prefs.QuietHoursEnd = "07:00"
	assert.Error(t, prefs.Validate())

	prefs.QuietHoursStart = "22:00"
	require.NoError(t, prefs.Validate())
}
