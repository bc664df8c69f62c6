package dispatch

import (
	"strings"

	"github.com/ajvera/storeguard-be/internal/models"
)

// MapSeverity folds rule-defined match severities, an open set, onto the
// closed notification set. Unrecognized values map to warning.
func MapSeverity(severity string) string {
	switch strings.ToLower(severity) {
	case "info":
		return models.SeverityInfo
	case "warn", "warning":
		return models.SeverityWarning
	case "suspicious", "critical", "high":
		return models.SeverityCritical
	default:
		return models.SeverityWarning
	}
}
