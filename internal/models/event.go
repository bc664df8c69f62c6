package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// Common event types captured from POS terminals. The set is open: stores may
// ingest types not listed here and rules match on the raw string.
const (
	EventTypeTransaction  = "transaction"
	EventTypeVoid         = "void"
	EventTypeRefund       = "refund"
	EventTypeLogin        = "login"
	EventTypeLoginFailure = "login_failure"
	EventTypeDrawerOpen   = "drawer_open"
	EventTypeSystemAlert  = "system_alert"
)

// Event represents a single observation captured at a store: a transaction,
// a void, a login, a drawer open. Events are immutable once captured.
type Event struct {
	ID          string         `json:"id"`
	StoreID     string         `json:"store_id"`
	DeviceID    *string        `json:"device_id,omitempty"`
	EventType   string         `json:"event_type"`
	Severity    string         `json:"severity"` // assigned by the ingester, not the evaluator
	PayloadJSON string         `json:"-"`        // Stored as JSON object string
	Payload     map[string]any `json:"payload"`
	CapturedAt  time.Time      `json:"captured_at"`
}

// PrepareForDB marshals the payload into its JSON string form before saving.
func (e *Event) PrepareForDB() {
	if e.Payload != nil {
		if b, err := json.Marshal(e.Payload); err == nil {
			e.PayloadJSON = string(b)
		}
	}
}

// PrepareForAPI unmarshals the stored JSON payload for API responses.
func (e *Event) PrepareForAPI() {
	if e.PayloadJSON != "" {
		var payload map[string]any
		if err := json.Unmarshal([]byte(e.PayloadJSON), &payload); err == nil {
			e.Payload = payload
		}
	}
}

// PayloadNumber reads a numeric payload field. JSON decoding yields float64
// for numbers, but ingesters have been observed sending amounts as strings.
func (e *Event) PayloadNumber(field string) (float64, bool) {
	if e.Payload == nil {
		return 0, false
	}
	switch v := e.Payload[field].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
