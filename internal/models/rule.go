package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Rule kinds the evaluator knows how to run. "pattern" and "ml" are stored by
// the dashboard for engines that live outside this process; they load and list
// normally but produce no matches here.
const (
	RuleKindThreshold = "threshold"
	RuleKindAbsence   = "absence"
	RuleKindImmediate = "immediate"
	RuleKindTemporal  = "temporal"
	RuleKindPattern   = "pattern"
	RuleKindML        = "ml"
)

// EventTypeWildcard in a rule's event_type parameter matches every event type.
const EventTypeWildcard = "*"

// Rule is a stored detection predicate bound to one store. Parameters vary by
// kind and are persisted as a JSON object string.
type Rule struct {
	ID         string          `json:"id"`
	StoreID    string          `json:"store_id"`
	Name       string          `json:"name"`
	Kind       string          `json:"kind"`
	ParamsJSON string          `json:"-"` // Stored as JSON object string
	Parameters json.RawMessage `json:"parameters"`
	IsActive   bool            `json:"is_active"`
	CreatedAt  time.Time       `json:"created_at"`
}

// PrepareForDB ensures the parameters are in their JSON string form before saving.
func (r *Rule) PrepareForDB() {
	if r.Parameters != nil {
		r.ParamsJSON = string(r.Parameters)
	}
}

// PrepareForAPI exposes the stored JSON parameters for API responses.
func (r *Rule) PrepareForAPI() {
	if r.ParamsJSON != "" {
		r.Parameters = []byte(r.ParamsJSON)
	}
}

// ThresholdParams configures a windowed count rule: N or more events of
// event_type within the trailing time window.
type ThresholdParams struct {
	EventType         string `json:"event_type"`
	Severity          string `json:"severity"`
	ThresholdValue    int    `json:"threshold_value"`
	TimeWindowMinutes int    `json:"time_window_minutes"`
	DeviceType        string `json:"device_type,omitempty"`
}

// AbsenceParams configures a missing-sibling rule: the trigger event matched
// when no pair_event_type exists within pair_window_seconds on either side.
type AbsenceParams struct {
	EventType         string `json:"event_type"`
	Severity          string `json:"severity"`
	PairEventType     string `json:"pair_event_type"`
	PairWindowSeconds int    `json:"pair_window_seconds"`
}

// ImmediateParams configures a pure payload predicate: the named numeric
// payload field exceeds threshold_value. Field defaults to "amount".
type ImmediateParams struct {
	EventType      string  `json:"event_type"`
	Severity       string  `json:"severity"`
	Field          string  `json:"field,omitempty"`
	ThresholdValue float64 `json:"threshold_value"`
}

// TemporalParams configures a time-of-day predicate: the event was captured
// between start_hour and end_hour store-local, wrapping past midnight.
type TemporalParams struct {
	EventType string `json:"event_type"`
	Severity  string `json:"severity"`
	StartHour int    `json:"start_hour"`
	EndHour   int    `json:"end_hour"`
}

func (r *Rule) paramBytes() []byte {
	if r.ParamsJSON != "" {
		return []byte(r.ParamsJSON)
	}
	return r.Parameters
}

// ThresholdParams decodes and validates the rule's parameters as a threshold rule.
func (r *Rule) ThresholdParams() (ThresholdParams, error) {
	var p ThresholdParams
	if err := json.Unmarshal(r.paramBytes(), &p); err != nil {
		return p, fmt.Errorf("rule %s: decoding threshold parameters: %w", r.ID, err)
	}
	if p.ThresholdValue <= 0 {
		return p, fmt.Errorf("rule %s: threshold_value must be positive", r.ID)
	}
	if p.TimeWindowMinutes <= 0 {
		return p, fmt.Errorf("rule %s: time_window_minutes must be positive", r.ID)
	}
	return p, nil
}

// AbsenceParams decodes and validates the rule's parameters as an absence rule.
func (r *Rule) AbsenceParams() (AbsenceParams, error) {
	var p AbsenceParams
	if err := json.Unmarshal(r.paramBytes(), &p); err != nil {
		return p, fmt.Errorf("rule %s: decoding absence parameters: %w", r.ID, err)
	}
	if p.PairEventType == "" {
		return p, fmt.Errorf("rule %s: pair_event_type is required", r.ID)
	}
	if p.PairWindowSeconds <= 0 {
		return p, fmt.Errorf("rule %s: pair_window_seconds must be positive", r.ID)
	}
	return p, nil
}

// ImmediateParams decodes and validates the rule's parameters as an immediate rule.
func (r *Rule) ImmediateParams() (ImmediateParams, error) {
	var p ImmediateParams
	if err := json.Unmarshal(r.paramBytes(), &p); err != nil {
		return p, fmt.Errorf("rule %s: decoding immediate parameters: %w", r.ID, err)
	}
	if p.Field == "" {
		p.Field = "amount"
	}
	return p, nil
}

// TemporalParams decodes and validates the rule's parameters as a temporal rule.
func (r *Rule) TemporalParams() (TemporalParams, error) {
	var p TemporalParams
	if err := json.Unmarshal(r.paramBytes(), &p); err != nil {
		return p, fmt.Errorf("rule %s: decoding temporal parameters: %w", r.ID, err)
	}
	if p.StartHour < 0 || p.StartHour > 23 || p.EndHour < 0 || p.EndHour > 23 {
		return p, fmt.Errorf("rule %s: hours must be within 0-23", r.ID)
	}
	return p, nil
}

// RuleMatch is the outcome of one rule firing on one event. Severity here is
// the rule's own, which may differ from the originating event's severity.
type RuleMatch struct {
	RuleID   string `json:"rule_id"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// EventTypeFilter returns the event_type parameter regardless of kind, so the
// evaluator can pre-filter rules before decoding the full parameter set.
func (r *Rule) EventTypeFilter() string {
	var p struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(r.paramBytes(), &p); err != nil {
		return ""
	}
	return p.EventType
}

// MatchesEventType reports whether the rule's event_type filter accepts the
// given type. An empty or wildcard filter accepts everything.
func (r *Rule) MatchesEventType(eventType string) bool {
	filter := r.EventTypeFilter()
	return filter == "" || filter == EventTypeWildcard || filter == eventType
}
