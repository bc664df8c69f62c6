// Package evaluator runs every applicable detection rule against one captured
// event. Rules evaluate concurrently within a pass; the match set is collected
// in catalog order so a pass is deterministic for a fixed event history.
package evaluator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ajvera/storeguard-be/internal/models"
	"github.com/ajvera/storeguard-be/internal/retry"
	"github.com/rs/zerolog/log"
)

// EventLookup is the windowed-query surface the evaluator issues lookbacks
// against.
type EventLookup interface {
	Count(ctx context.Context, storeID, eventType, deviceType string, from, to time.Time) (int, error)
	Exists(ctx context.Context, storeID, eventType string, from, to time.Time) (bool, error)
}

// RuleSource provides the active rules for a store.
type RuleSource interface {
	ListActive(ctx context.Context, storeID string) ([]models.Rule, error)
}

// Result is the outcome of one evaluation pass. DeferUntil is set when one or
// more absence rules could not close because their forward window has not
// elapsed; the caller re-runs the pass once that instant has passed.
type Result struct {
	Matches    []models.RuleMatch
	DeferUntil *time.Time
}

// Evaluator evaluates active rules against events.
type Evaluator struct {
	events EventLookup
	rules  RuleSource
	now    func() time.Time
}

// New creates an Evaluator.
func New(events EventLookup, rules RuleSource) *Evaluator {
	return &Evaluator{events: events, rules: rules, now: time.Now}
}

// outcome is one rule's contribution to a pass.
type outcome struct {
	match      *models.RuleMatch
	deferUntil *time.Time
}

// Evaluate runs every active rule for the event's store whose event_type
// filter accepts the event. loc is the store's timezone, which anchors
// time-of-day rules. Rules run concurrently; one rule's failure skips only
// that rule.
func (e *Evaluator) Evaluate(ctx context.Context, event models.Event, loc *time.Location) (Result, error) {
	rules, err := e.rules.ListActive(ctx, event.StoreID)
	if err != nil {
		return Result{}, fmt.Errorf("listing active rules for store %s: %w", event.StoreID, err)
	}

	applicable := make([]models.Rule, 0, len(rules))
	for _, rule := range rules {
		if rule.MatchesEventType(event.EventType) {
			applicable = append(applicable, rule)
		}
	}
	if len(applicable) == 0 {
		return Result{}, nil
	}

	outcomes := make([]outcome, len(applicable))
	var wg sync.WaitGroup
	wg.Add(len(applicable))
	for i := range applicable {
		go func(i int) {
			defer wg.Done()
			outcomes[i] = e.evaluateRule(ctx, applicable[i], event, loc)
		}(i)
	}
	wg.Wait()

	var result Result
	for _, o := range outcomes {
		if o.match != nil {
			result.Matches = append(result.Matches, *o.match)
		}
		if o.deferUntil != nil && (result.DeferUntil == nil || o.deferUntil.After(*result.DeferUntil)) {
			result.DeferUntil = o.deferUntil
		}
	}
	return result, nil
}

// evaluateRule dispatches on the rule's kind tag. Unknown kinds and kinds
// evaluated by external engines produce no match.
func (e *Evaluator) evaluateRule(ctx context.Context, rule models.Rule, event models.Event, loc *time.Location) outcome {
	switch rule.Kind {
	case models.RuleKindThreshold:
		return e.evaluateThreshold(ctx, rule, event)
	case models.RuleKindAbsence:
		return e.evaluateAbsence(ctx, rule, event)
	case models.RuleKindImmediate:
		return e.evaluateImmediate(rule, event)
	case models.RuleKindTemporal:
		return e.evaluateTemporal(rule, event, loc)
	case models.RuleKindPattern, models.RuleKindML:
		log.Debug().Str("rule_id", rule.ID).Str("kind", rule.Kind).Msg("Rule kind is evaluated externally, skipping")
		return outcome{}
	default:
		log.Warn().Str("rule_id", rule.ID).Str("kind", rule.Kind).Msg("Unknown rule kind, skipping")
		return outcome{}
	}
}

// evaluateThreshold counts matching events in the trailing window, including
// the triggering event itself, which is already persisted by the time a pass
// runs.
func (e *Evaluator) evaluateThreshold(ctx context.Context, rule models.Rule, event models.Event) outcome {
	params, err := rule.ThresholdParams()
	if err != nil {
		log.Warn().Err(err).Str("rule_id", rule.ID).Msg("Invalid threshold rule parameters, skipping")
		return outcome{}
	}

	eventType := params.EventType
	if eventType == "" || eventType == models.EventTypeWildcard {
		eventType = event.EventType
	}
	to := event.CapturedAt
	from := to.Add(-time.Duration(params.TimeWindowMinutes) * time.Minute)

	var count int
	err = retry.Do(ctx, "threshold lookback", func() error {
		var lookbackErr error
		count, lookbackErr = e.events.Count(ctx, event.StoreID, eventType, params.DeviceType, from, to)
		return lookbackErr
	})
	if err != nil {
		log.Warn().Err(err).Str("rule_id", rule.ID).Msg("Threshold lookback failed, skipping rule")
		return outcome{}
	}

	if count < params.ThresholdValue {
		return outcome{}
	}
	return outcome{match: &models.RuleMatch{
		RuleID:   rule.ID,
		Severity: severityOr(params.Severity),
		Message: fmt.Sprintf("%s: %d %s events in the last %d minutes (threshold %d)",
			rule.Name, count, eventType, params.TimeWindowMinutes, params.ThresholdValue),
	}}
}

// evaluateAbsence checks both sides of the event for a qualifying sibling.
// The forward window reaches past the triggering event, so the rule can only
// close once that window has elapsed; until then the outcome is a deferral.
func (e *Evaluator) evaluateAbsence(ctx context.Context, rule models.Rule, event models.Event) outcome {
	params, err := rule.AbsenceParams()
	if err != nil {
		log.Warn().Err(err).Str("rule_id", rule.ID).Msg("Invalid absence rule parameters, skipping")
		return outcome{}
	}

	window := time.Duration(params.PairWindowSeconds) * time.Second
	windowEnd := event.CapturedAt.Add(window)
	if e.now().Before(windowEnd) {
		return outcome{deferUntil: &windowEnd}
	}

	var found bool
	err = retry.Do(ctx, "absence lookback", func() error {
		before, lookbackErr := e.events.Exists(ctx, event.StoreID, params.PairEventType, event.CapturedAt.Add(-window), event.CapturedAt)
		if lookbackErr != nil {
			return lookbackErr
		}
		if before {
			found = true
			return nil
		}
		after, lookbackErr := e.events.Exists(ctx, event.StoreID, params.PairEventType, event.CapturedAt, windowEnd)
		if lookbackErr != nil {
			return lookbackErr
		}
		found = after
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("rule_id", rule.ID).Msg("Absence lookback failed, skipping rule")
		return outcome{}
	}

	if found {
		return outcome{}
	}
	return outcome{match: &models.RuleMatch{
		RuleID:   rule.ID,
		Severity: severityOr(params.Severity),
		Message: fmt.Sprintf("%s: %s with no %s within %d seconds",
			rule.Name, event.EventType, params.PairEventType, params.PairWindowSeconds),
	}}
}

// evaluateImmediate is a pure predicate on the event's own payload. A missing
// or non-numeric field is a non-match, not an error.
func (e *Evaluator) evaluateImmediate(rule models.Rule, event models.Event) outcome {
	params, err := rule.ImmediateParams()
	if err != nil {
		log.Warn().Err(err).Str("rule_id", rule.ID).Msg("Invalid immediate rule parameters, skipping")
		return outcome{}
	}

	value, ok := event.PayloadNumber(params.Field)
	if !ok || value <= params.ThresholdValue {
		return outcome{}
	}
	return outcome{match: &models.RuleMatch{
		RuleID:   rule.ID,
		Severity: severityOr(params.Severity),
		Message: fmt.Sprintf("%s: %s %s %.2f exceeds %.2f",
			rule.Name, event.EventType, params.Field, value, params.ThresholdValue),
	}}
}

// evaluateTemporal checks the capture time against a store-local hour window
// [start, end), wrapping past midnight when start > end.
func (e *Evaluator) evaluateTemporal(rule models.Rule, event models.Event, loc *time.Location) outcome {
	params, err := rule.TemporalParams()
	if err != nil {
		log.Warn().Err(err).Str("rule_id", rule.ID).Msg("Invalid temporal rule parameters, skipping")
		return outcome{}
	}
	if loc == nil {
		loc = time.UTC
	}

	local := event.CapturedAt.In(loc)
	hour := local.Hour()
	var inWindow bool
	switch {
	case params.StartHour < params.EndHour:
		inWindow = hour >= params.StartHour && hour < params.EndHour
	case params.StartHour > params.EndHour:
		inWindow = hour >= params.StartHour || hour < params.EndHour
	}
	if !inWindow {
		return outcome{}
	}
	return outcome{match: &models.RuleMatch{
		RuleID:   rule.ID,
		Severity: severityOr(params.Severity),
		Message: fmt.Sprintf("%s: %s at %s store time (watch window %02d:00-%02d:00)",
			rule.Name, event.EventType, local.Format("15:04"), params.StartHour, params.EndHour),
	}}
}

// severityOr fills the default severity for rules that do not set one.
func severityOr(severity string) string {
	if severity == "" {
		return "warn"
	}
	return severity
}
