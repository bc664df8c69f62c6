// Package pipeline runs the evaluation pass for every captured event: persist
// first, then evaluate, record matching alerts and dispatch notifications.
// Each store gets its own FIFO worker so passes stay ordered by capture within
// a store while stores proceed fully in parallel.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ajvera/storeguard-be/internal/evaluator"
	"github.com/ajvera/storeguard-be/internal/models"
	"github.com/rs/zerolog/log"
)

const ingestQueueSize = 256

// redeliveryGrace keeps alerts that are mid-dispatch out of redelivery sweeps.
const redeliveryGrace = 5 * time.Minute

// EventSink is the slice of the event store the pipeline writes and rereads.
type EventSink interface {
	Insert(ctx context.Context, event models.Event) (models.Event, error)
	GetByID(ctx context.Context, id string) (models.Event, error)
}

// StoreSource resolves the tenant a pass runs for.
type StoreSource interface {
	GetStoreByID(ctx context.Context, id string) (models.Store, error)
}

// Evaluator runs one evaluation pass.
type Evaluator interface {
	Evaluate(ctx context.Context, event models.Event, loc *time.Location) (evaluator.Result, error)
}

// AlertRecorder persists matches and lists alerts awaiting redelivery.
type AlertRecorder interface {
	Record(ctx context.Context, event models.Event, matches []models.RuleMatch) ([]models.Alert, error)
	ListOpen(ctx context.Context, createdBefore time.Time, limit int) ([]models.Alert, error)
}

// AlertDispatcher turns an open alert into a notification.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, alert models.Alert, event models.Event, store models.Store) (*models.Notification, error)
}

// EventFeed publishes captured events to live store subscribers.
type EventFeed interface {
	PublishEvent(storeID string, event models.Event)
}

// job is one queued evaluation pass. deferred marks the second pass of an
// event whose absence rules had to wait out their forward window.
type job struct {
	event    models.Event
	deferred bool
}

// Pipeline owns the per-store workers.
type Pipeline struct {
	events   EventSink
	stores   StoreSource
	eval     Evaluator
	alerts   AlertRecorder
	dispatch AlertDispatcher
	feed     EventFeed

	mu      sync.Mutex
	queues  map[string]chan job
	stopped bool

	wg   sync.WaitGroup
	done chan struct{}
}

// New creates a Pipeline.
func New(events EventSink, stores StoreSource, eval Evaluator, alerts AlertRecorder, dispatch AlertDispatcher, feed EventFeed) *Pipeline {
	return &Pipeline{
		events:   events,
		stores:   stores,
		eval:     eval,
		alerts:   alerts,
		dispatch: dispatch,
		feed:     feed,
		queues:   make(map[string]chan job),
		done:     make(chan struct{}),
	}
}

// Ingest persists the event, publishes it to the store's live feed and queues
// the evaluation pass. Persisting first makes the event visible to its own
// windowed lookbacks. A full queue blocks the caller rather than dropping.
func (p *Pipeline) Ingest(ctx context.Context, event models.Event) (models.Event, error) {
	if event.StoreID == "" {
		return models.Event{}, fmt.Errorf("event store_id is required")
	}
	if event.EventType == "" {
		return models.Event{}, fmt.Errorf("event event_type is required")
	}

	persisted, err := p.events.Insert(ctx, event)
	if err != nil {
		return models.Event{}, fmt.Errorf("persisting event: %w", err)
	}

	p.feed.PublishEvent(persisted.StoreID, persisted)
	p.enqueue(job{event: persisted})
	return persisted, nil
}

// enqueue routes the job to its store's worker, starting the worker on first
// use.
func (p *Pipeline) enqueue(j job) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		log.Debug().Str("event_id", j.event.ID).Msg("Pipeline stopped, dropping evaluation job")
		return
	}
	q, ok := p.queues[j.event.StoreID]
	if !ok {
		q = make(chan job, ingestQueueSize)
		p.queues[j.event.StoreID] = q
		p.wg.Add(1)
		go p.worker(j.event.StoreID, q)
	}
	p.mu.Unlock()

	select {
	case q <- j:
	case <-p.done:
	}
}

// worker drains one store's queue in FIFO order.
func (p *Pipeline) worker(storeID string, q chan job) {
	defer p.wg.Done()
	log.Debug().Str("store_id", storeID).Msg("Evaluation worker started")
	for {
		select {
		case j := <-q:
			p.process(j)
		case <-p.done:
			return
		}
	}
}

// process runs one evaluation pass: evaluate, schedule a second pass when
// absence windows are still open, record matches, dispatch the open alerts.
func (p *Pipeline) process(j job) {
	ctx := context.Background()

	store, err := p.stores.GetStoreByID(ctx, j.event.StoreID)
	if err != nil {
		log.Error().Err(err).Str("event_id", j.event.ID).Str("store_id", j.event.StoreID).Msg("Store lookup failed, skipping evaluation")
		return
	}

	result, err := p.eval.Evaluate(ctx, j.event, store.Location())
	if err != nil {
		log.Error().Err(err).Str("event_id", j.event.ID).Msg("Evaluation pass failed")
		return
	}

	if result.DeferUntil != nil {
		if j.deferred {
			log.Warn().Str("event_id", j.event.ID).Msg("Second pass still deferred, not rescheduling")
		} else {
			delay := time.Until(*result.DeferUntil)
			if delay < 0 {
				delay = 0
			}
			deferred := job{event: j.event, deferred: true}
			time.AfterFunc(delay, func() { p.enqueue(deferred) })
			log.Debug().Str("event_id", j.event.ID).Dur("delay", delay).Msg("Absence window open, second pass scheduled")
		}
	}

	if len(result.Matches) == 0 {
		return
	}

	alerts, err := p.alerts.Record(ctx, j.event, result.Matches)
	if err != nil {
		log.Error().Err(err).Str("event_id", j.event.ID).Msg("Recording alerts failed")
	}
	for _, alert := range alerts {
		if _, err := p.dispatch.Dispatch(ctx, alert, j.event, store); err != nil {
			log.Error().Err(err).Str("alert_id", alert.ID).Msg("Dispatch failed, alert stays open")
		}
	}
}

// RedeliverOpen dispatches alerts that were recorded but never closed, such as
// after a crash or a dispatch outage. Alerts younger than the grace period are
// assumed to be in flight and left alone.
func (p *Pipeline) RedeliverOpen(ctx context.Context, limit int) (int, error) {
	alerts, err := p.alerts.ListOpen(ctx, time.Now().Add(-redeliveryGrace), limit)
	if err != nil {
		return 0, fmt.Errorf("listing open alerts: %w", err)
	}

	redelivered := 0
	for _, alert := range alerts {
		event, err := p.events.GetByID(ctx, alert.EventID)
		if err != nil {
			log.Error().Err(err).Str("alert_id", alert.ID).Str("event_id", alert.EventID).Msg("Open alert references missing event")
			continue
		}
		store, err := p.stores.GetStoreByID(ctx, event.StoreID)
		if err != nil {
			log.Error().Err(err).Str("alert_id", alert.ID).Str("store_id", event.StoreID).Msg("Open alert references missing store")
			continue
		}
		notification, err := p.dispatch.Dispatch(ctx, alert, event, store)
		if err != nil {
			log.Error().Err(err).Str("alert_id", alert.ID).Msg("Redelivery dispatch failed")
			continue
		}
		if notification != nil {
			redelivered++
		}
	}
	if len(alerts) > 0 {
		log.Info().Int("open", len(alerts)).Int("redelivered", redelivered).Msg("Open alert redelivery finished")
	}
	return redelivered, nil
}

// Stop halts all workers after their in-flight pass. Queued jobs are dropped;
// their alerts, if any were already recorded, surface through redelivery.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.done)
	p.wg.Wait()
}
