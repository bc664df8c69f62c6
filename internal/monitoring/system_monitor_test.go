package monitoring

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ajvera/storeguard-be/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSampler returns the configured sample on every read.
type fakeSampler struct {
	sample Sample
	err    error
	calls  int
}

func (f *fakeSampler) Sample(ctx context.Context) (Sample, error) {
	f.calls++
	if f.err != nil {
		return Sample{}, f.err
	}
	return f.sample, nil
}

// fakeIngestor records the events the monitor captures.
type fakeIngestor struct {
	events []models.Event
	err    error
}

func (f *fakeIngestor) Ingest(ctx context.Context, event models.Event) (models.Event, error) {
	if f.err != nil {
		return models.Event{}, f.err
	}
	f.events = append(f.events, event)
	return event, nil
}

func TestSystemMonitor_CapturesBreachEvent(t *testing.T) {
	sampler := &fakeSampler{sample: Sample{CPUPercent: 95.5, MemoryPercent: 50, DiskPercent: 50}}
	ingestor := &fakeIngestor{}
	monitor := NewSystemMonitor(sampler, ingestor, "store-1")

	monitor.check()

	require.Len(t, ingestor.events, 1)
	event := ingestor.events[0]
	assert.Equal(t, "store-1", event.StoreID)
	assert.Equal(t, models.EventTypeSystemAlert, event.EventType)
	assert.Equal(t, "warn", event.Severity)
	assert.Equal(t, "cpu", event.Payload["resource"])
	assert.Equal(t, 95.5, event.Payload["used_percent"])
	assert.Equal(t, "High cpu usage (95.5%) on the appliance", event.Payload["message"])

	sample, sampledAt, ok := monitor.Snapshot()
	assert.True(t, ok)
	assert.Equal(t, 95.5, sample.CPUPercent)
	assert.WithinDuration(t, time.Now(), sampledAt, time.Minute)
}

func TestSystemMonitor_CooldownSuppressesRepeats(t *testing.T) {
	sampler := &fakeSampler{sample: Sample{CPUPercent: 99}}
	ingestor := &fakeIngestor{}
	monitor := NewSystemMonitor(sampler, ingestor, "store-1")

	monitor.check()
	monitor.check()
	assert.Len(t, ingestor.events, 1)

	// Age the last capture past the cooldown and the next breach fires again.
	monitor.mu.Lock()
	monitor.lastAlert["cpu"] = time.Now().Add(-alertCooldown - time.Minute)
	monitor.mu.Unlock()

	monitor.check()
	assert.Len(t, ingestor.events, 2)
}

func TestSystemMonitor_EachResourceAlertsIndependently(t *testing.T) {
	sampler := &fakeSampler{sample: Sample{CPUPercent: 95, MemoryPercent: 93, DiskPercent: 90}}
	ingestor := &fakeIngestor{}
	monitor := NewSystemMonitor(sampler, ingestor, "store-1")

	monitor.check()

	require.Len(t, ingestor.events, 3)
	var resources []string
	for _, event := range ingestor.events {
		resources = append(resources, event.Payload["resource"].(string))
	}
	assert.Equal(t, []string{"cpu", "memory", "disk"}, resources)
}

func TestSystemMonitor_ExactThresholdDoesNotAlert(t *testing.T) {
	sampler := &fakeSampler{sample: Sample{
		CPUPercent:    highCPUThreshold,
		MemoryPercent: highMemoryThreshold,
		DiskPercent:   highDiskThreshold,
	}}
	ingestor := &fakeIngestor{}
	monitor := NewSystemMonitor(sampler, ingestor, "store-1")

	monitor.check()

	assert.Empty(t, ingestor.events)
}

func TestSystemMonitor_SamplingFailureLeavesNoSnapshot(t *testing.T) {
	sampler := &fakeSampler{err: fmt.Errorf("no /proc here")}
	ingestor := &fakeIngestor{}
	monitor := NewSystemMonitor(sampler, ingestor, "store-1")

	monitor.check()

	assert.Empty(t, ingestor.events)
	_, _, ok := monitor.Snapshot()
	assert.False(t, ok)
}

func TestSystemMonitor_CaptureFailureStillBurnsCooldown(t *testing.T) {
	sampler := &fakeSampler{sample: Sample{DiskPercent: 97}}
	ingestor := &fakeIngestor{err: fmt.Errorf("pipeline stopped")}
	monitor := NewSystemMonitor(sampler, ingestor, "store-1")

	monitor.check()
	assert.Empty(t, ingestor.events)

	// The failed capture consumed the cooldown window, so clearing the error
	// does not produce an immediate retry.
	ingestor.err = nil
	monitor.check()
	assert.Empty(t, ingestor.events)
}
