package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ajvera/storeguard-be/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Resource thresholds that capture a system_alert event, and the per-resource
// cooldown between captures.
const (
	highCPUThreshold    = 90.0
	highMemoryThreshold = 90.0
	highDiskThreshold   = 85.0
	alertCooldown       = 15 * time.Minute
	sampleInterval      = 30 * time.Second
)

// Sample is one reading of host utilization.
type Sample struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskPercent   float64 `json:"disk_percent"`
}

// Sampler reads host utilization.
type Sampler interface {
	Sample(ctx context.Context) (Sample, error)
}

// hostSampler reads the real host via gopsutil.
type hostSampler struct {
	diskPath string
}

// NewHostSampler samples the host; diskPath is the mount to watch, "/" when
// empty.
func NewHostSampler(diskPath string) Sampler {
	if diskPath == "" {
		diskPath = "/"
	}
	return &hostSampler{diskPath: diskPath}
}

func (h *hostSampler) Sample(ctx context.Context) (Sample, error) {
	var sample Sample

	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return sample, fmt.Errorf("sampling cpu: %w", err)
	}
	if len(cpuPercents) > 0 {
		sample.CPUPercent = cpuPercents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return sample, fmt.Errorf("sampling memory: %w", err)
	}
	sample.MemoryPercent = vm.UsedPercent

	du, err := disk.UsageWithContext(ctx, h.diskPath)
	if err != nil {
		return sample, fmt.Errorf("sampling disk: %w", err)
	}
	sample.DiskPercent = du.UsedPercent

	return sample, nil
}

// EventIngestor is the pipeline's ingest surface.
type EventIngestor interface {
	Ingest(ctx context.Context, event models.Event) (models.Event, error)
}

// SystemMonitor periodically samples the appliance host and captures
// system_alert events for the configured store when a resource crosses its
// threshold, so host exhaustion flows through the same rule and notification
// pipeline as POS events.
type SystemMonitor struct {
	sampler  Sampler
	ingestor EventIngestor
	storeID  string
	ticker   *time.Ticker
	done     chan bool

	mu         sync.Mutex
	lastAlert  map[string]time.Time
	lastSample Sample
	sampledAt  time.Time
}

// NewSystemMonitor creates a SystemMonitor capturing events for storeID.
func NewSystemMonitor(sampler Sampler, ingestor EventIngestor, storeID string) *SystemMonitor {
	return &SystemMonitor{
		sampler:   sampler,
		ingestor:  ingestor,
		storeID:   storeID,
		done:      make(chan bool),
		lastAlert: make(map[string]time.Time),
	}
}

// Run starts the periodic sampling.
func (m *SystemMonitor) Run() {
	log.Info().Str("store_id", m.storeID).Msg("Starting system monitor...")
	m.ticker = time.NewTicker(sampleInterval)
	defer m.ticker.Stop()

	// Run once immediately on start
	m.check()

	for {
		select {
		case <-m.done:
			log.Info().Msg("Stopping system monitor.")
			return
		case <-m.ticker.C:
			m.check()
		}
	}
}

// Stop halts the periodic sampling.
func (m *SystemMonitor) Stop() {
	m.done <- true
}

// Snapshot returns the most recent sample and when it was taken. ok is false
// before the first successful sample.
func (m *SystemMonitor) Snapshot() (Sample, time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSample, m.sampledAt, !m.sampledAt.IsZero()
}

func (m *SystemMonitor) check() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sample, err := m.sampler.Sample(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("SystemMonitor: sampling failed")
		return
	}

	m.mu.Lock()
	m.lastSample = sample
	m.sampledAt = time.Now()
	m.mu.Unlock()

	m.alertIfBreached(ctx, "cpu", sample.CPUPercent, highCPUThreshold)
	m.alertIfBreached(ctx, "memory", sample.MemoryPercent, highMemoryThreshold)
	m.alertIfBreached(ctx, "disk", sample.DiskPercent, highDiskThreshold)
}

// alertIfBreached captures one system_alert event per resource per cooldown
// window.
func (m *SystemMonitor) alertIfBreached(ctx context.Context, resource string, usedPercent, threshold float64) {
	if usedPercent <= threshold {
		return
	}

	m.mu.Lock()
	if last, ok := m.lastAlert[resource]; ok && time.Since(last) < alertCooldown {
		m.mu.Unlock()
		return
	}
	m.lastAlert[resource] = time.Now()
	m.mu.Unlock()

	_, err := m.ingestor.Ingest(ctx, models.Event{
		StoreID:   m.storeID,
		EventType: models.EventTypeSystemAlert,
		Severity:  "warn",
		Payload: map[string]any{
			"resource":     resource,
			"used_percent": usedPercent,
			"message":      fmt.Sprintf("High %s usage (%.1f%%) on the appliance", resource, usedPercent),
		},
	})
	if err != nil {
		log.Error().Err(err).Str("resource", resource).Msg("SystemMonitor: failed to capture system alert event")
	}
}
