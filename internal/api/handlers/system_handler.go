package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ajvera/storeguard-be/internal/monitoring"
	"github.com/ajvera/storeguard-be/internal/websocket"
)

// SystemHandler handles HTTP requests for service health.
type SystemHandler struct {
	monitor *monitoring.SystemMonitor
	bridge  *websocket.Bridge
}

// NewSystemHandler creates a new SystemHandler. monitor may be nil when no
// appliance store is configured.
func NewSystemHandler(monitor *monitoring.SystemMonitor, bridge *websocket.Bridge) *SystemHandler {
	return &SystemHandler{monitor: monitor, bridge: bridge}
}

type healthResponse struct {
	Status      string             `json:"status"`
	Subscribers int                `json:"subscribers"`
	System      *monitoring.Sample `json:"system,omitempty"`
	SampledAt   *time.Time         `json:"sampled_at,omitempty"`
}

// Health reports liveness, subscriber count and the latest host sample.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:      "ok",
		Subscribers: h.bridge.SubscriberCount(),
	}
	if h.monitor != nil {
		if sample, at, ok := h.monitor.Snapshot(); ok {
			resp.System = &sample
			resp.SampledAt = &at
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
