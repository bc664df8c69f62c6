package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ajvera/storeguard-be/internal/monitoring"
	ws "github.com/ajvera/storeguard-be/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSampler feeds the monitor a fixed reading.
type stubSampler struct {
	sample monitoring.Sample
}

func (s *stubSampler) Sample(ctx context.Context) (monitoring.Sample, error) {
	return s.sample, nil
}

func TestSystemHandler_HealthWithoutMonitor(t *testing.T) {
	bridge := ws.NewBridge()
	handler := NewSystemHandler(nil, bridge)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/system/health", nil)
	rec := httptest.NewRecorder()
	handler.Health(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "ok", got["status"])
	assert.Equal(t, float64(0), got["subscribers"])
	assert.NotContains(t, got, "system")
}

func TestSystemHandler_HealthReportsSampleAndSubscribers(t *testing.T) {
	bridge := ws.NewBridge()
	sub, _ := bridge.Subscribe(ws.UserKey("user-1"))
	defer sub.Cancel()

	monitor := monitoring.NewSystemMonitor(&stubSampler{sample: monitoring.Sample{CPUPercent: 12.5}}, &fakeIngestor{}, "store-1")
	go monitor.Run()
	defer monitor.Stop()

	// Run samples once on start; wait for that first snapshot.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, _, ok := monitor.Snapshot(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("monitor never sampled")
		}
		time.Sleep(10 * time.Millisecond)
	}

	handler := NewSystemHandler(monitor, bridge)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/system/health", nil)
	rec := httptest.NewRecorder()
	handler.Health(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Status      string             `json:"status"`
		Subscribers int                `json:"subscribers"`
		System      *monitoring.Sample `json:"system"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, 1, got.Subscribers)
	require.NotNil(t, got.System)
	assert.Equal(t, 12.5, got.System.CPUPercent)
}
