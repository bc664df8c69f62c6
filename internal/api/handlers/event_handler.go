package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ajvera/storeguard-be/internal/auth"
	"github.com/ajvera/storeguard-be/internal/models"
	"github.com/ajvera/storeguard-be/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// EventIngestor runs the capture and evaluation pipeline for one event.
type EventIngestor interface {
	Ingest(ctx context.Context, event models.Event) (models.Event, error)
}

// EventHandler handles HTTP requests for POS event capture and feeds.
type EventHandler struct {
	ingestor EventIngestor
	events   services.EventServiceProvider
	stores   services.StoreServiceProvider
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(ingestor EventIngestor, events services.EventServiceProvider, stores services.StoreServiceProvider) *EventHandler {
	return &EventHandler{ingestor: ingestor, events: events, stores: stores}
}

// Ingest handles event capture from POS terminals. Terminals authenticate
// with the store's ingest key in X-API-Key, not a user session.
func (h *EventHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var event models.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if event.StoreID == "" || event.EventType == "" {
		http.Error(w, "store_id and event_type are required", http.StatusBadRequest)
		return
	}

	if err := h.stores.VerifyIngestKey(r.Context(), event.StoreID, r.Header.Get("X-API-Key")); err != nil {
		log.Warn().Err(err).Str("store_id", event.StoreID).Msg("Rejected event ingest")
		http.Error(w, "Invalid ingest key", http.StatusUnauthorized)
		return
	}

	if event.Severity == "" {
		event.Severity = models.SeverityInfo
	}

	persisted, err := h.ingestor.Ingest(r.Context(), event)
	if err != nil {
		log.Error().Err(err).Str("store_id", event.StoreID).Msg("Failed to capture event")
		http.Error(w, "Failed to capture event: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(persisted)
}

// GetRecentForStore handles the request to get a store's recent events.
func (h *EventHandler) GetRecentForStore(w http.ResponseWriter, r *http.Request) {
	claims, ok := r.Context().Value(auth.UserClaimsKey).(*auth.Claims)
	if !ok {
		http.Error(w, "Could not retrieve user from token", http.StatusInternalServerError)
		return
	}

	storeID := chi.URLParam(r, "id")
	store, err := h.stores.GetStoreByID(r.Context(), storeID)
	if err != nil {
		http.Error(w, "Store not found", http.StatusNotFound)
		return
	}
	if store.OwnerUserID != claims.UserID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	limitStr := r.URL.Query().Get("limit")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = 50
	}

	events, err := h.events.RecentByStore(r.Context(), storeID, limit)
	if err != nil {
		http.Error(w, "Failed to retrieve events: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}
