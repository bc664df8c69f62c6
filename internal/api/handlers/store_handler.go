package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ajvera/storeguard-be/internal/auth"
	"github.com/ajvera/storeguard-be/internal/models"
	"github.com/ajvera/storeguard-be/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// StoreHandler handles HTTP requests for store management.
type StoreHandler struct {
	stores services.StoreServiceProvider
	alerts services.AlertServiceProvider
}

// NewStoreHandler creates a new StoreHandler.
func NewStoreHandler(stores services.StoreServiceProvider, alerts services.AlertServiceProvider) *StoreHandler {
	return &StoreHandler{stores: stores, alerts: alerts}
}

// GetAll handles the request to list the caller's stores.
func (h *StoreHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	claims, ok := r.Context().Value(auth.UserClaimsKey).(*auth.Claims)
	if !ok {
		http.Error(w, "Could not retrieve user from token", http.StatusInternalServerError)
		return
	}

	stores, err := h.stores.ListStoresByOwner(r.Context(), claims.UserID)
	if err != nil {
		http.Error(w, "Failed to retrieve stores: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if stores == nil {
		stores = []models.Store{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stores)
}

// Create handles the request to register a store. The generated ingest key is
// returned exactly once; only its hash is stored.
func (h *StoreHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := r.Context().Value(auth.UserClaimsKey).(*auth.Claims)
	if !ok {
		http.Error(w, "Could not retrieve user from token", http.StatusInternalServerError)
		return
	}

	var payload struct {
		Name     string `json:"name"`
		Timezone string `json:"timezone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if payload.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	ingestKey := uuid.New().String()
	store, err := h.stores.CreateStore(r.Context(), models.Store{
		Name:        payload.Name,
		Timezone:    payload.Timezone,
		OwnerUserID: claims.UserID,
	}, ingestKey)
	if err != nil {
		log.Error().Err(err).Str("name", payload.Name).Msg("Failed to create store")
		http.Error(w, "Failed to create store: "+err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"store":      store,
		"ingest_key": ingestKey,
	})
}

// Get handles the request to retrieve one store.
func (h *StoreHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := r.Context().Value(auth.UserClaimsKey).(*auth.Claims)
	if !ok {
		http.Error(w, "Could not retrieve user from token", http.StatusInternalServerError)
		return
	}

	store, err := h.stores.GetStoreByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Store not found", http.StatusNotFound)
		return
	}
	if store.OwnerUserID != claims.UserID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(store)
}

// GetAlerts handles the request to list a store's alerts.
func (h *StoreHandler) GetAlerts(w http.ResponseWriter, r *http.Request) {
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

	alerts, err := h.alerts.ListByStore(r.Context(), storeID, limit)
	if err != nil {
		http.Error(w, "Failed to retrieve alerts: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(alerts)
}
