package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ajvera/storeguard-be/internal/auth"
	"github.com/ajvera/storeguard-be/internal/models"
	"github.com/ajvera/storeguard-be/internal/services"
	"github.com/go-chi/chi/v5"
)

// RuleHandler handles HTTP requests for detection rule configuration.
type RuleHandler struct {
	rules  services.RuleServiceProvider
	stores services.StoreServiceProvider
}

// NewRuleHandler creates a new RuleHandler.
func NewRuleHandler(rules services.RuleServiceProvider, stores services.StoreServiceProvider) *RuleHandler {
	return &RuleHandler{rules: rules, stores: stores}
}

// ownsStore checks that the authenticated user owns the store, writing the
// error response itself when not.
func (h *RuleHandler) ownsStore(w http.ResponseWriter, r *http.Request, storeID string) bool {
	claims, ok := r.Context().Value(auth.UserClaimsKey).(*auth.Claims)
	if !ok {
		http.Error(w, "Could not retrieve user from token", http.StatusInternalServerError)
		return false
	}
	store, err := h.stores.GetStoreByID(r.Context(), storeID)
	if err != nil {
		http.Error(w, "Store not found", http.StatusNotFound)
		return false
	}
	if store.OwnerUserID != claims.UserID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return false
	}
	return true
}

// GetAllForStore handles the request to get all rules for a store.
func (h *RuleHandler) GetAllForStore(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "id")
	if !h.ownsStore(w, r, storeID) {
		return
	}

	rules, err := h.rules.ListByStore(r.Context(), storeID)
	if err != nil {
		http.Error(w, "Failed to retrieve rules: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rules)
}

// Create handles the request to create a new rule.
func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "id")
	if !h.ownsStore(w, r, storeID) {
		return
	}

	var rule models.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	rule.StoreID = storeID

	created, err := h.rules.CreateRule(r.Context(), rule)
	if err != nil {
		http.Error(w, "Failed to create rule: "+err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

// Update handles the request to update an existing rule.
func (h *RuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleId")
	existing, err := h.rules.GetRuleByID(r.Context(), ruleID)
	if err != nil {
		http.Error(w, "Rule not found", http.StatusNotFound)
		return
	}
	if !h.ownsStore(w, r, existing.StoreID) {
		return
	}

	var rule models.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	rule.StoreID = existing.StoreID

	updated, err := h.rules.UpdateRule(r.Context(), ruleID, rule)
	if err != nil {
		http.Error(w, "Failed to update rule: "+err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated)
}

// Delete handles the request to delete a rule.
func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleId")
	existing, err := h.rules.GetRuleByID(r.Context(), ruleID)
	if err != nil {
		http.Error(w, "Rule not found", http.StatusNotFound)
		return
	}
	if !h.ownsStore(w, r, existing.StoreID) {
		return
	}

	if err := h.rules.DeleteRule(r.Context(), ruleID); err != nil {
		http.Error(w, "Failed to delete rule: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
