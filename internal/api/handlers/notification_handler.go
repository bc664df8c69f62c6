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

// SystemNotifier creates notifications outside the alert pipeline.
type SystemNotifier interface {
	DispatchSystem(ctx context.Context, userID, message, notifType, severity string) (*models.Notification, error)
}

// NotificationHandler handles HTTP requests for the notification feed,
// preferences and push tokens.
type NotificationHandler struct {
	service  services.NotificationServiceProvider
	notifier SystemNotifier
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(service services.NotificationServiceProvider, notifier SystemNotifier) *NotificationHandler {
	return &NotificationHandler{service: service, notifier: notifier}
}

func (h *NotificationHandler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := r.Context().Value(auth.UserClaimsKey).(*auth.Claims)
	if !ok {
		http.Error(w, "Could not retrieve user from token", http.StatusInternalServerError)
		return "", false
	}
	return claims.UserID, true
}

// GetAll handles the request to get the user's notification feed.
func (h *NotificationHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	limitStr := r.URL.Query().Get("limit")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = 50
	}

	notifications, err := h.service.ListForUser(r.Context(), userID, limit)
	if err != nil {
		http.Error(w, "Failed to retrieve notifications: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(notifications)
}

// UnreadCount handles the request to get the user's unread counter.
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	count, err := h.service.UnreadCount(r.Context(), userID)
	if err != nil {
		http.Error(w, "Failed to retrieve unread count: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"unread_count": count})
}

// MarkRead handles the request to mark one notification read.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.service.MarkRead(r.Context(), id, userID); err != nil {
		http.Error(w, "Failed to mark notification read: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles the request to mark the whole feed read.
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	if err := h.service.MarkAllRead(r.Context(), userID); err != nil {
		http.Error(w, "Failed to mark notifications read: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles the request to delete an ephemeral or test notification.
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), id, userID); err != nil {
		http.Error(w, "Failed to delete notification: "+err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPreferences handles the request to read delivery preferences.
func (h *NotificationHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	prefs := h.service.GetPreferences(r.Context(), userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(prefs)
}

// UpdatePreferences handles the request to save delivery preferences.
func (h *NotificationHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var prefs models.NotificationPreferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.SavePreferences(r.Context(), userID, prefs); err != nil {
		http.Error(w, "Failed to save preferences: "+err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(prefs)
}

// RegisterPushToken handles device push token registration.
func (h *NotificationHandler) RegisterPushToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var payload struct {
		Token    string `json:"token"`
		Platform string `json:"platform"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err := h.service.RegisterPushToken(r.Context(), models.PushToken{
		UserID:   userID,
		Token:    payload.Token,
		Platform: payload.Platform,
	})
	if err != nil {
		http.Error(w, "Failed to register push token: "+err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// SendTest handles the request to send a test notification to the caller.
func (h *NotificationHandler) SendTest(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	notification, err := h.notifier.DispatchSystem(r.Context(), userID,
		"This is a test notification from StoreGuard.", models.NotificationTypeTest, models.SeverityInfo)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to send test notification")
		http.Error(w, "Failed to send test notification: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(notification)
}
