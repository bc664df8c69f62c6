package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ajvera/storeguard-be/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNotifier records system notification requests.
type fakeNotifier struct {
	userID   string
	message  string
	kind     string
	severity string
	err      error
}

func (f *fakeNotifier) DispatchSystem(ctx context.Context, userID, message, notifType, severity string) (*models.Notification, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.userID = userID
	f.message = message
	f.kind = notifType
	f.severity = severity
	return &models.Notification{ID: "ntf-test", UserID: userID, Message: message, Type: &notifType, Severity: severity}, nil
}

func newNotificationRouter(env *handlerEnv, notifier SystemNotifier) *chi.Mux {
	handler := NewNotificationHandler(env.notifications, notifier)
	router := chi.NewRouter()
	router.Route("/api/v1/notifications", func(r chi.Router) {
		r.Get("/", handler.GetAll)
		r.Get("/unread-count", handler.UnreadCount)
		r.Post("/read-all", handler.MarkAllRead)
		r.Post("/test", handler.SendTest)
		r.Get("/preferences", handler.GetPreferences)
		r.Put("/preferences", handler.UpdatePreferences)
		r.Post("/push-tokens", handler.RegisterPushToken)
		r.Post("/{id}/read", handler.MarkRead)
		r.Delete("/{id}", handler.Delete)
	})
	return router
}

func TestNotificationHandler_FeedAndCounters(t *testing.T) {
	env := newHandlerEnv(t)
	ctx := context.Background()
	user, err := env.users.CreateUser(ctx, "prefsam", "sam@example.com", "hunter22")
	require.NoError(t, err)

	testType := models.NotificationTypeTest
	first, err := env.notifications.Create(ctx, models.Notification{
		UserID: user.ID, Message: "Void burst at eastside", Severity: models.SeverityCritical,
	})
	require.NoError(t, err)
	deletable, err := env.notifications.Create(ctx, models.Notification{
		UserID: user.ID, Message: "Hello from settings", Type: &testType, Severity: models.SeverityInfo,
	})
	require.NoError(t, err)

	router := newNotificationRouter(env, &fakeNotifier{})

	do := func(method, path string, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, withClaims(req, user.ID))
		return rec
	}

	t.Run("feed lists newest first", func(t *testing.T) {
		rec := do(http.MethodGet, "/api/v1/notifications", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var got []models.Notification
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		require.Len(t, got, 2)
	})

	t.Run("limit caps the feed", func(t *testing.T) {
		rec := do(http.MethodGet, "/api/v1/notifications?limit=1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var got []models.Notification
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Len(t, got, 1)
	})

	t.Run("unread count tracks reads", func(t *testing.T) {
		rec := do(http.MethodGet, "/api/v1/notifications/unread-count", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"unread_count": 2}`, rec.Body.String())

		rec = do(http.MethodPost, "/api/v1/notifications/"+first.ID+"/read", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = do(http.MethodGet, "/api/v1/notifications/unread-count", "")
		assert.JSONEq(t, `{"unread_count": 1}`, rec.Body.String())

		rec = do(http.MethodPost, "/api/v1/notifications/read-all", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = do(http.MethodGet, "/api/v1/notifications/unread-count", "")
		assert.JSONEq(t, `{"unread_count": 0}`, rec.Body.String())
	})

	t.Run("only ephemeral and test notifications delete", func(t *testing.T) {
		rec := do(http.MethodDelete, "/api/v1/notifications/"+first.ID, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = do(http.MethodDelete, "/api/v1/notifications/"+deletable.ID, "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestNotificationHandler_Preferences(t *testing.T) {
	env := newHandlerEnv(t)
	user, err := env.users.CreateUser(context.Background(), "tuner", "tuner@example.com", "hunter22")
	require.NoError(t, err)
	router := newNotificationRouter(env, &fakeNotifier{})

	t.Run("defaults before any save", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications/preferences", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, withClaims(req, user.ID))

		require.Equal(t, http.StatusOK, rec.Code)
		var got models.NotificationPreferences
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, models.DefaultPreferences(), got)
	})

	t.Run("save round-trips", func(t *testing.T) {
		body := `{
			"email_enabled": false,
			"push_enabled": true,
			"sms_enabled": false,
			"sound_type": "chime",
			"severity_filter": "warning_and_above",
			"quiet_hours_enabled": true,
			"quiet_hours_start": "22:00",
			"quiet_hours_end": "07:00",
			"muted_event_types": ["drawer_open"]
		}`
		req := httptest.NewRequest(http.MethodPut, "/api/v1/notifications/preferences", strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, withClaims(req, user.ID))
		require.Equal(t, http.StatusOK, rec.Code)

		req = httptest.NewRequest(http.MethodGet, "/api/v1/notifications/preferences", nil)
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, withClaims(req, user.ID))
		var got models.NotificationPreferences
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, "chime", got.SoundType)
		assert.Equal(t, "warning_and_above", got.SeverityFilter)
		assert.True(t, got.QuietHoursEnabled)
		assert.Equal(t, []string{"drawer_open"}, got.MutedEventTypes)
	})

	t.Run("rejects an unknown sound", func(t *testing.T) {
		body := `{"sound_type":"airhorn","severity_filter":"all"}`
		req := httptest.NewRequest(http.MethodPut, "/api/v1/notifications/preferences", strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, withClaims(req, user.ID))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestNotificationHandler_PushTokensAndTest(t *testing.T) {
	env := newHandlerEnv(t)
	user, err := env.users.CreateUser(context.Background(), "pusher", "pusher@example.com", "hunter22")
	require.NoError(t, err)
	notifier := &fakeNotifier{}
	router := newNotificationRouter(env, notifier)

	t.Run("registers a push token", func(t *testing.T) {
		body := `{"token":"tok-web-1","platform":"web"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/push-tokens", strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, withClaims(req, user.ID))
		assert.Equal(t, http.StatusCreated, rec.Code)

		tokens, err := env.notifications.TokensForUser(context.Background(), user.ID)
		require.NoError(t, err)
		require.Len(t, tokens, 1)
		assert.Equal(t, "tok-web-1", tokens[0].Token)
	})

	t.Run("rejects an empty token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/push-tokens", strings.NewReader(`{"platform":"web"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, withClaims(req, user.ID))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("test notification goes through the system notifier", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/test", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, withClaims(req, user.ID))

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, user.ID, notifier.userID)
		assert.Equal(t, models.NotificationTypeTest, notifier.kind)
		assert.Equal(t, models.SeverityInfo, notifier.severity)
		assert.Contains(t, notifier.message, "test notification")
	})
}
