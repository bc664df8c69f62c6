// Package dispatch turns open alerts into user notifications, applying the
// owner's delivery preferences: severity filter, muted event types, quiet
// hours, sound selection and best-effort push.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/ajvera/storeguard-be/internal/models"
	"github.com/ajvera/storeguard-be/internal/push"
	"github.com/ajvera/storeguard-be/internal/retry"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// NotificationStore is the slice of the notification service the dispatcher
// writes through.
type NotificationStore interface {
	Create(ctx context.Context, notification models.Notification) (models.Notification, error)
	GetPreferences(ctx context.Context, userID string) models.NotificationPreferences
	TokensForUser(ctx context.Context, userID string) ([]models.PushToken, error)
}

// AlertCloser closes alerts once their notification exists.
type AlertCloser interface {
	MarkSent(ctx context.Context, id string) error
}

// Publisher pushes a created notification to the owner's live feed.
type Publisher interface {
	PublishNotification(userID string, notification models.Notification, sound string)
}

// Audible and push deliveries per user are capped at one per noiseInterval
// with a small burst; in-app records are never rate shaped.
const (
	noiseInterval = 10 * time.Second
	noiseBurst    = 3
)

// Dispatcher applies delivery preferences and routes alerts to the in-app
// feed, the live bridge and the push gateway.
type Dispatcher struct {
	notifications NotificationStore
	alerts        AlertCloser
	bridge        Publisher
	sender        push.Sender
	pushTimeout   time.Duration
	now           func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	wg sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. sender may be nil when no push gateway
// is configured; pushTimeout zero selects a 10 second default.
func NewDispatcher(notifications NotificationStore, alerts AlertCloser, bridge Publisher, sender push.Sender, pushTimeout time.Duration) *Dispatcher {
	if pushTimeout <= 0 {
		pushTimeout = 10 * time.Second
	}
	return &Dispatcher{
		notifications: notifications,
		alerts:        alerts,
		bridge:        bridge,
		sender:        sender,
		pushTimeout:   pushTimeout,
		now:           time.Now,
		limiters:      make(map[string]*rate.Limiter),
	}
}

// limiter returns the per-user noise limiter, creating it on first use.
func (d *Dispatcher) limiter(userID string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	limiter, ok := d.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(noiseInterval), noiseBurst)
		d.limiters[userID] = limiter
	}
	return limiter
}

// Dispatch runs the decision pipeline for one open alert. A suppressed
// dispatch returns (nil, nil) and leaves the alert open for redelivery; a
// created notification closes the alert. Quiet hours and rate shaping
// suppress noise (sound, push) but never the in-app record.
func (d *Dispatcher) Dispatch(ctx context.Context, alert models.Alert, event models.Event, store models.Store) (*models.Notification, error) {
	if store.OwnerUserID == "" {
		log.Warn().Str("alert_id", alert.ID).Str("store_id", store.ID).Msg("Store has no owner, alert left open")
		return nil, nil
	}
	userID := store.OwnerUserID
	prefs := d.notifications.GetPreferences(ctx, userID)
	severity := MapSeverity(alert.Severity)

	if !prefs.AllowsSeverity(severity) {
		log.Debug().Str("alert_id", alert.ID).Str("severity", severity).Msg("Severity filter suppressed dispatch")
		return nil, nil
	}
	if prefs.IsMuted(event.EventType) {
		log.Debug().Str("alert_id", alert.ID).Str("event_type", event.EventType).Msg("Muted event type suppressed dispatch")
		return nil, nil
	}
	quiet := prefs.InQuietHours(d.now().In(store.Location()))

	eventType := event.EventType
	notification, err := d.notifications.Create(ctx, models.Notification{
		UserID:   userID,
		Message:  alert.Message,
		Type:     &eventType,
		Severity: severity,
	})
	if err != nil {
		return nil, err
	}

	if err := d.alerts.MarkSent(ctx, alert.ID); err != nil {
		// The notification exists; a redelivered alert will dedup upstream.
		log.Error().Err(err).Str("alert_id", alert.ID).Msg("Failed to mark alert sent")
	}

	noisy := d.limiter(userID).Allow()
	if !noisy {
		log.Debug().Str("user_id", userID).Msg("Noise limiter engaged, delivering silently")
	}

	sound := prefs.SoundType
	if quiet || !noisy {
		sound = models.SoundNone
	}
	d.bridge.PublishNotification(userID, notification, sound)

	if alert.HasChannel(models.ChannelPush) && prefs.PushEnabled && !quiet && noisy {
		d.sendPush(ctx, userID, store.Name, notification)
	}
	return &notification, nil
}

// DispatchSystem creates a notification outside the alert pipeline, for test
// messages and operator announcements. Severity filters, mutes and quiet
// hours do not apply.
func (d *Dispatcher) DispatchSystem(ctx context.Context, userID, message, notifType, severity string) (*models.Notification, error) {
	notification, err := d.notifications.Create(ctx, models.Notification{
		UserID:   userID,
		Message:  message,
		Type:     &notifType,
		Severity: MapSeverity(severity),
	})
	if err != nil {
		return nil, err
	}
	prefs := d.notifications.GetPreferences(ctx, userID)
	d.bridge.PublishNotification(userID, notification, prefs.SoundType)
	return &notification, nil
}

// sendPush hands delivery to a supervised goroutine with its own timeout,
// detached from the caller's context. Failures are logged, never propagated.
func (d *Dispatcher) sendPush(ctx context.Context, userID, title string, notification models.Notification) {
	if d.sender == nil {
		return
	}
	tokens, err := d.notifications.TokensForUser(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Could not load push tokens")
		return
	}
	if len(tokens) == 0 {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		pushCtx, cancel := context.WithTimeout(context.Background(), d.pushTimeout)
		defer cancel()
		for _, token := range tokens {
			err := retry.Do(pushCtx, "push delivery", func() error {
				return d.sender.Send(pushCtx, userID, token.Token, title, notification.Message, notification.Severity)
			})
			if err != nil {
				log.Error().Err(err).
					Str("user_id", userID).
					Str("notification_id", notification.ID).
					Msg("Push delivery failed")
			}
		}
	}()
}

// Wait blocks until all in-flight push deliveries finish. Called on shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
