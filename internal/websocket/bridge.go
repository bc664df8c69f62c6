// Package websocket fans newly captured events and notifications out to live
// dashboard subscribers. The Bridge is an explicit registry of subscription
// handles keyed by feed: store feeds carry events, user feeds carry
// notifications. Each feed keeps a bounded most-recent-first backlog that late
// subscribers receive as a snapshot.
package websocket

import (
	"sync"

	"github.com/ajvera/storeguard-be/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// backlogLimit bounds each feed's retained history.
	backlogLimit = 100
	// subscriberBuffer is each subscription's channel capacity. A subscriber
	// that falls this far behind is dropped.
	subscriberBuffer = 32
)

// StoreKey is the feed key for a store's event stream.
func StoreKey(storeID string) string { return "store:" + storeID }

// UserKey is the feed key for a user's notification stream.
func UserKey(userID string) string { return "user:" + userID }

// Subscription is a live attachment to one feed. Messages arrive on C until
// Cancel is called or the bridge drops the subscriber; either way C is closed
// exactly once.
type Subscription struct {
	ID  string
	Key string
	C   chan Message

	bridge *Bridge
}

// Cancel synchronously detaches the subscription and closes C. Safe to call
// more than once.
func (s *Subscription) Cancel() {
	s.bridge.cancel(s)
}

// Bridge is the subscription registry.
type Bridge struct {
	mu       sync.Mutex
	subs     map[string]map[string]*Subscription
	backlogs map[string][]Message
}

// NewBridge creates an empty Bridge.
func NewBridge() *Bridge {
	return &Bridge{
		subs:     make(map[string]map[string]*Subscription),
		backlogs: make(map[string][]Message),
	}
}

// Subscribe attaches to a feed. The returned snapshot is the feed's current
// backlog, most recent first; everything published afterwards arrives on the
// subscription channel, so the two do not overlap or gap.
func (b *Bridge) Subscribe(key string) (*Subscription, []Message) {
	sub := &Subscription{
		ID:     uuid.New().String(),
		Key:    key,
		C:      make(chan Message, subscriberBuffer),
		bridge: b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[key] == nil {
		b.subs[key] = make(map[string]*Subscription)
	}
	b.subs[key][sub.ID] = sub

	snapshot := make([]Message, len(b.backlogs[key]))
	copy(snapshot, b.backlogs[key])
	return sub, snapshot
}

// cancel removes the subscription from the registry and closes its channel.
// The registry entry is the closed-once guard: a subscription no longer
// present has already been closed.
func (b *Bridge) cancel(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropLocked(s)
}

func (b *Bridge) dropLocked(s *Subscription) {
	subs, ok := b.subs[s.Key]
	if !ok {
		return
	}
	if _, ok := subs[s.ID]; !ok {
		return
	}
	delete(subs, s.ID)
	if len(subs) == 0 {
		delete(b.subs, s.Key)
	}
	close(s.C)
}

// Publish prepends the message to the feed's backlog and fans it out to every
// current subscriber. A subscriber whose channel is full cannot keep up and is
// dropped on the spot.
func (b *Bridge) Publish(key string, msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	backlog := append([]Message{msg}, b.backlogs[key]...)
	if len(backlog) > backlogLimit {
		backlog = backlog[:backlogLimit]
	}
	b.backlogs[key] = backlog

	for _, sub := range b.subs[key] {
		select {
		case sub.C <- msg:
		default:
			log.Warn().Str("key", key).Str("subscription_id", sub.ID).Msg("Subscriber too slow, dropping")
			b.dropLocked(sub)
		}
	}
}

// PublishEvent pushes a captured event to the store's feed.
func (b *Bridge) PublishEvent(storeID string, event models.Event) {
	b.Publish(StoreKey(storeID), NewEventMessage(event))
}

// PublishNotification pushes a created notification to the user's feed.
func (b *Bridge) PublishNotification(userID string, notification models.Notification, sound string) {
	b.Publish(UserKey(userID), NewNotificationMessage(notification, sound))
}

// SubscriberCount reports the number of live subscriptions across all feeds.
func (b *Bridge) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for _, subs := range b.subs {
		total += len(subs)
	}
	return total
}
