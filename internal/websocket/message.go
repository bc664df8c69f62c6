package websocket

import (
	"encoding/json"

	"github.com/ajvera/storeguard-be/internal/models"
)

// Message defines the structure for websocket messages.
type Message struct {
	Action  string      `json:"action"`
	Payload interface{} `json:"payload"`
}

// Actions carried on the wire, both directions.
const (
	ActionNewEvent        = "new_event"
	ActionNewNotification = "new_notification"
	ActionSubscribed      = "subscribed"
	ActionUnsubscribed    = "unsubscribed"
	ActionError           = "error"
)

// Encode marshals the message for the wire.
func (m Message) Encode() []byte {
	data, _ := json.Marshal(m)
	return data
}

// NewEventMessage wraps a captured event for a store's live feed.
func NewEventMessage(event models.Event) Message {
	return Message{Action: ActionNewEvent, Payload: event}
}

// notificationPayload is the notification record plus the additive sound cue.
type notificationPayload struct {
	models.Notification
	Sound string `json:"sound"`
}

// NewNotificationMessage wraps a notification for a user's live feed. sound is
// the audible cue the dashboard should play; "none" plays nothing.
func NewNotificationMessage(notification models.Notification, sound string) Message {
	return Message{Action: ActionNewNotification, Payload: notificationPayload{notification, sound}}
}

// NewErrorMessage reports a failed client action.
func NewErrorMessage(message string) Message {
	return Message{Action: ActionError, Payload: map[string]string{"message": message}}
}
