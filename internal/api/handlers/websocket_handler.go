package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/ajvera/storeguard-be/internal/auth"
	"github.com/ajvera/storeguard-be/internal/services"
	ws "github.com/ajvera/storeguard-be/internal/websocket"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler upgrades dashboard connections and wires them to bridge
// feeds. One connection may hold several subscriptions at once: its own
// notification feed plus any number of owned stores' event feeds.
type WebSocketHandler struct {
	bridge *ws.Bridge
	stores services.StoreServiceProvider

	mu   sync.Mutex
	subs map[*ws.Client]map[string]*ws.Subscription
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(bridge *ws.Bridge, stores services.StoreServiceProvider) *WebSocketHandler {
	return &WebSocketHandler{
		bridge: bridge,
		stores: stores,
		subs:   make(map[*ws.Client]map[string]*ws.Subscription),
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins (consider tightening this in production).
		return true
	},
}

// Serve handles the WebSocket connection request.
func (h *WebSocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	claims, ok := r.Context().Value(auth.UserClaimsKey).(*auth.Claims)
	if !ok {
		http.Error(w, "Could not retrieve user from token", http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}

	client := ws.NewClient(conn, claims.UserID)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		client.WritePump()
	}()
	go func() {
		defer wg.Done()
		client.ReadPump(func(data []byte) { h.handleIncomingWSMessage(client, data) })
	}()

	// Cleanup on disconnect.
	go func() {
		wg.Wait()
		h.detachAll(client)
	}()
}

// handleIncomingWSMessage processes messages received from a websocket client.
func (h *WebSocketHandler) handleIncomingWSMessage(client *ws.Client, data []byte) {
	var msg ws.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Err(err).Bytes("message", data).Msg("Error decoding websocket message")
		return
	}

	switch msg.Action {
	case "subscribe_events":
		storeID, ok := payloadString(msg, "store_id")
		if !ok {
			client.TrySend(ws.NewErrorMessage("store_id is required").Encode())
			return
		}
		store, err := h.stores.GetStoreByID(context.Background(), storeID)
		if err != nil || store.OwnerUserID != client.UserID {
			client.TrySend(ws.NewErrorMessage("Unknown store").Encode())
			return
		}
		h.subscribe(client, ws.StoreKey(storeID))

	case "unsubscribe_events":
		storeID, ok := payloadString(msg, "store_id")
		if !ok {
			client.TrySend(ws.NewErrorMessage("store_id is required").Encode())
			return
		}
		h.unsubscribe(client, ws.StoreKey(storeID))

	case "subscribe_notifications":
		h.subscribe(client, ws.UserKey(client.UserID))

	case "unsubscribe_notifications":
		h.unsubscribe(client, ws.UserKey(client.UserID))

	default:
		log.Warn().Str("action", msg.Action).Msg("Unknown websocket action received")
		client.TrySend(ws.NewErrorMessage("Unknown action: " + msg.Action).Encode())
	}
}

// payloadString pulls one string field out of a message payload.
func payloadString(msg ws.Message, field string) (string, bool) {
	payload, ok := msg.Payload.(map[string]interface{})
	if !ok {
		return "", false
	}
	value, ok := payload[field].(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// subscribe attaches the client to a feed, replays the backlog snapshot, and
// starts the goroutine forwarding live messages to the connection.
func (h *WebSocketHandler) subscribe(client *ws.Client, key string) {
	h.mu.Lock()
	if h.subs[client] == nil {
		h.subs[client] = make(map[string]*ws.Subscription)
	}
	if _, exists := h.subs[client][key]; exists {
		h.mu.Unlock()
		client.TrySend(ws.NewErrorMessage("Already subscribed").Encode())
		return
	}
	sub, snapshot := h.bridge.Subscribe(key)
	h.subs[client][key] = sub
	h.mu.Unlock()

	client.TrySend(ws.Message{
		Action:  ws.ActionSubscribed,
		Payload: map[string]interface{}{"key": key, "snapshot": snapshot},
	}.Encode())

	go func() {
		for msg := range sub.C {
			if !client.TrySend(msg.Encode()) {
				sub.Cancel()
				return
			}
		}
	}()
}

// unsubscribe cancels one of the client's subscriptions.
func (h *WebSocketHandler) unsubscribe(client *ws.Client, key string) {
	h.mu.Lock()
	sub := h.subs[client][key]
	if sub != nil {
		delete(h.subs[client], key)
	}
	h.mu.Unlock()

	if sub == nil {
		client.TrySend(ws.NewErrorMessage("Not subscribed").Encode())
		return
	}
	sub.Cancel()
	client.TrySend(ws.Message{
		Action:  ws.ActionUnsubscribed,
		Payload: map[string]interface{}{"key": key},
	}.Encode())
}

// detachAll cancels everything the client held. Run when the connection ends.
func (h *WebSocketHandler) detachAll(client *ws.Client) {
	h.mu.Lock()
	subs := h.subs[client]
	delete(h.subs, client)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}
