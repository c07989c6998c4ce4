// Package gateway fans device events out to web/mobile clients over
// WebSocket and accepts device commands from them. Clients authenticate
// with a bearer JWT on connect and join per-device rooms explicitly.
package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	dispatch "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Dispatch"
	logger "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Logger"
	metrics "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Metrics"
	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
	api_models "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models/api"
	interfaces "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Repository/Interfaces"
)

// Envelope is the wire format in both directions.
type Envelope struct {
	Event     string                 `json:"event"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
}

// TokenValidator verifies access tokens presented on connect.
type TokenValidator interface {
	ValidateAccessToken(tokenString string) (*api_models.AccessClaims, error)
}

// CommandDispatcher is where client sendCommand requests go.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) error
}

// wsConn is the slice of *websocket.Conn the hub uses. Tests substitute an
// in-memory implementation.
type wsConn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	Close() error
}

type client struct {
	conn   wsConn
	userID string

	// gorilla connections do not allow concurrent writers
	writeMu sync.Mutex
	rooms   map[string]struct{}
}

func (c *client) send(env Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(env)
}

type Hub struct {
	validator  TokenValidator
	users      interfaces.UserRepository
	dispatcher CommandDispatcher
	log        *logger.Logger
	metrics    *metrics.Metrics
	upgrader   websocket.Upgrader

	mu    sync.RWMutex
	conns map[*client]struct{}
	rooms map[string]map[*client]struct{}
}

func New(validator TokenValidator, users interfaces.UserRepository, dispatcher CommandDispatcher, log *logger.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		validator:  validator,
		users:      users,
		dispatcher: dispatcher,
		log:        log.WithComponent("gateway"),
		metrics:    m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect cross-origin; auth happens via JWT.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: map[*client]struct{}{},
		rooms: map[string]map[*client]struct{}{},
	}
}

// SetDispatcher wires the command dispatcher after construction. The hub and
// the dispatcher reference each other, so one of the two links is attached
// late during startup.
func (h *Hub) SetDispatcher(d CommandDispatcher) {
	h.dispatcher = d
}

// HandleConnection is the gin handler for the WebSocket endpoint. The bearer
// token comes from the Authorization header or a token query parameter.
func (h *Hub) HandleConnection(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	userID, err := h.authenticate(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.ErrorWithError(err, "websocket upgrade failed")
		return
	}

	h.serve(conn, userID)
}

// authenticate verifies the token and checks its embedded version against
// the user's current one, so a server-side bump forces the client out.
func (h *Hub) authenticate(ctx context.Context, token string) (string, error) {
	claims, err := h.validator.ValidateAccessToken(token)
	if err != nil {
		return "", errInvalidToken
	}
	user, err := h.users.GetUser(ctx, claims.UserID)
	if err != nil {
		return "", errUnknownUser
	}
	if claims.TokenVersion != user.TokenVersion {
		return "", errTokenRevoked
	}
	return user.ID, nil
}

// serve registers the client and runs its read loop until disconnect.
func (h *Hub) serve(conn wsConn, userID string) {
	cl := &client{conn: conn, userID: userID, rooms: map[string]struct{}{}}

	h.mu.Lock()
	h.conns[cl] = struct{}{}
	count := len(h.conns)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.ClientsConnected.Inc()
	}
	h.log.WithFields(map[string]interface{}{
		"user_id": userID,
		"clients": count,
	}).Info("client connected")

	cl.send(Envelope{
		Event:     "connected",
		Data:      map[string]interface{}{"userId": userID},
		Timestamp: h.timestamp(),
	})

	h.readLoop(cl)
	h.drop(cl)
}

func (h *Hub) readLoop(cl *client) {
	for {
		var env Envelope
		if err := cl.conn.ReadJSON(&env); err != nil {
			return
		}
		h.handleEvent(cl, env)
	}
}

func (h *Hub) handleEvent(cl *client, env Envelope) {
	deviceID, _ := env.Data["deviceId"].(string)

	switch env.Event {
	case "subscribeToDevice":
		if deviceID == "" {
			h.sendError(cl, "deviceId required")
			return
		}
		h.join(cl, deviceID)
		cl.send(Envelope{
			Event:     "subscribed",
			Data:      map[string]interface{}{"deviceId": deviceID},
			Timestamp: h.timestamp(),
		})

	case "unsubscribeFromDevice":
		if deviceID == "" {
			h.sendError(cl, "deviceId required")
			return
		}
		h.leave(cl, deviceID)
		cl.send(Envelope{
			Event:     "unsubscribed",
			Data:      map[string]interface{}{"deviceId": deviceID},
			Timestamp: h.timestamp(),
		})

	case "sendCommand":
		command, _ := env.Data["command"].(string)
		if deviceID == "" || command == "" {
			h.sendError(cl, "deviceId and command required")
			return
		}
		params, _ := env.Data["params"].(map[string]interface{})
		if h.dispatcher == nil {
			h.sendError(cl, "command dispatch unavailable")
			return
		}

		// Acknowledge first; the dispatch outcome reaches the client as a
		// commandSent/commandFailed broadcast on the device room.
		cl.send(Envelope{
			Event:     "commandQueued",
			Data:      map[string]interface{}{"deviceId": deviceID, "command": command},
			Timestamp: h.timestamp(),
		})
		if err := h.dispatcher.Dispatch(context.Background(), dispatch.Request{
			DeviceID: deviceID,
			Command:  command,
			Params:   params,
			Source:   aglmodels.CommandSourceManual,
		}); err != nil {
			h.log.WithDevice(deviceID).ErrorWithError(err, "client command dispatch failed")
		}

	default:
		h.sendError(cl, "unknown event: "+env.Event)
	}
}

func (h *Hub) sendError(cl *client, message string) {
	cl.send(Envelope{
		Event:     "error",
		Data:      map[string]interface{}{"message": message},
		Timestamp: h.timestamp(),
	})
}

func (h *Hub) join(cl *client, deviceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[deviceID]
	if !ok {
		room = map[*client]struct{}{}
		h.rooms[deviceID] = room
	}
	room[cl] = struct{}{}
	cl.rooms[deviceID] = struct{}{}
}

func (h *Hub) leave(cl *client, deviceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[deviceID]; ok {
		delete(room, cl)
		if len(room) == 0 {
			delete(h.rooms, deviceID)
		}
	}
	delete(cl.rooms, deviceID)
}

func (h *Hub) drop(cl *client) {
	h.mu.Lock()
	for deviceID := range cl.rooms {
		if room, ok := h.rooms[deviceID]; ok {
			delete(room, cl)
			if len(room) == 0 {
				delete(h.rooms, deviceID)
			}
		}
	}
	delete(h.conns, cl)
	count := len(h.conns)
	h.mu.Unlock()

	cl.conn.Close()
	if h.metrics != nil {
		h.metrics.ClientsConnected.Dec()
	}
	h.log.WithFields(map[string]interface{}{
		"user_id": cl.userID,
		"clients": count,
	}).Info("client disconnected")
}

// BroadcastToDevice sends an event to every client in the device's room.
func (h *Hub) BroadcastToDevice(deviceID, event string, payload interface{}) {
	env := h.envelope(event, payload)

	h.mu.RLock()
	targets := make([]*client, 0, len(h.rooms[deviceID]))
	for cl := range h.rooms[deviceID] {
		targets = append(targets, cl)
	}
	h.mu.RUnlock()

	for _, cl := range targets {
		if err := cl.send(env); err != nil {
			h.log.WithDevice(deviceID).ErrorWithError(err, "broadcast write failed")
		}
	}
}

// SendToUser sends an event to every connection belonging to the user.
func (h *Hub) SendToUser(userID, event string, payload interface{}) {
	env := h.envelope(event, payload)

	h.mu.RLock()
	targets := make([]*client, 0, 4)
	for cl := range h.conns {
		if cl.userID == userID {
			targets = append(targets, cl)
		}
	}
	h.mu.RUnlock()

	for _, cl := range targets {
		cl.send(env)
	}
}

// Broadcast sends an event to every connected client.
func (h *Hub) Broadcast(event string, payload interface{}) {
	env := h.envelope(event, payload)

	h.mu.RLock()
	targets := make([]*client, 0, len(h.conns))
	for cl := range h.conns {
		targets = append(targets, cl)
	}
	h.mu.RUnlock()

	for _, cl := range targets {
		cl.send(env)
	}
}

func (h *Hub) envelope(event string, payload interface{}) Envelope {
	data, _ := payload.(map[string]interface{})
	return Envelope{Event: event, Data: data, Timestamp: h.timestamp()}
}

func (h *Hub) timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func bearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if len(auth) > 7 && auth[:7] == "Bearer " {
		return auth[7:]
	}
	return c.Query("token")
}
