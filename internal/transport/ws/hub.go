package ws

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"brainstorm/internal/model"
)

// Message is the WebSocket envelope format, inbound and outbound
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Connection represents one authenticated WebSocket connection
type Connection struct {
	ID   string
	User *model.User
	Send chan []byte

	rooms map[string]struct{} // owned by the hub's run loop
}

// NewConnection creates a connection with a buffered outbound queue
func NewConnection(id string, user *model.User) *Connection {
	return &Connection{
		ID:    id,
		User:  user,
		Send:  make(chan []byte, 256),
		rooms: make(map[string]struct{}),
	}
}

type opKind int

const (
	opSubscribe opKind = iota
	opUnsubscribe
	opEvict
	opBroadcast
	opEmit
	opEmitToUser
	opChat
)

// op is a single hub command. Commands are applied in the order they were
// issued.
type op struct {
	kind      opKind
	sessionID string
	connID    string
	userID    string
	exclude   []string
	data      []byte
}

// Hub tracks connections and the session rooms they are subscribed to.
// Every connection is also a member of the global chat.
type Hub struct {
	conns map[string]*Connection            // connID -> conn
	rooms map[string]map[string]*Connection // sessionID -> connID -> conn

	mu sync.RWMutex

	register   chan *Connection
	unregister chan *Connection
	ops        chan *op
	done       chan struct{}
	stopOnce   sync.Once

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub and starts its run loop
func NewHub(logger *zap.Logger) *Hub {
	h := &Hub{
		conns:      make(map[string]*Connection),
		rooms:      make(map[string]map[string]*Connection),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		ops:        make(chan *op, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.conns[conn.ID] = conn
			h.mu.Unlock()
			h.logger.Debug("connection registered",
				zap.String("conn_id", conn.ID),
				zap.String("user_id", conn.User.ID.Hex()))

		case conn := <-h.unregister:
			h.mu.Lock()
			if existing, ok := h.conns[conn.ID]; ok && existing == conn {
				delete(h.conns, conn.ID)
				left := h.leaveAll(conn)
				close(conn.Send)
				h.mu.Unlock()
				h.notifyDisconnected(conn, left)
				h.logger.Debug("connection unregistered", zap.String("conn_id", conn.ID))
			} else {
				h.mu.Unlock()
			}

		case o := <-h.ops:
			h.apply(o)

		case <-h.done:
			h.mu.Lock()
			for id, conn := range h.conns {
				close(conn.Send)
				delete(h.conns, id)
			}
			h.rooms = make(map[string]map[string]*Connection)
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) apply(o *op) {
	switch o.kind {
	case opSubscribe:
		h.mu.Lock()
		if conn, ok := h.conns[o.connID]; ok {
			if h.rooms[o.sessionID] == nil {
				h.rooms[o.sessionID] = make(map[string]*Connection)
			}
			h.rooms[o.sessionID][conn.ID] = conn
			conn.rooms[o.sessionID] = struct{}{}
		}
		h.mu.Unlock()

	case opUnsubscribe:
		h.mu.Lock()
		if conn, ok := h.conns[o.connID]; ok {
			h.leave(conn, o.sessionID)
		}
		h.mu.Unlock()

	case opEvict:
		h.mu.Lock()
		for _, conn := range h.rooms[o.sessionID] {
			if conn.User.ID.Hex() == o.userID {
				h.leave(conn, o.sessionID)
			}
		}
		h.mu.Unlock()

	case opBroadcast:
		h.mu.RLock()
		for _, conn := range h.rooms[o.sessionID] {
			if excluded(conn.ID, o.exclude) {
				continue
			}
			h.deliver(conn, o.data)
		}
		h.mu.RUnlock()

	case opEmit:
		h.mu.RLock()
		if conn, ok := h.conns[o.connID]; ok {
			h.deliver(conn, o.data)
		}
		h.mu.RUnlock()

	case opEmitToUser:
		h.mu.RLock()
		for _, conn := range h.rooms[o.sessionID] {
			if conn.User.ID.Hex() == o.userID {
				h.deliver(conn, o.data)
			}
		}
		h.mu.RUnlock()

	case opChat:
		h.mu.RLock()
		for _, conn := range h.conns {
			h.deliver(conn, o.data)
		}
		h.mu.RUnlock()
	}
}

// leave removes conn from one room. Caller holds mu.
func (h *Hub) leave(conn *Connection, sessionID string) {
	if room, ok := h.rooms[sessionID]; ok {
		delete(room, conn.ID)
		if len(room) == 0 {
			delete(h.rooms, sessionID)
		}
	}
	delete(conn.rooms, sessionID)
}

// leaveAll removes conn from every room and returns the rooms it was in.
// Caller holds mu.
func (h *Hub) leaveAll(conn *Connection) []string {
	left := make([]string, 0, len(conn.rooms))
	for sessionID := range conn.rooms {
		left = append(left, sessionID)
		h.leave(conn, sessionID)
	}
	return left
}

func (h *Hub) notifyDisconnected(conn *Connection, rooms []string) {
	data := encode(model.EvtParticipantOffline, model.ParticipantIDPayload{
		ParticipantID: conn.User.ID.Hex(),
	})
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sessionID := range rooms {
		for _, other := range h.rooms[sessionID] {
			h.deliver(other, data)
		}
	}
}

func (h *Hub) deliver(conn *Connection, data []byte) {
	select {
	case conn.Send <- data:
	default:
		// Drop message if buffer full
		h.logger.Warn("dropping message for slow connection", zap.String("conn_id", conn.ID))
	}
}

func (h *Hub) enqueue(o *op) {
	select {
	case h.ops <- o:
	case <-h.done:
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
		close(conn.Send)
	}
}

// Unregister removes a connection from the hub and from every room
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Stop ends the run loop and closes every connection's queue
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Broadcast sends an event to every connection subscribed to sessionID,
// except the excluded connection ids (implements service.Broadcaster)
func (h *Hub) Broadcast(sessionID, event string, payload interface{}, exclude ...string) {
	h.enqueue(&op{kind: opBroadcast, sessionID: sessionID, exclude: exclude, data: encode(event, payload)})
}

// EmitTo sends an event to a single connection (implements service.Broadcaster)
func (h *Hub) EmitTo(connID, event string, payload interface{}) {
	h.enqueue(&op{kind: opEmit, connID: connID, data: encode(event, payload)})
}

// EmitToUser sends an event to the connections of userID subscribed to
// sessionID (implements service.Broadcaster)
func (h *Hub) EmitToUser(sessionID, userID, event string, payload interface{}) {
	h.enqueue(&op{kind: opEmitToUser, sessionID: sessionID, userID: userID, data: encode(event, payload)})
}

// Subscribe adds a connection to a session room (implements service.Broadcaster)
func (h *Hub) Subscribe(sessionID, connID string) {
	h.enqueue(&op{kind: opSubscribe, sessionID: sessionID, connID: connID})
}

// Unsubscribe removes a connection from a session room (implements service.Broadcaster)
func (h *Hub) Unsubscribe(sessionID, connID string) {
	h.enqueue(&op{kind: opUnsubscribe, sessionID: sessionID, connID: connID})
}

// EvictUser removes every connection of userID from a session room
// (implements service.Broadcaster)
func (h *Hub) EvictUser(sessionID, userID string) {
	h.enqueue(&op{kind: opEvict, sessionID: sessionID, userID: userID})
}

// Chat relays a global chat message to every connection
func (h *Hub) Chat(payload model.ChatPayload) {
	h.enqueue(&op{kind: opChat, data: encode(model.EvtClientChat, payload)})
}

// RoomSize returns the number of connections subscribed to sessionID
func (h *Hub) RoomSize(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}

// Connections returns the number of registered connections
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func encode(event string, payload interface{}) []byte {
	data, _ := json.Marshal(payload)
	msg, _ := json.Marshal(&Message{Type: event, Payload: data})
	return msg
}

func excluded(connID string, exclude []string) bool {
	for _, id := range exclude {
		if id == connID {
			return true
		}
	}
	return false
}
