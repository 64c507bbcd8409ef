package service

// Broadcaster is the room pub/sub surface services publish through. It is
// implemented by the websocket hub; keeping it here avoids an import cycle.
type Broadcaster interface {
	// Broadcast delivers to every connection subscribed to sessionID
	// except the excluded connection ids.
	Broadcast(sessionID, event string, payload interface{}, exclude ...string)
	EmitTo(connID, event string, payload interface{})
	EmitToUser(sessionID, userID, event string, payload interface{})
	Subscribe(sessionID, connID string)
	Unsubscribe(sessionID, connID string)
	// EvictUser unsubscribes every connection of userID from sessionID
	EvictUser(sessionID, userID string)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(string, string, interface{}, ...string) {}
func (nopBroadcaster) EmitTo(string, string, interface{})              {}
func (nopBroadcaster) EmitToUser(string, string, string, interface{})  {}
func (nopBroadcaster) Subscribe(string, string)                        {}
func (nopBroadcaster) Unsubscribe(string, string)                      {}
func (nopBroadcaster) EvictUser(string, string)                        {}
