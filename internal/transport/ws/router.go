package ws

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"brainstorm/internal/clock"
	"brainstorm/internal/model"
	"brainstorm/internal/service"
)

const dispatchTimeout = 30 * time.Second

// ErrUnknownEvent is reported for envelopes with an unrecognised type
var ErrUnknownEvent = errors.New("unknown event")

// SessionOps is the part of the session service driven by inbound events
type SessionOps interface {
	Join(ctx context.Context, actor service.Actor, sessionID, password string) (*model.Session, error)
	Leave(ctx context.Context, actor service.Actor, sessionID, userID string) error
	Start(ctx context.Context, actor service.Actor, sessionID string) (model.RuntimeState, error)
	Pause(ctx context.Context, actor service.Actor, sessionID string) error
	Conclude(ctx context.Context, actor service.Actor, sessionID string) (*model.SessionResult, error)
	Kick(ctx context.Context, actor service.Actor, sessionID, participantID string) error
	Submit(ctx context.Context, actor service.Actor, sessionID string, level int, text string) (*model.Idea, error)
}

// Router dispatches inbound envelopes to the session service
type Router struct {
	sessions SessionOps
	hub      *Hub
	clock    clock.Clock
	logger   *zap.Logger
}

// NewRouter creates a new inbound event router
func NewRouter(sessions SessionOps, hub *Hub, clk clock.Clock, logger *zap.Logger) *Router {
	return &Router{
		sessions: sessions,
		hub:      hub,
		clock:    clk,
		logger:   logger,
	}
}

// Dispatch handles one raw inbound frame from conn. Any failure is reported
// to conn alone as an erro event.
func (r *Router) Dispatch(conn *Connection, raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
		r.fail(conn, "", invalidPayload())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	if err := r.handle(ctx, conn, msg); err != nil {
		r.fail(conn, msg.Type, err)
	}
}

func (r *Router) handle(ctx context.Context, conn *Connection, msg Message) error {
	actor := service.ActorFromUser(conn.User, conn.ID)

	switch msg.Type {
	case model.EvtJoinSession:
		var p model.JoinPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		_, err := r.sessions.Join(ctx, actor, p.SessionID, p.Password)
		return err

	case model.EvtLeaveSession:
		var p model.LeavePayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		if p.UserID == "" {
			p.UserID = actor.UserID.Hex()
		}
		return r.sessions.Leave(ctx, actor, p.SessionID, p.UserID)

	case model.EvtStartSession:
		var p model.SessionRef
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		_, err := r.sessions.Start(ctx, actor, p.SessionID)
		return err

	case model.EvtPauseSession:
		var p model.SessionRef
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		return r.sessions.Pause(ctx, actor, p.SessionID)

	case model.EvtConcludeSession:
		var p model.SessionRef
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		_, err := r.sessions.Conclude(ctx, actor, p.SessionID)
		return err

	case model.EvtKick:
		var p model.KickPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		return r.sessions.Kick(ctx, actor, p.SessionID, p.ParticipantID)

	case model.EvtSubmitWord:
		var p model.SubmitPayload
		if err := decode(msg.Payload, &p); err != nil {
			return err
		}
		_, err := r.sessions.Submit(ctx, actor, p.SessionID, p.Level, p.Word)
		return err

	case model.EvtChat:
		text := chatText(msg.Payload)
		if text == "" {
			return invalidPayload()
		}
		r.hub.Chat(model.ChatPayload{
			SocketID: conn.ID,
			Nick:     conn.User.DisplayName(),
			Message:  text,
			SentAt:   r.clock.Now().UTC(),
		})
		return nil

	default:
		return ErrUnknownEvent
	}
}

func (r *Router) fail(conn *Connection, event string, err error) {
	msg := service.Message(err)
	if errors.Is(err, ErrUnknownEvent) {
		msg = "Evento desconhecido"
	}

	fields := []zap.Field{
		zap.String("conn_id", conn.ID),
		zap.String("event", event),
		zap.Error(err),
	}
	if service.HTTPStatus(err) >= 500 {
		r.logger.Error("event failed", fields...)
	} else {
		r.logger.Debug("event rejected", fields...)
	}

	r.hub.EmitTo(conn.ID, model.EvtError, model.ErrorPayload{Message: msg})
}

func decode(payload json.RawMessage, v interface{}) error {
	if len(payload) == 0 {
		return invalidPayload()
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return invalidPayload()
	}
	return nil
}

// chatText accepts either a bare string or {"mensagem": "..."}
func chatText(payload json.RawMessage) string {
	var text string
	if err := json.Unmarshal(payload, &text); err != nil {
		var p model.NoticePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return ""
		}
		text = p.Message
	}
	return strings.TrimSpace(text)
}

func invalidPayload() error {
	return &service.ValidationError{Fields: map[string]string{"payload": "formato inválido"}}
}
