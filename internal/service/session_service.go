package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"brainstorm/internal/cache"
	"brainstorm/internal/clock"
	"brainstorm/internal/model"
	"brainstorm/internal/repository"
	"brainstorm/internal/runtime"
	"brainstorm/internal/scheduler"
)

// storeTimeout bounds store calls made outside a request context
const storeTimeout = 5 * time.Second

var roomCodePattern = regexp.MustCompile(`^[A-Z0-9-]{6,20}$`)

// Actor is the authenticated user behind an operation. ConnID is empty for
// REST calls.
type Actor struct {
	UserID primitive.ObjectID
	Name   string
	Nick   string
	ConnID string
}

// ActorFromUser builds an actor for user on connection connID
func ActorFromUser(user *model.User, connID string) Actor {
	return Actor{UserID: user.ID, Name: user.Name, Nick: user.Nick, ConnID: connID}
}

func (a Actor) Public() model.PublicUser {
	return model.PublicUser{ID: a.UserID.Hex(), Name: a.Name, Nick: a.Nick}
}

// NewSessionInput is the request body for hosting a session
type NewSessionInput struct {
	Theme     string        `json:"tema"`
	RoomCode  string        `json:"codigoSala"`
	Levels    []model.Level `json:"configuracaoNiveis"`
	Protected bool          `json:"salaProtegida"`
	Password  string        `json:"senhaSala"`
}

// Validate normalises the room code and checks every field
func (in *NewSessionInput) Validate() error {
	verr := &ValidationError{}

	in.Theme = strings.TrimSpace(in.Theme)
	if in.Theme == "" {
		verr.add("tema", "obrigatório")
	} else if utf8.RuneCountInString(in.Theme) > model.MaxThemeLength {
		verr.add("tema", fmt.Sprintf("máximo %d caracteres", model.MaxThemeLength))
	}

	in.RoomCode = strings.ToUpper(strings.TrimSpace(in.RoomCode))
	if !roomCodePattern.MatchString(in.RoomCode) {
		verr.add("codigoSala", "entre 6 e 20 caracteres: letras, números ou hífen")
	}

	if len(in.Levels) == 0 {
		verr.add("configuracaoNiveis", "pelo menos um nível")
	}
	seen := make(map[int]bool, len(in.Levels))
	for _, l := range in.Levels {
		if l.Order < 1 {
			verr.add("configuracaoNiveis", "ordem deve ser positiva")
		}
		if seen[l.Order] {
			verr.add("configuracaoNiveis", fmt.Sprintf("ordem %d repetida", l.Order))
		}
		seen[l.Order] = true
		if l.Seconds < model.MinLevelSeconds || l.Seconds > model.MaxLevelSeconds {
			verr.add("configuracaoNiveis", fmt.Sprintf("segundos entre %d e %d", model.MinLevelSeconds, model.MaxLevelSeconds))
		}
	}

	if in.Protected && len(in.Password) < model.MinPasswordLength {
		verr.add("senhaSala", fmt.Sprintf("mínimo %d caracteres", model.MinPasswordLength))
	}
	return verr.orNil()
}

// SessionService owns the session lifecycle. Operations on one session run
// one at a time and always re-read the durable record first; distinct
// sessions proceed in parallel.
type SessionService struct {
	sessions   repository.SessionRepo
	users      repository.UserRepo
	results    cache.ResultCache
	boards     cache.LeaderboardCache
	summarizer Summarizer
	registry   *runtime.Registry
	sched      *scheduler.Scheduler
	clock      clock.Clock
	levelGap   time.Duration
	summaryTTL time.Duration
	locks      *keyedMutex
	bus        Broadcaster
	logger     *zap.Logger
}

// NewSessionService creates a new session service. results and boards may
// be nil.
func NewSessionService(
	sessions repository.SessionRepo,
	users repository.UserRepo,
	results cache.ResultCache,
	boards cache.LeaderboardCache,
	summarizer Summarizer,
	registry *runtime.Registry,
	sched *scheduler.Scheduler,
	clk clock.Clock,
	levelGap time.Duration,
	summaryTimeout time.Duration,
	logger *zap.Logger,
) *SessionService {
	return &SessionService{
		sessions:   sessions,
		users:      users,
		results:    results,
		boards:     boards,
		summarizer: summarizer,
		registry:   registry,
		sched:      sched,
		clock:      clk,
		levelGap:   levelGap,
		summaryTTL: summaryTimeout,
		locks:      newKeyedMutex(),
		bus:        nopBroadcaster{},
		logger:     logger,
	}
}

// SetBroadcaster sets the WebSocket broadcaster
func (s *SessionService) SetBroadcaster(b Broadcaster) {
	s.bus = b
}

// Registry exposes the runtime registry for read-only inspection
func (s *SessionService) Registry() *runtime.Registry {
	return s.registry
}

func (s *SessionService) load(ctx context.Context, sessionID string) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// Create hosts a new session with host as its only participant
func (s *SessionService) Create(ctx context.Context, host Actor, in *NewSessionInput) (*model.Session, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	session := &model.Session{
		Theme:        in.Theme,
		RoomCode:     in.RoomCode,
		HostID:       host.UserID,
		Participants: []primitive.ObjectID{host.UserID},
		Levels:       append([]model.Level(nil), in.Levels...),
		Status:       model.SessionWaiting,
		Ideas:        []model.Idea{},
		AIResults:    []model.AIResult{},
		History:      []model.Action{},
		Protected:    in.Protected,
	}
	if in.Protected {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash room password: %w", err)
		}
		session.Password = string(hash)
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrRoomCodeTaken
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("session created",
		zap.String("session_id", session.ID.Hex()),
		zap.String("user_id", host.UserID.Hex()),
		zap.String("room_code", session.RoomCode))
	return session, nil
}

// Get returns the durable session record
func (s *SessionService) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	return s.load(ctx, sessionID)
}

// List returns every session that is not completed
func (s *SessionService) List(ctx context.Context) ([]model.SessionSummary, error) {
	sessions, err := s.sessions.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	out := make([]model.SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, session.Summary())
	}
	return out, nil
}

// JoinByCode resolves a room code and joins it
func (s *SessionService) JoinByCode(ctx context.Context, actor Actor, code, password string) (*model.Session, error) {
	session, err := s.sessions.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s.Join(ctx, actor, session.ID.Hex(), password)
}

// Join adds actor to the session if needed and, for a live connection,
// subscribes it to the room.
func (s *SessionService) Join(ctx context.Context, actor Actor, sessionID, password string) (*model.Session, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	added := false
	member := session.IsHost(actor.UserID) || session.IsParticipant(actor.UserID)
	switch {
	case member:
	case session.Status == model.SessionCompleted:
		return nil, ErrSessionClosed
	default:
		if session.Protected && bcrypt.CompareHashAndPassword([]byte(session.Password), []byte(password)) != nil {
			return nil, ErrWrongPassword
		}
		if len(session.Participants) >= model.MaxParticipants {
			return nil, ErrCapacityExceeded
		}
		added, err = s.sessions.AddParticipant(ctx, sessionID, actor.UserID, model.MaxParticipants)
		if err != nil {
			return nil, fmt.Errorf("failed to add participant: %w", err)
		}
		if !added {
			// lost a race against another writer; classify from fresh state
			if session, err = s.load(ctx, sessionID); err != nil {
				return nil, err
			}
			switch {
			case session.Status == model.SessionCompleted:
				return nil, ErrSessionClosed
			case session.IsParticipant(actor.UserID):
			case len(session.Participants) >= model.MaxParticipants:
				return nil, ErrCapacityExceeded
			default:
				return nil, ErrInvalidTransition
			}
		} else {
			session.Participants = append(session.Participants, actor.UserID)
		}
	}

	if session.Status != model.SessionCompleted && s.registry.Ensure(session) && session.Status == model.SessionActive {
		// the countdown was lost with the previous process
		epoch, _ := s.registry.Epoch(sessionID)
		s.scheduleTick(sessionID, epoch, time.Second)
		s.logger.Info("session runtime restored",
			zap.String("session_id", sessionID))
	}

	if actor.ConnID != "" {
		s.bus.Subscribe(sessionID, actor.ConnID)
		s.bus.EmitTo(actor.ConnID, model.EvtJoinConfirmed, model.JoinConfirmedPayload{
			SessionID: sessionID,
			IsHost:    session.IsHost(actor.UserID),
		})
		s.bus.EmitTo(actor.ConnID, model.EvtSessionState, s.stateOf(session))
		s.bus.Broadcast(sessionID, model.EvtParticipantJoined, model.ParticipantPayload{
			Participant: actor.Public(),
		}, actor.ConnID)
	}
	if added {
		s.broadcastParticipants(ctx, session)
		s.logger.Info("participant joined",
			zap.String("session_id", sessionID),
			zap.String("user_id", actor.UserID.Hex()),
			zap.Int("participants", len(session.Participants)))
	}
	return session, nil
}

// Leave removes userID, who must be the actor, from the session
func (s *SessionService) Leave(ctx context.Context, actor Actor, sessionID, userID string) error {
	if userID != actor.UserID.Hex() {
		return ErrUnauthorized
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	session, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.IsHost(actor.UserID) {
		return ErrHostCannotLeave
	}
	if actor.ConnID != "" {
		s.bus.Unsubscribe(sessionID, actor.ConnID)
	}
	if session.Status == model.SessionCompleted {
		return nil
	}
	if !session.IsParticipant(actor.UserID) {
		return ErrParticipantNotFound
	}

	removed, err := s.sessions.RemoveParticipant(ctx, sessionID, actor.UserID, nil)
	if err != nil {
		return fmt.Errorf("failed to remove participant: %w", err)
	}
	if !removed {
		return nil
	}
	session.Participants = without(session.Participants, actor.UserID)

	s.bus.Broadcast(sessionID, model.EvtParticipantLeft, model.ParticipantIDPayload{ParticipantID: userID})
	s.broadcastParticipants(ctx, session)
	s.logger.Info("participant left",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID))
	return nil
}

// Start moves a waiting or paused session to active at its first level
func (s *SessionService) Start(ctx context.Context, actor Actor, sessionID string) (model.RuntimeState, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	session, err := s.load(ctx, sessionID)
	if err != nil {
		return model.RuntimeState{}, err
	}
	if !session.IsHost(actor.UserID) {
		return model.RuntimeState{}, ErrNotHost
	}
	if session.Status != model.SessionWaiting && session.Status != model.SessionPaused {
		return model.RuntimeState{}, ErrInvalidTransition
	}
	first, ok := session.FirstLevel()
	if !ok {
		return model.RuntimeState{}, ErrInvalidTransition
	}

	var action *model.Action
	if session.Status == model.SessionPaused {
		action = &model.Action{
			Type:      model.ActionRestart,
			ActorID:   actor.UserID,
			Timestamp: s.now(),
		}
	}
	ok, err = s.sessions.TransitionStatus(ctx, sessionID,
		[]model.SessionStatus{session.Status}, model.SessionActive, action)
	if err != nil {
		return model.RuntimeState{}, fmt.Errorf("failed to start session: %w", err)
	}
	if !ok {
		return model.RuntimeState{}, ErrInvalidTransition
	}

	state := s.registry.Start(sessionID, session.Levels, first)
	epoch, _ := s.registry.Epoch(sessionID)
	s.scheduleTick(sessionID, epoch, time.Second)

	s.bus.Broadcast(sessionID, model.EvtSessionStarted, model.SessionStartedPayload{
		Level:     state.Level,
		Remaining: state.Remaining,
		Status:    model.SessionActive,
	})
	s.logger.Info("session started",
		zap.String("session_id", sessionID),
		zap.Int("level", state.Level),
		zap.Int("remaining", state.Remaining))
	return state, nil
}

// Pause stops the countdown of an active session
func (s *SessionService) Pause(ctx context.Context, actor Actor, sessionID string) error {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	session, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.IsHost(actor.UserID) {
		return ErrNotHost
	}
	if session.Status != model.SessionActive {
		return ErrInvalidTransition
	}

	ok, err := s.sessions.TransitionStatus(ctx, sessionID,
		[]model.SessionStatus{model.SessionActive}, model.SessionPaused,
		&model.Action{
			Type:      model.ActionPause,
			ActorID:   actor.UserID,
			Timestamp: s.now(),
		})
	if err != nil {
		return fmt.Errorf("failed to pause session: %w", err)
	}
	if !ok {
		return ErrInvalidTransition
	}

	s.registry.SetStatus(sessionID, model.SessionPaused)
	s.sched.Cancel(sessionID)

	s.bus.Broadcast(sessionID, model.EvtSessionPaused, model.StatusMessagePayload{
		Message: "A sessão foi pausada pelo host",
		Status:  model.SessionPaused,
	})
	s.logger.Info("session paused", zap.String("session_id", sessionID))
	return nil
}

// Conclude runs the conclusion pipeline on behalf of the host
func (s *SessionService) Conclude(ctx context.Context, actor Actor, sessionID string) (*model.SessionResult, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsHost(actor.UserID) {
		return nil, ErrNotHost
	}
	return s.conclude(ctx, sessionID, "A sessão foi concluída pelo host")
}

// Kick removes a participant on behalf of the host
func (s *SessionService) Kick(ctx context.Context, actor Actor, sessionID, participantID string) error {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	session, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.IsHost(actor.UserID) {
		return ErrNotHost
	}
	target, err := primitive.ObjectIDFromHex(participantID)
	if err != nil {
		return ErrParticipantNotFound
	}
	if session.IsHost(target) {
		return ErrHostImmune
	}
	if session.Status == model.SessionCompleted {
		return ErrSessionClosed
	}
	if !session.IsParticipant(target) {
		return ErrParticipantNotFound
	}

	name := participantID
	if user, err := s.users.GetByID(ctx, participantID); err == nil {
		name = user.DisplayName()
	}

	removed, err := s.sessions.RemoveParticipant(ctx, sessionID, target, &model.Action{
		Type:      model.ActionKick,
		ActorID:   actor.UserID,
		Timestamp: s.now(),
		Detail:    fmt.Sprintf("Participante %s expulso da sessão", name),
	})
	if err != nil {
		return fmt.Errorf("failed to remove participant: %w", err)
	}
	if !removed {
		return ErrParticipantNotFound
	}
	session.Participants = without(session.Participants, target)

	s.bus.EmitToUser(sessionID, participantID, model.EvtKicked, model.NoticePayload{
		Message: "Você foi expulso da sessão pelo host",
	})
	s.bus.EvictUser(sessionID, participantID)
	s.bus.Broadcast(sessionID, model.EvtParticipantKicked, model.KickedPayload{
		ParticipantID:   participantID,
		ParticipantName: name,
	})
	s.broadcastParticipants(ctx, session)
	s.logger.Info("participant kicked",
		zap.String("session_id", sessionID),
		zap.String("user_id", participantID))
	return nil
}

// State returns the live state of a session, or a durable fallback when the
// session has no runtime entry.
func (s *SessionService) State(ctx context.Context, sessionID string) (model.RuntimeState, error) {
	if st, ok := s.registry.Snapshot(sessionID); ok {
		return st, nil
	}
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return model.RuntimeState{}, err
	}
	return s.stateOf(session), nil
}

func (s *SessionService) stateOf(session *model.Session) model.RuntimeState {
	if st, ok := s.registry.Snapshot(session.ID.Hex()); ok {
		return st
	}
	return model.RuntimeState{
		Status:  session.Status,
		Ranking: []model.RankingEntry{},
	}
}

// Result returns the outcome of a completed session
func (s *SessionService) Result(ctx context.Context, sessionID string) (*model.SessionResult, error) {
	if s.results != nil {
		if res, err := s.results.Get(ctx, sessionID); err == nil {
			return res, nil
		} else if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("result cache read failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionCompleted {
		return nil, ErrNotConcluded
	}
	res := resultOf(session)
	s.cacheResult(ctx, res)
	return res, nil
}

func (s *SessionService) broadcastParticipants(ctx context.Context, session *model.Session) {
	users, err := s.users.GetMany(ctx, session.Participants)
	if err != nil {
		s.logger.Warn("participant lookup failed",
			zap.String("session_id", session.ID.Hex()), zap.Error(err))
		return
	}
	participants := make([]model.PublicUser, 0, len(users))
	for _, u := range users {
		participants = append(participants, u.Public())
	}
	s.bus.Broadcast(session.ID.Hex(), model.EvtParticipantsUpdated, model.ParticipantsPayload{
		Participants: participants,
	})
}

func without(ids []primitive.ObjectID, id primitive.ObjectID) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, p := range ids {
		if p != id {
			out = append(out, p)
		}
	}
	return out
}

// detached returns a context for work triggered by timers
func detached() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storeTimeout)
}

// now is the store timestamp: UTC at millisecond precision, as BSON keeps it
func (s *SessionService) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Millisecond)
}
