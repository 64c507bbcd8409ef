package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"brainstorm/internal/clock"
	"brainstorm/internal/model"
	"brainstorm/internal/repository"
	"brainstorm/internal/runtime"
	"brainstorm/internal/scheduler"
)

type recorded struct {
	kind    string // broadcast, emit, user, subscribe, unsubscribe, evict
	target  string // session id or connection id
	userID  string
	event   string
	payload interface{}
	exclude []string
}

type recordingBus struct {
	mu     sync.Mutex
	events []recorded
}

func (b *recordingBus) add(r recorded) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, r)
}

func (b *recordingBus) Broadcast(sessionID, event string, payload interface{}, exclude ...string) {
	b.add(recorded{kind: "broadcast", target: sessionID, event: event, payload: payload, exclude: exclude})
}

func (b *recordingBus) EmitTo(connID, event string, payload interface{}) {
	b.add(recorded{kind: "emit", target: connID, event: event, payload: payload})
}

func (b *recordingBus) EmitToUser(sessionID, userID, event string, payload interface{}) {
	b.add(recorded{kind: "user", target: sessionID, userID: userID, event: event, payload: payload})
}

func (b *recordingBus) Subscribe(sessionID, connID string) {
	b.add(recorded{kind: "subscribe", target: sessionID, userID: connID})
}

func (b *recordingBus) Unsubscribe(sessionID, connID string) {
	b.add(recorded{kind: "unsubscribe", target: sessionID, userID: connID})
}

func (b *recordingBus) EvictUser(sessionID, userID string) {
	b.add(recorded{kind: "evict", target: sessionID, userID: userID})
}

// named returns recorded entries with the given event name, in order
func (b *recordingBus) named(event string) []recorded {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []recorded
	for _, r := range b.events {
		if r.event == event {
			out = append(out, r)
		}
	}
	return out
}

func (b *recordingBus) count(event string) int {
	return len(b.named(event))
}

// sequence returns the broadcast event names, in order
func (b *recordingBus) sequence() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, r := range b.events {
		if r.kind == "broadcast" {
			out = append(out, r.event)
		}
	}
	return out
}

func (b *recordingBus) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}

type stubSummarizer struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
	got   []string
}

func (s *stubSummarizer) Summarize(_ context.Context, _ string, ideas []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.got = append([]string(nil), ideas...)
	return s.text, s.err
}

// flakySessionRepo fails AppendAIResult a fixed number of times
type flakySessionRepo struct {
	repository.SessionRepo
	mu       sync.Mutex
	failures int
}

func (r *flakySessionRepo) AppendAIResult(ctx context.Context, id string, result model.AIResult) error {
	r.mu.Lock()
	if r.failures > 0 {
		r.failures--
		r.mu.Unlock()
		return errors.New("write timeout")
	}
	r.mu.Unlock()
	return r.SessionRepo.AppendAIResult(ctx, id, result)
}

type fixture struct {
	svc      *SessionService
	sessions repository.SessionRepo
	users    repository.UserRepo
	clock    *clock.FakeClock
	sched    *scheduler.Scheduler
	bus      *recordingBus
	summ     *stubSummarizer
}

const testGap = 5 * time.Second

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, repository.NewMemorySessionRepo())
}

func newFixtureWith(t *testing.T, sessions repository.SessionRepo) *fixture {
	t.Helper()
	clk := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	sched := scheduler.New(clk)
	users := repository.NewMemoryUserRepo()
	summ := &stubSummarizer{text: "proposta final"}
	bus := &recordingBus{}

	svc := NewSessionService(sessions, users, nil, nil, summ,
		runtime.NewRegistry(), sched, clk, testGap, time.Second, zap.NewNop())
	svc.SetBroadcaster(bus)

	return &fixture{
		svc:      svc,
		sessions: sessions,
		users:    users,
		clock:    clk,
		sched:    sched,
		bus:      bus,
		summ:     summ,
	}
}

func (f *fixture) user(t *testing.T, nick string) Actor {
	t.Helper()
	u := &model.User{Name: nick, Nick: nick, Email: nick + "@example.com"}
	require.NoError(t, f.users.Create(context.Background(), u))
	return ActorFromUser(u, "conn-"+nick)
}

func (f *fixture) session(t *testing.T, host Actor, code string, levels ...model.Level) *model.Session {
	t.Helper()
	if len(levels) == 0 {
		levels = []model.Level{{Order: 1, Seconds: 10}, {Order: 2, Seconds: 20}}
	}
	s, err := f.svc.Create(context.Background(), host, &NewSessionInput{
		Theme:    "mobilidade urbana",
		RoomCode: code,
		Levels:   levels,
	})
	require.NoError(t, err)
	return s
}

func (f *fixture) reload(t *testing.T, id string) *model.Session {
	t.Helper()
	s, err := f.sessions.GetByID(context.Background(), id)
	require.NoError(t, err)
	return s
}
