package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brainstorm/internal/model"
	"brainstorm/internal/repository"
)

func TestNewSessionInput_Validate(t *testing.T) {
	valid := func() *NewSessionInput {
		return &NewSessionInput{
			Theme:    "energia",
			RoomCode: "abcde1",
			Levels:   []model.Level{{Order: 1, Seconds: 10}},
		}
	}

	tests := []struct {
		name   string
		mutate func(in *NewSessionInput)
		field  string
	}{
		{"blank theme", func(in *NewSessionInput) { in.Theme = "   " }, "tema"},
		{"long theme", func(in *NewSessionInput) { in.Theme = strings.Repeat("a", 121) }, "tema"},
		{"short code", func(in *NewSessionInput) { in.RoomCode = "AB1" }, "codigoSala"},
		{"bad code chars", func(in *NewSessionInput) { in.RoomCode = "ABC_DE1" }, "codigoSala"},
		{"no levels", func(in *NewSessionInput) { in.Levels = nil }, "configuracaoNiveis"},
		{"duplicate order", func(in *NewSessionInput) {
			in.Levels = []model.Level{{Order: 1, Seconds: 10}, {Order: 1, Seconds: 20}}
		}, "configuracaoNiveis"},
		{"too short", func(in *NewSessionInput) { in.Levels[0].Seconds = 4 }, "configuracaoNiveis"},
		{"too long", func(in *NewSessionInput) { in.Levels[0].Seconds = 301 }, "configuracaoNiveis"},
		{"weak password", func(in *NewSessionInput) { in.Protected = true; in.Password = "12345" }, "senhaSala"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid()
			tt.mutate(in)
			err := in.Validate()
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}

	in := valid()
	require.NoError(t, in.Validate())
	assert.Equal(t, "ABCDE1", in.RoomCode)
}

func TestCreate_HostIsOnlyParticipant(t *testing.T) {
	f := newFixture(t)
	host := f.user(t, "host")

	s := f.session(t, host, "abcde1")
	assert.Equal(t, "ABCDE1", s.RoomCode)
	assert.Equal(t, model.SessionWaiting, s.Status)
	assert.Len(t, s.Participants, 1)
	assert.True(t, s.IsHost(host.UserID))

	_, err := f.svc.Create(context.Background(), host, &NewSessionInput{
		Theme: "outra", RoomCode: "ABCDE1", Levels: []model.Level{{Order: 1, Seconds: 10}},
	})
	assert.ErrorIs(t, err, ErrRoomCodeTaken)
}

func TestJoin_CapacityIsFifty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := f.user(t, "host")
	s := f.session(t, host, "ABCDE1")

	for i := 0; i < model.MaxParticipants-1; i++ {
		p := f.user(t, fmt.Sprintf("p%02d", i))
		_, err := f.svc.Join(ctx, p, s.ID.Hex(), "")
		require.NoError(t, err)
	}
	require.Len(t, f.reload(t, s.ID.Hex()).Participants, model.MaxParticipants)

	late := f.user(t, "late")
	_, err := f.svc.Join(ctx, late, s.ID.Hex(), "")
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	after := f.reload(t, s.ID.Hex())
	assert.Len(t, after.Participants, model.MaxParticipants)
	assert.False(t, after.IsParticipant(late.UserID))
}

func TestJoin_ConcurrentNeverExceedsCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := f.user(t, "host")
	s := f.session(t, host, "ABCDE1")

	actors := make([]Actor, 70)
	for i := range actors {
		actors[i] = f.user(t, fmt.Sprintf("c%02d", i))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	full := 0
	for _, a := range actors {
		wg.Add(1)
		go func(a Actor) {
			defer wg.Done()
			_, err := f.svc.Join(ctx, a, s.ID.Hex(), "")
			if err != nil {
				mu.Lock()
				full++
				mu.Unlock()
				assert.ErrorIs(t, err, ErrCapacityExceeded)
			}
		}(a)
	}
	wg.Wait()

	assert.Len(t, f.reload(t, s.ID.Hex()).Participants, model.MaxParticipants)
	assert.Equal(t, 70-(model.MaxParticipants-1), full)
}

func TestJoin_EmitsToJoinerAndRoom(t *testing.T) {
	f := newFixture(t)
	host := f.user(t, "host")
	ana := f.user(t, "ana")
	s := f.session(t, host, "ABCDE1")

	_, err := f.svc.Join(context.Background(), ana, s.ID.Hex(), "")
	require.NoError(t, err)

	confirmed := f.bus.named(model.EvtJoinConfirmed)
	require.Len(t, confirmed, 1)
	assert.Equal(t, "conn-ana", confirmed[0].target)
	assert.Equal(t, model.JoinConfirmedPayload{SessionID: s.ID.Hex(), IsHost: false}, confirmed[0].payload)

	state := f.bus.named(model.EvtSessionState)
	require.Len(t, state, 1)
	assert.Equal(t, model.SessionWaiting, state[0].payload.(model.RuntimeState).Status)

	joined := f.bus.named(model.EvtParticipantJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, []string{"conn-ana"}, joined[0].exclude)

	updated := f.bus.named(model.EvtParticipantsUpdated)
	require.Len(t, updated, 1)
	assert.Len(t, updated[0].payload.(model.ParticipantsPayload).Participants, 2)

	_, ok := f.svc.Registry().Snapshot(s.ID.Hex())
	assert.True(t, ok, "first join creates the runtime entry")
}

func TestJoin_RejoinIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := f.user(t, "host")
	ana := f.user(t, "ana")
	s := f.session(t, host, "ABCDE1")

	_, err := f.svc.Join(ctx, ana, s.ID.Hex(), "")
	require.NoError(t, err)
	_, err = f.svc.Join(ctx, ana, s.ID.Hex(), "")
	require.NoError(t, err)

	assert.Len(t, f.reload(t, s.ID.Hex()).Participants, 2)
	assert.Equal(t, 1, f.bus.count(model.EvtParticipantsUpdated))
}

func TestJoin_CompletedSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := f.user(t, "host")
	ana := f.user(t, "ana")
	s := f.session(t, host, "ABCDE1")
	_, err := f.svc.Join(ctx, ana, s.ID.Hex(), "")
	require.NoError(t, err)
	_, err = f.svc.Conclude(ctx, host, s.ID.Hex())
	require.NoError(t, err)

	stranger := f.user(t, "stranger")
	_, err = f.svc.Join(ctx, stranger, s.ID.Hex(), "")
	assert.ErrorIs(t, err, ErrSessionClosed)

	_, err = f.svc.Join(ctx, ana, s.ID.Hex(), "")
	assert.NoError(t, err, "members may still open a completed session")
	_, ok := f.svc.Registry().Snapshot(s.ID.Hex())
	assert.False(t, ok, "completed sessions get no runtime entry")
}

func TestJoin_ProtectedRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := f.user(t, "host")
	ana := f.user(t, "ana")
	s, err := f.svc.Create(ctx, host, &NewSessionInput{
		Theme: "segredo", RoomCode: "PRIV-01", Protected: true, Password: "abacaxi",
		Levels: []model.Level{{Order: 1, Seconds: 10}},
	})
	require.NoError(t, err)
	assert.NotEqual(t, "abacaxi", s.Password)

	_, err = f.svc.JoinByCode(ctx, ana, "priv-01", "banana")
	assert.ErrorIs(t, err, ErrWrongPassword)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.JoinByCode(ctx, ana, "priv-01", "abacaxi")
	assert.NoError(t, err)
}

func TestStart_BroadcastsFirstLevel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := f.user(t, "host")
	s := f.session(t, host, "ABCDE1")

	state, err := f.svc.Start(ctx, host, s.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, 1, state.Level)
	assert.Equal(t, 10, state.Remaining)

	started := f.bus.named(model.EvtSessionStarted)
	require.Len(t, started, 1)
	assert.Equal(t, model.SessionStartedPayload{Level: 1, Remaining: 10, Status: model.SessionActive}, started[0].payload)
	assert.Equal(t, model.SessionActive, f.reload(t, s.ID.Hex()).Status)
	assert.True(t, f.sched.Pending(s.ID.Hex()))
}

func TestStart_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := f.user(t, "host")
	ana := f.user(t, "ana")
	s := f.session(t, host, "ABCDE1")

	_, err := f.svc.Start(ctx, ana, s.ID.Hex())
	assert.ErrorIs(t, err, ErrNotHost)

	_, err = f.svc.Start(ctx, host, s.ID.Hex())
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, host, s.ID.Hex())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Start(ctx, host, "000000000000000000000000")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStart_ConcurrentOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	host := f.user(t, "host")
	s := f.session(t, host, "ABCDE1")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Start(context.Background(), host, s.ID.Hex())
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, ErrInvalidTransition)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, f.bus.count(model.EvtSessionStarted))
}

func TestPause_StopsTicksAndRestartResets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := f.user(t, "host")
	s := f.session(t, host, "ABCDE1")
	_, err := f.svc.Start(ctx, host, s.ID.Hex())
	require.NoError(t, err)

	f.clock.Advance(3 * time.Second)
	require.Equal(t, 3, f.bus.count(model.EvtTimeUpdated))

	require.NoError(t, f.svc.Pause(ctx, host, s.ID.Hex()))
	assert.ErrorIs(t, f.svc.Pause(ctx, host, s.ID.Hex()), ErrInvalidTransition)
	f.clock.Advance(10 * time.Second)
	assert.Equal(t, 3, f.bus.count(model.EvtTimeUpdated), "no ticks while paused")
	assert.False(t, f.sched.Pending(s.ID.Hex()))

	paused := f.bus.named(model.EvtSessionPaused)
	require.Len(t, paused, 1)
	assert.Equal(t, model.SessionPaused, paused[0].payload.(model.StatusMessagePayload).Status)

	state, err := f.svc.Start(ctx, host, s.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, 1, state.Level)
	assert.Equal(t, 10, state.Remaining)

	history := f.reload(t, s.ID.Hex()).History
	require.Len(t, history, 2)
	assert.Equal(t, model.ActionPause, history[0].Type)
	assert.Equal(t, model.ActionRestart, history[1].Type)
}

func TestPause_OnlyWhenActive(t *testing.T) {
	f := newFixture(t)
	host := f.user(t, "host")
	s := f.session(t, host, "ABCDE1")

	assert.ErrorIs(t, f.svc.Pause(context.Background(), host, s.ID.Hex()), ErrInvalidTransition)
}

func TestTimer_LastLevelConcludesExactlyOnce(t *testing.T) {
	f := newFixture(t)
	host := f.user(t, "host")
	s := f.session(t, host, "ABCDE1", model.Level{Order: 1, Seconds: 10})
	_, err := f.svc.Start(context.Background(), host, s.ID.Hex())
	require.NoError(t, err)

	f.clock.Advance(10 * time.Second)

	assert.Equal(t, 10, f.bus.count(model.EvtTimeUpdated))
	assert.Equal(t, 1, f.bus.count(model.EvtSessionConcluded))
	assert.Zero(t, f.bus.count(model.EvtLevelAdvanced))

	f.clock.Advance(time.Minute)
	assert.Equal(t, 10, f.bus.count(model.EvtTimeUpdated))
	assert.Equal(t, 1, f.bus.count(model.EvtSessionConcluded))
	assert.Zero(t, f.sched.Len())
}

func TestTimer_AdvancesExactlyOnce(t *testing.T) {
	f := newFixture(t)
	host := f.user(t, "host")
	s := f.session(t, host, "ABCDE1")
	_, err := f.svc.Start(context.Background(), host, s.ID.Hex())
	require.NoError(t, err)

	f.clock.Advance(10 * time.Second)

	assert.Equal(t, 10, f.bus.count(model.EvtTimeUpdated))
	assert.Equal(t, 1, f.bus.count(model.EvtLevelAdvanced))
	assert.Zero(t, f.bus.count(model.EvtSessionConcluded))

	// inter-level pause: nothing until the gap elapses
	f.clock.Advance(testGap)
	assert.Equal(t, 10, f.bus.count(model.EvtTimeUpdated))
	f.clock.Advance(time.Second)
	assert.Equal(t, 11, f.bus.count(model.EvtTimeUpdated))
}

func TestTimer_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := f.user(t, "host")
	ana := f.user(t, "ana")
	bia := f.user(t, "bia")
	s := f.session(t, host, "ABCDE1")
	id := s.ID.Hex()

	_, err := f.svc.Join(ctx, ana, id, "")
	require.NoError(t, err)
	_, err = f.svc.Join(ctx, bia, id, "")
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, host, id)
	require.NoError(t, err)
	f.bus.reset()

	_, err = f.svc.Submit(ctx, bia, id, 1, "bicicletas")
	require.NoError(t, err)
	f.clock.Advance(2 * time.Second)
	_, err = f.svc.Submit(ctx, ana, id, 1, "metro")
	require.NoError(t, err)

	f.clock.Advance(8 * time.Second)

	var seq []string
	for _, e := range f.bus.sequence() {
		if e == model.EvtTimeUpdated || e == model.EvtLevelAdvanced {
			seq = append(seq, e)
		}
	}
	require.Len(t, seq, 11)
	for _, e := range seq[:10] {
		assert.Equal(t, model.EvtTimeUpdated, e)
	}
	assert.Equal(t, model.EvtLevelAdvanced, seq[10])
	adv := f.bus.named(model.EvtLevelAdvanced)
	assert.Equal(t, model.LevelAdvancedPayload{Previous: 1, Current: 2, Remaining: 20}, adv[0].payload)

	f.clock.Advance(testGap + 5*time.Second)
	_, err = f.svc.Submit(ctx, ana, id, 2, "corredores de autocarro")
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, ana, id, 1, "tarde demais")
	assert.ErrorIs(t, err, ErrLevelMismatch)

	f.clock.Advance(15 * time.Second)

	concluded := f.bus.named(model.EvtSessionConcluded)
	require.Len(t, concluded, 1)
	payload := concluded[0].payload.(model.ConcludedPayload)
	assert.Equal(t, model.SessionCompleted, payload.Status)
	assert.Equal(t, "proposta final", payload.Result)
	require.Len(t, payload.Ideas, 3)
	assert.Equal(t, "bicicletas", payload.Ideas[0].Text)
	assert.Equal(t, "metro", payload.Ideas[1].Text)
	assert.Equal(t, "corredores de autocarro", payload.Ideas[2].Text)
	for i := 1; i < len(payload.Ideas); i++ {
		assert.False(t, payload.Ideas[i].Timestamp.Before(payload.Ideas[i-1].Timestamp))
	}
	assert.Equal(t, 30, f.bus.count(model.EvtTimeUpdated))
	assert.Equal(t, []string{"bicicletas", "metro", "corredores de autocarro"}, f.summ.got)

	_, ok := f.svc.Registry().Snapshot(id)
	assert.False(t, ok)
	assert.Equal(t, model.SessionCompleted, f.reload(t, id).Status)
}

func TestSubmit_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := f.user(t, "host")
	ana := f.user(t, "ana")
	stranger := f.user(t, "stranger")
	s := f.session(t, host, "ABCDE1")
	id := s.ID.Hex()
	_, err := f.svc.Join(ctx, ana, id, "")
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, ana, id, 1, "cedo")
	assert.ErrorIs(t, err, ErrSessionNotRunning)

	_, err = f.svc.Start(ctx, host, id)
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, ana, id, 2, "nivel errado")
	assert.ErrorIs(t, err, ErrLevelMismatch)
	assert.Empty(t, f.reload(t, id).Ideas)

	_, err = f.svc.Submit(ctx, ana, id, 1, "   ")
	assert.ErrorIs(t, err, ErrInvalidContribution)
	_, err = f.svc.Submit(ctx, ana, id, 1, strings.Repeat("x", 501))
	assert.ErrorIs(t, err, ErrInvalidContribution)
	_, err = f.svc.Submit(ctx, stranger, id, 1, "intruso")
	assert.ErrorIs(t, err, ErrNotParticipant)

	idea, err := f.svc.Submit(ctx, ana, id, 1, "  praças verdes  ")
	require.NoError(t, err)
	assert.Equal(t, "praças verdes", idea.Text)
	assert.Len(t, f.reload(t, id).Ideas, 1)

	accepted := f.bus.named(model.EvtWordAccepted)
	require.Len(t, accepted, 1)
	assert.Equal(t, "conn-ana", accepted[0].target)

	u, err := f.users.GetByID(ctx, ana.UserID.Hex())
	require.NoError(t, err)
	assert.Equal(t, 1, u.Metrics.IdeasContributed)
}

func TestSubmit_RankingStableTieBreak(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := f.user(t, "host")
	a, b, c := f.user(t, "a"), f.user(t, "b"), f.user(t, "c")
	s := f.session(t, host, "ABCDE1")
	id := s.ID.Hex()
	for _, p := range []Actor{a, b, c} {
		_, err := f.svc.Join(ctx, p, id, "")
		require.NoError(t, err)
	}
	_, err := f.svc.Start(ctx, host, id)
	require.NoError(t, err)

	for _, step := range []struct {
		who  Actor
		word string
	}{{a, "1"}, {b, "2"}, {c, "3"}, {b, "4"}, {a, "5"}, {b, "6"}, {a, "7"}} {
		_, err := f.svc.Submit(ctx, step.who, id, 1, step.word)
		require.NoError(t, err)
	}

	updates := f.bus.named(model.EvtRankingUpdated)
	require.Len(t, updates, 7)
	assert.Equal(t, []model.RankingEntry{
		{ParticipantID: a.UserID.Hex(), Count: 3},
		{ParticipantID: b.UserID.Hex(), Count: 3},
		{ParticipantID: c.UserID.Hex(), Count: 1},
	}, updates[6].payload.(model.RankingPayload).Ranking)
}

func TestConclude_ConcurrentExactlyOnce(t *testing.T) {
	f := newFixture(t)
	host := f.user(t, "host")
	s := f.session(t, host, "ABCDE1")
	_, err := f.svc.Start(context.Background(), host, s.ID.Hex())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Conclude(context.Background(), host, s.ID.Hex())
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyConcluded)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, f.bus.count(model.EvtSessionConcluded))
	assert.Equal(t, 1, f.summ.calls)
	assert.Len(t, f.reload(t, s.ID.Hex()).AIResults, 1)
}

func TestConclude_HostOnly(t *testing.T) {
	f := newFixture(t)
	host := f.user(t, "host")
	ana := f.user(t, "ana")
	s := f.session(t, host, "ABCDE1")

	_, err := f.svc.Conclude(context.Background(), ana, s.ID.Hex())
	assert.ErrorIs(t, err, ErrNotHost)
}

func TestConclude_SummarizerFailureUsesFallback(t *testing.T) {
	f := newFixture(t)
	f.summ.err = ErrSummarizer
	host := f.user(t, "host")
	s := f.session(t, host, "ABCDE1")

	res, err := f.svc.Conclude(context.Background(), host, s.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, model.FallbackSummary, res.Result)
	assert.Equal(t, model.FallbackSummary, f.reload(t, s.ID.Hex()).LatestAIResult())
}

func TestConclude_StoreFailureIsRetryable(t *testing.T) {
	repo := &flakySessionRepo{SessionRepo: repository.NewMemorySessionRepo(), failures: 1}
	f := newFixtureWith(t, repo)
	ctx := context.Background()
	host := f.user(t, "host")
	s := f.session(t, host, "ABCDE1")
	_, err := f.svc.Start(ctx, host, s.ID.Hex())
	require.NoError(t, err)

	_, err = f.svc.Conclude(ctx, host, s.ID.Hex())
	require.Error(t, err)
	assert.Equal(t, model.SessionActive, f.reload(t, s.ID.Hex()).Status)
	assert.Zero(t, f.bus.count(model.EvtSessionConcluded))

	_, err = f.svc.Conclude(ctx, host, s.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, f.reload(t, s.ID.Hex()).Status)
}

func TestConclude_UpdatesMetrics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := f.user(t, "host")
	ana := f.user(t, "ana")
	s := f.session(t, host, "ABCDE1")
	_, err := f.svc.Join(ctx, ana, s.ID.Hex(), "")
	require.NoError(t, err)

	_, err = f.svc.Conclude(ctx, host, s.ID.Hex())
	require.NoError(t, err)

	h, _ := f.users.GetByID(ctx, host.UserID.Hex())
	a, _ := f.users.GetByID(ctx, ana.UserID.Hex())
	assert.Equal(t, 1, h.Metrics.SessionsCreated)
	assert.Equal(t, 1, h.Metrics.SessionsJoined)
	assert.Equal(t, 1, a.Metrics.SessionsJoined)
	assert.Zero(t, a.Metrics.SessionsCreated)
}

func TestResult_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := f.user(t, "host")
	s := f.session(t, host, "ABCDE1")
	id := s.ID.Hex()

	_, err := f.svc.Result(ctx, id)
	assert.ErrorIs(t, err, ErrNotConcluded)

	_, err = f.svc.Start(ctx, host, id)
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, host, id, 1, "ideia do host")
	require.NoError(t, err)
	concluded, err := f.svc.Conclude(ctx, host, id)
	require.NoError(t, err)

	first, err := f.svc.Result(ctx, id)
	require.NoError(t, err)
	second, err := f.svc.Result(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, concluded.Result, first.Result)
	assert.Equal(t, concluded.Ideas, first.Ideas)

	_, err = f.svc.Conclude(ctx, host, id)
	assert.ErrorIs(t, err, ErrAlreadyConcluded)
}

func TestKick(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := f.user(t, "host")
	ana := f.user(t, "ana")
	s := f.session(t, host, "ABCDE1")
	id := s.ID.Hex()
	_, err := f.svc.Join(ctx, ana, id, "")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Kick(ctx, ana, id, host.UserID.Hex()), ErrNotHost)
	assert.ErrorIs(t, f.svc.Kick(ctx, host, id, host.UserID.Hex()), ErrHostImmune)
	assert.ErrorIs(t, f.svc.Kick(ctx, host, id, "nope"), ErrParticipantNotFound)

	require.NoError(t, f.svc.Kick(ctx, host, id, ana.UserID.Hex()))

	after := f.reload(t, id)
	assert.False(t, after.IsParticipant(ana.UserID))
	require.Len(t, after.History, 1)
	assert.Equal(t, model.ActionKick, after.History[0].Type)
	assert.Contains(t, after.History[0].Detail, "ana")

	kicked := f.bus.named(model.EvtKicked)
	require.Len(t, kicked, 1)
	assert.Equal(t, ana.UserID.Hex(), kicked[0].userID)
	assert.Equal(t, model.KickedPayload{ParticipantID: ana.UserID.Hex(), ParticipantName: "ana"},
		f.bus.named(model.EvtParticipantKicked)[0].payload)

	f.bus.mu.Lock()
	evicted := false
	for _, r := range f.bus.events {
		if r.kind == "evict" && r.userID == ana.UserID.Hex() {
			evicted = true
		}
	}
	f.bus.mu.Unlock()
	assert.True(t, evicted)

	assert.ErrorIs(t, f.svc.Kick(ctx, host, id, ana.UserID.Hex()), ErrParticipantNotFound)
}

func TestLeave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := f.user(t, "host")
	ana := f.user(t, "ana")
	s := f.session(t, host, "ABCDE1")
	id := s.ID.Hex()
	_, err := f.svc.Join(ctx, ana, id, "")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Leave(ctx, host, id, host.UserID.Hex()), ErrHostCannotLeave)
	assert.ErrorIs(t, f.svc.Leave(ctx, host, id, ana.UserID.Hex()), ErrUnauthorized)

	require.NoError(t, f.svc.Leave(ctx, ana, id, ana.UserID.Hex()))
	assert.False(t, f.reload(t, id).IsParticipant(ana.UserID))
	left := f.bus.named(model.EvtParticipantLeft)
	require.Len(t, left, 1)
	assert.Equal(t, model.ParticipantIDPayload{ParticipantID: ana.UserID.Hex()}, left[0].payload)

	assert.ErrorIs(t, f.svc.Leave(ctx, ana, id, ana.UserID.Hex()), ErrParticipantNotFound)
}

func TestState_FallsBackToRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := f.user(t, "host")
	s := f.session(t, host, "ABCDE1")

	st, err := f.svc.State(ctx, s.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, model.SessionWaiting, st.Status)
	assert.Zero(t, st.Level)

	_, err = f.svc.Start(ctx, host, s.ID.Hex())
	require.NoError(t, err)
	f.clock.Advance(4 * time.Second)

	st, err = f.svc.State(ctx, s.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, model.SessionActive, st.Status)
	assert.Equal(t, 6, st.Remaining)
}

func TestList_ExcludesCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := f.user(t, "host")
	open := f.session(t, host, "OPEN-01")
	done := f.session(t, host, "DONE-01")
	_, err := f.svc.Conclude(ctx, host, done.ID.Hex())
	require.NoError(t, err)

	list, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, open.ID.Hex(), list[0].ID)
	assert.Equal(t, 30, list[0].TotalSeconds)
}

// restarted moves a fresh session to status through the store only, leaving
// no runtime entry behind, as after a process restart.
func (f *fixture) restarted(t *testing.T, id string, status model.SessionStatus, ideas ...model.Idea) {
	t.Helper()
	ctx := context.Background()
	ok, err := f.sessions.TransitionStatus(ctx, id, []model.SessionStatus{model.SessionWaiting}, model.SessionActive, nil)
	require.NoError(t, err)
	require.True(t, ok)
	if status == model.SessionPaused {
		ok, err = f.sessions.TransitionStatus(ctx, id, []model.SessionStatus{model.SessionActive}, model.SessionPaused, nil)
		require.NoError(t, err)
		require.True(t, ok)
	}
	for _, idea := range ideas {
		require.NoError(t, f.sessions.AppendIdea(ctx, id, idea))
	}
}

func TestJoin_RestoresActiveSessionRuntime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := f.user(t, "host")
	ana := f.user(t, "ana")
	s := f.session(t, host, "ABCDE1")
	id := s.ID.Hex()
	added, err := f.sessions.AddParticipant(ctx, id, ana.UserID, model.MaxParticipants)
	require.NoError(t, err)
	require.True(t, added)
	f.restarted(t, id, model.SessionActive,
		model.Idea{Text: "ciclovias", AuthorID: ana.UserID, Level: 1, Timestamp: f.svc.now()})

	_, err = f.svc.Join(ctx, ana, id, "")
	require.NoError(t, err)

	st, ok := f.svc.Registry().Snapshot(id)
	require.True(t, ok)
	assert.Equal(t, model.SessionActive, st.Status)
	assert.Equal(t, 1, st.Level)
	assert.Equal(t, 10, st.Remaining)
	assert.Equal(t, []model.RankingEntry{{ParticipantID: ana.UserID.Hex(), Count: 1}}, st.Ranking)
	assert.True(t, f.sched.Pending(id))

	_, err = f.svc.Submit(ctx, ana, id, 0, "nivel zero")
	assert.ErrorIs(t, err, ErrLevelMismatch)
	_, err = f.svc.Submit(ctx, ana, id, 1, "metro")
	require.NoError(t, err)
	assert.Len(t, f.reload(t, id).Ideas, 2)

	f.clock.Advance(time.Second)
	ticks := f.bus.named(model.EvtTimeUpdated)
	require.Len(t, ticks, 1)
	assert.Equal(t, model.TimeUpdatedPayload{Level: 1, Remaining: 9}, ticks[0].payload)

	require.NoError(t, f.svc.Pause(ctx, host, id))
}

func TestJoin_RestoresPausedSessionForRestart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := f.user(t, "host")
	s := f.session(t, host, "ABCDE1")
	id := s.ID.Hex()
	f.restarted(t, id, model.SessionPaused)

	_, err := f.svc.Join(ctx, host, id, "")
	require.NoError(t, err)

	st, ok := f.svc.Registry().Snapshot(id)
	require.True(t, ok)
	assert.Equal(t, model.SessionPaused, st.Status)
	assert.False(t, f.sched.Pending(id))
	_, err = f.svc.Submit(ctx, host, id, st.Level, "cedo")
	assert.ErrorIs(t, err, ErrSessionNotRunning)

	state, err := f.svc.Start(ctx, host, id)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Level)
	assert.Equal(t, 10, state.Remaining)
	assert.True(t, f.sched.Pending(id))
}

func TestTimer_StepArmedBeforeRestartIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := f.user(t, "host")
	s := f.session(t, host, "ABCDE1")
	id := s.ID.Hex()

	_, err := f.svc.Start(ctx, host, id)
	require.NoError(t, err)
	stale, ok := f.svc.Registry().Epoch(id)
	require.True(t, ok)
	require.NoError(t, f.svc.Pause(ctx, host, id))
	_, err = f.svc.Start(ctx, host, id)
	require.NoError(t, err)

	// a step that fired before the pause and only got the lock now
	f.svc.tick(id, stale)

	st, _ := f.svc.Registry().Snapshot(id)
	assert.Equal(t, 10, st.Remaining)
	assert.Zero(t, f.bus.count(model.EvtTimeUpdated))

	f.clock.Advance(time.Second)
	st, _ = f.svc.Registry().Snapshot(id)
	assert.Equal(t, 9, st.Remaining)
	assert.Equal(t, 1, f.bus.count(model.EvtTimeUpdated))
}

func TestTimer_LevelResultPrecedesAdvance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := f.user(t, "host")
	ana := f.user(t, "ana")
	s := f.session(t, host, "ABCDE1")
	id := s.ID.Hex()
	_, err := f.svc.Join(ctx, ana, id, "")
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, host, id)
	require.NoError(t, err)
	for _, w := range []string{"sol", "vento"} {
		_, err = f.svc.Submit(ctx, ana, id, 1, w)
		require.NoError(t, err)
	}

	f.clock.Advance(10 * time.Second)

	results := f.bus.named(model.EvtLevelResult)
	require.Len(t, results, 1)
	assert.Equal(t, model.LevelResultPayload{
		Level:     1,
		Text:      levelDigest(1, []string{"sol", "vento"}),
		Processed: 2,
	}, results[0].payload)

	var tail []string
	for _, e := range f.bus.sequence() {
		if e == model.EvtLevelResult || e == model.EvtLevelAdvanced {
			tail = append(tail, e)
		}
	}
	assert.Equal(t, []string{model.EvtLevelResult, model.EvtLevelAdvanced}, tail)

	f.clock.Advance(testGap + 20*time.Second)
	results = f.bus.named(model.EvtLevelResult)
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[1].payload.(model.LevelResultPayload).Processed)
	assert.Equal(t, 1, f.bus.count(model.EvtSessionConcluded))
}

func TestSubmitBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := f.user(t, "host")
	ana := f.user(t, "ana")
	s := f.session(t, host, "ABCDE1")
	id := s.ID.Hex()
	_, err := f.svc.Join(ctx, ana, id, "")
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, host, id)
	require.NoError(t, err)

	_, err = f.svc.SubmitBatch(ctx, ana, id, 1, []string{"ok", strings.Repeat("x", 501)})
	assert.ErrorIs(t, err, ErrInvalidContribution)
	_, err = f.svc.SubmitBatch(ctx, ana, id, 1, []string{" ", ""})
	assert.ErrorIs(t, err, ErrInvalidContribution)
	many := make([]string, model.MaxBatchWords+1)
	for i := range many {
		many[i] = fmt.Sprintf("w%d", i)
	}
	_, err = f.svc.SubmitBatch(ctx, ana, id, 1, many)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Empty(t, f.reload(t, id).Ideas)

	ideas, err := f.svc.SubmitBatch(ctx, ana, id, 1, []string{" praças ", "", "hortas"})
	require.NoError(t, err)
	require.Len(t, ideas, 2)
	assert.Equal(t, "praças", ideas[0].Text)
	assert.Equal(t, "hortas", ideas[1].Text)
	assert.Len(t, f.reload(t, id).Ideas, 2)
	assert.Equal(t, 2, f.bus.count(model.EvtRankingUpdated))
}
