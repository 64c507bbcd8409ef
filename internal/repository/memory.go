package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"brainstorm/internal/model"
)

// In-memory stores honour the same conditional-write contracts as the Mongo
// stores. Returned records are copies.

type memorySessionRepo struct {
	mu       sync.Mutex
	sessions map[primitive.ObjectID]*model.Session
}

func NewMemorySessionRepo() SessionRepo {
	return &memorySessionRepo{sessions: make(map[primitive.ObjectID]*model.Session)}
}

func cloneSession(s *model.Session) *model.Session {
	c := *s
	c.Participants = append([]primitive.ObjectID(nil), s.Participants...)
	c.Levels = append([]model.Level(nil), s.Levels...)
	c.Ideas = append([]model.Idea(nil), s.Ideas...)
	c.AIResults = append([]model.AIResult(nil), s.AIResults...)
	c.History = append([]model.Action(nil), s.History...)
	return &c
}

func (r *memorySessionRepo) Create(_ context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.RoomCode == session.RoomCode {
			return ErrDuplicate
		}
	}
	now := time.Now().UTC()
	if session.ID.IsZero() {
		session.ID = primitive.NewObjectID()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	r.sessions[session.ID] = cloneSession(session)
	return nil
}

func (r *memorySessionRepo) GetByID(_ context.Context, id string) (*model.Session, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[oid]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(s), nil
}

func (r *memorySessionRepo) GetByCode(_ context.Context, code string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.RoomCode == code {
			return cloneSession(s), nil
		}
	}
	return nil, ErrNotFound
}

func (r *memorySessionRepo) ListOpen(_ context.Context) ([]*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := []*model.Session{}
	for _, s := range r.sessions {
		if s.Status != model.SessionCompleted {
			sessions = append(sessions, cloneSession(s))
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	if len(sessions) > listOpenLimit {
		sessions = sessions[:listOpenLimit]
	}
	return sessions, nil
}

// mutate runs fn on the stored session under the lock
func (r *memorySessionRepo) mutate(id string, fn func(s *model.Session) bool) (bool, error) {
	oid, err := parseID(id)
	if err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[oid]
	if !ok {
		return false, nil
	}
	if !fn(s) {
		return false, nil
	}
	s.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *memorySessionRepo) AddParticipant(_ context.Context, id string, userID primitive.ObjectID, max int) (bool, error) {
	return r.mutate(id, func(s *model.Session) bool {
		if s.Status == model.SessionCompleted || s.IsParticipant(userID) || len(s.Participants) >= max {
			return false
		}
		s.Participants = append(s.Participants, userID)
		return true
	})
}

func (r *memorySessionRepo) RemoveParticipant(_ context.Context, id string, userID primitive.ObjectID, action *model.Action) (bool, error) {
	return r.mutate(id, func(s *model.Session) bool {
		if s.Status == model.SessionCompleted || !s.IsParticipant(userID) {
			return false
		}
		kept := s.Participants[:0]
		for _, p := range s.Participants {
			if p != userID {
				kept = append(kept, p)
			}
		}
		s.Participants = kept
		if action != nil {
			s.History = append(s.History, *action)
		}
		return true
	})
}

func (r *memorySessionRepo) TransitionStatus(_ context.Context, id string, from []model.SessionStatus, to model.SessionStatus, action *model.Action) (bool, error) {
	return r.mutate(id, func(s *model.Session) bool {
		allowed := false
		for _, st := range from {
			if s.Status == st {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
		s.Status = to
		if action != nil {
			s.History = append(s.History, *action)
		}
		return true
	})
}

func (r *memorySessionRepo) AppendIdea(_ context.Context, id string, idea model.Idea) error {
	return r.push(id, func(s *model.Session) { s.Ideas = append(s.Ideas, idea) })
}

func (r *memorySessionRepo) AppendAIResult(_ context.Context, id string, result model.AIResult) error {
	return r.push(id, func(s *model.Session) { s.AIResults = append(s.AIResults, result) })
}

func (r *memorySessionRepo) push(id string, fn func(s *model.Session)) error {
	ok, err := r.mutate(id, func(s *model.Session) bool {
		if s.Status == model.SessionCompleted {
			return false
		}
		fn(s)
		return true
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

func (r *memorySessionRepo) EnsureIndexes(context.Context) error { return nil }

type memoryUserRepo struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]*model.User
}

func NewMemoryUserRepo() UserRepo {
	return &memoryUserRepo{users: make(map[primitive.ObjectID]*model.User)}
}

func cloneUser(u *model.User) *model.User {
	c := *u
	c.SessionsJoined = append([]primitive.ObjectID(nil), u.SessionsJoined...)
	return &c
}

func (r *memoryUserRepo) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return ErrDuplicate
		}
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	r.users[user.ID] = cloneUser(user)
	return nil
}

func (r *memoryUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[oid]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *memoryUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryUserRepo) GetMany(_ context.Context, ids []primitive.ObjectID) ([]*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]*model.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			users = append(users, cloneUser(u))
		}
	}
	return users, nil
}

func (r *memoryUserRepo) IncrementIdeas(_ context.Context, id primitive.ObjectID, n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.Metrics.IdeasContributed += n
	}
	return nil
}

func (r *memoryUserRepo) IncrementCreated(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.Metrics.SessionsCreated++
	}
	return nil
}

func (r *memoryUserRepo) RecordParticipation(_ context.Context, sessionID primitive.ObjectID, ids []primitive.ObjectID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, id := range ids {
		u, ok := r.users[id]
		if !ok {
			continue
		}
		seen := false
		for _, s := range u.SessionsJoined {
			if s == sessionID {
				seen = true
				break
			}
		}
		if seen {
			continue
		}
		u.SessionsJoined = append(u.SessionsJoined, sessionID)
		u.Metrics.SessionsJoined++
		n++
	}
	return n, nil
}

func metricValue(u *model.User, metric model.LeaderboardMetric) int {
	switch metric {
	case model.MetricSessions:
		return u.Metrics.SessionsJoined
	case model.MetricCreated:
		return u.Metrics.SessionsCreated
	default:
		return u.Metrics.IdeasContributed
	}
}

func (r *memoryUserRepo) Leaderboard(_ context.Context, metric model.LeaderboardMetric, skip, limit int) ([]model.LeaderboardEntry, error) {
	r.mu.Lock()
	users := make([]*model.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, cloneUser(u))
	}
	r.mu.Unlock()

	sort.Slice(users, func(i, j int) bool {
		vi, vj := metricValue(users[i], metric), metricValue(users[j], metric)
		if vi != vj {
			return vi > vj
		}
		return users[i].ID.Hex() > users[j].ID.Hex()
	})

	entries := []model.LeaderboardEntry{}
	for i := skip; i < len(users) && i < skip+limit; i++ {
		entries = append(entries, model.LeaderboardEntry{
			UserID: users[i].ID.Hex(),
			Nick:   users[i].DisplayName(),
			Value:  metricValue(users[i], metric),
			Rank:   i + 1,
		})
	}
	return entries, nil
}

func (r *memoryUserRepo) EnsureIndexes(context.Context) error { return nil }
