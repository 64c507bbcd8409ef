// Package runtime owns the ephemeral, process-local state of running
// sessions: current level, countdown, and the words submitted per
// participant that feed the live ranking.
//
// An entry is created on first join or on start and deleted exactly once,
// when its session completes. The registry is not shared across processes.
package runtime

import (
	"sync"

	"brainstorm/internal/model"
)

type word struct {
	level int
	text  string
}

type entry struct {
	level     int
	status    model.SessionStatus
	remaining int
	levels    []model.Level
	epoch     uint64 // bumped on every (re)start; stale countdown steps carry an older one

	words   map[string][]word
	order   []string // participants in order of first contribution
	ranking []model.RankingEntry
}

func (e *entry) state() model.RuntimeState {
	ranking := make([]model.RankingEntry, len(e.ranking))
	copy(ranking, e.ranking)
	return model.RuntimeState{
		Level:     e.level,
		Status:    e.status,
		Remaining: e.remaining,
		Ranking:   ranking,
	}
}

// Tick is the result of one countdown step
type Tick struct {
	Level     int
	Remaining int
	Levels    []model.Level
}

// Registry maps session ids to runtime entries
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Ensure creates an entry for session if none exists. Returns true if an
// entry was created.
//
// A session that is already active or paused without an entry (the process
// restarted) is rebuilt from its record: stored ideas feed the ranking, and
// the countdown restarts in full at the latest level that has ideas, or at
// the first level.
func (r *Registry) Ensure(session *model.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessionID := session.ID.Hex()
	if _, ok := r.entries[sessionID]; ok {
		return false
	}
	e := &entry{
		status: session.Status,
		words:  make(map[string][]word),
	}
	r.entries[sessionID] = e

	if session.Status != model.SessionActive && session.Status != model.SessionPaused {
		return true
	}
	current, ok := session.FirstLevel()
	if !ok {
		e.status = model.SessionWaiting
		return true
	}
	for _, idea := range session.Ideas {
		if idea.Level > current.Order {
			if l, ok := model.LevelByOrder(session.Levels, idea.Level); ok {
				current = l
			}
		}
		e.add(idea.AuthorID.Hex(), idea.Level, idea.Text)
	}
	e.levels = append([]model.Level(nil), session.Levels...)
	e.level = current.Order
	e.remaining = current.Seconds
	e.epoch++
	return true
}

// Start sets the entry to the given level with a full countdown and marks
// it active, creating the entry if needed. Submitted words are kept.
func (r *Registry) Start(sessionID string, levels []model.Level, first model.Level) model.RuntimeState {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sessionID]
	if !ok {
		e = &entry{words: make(map[string][]word)}
		r.entries[sessionID] = e
	}
	e.levels = append([]model.Level(nil), levels...)
	e.level = first.Order
	e.remaining = first.Seconds
	e.status = model.SessionActive
	e.epoch++
	return e.state()
}

// Epoch returns the start generation of the entry. Countdown steps armed
// under an older epoch are ignored by Tick.
func (r *Registry) Epoch(sessionID string) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sessionID]
	if !ok {
		return 0, false
	}
	return e.epoch, true
}

// SetStatus mirrors a durable status change. Returns false if there is no
// entry.
func (r *Registry) SetStatus(sessionID string, status model.SessionStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sessionID]
	if !ok {
		return false
	}
	e.status = status
	return true
}

// Tick decrements the countdown of an active entry started at epoch.
// Returns false, without touching anything, if the entry is gone, not
// active, or was restarted since.
func (r *Registry) Tick(sessionID string, epoch uint64) (Tick, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sessionID]
	if !ok || e.status != model.SessionActive || e.epoch != epoch {
		return Tick{}, false
	}
	if e.remaining > 0 {
		e.remaining--
	}
	return Tick{Level: e.level, Remaining: e.remaining, Levels: e.levels}, true
}

// Advance moves an entry to next with a full countdown. Returns the
// previous level.
func (r *Registry) Advance(sessionID string, next model.Level) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sessionID]
	if !ok {
		return 0, false
	}
	prev := e.level
	e.level = next.Order
	e.remaining = next.Seconds
	return prev, true
}

// AddWord records a word for participantID and recomputes the ranking.
func (r *Registry) AddWord(sessionID, participantID string, level int, text string) ([]model.RankingEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sessionID]
	if !ok {
		return nil, false
	}
	e.add(participantID, level, text)

	ranking := make([]model.RankingEntry, len(e.ranking))
	copy(ranking, e.ranking)
	return ranking, true
}

func (e *entry) add(participantID string, level int, text string) {
	if _, seen := e.words[participantID]; !seen {
		e.order = append(e.order, participantID)
	}
	e.words[participantID] = append(e.words[participantID], word{level: level, text: text})

	counts := make(map[string]int, len(e.words))
	for id, ws := range e.words {
		counts[id] = len(ws)
	}
	e.ranking = ComputeRanking(e.order, counts)
}

// LevelWords returns every word submitted during level, grouped by
// participant in first-contribution order.
func (r *Registry) LevelWords(sessionID string, level int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sessionID]
	if !ok {
		return nil
	}
	var out []string
	for _, id := range e.order {
		for _, w := range e.words[id] {
			if w.level == level {
				out = append(out, w.text)
			}
		}
	}
	return out
}

// Snapshot returns a copy of the entry's live state.
func (r *Registry) Snapshot(sessionID string) (model.RuntimeState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sessionID]
	if !ok {
		return model.RuntimeState{}, false
	}
	return e.state(), true
}

// Delete removes the entry. Returns false if it did not exist.
func (r *Registry) Delete(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[sessionID]; !ok {
		return false
	}
	delete(r.entries, sessionID)
	return true
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
