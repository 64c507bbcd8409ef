package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SessionStatus string

const (
	SessionWaiting   SessionStatus = "waiting_start"
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
)

// Session limits
const (
	MaxParticipants   = 50
	MaxThemeLength    = 120
	MaxIdeaLength     = 500
	MaxBatchWords     = 50
	MinLevelSeconds   = 5
	MaxLevelSeconds   = 300
	MinPasswordLength = 6
)

type ActionType string

const (
	ActionPause   ActionType = "pause"
	ActionRestart ActionType = "restart"
	ActionKick    ActionType = "kick"
)

// Level is one timed round of a session
type Level struct {
	Order   int `json:"ordem" bson:"order"`
	Seconds int `json:"segundos" bson:"seconds"`
}

// Idea is a single contribution submitted during a level
type Idea struct {
	Text      string             `json:"texto" bson:"text"`
	AuthorID  primitive.ObjectID `json:"autor" bson:"author"`
	Level     int                `json:"nivel" bson:"level"`
	Timestamp time.Time          `json:"timestamp" bson:"timestamp"`
}

// AIResult is a summary produced when the session concludes
type AIResult struct {
	Text      string    `json:"texto" bson:"text"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Action is an entry of the host action history
type Action struct {
	Type      ActionType         `json:"tipo" bson:"type"`
	ActorID   primitive.ObjectID `json:"executadoPor" bson:"actor"`
	Timestamp time.Time          `json:"timestamp" bson:"timestamp"`
	Detail    string             `json:"detalhes,omitempty" bson:"detail,omitempty"`
}

// Session is the durable record of a brainstorming room
type Session struct {
	ID           primitive.ObjectID   `json:"id" bson:"_id,omitempty"`
	Theme        string               `json:"tema" bson:"theme"`
	RoomCode     string               `json:"codigoSala" bson:"roomCode"`
	HostID       primitive.ObjectID   `json:"host" bson:"host"`
	Participants []primitive.ObjectID `json:"participantes" bson:"participants"`
	Levels       []Level              `json:"configuracaoNiveis" bson:"levels"`
	Status       SessionStatus        `json:"status" bson:"status"`
	Ideas        []Idea               `json:"ideias" bson:"ideas"`
	AIResults    []AIResult           `json:"resultadosAI,omitempty" bson:"aiResults"`
	History      []Action             `json:"historicoAcoes,omitempty" bson:"history"`
	Protected    bool                 `json:"salaProtegida" bson:"protected"`
	Password     string               `json:"-" bson:"password,omitempty"`
	CreatedAt    time.Time            `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time            `json:"updatedAt" bson:"updatedAt"`
}

// IsHost reports whether userID hosts the session
func (s *Session) IsHost(userID primitive.ObjectID) bool {
	return s.HostID == userID
}

// IsParticipant reports whether userID is in the participant list
func (s *Session) IsParticipant(userID primitive.ObjectID) bool {
	for _, p := range s.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// FirstLevel returns the level with the lowest order
func (s *Session) FirstLevel() (Level, bool) {
	var first Level
	found := false
	for _, l := range s.Levels {
		if !found || l.Order < first.Order {
			first = l
			found = true
		}
	}
	return first, found
}

// NextLevel returns the level following order, if any
func NextLevel(levels []Level, order int) (Level, bool) {
	var next Level
	found := false
	for _, l := range levels {
		if l.Order <= order {
			continue
		}
		if !found || l.Order < next.Order {
			next = l
			found = true
		}
	}
	return next, found
}

// TotalSeconds is the estimated duration of all levels
func (s *Session) TotalSeconds() int {
	total := 0
	for _, l := range s.Levels {
		total += l.Seconds
	}
	return total
}

// LatestAIResult returns the most recent summary text
func (s *Session) LatestAIResult() string {
	if len(s.AIResults) == 0 {
		return ""
	}
	return s.AIResults[len(s.AIResults)-1].Text
}

// SessionSummary is the public listing view of a session
type SessionSummary struct {
	ID               string        `json:"id"`
	Theme            string        `json:"tema"`
	RoomCode         string        `json:"codigoSala"`
	HostID           string        `json:"host"`
	ParticipantCount int           `json:"participantes"`
	Status           SessionStatus `json:"status"`
	Protected        bool          `json:"salaProtegida"`
	TotalSeconds     int           `json:"tempoTotalEstimado"`
}

// Summary builds the listing view
func (s *Session) Summary() SessionSummary {
	return SessionSummary{
		ID:               s.ID.Hex(),
		Theme:            s.Theme,
		RoomCode:         s.RoomCode,
		HostID:           s.HostID.Hex(),
		ParticipantCount: len(s.Participants),
		Status:           s.Status,
		Protected:        s.Protected,
		TotalSeconds:     s.TotalSeconds(),
	}
}

// LevelByOrder returns the level with the given order
func LevelByOrder(levels []Level, order int) (Level, bool) {
	for _, l := range levels {
		if l.Order == order {
			return l, true
		}
	}
	return Level{}, false
}
