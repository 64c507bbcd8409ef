package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Metrics are per-user participation counters
type Metrics struct {
	SessionsCreated  int `json:"sessoesCriadas" bson:"sessionsCreated"`
	IdeasContributed int `json:"ideiasContribuidas" bson:"ideasContributed"`
	SessionsJoined   int `json:"sessoesParticipadas" bson:"sessionsJoined"`
}

// User is a registered account
type User struct {
	ID             primitive.ObjectID   `json:"id" bson:"_id,omitempty"`
	Name           string               `json:"nome" bson:"name"`
	Nick           string               `json:"nick" bson:"nick"`
	Email          string               `json:"email" bson:"email"`
	PasswordHash   string               `json:"-" bson:"passwordHash"`
	Metrics        Metrics              `json:"metricas" bson:"metrics"`
	SessionsJoined []primitive.ObjectID `json:"sessoesParticipadas" bson:"sessionsJoined"`
	CreatedAt      time.Time            `json:"createdAt" bson:"createdAt"`
}

// DisplayName prefers the nickname
func (u *User) DisplayName() string {
	if u.Nick != "" {
		return u.Nick
	}
	return u.Name
}

// PublicUser is the user shape sent to other participants
type PublicUser struct {
	ID   string `json:"_id"`
	Name string `json:"nome"`
	Nick string `json:"nick"`
}

// Public strips private fields
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID.Hex(), Name: u.Name, Nick: u.Nick}
}

// LeaderboardMetric selects the counter a leaderboard ranks by
type LeaderboardMetric string

const (
	MetricIdeas    LeaderboardMetric = "ideias"
	MetricSessions LeaderboardMetric = "sessoes"
	MetricCreated  LeaderboardMetric = "criadas"
)

// Field returns the bson path of the metric counter
func (m LeaderboardMetric) Field() string {
	switch m {
	case MetricSessions:
		return "metrics.sessionsJoined"
	case MetricCreated:
		return "metrics.sessionsCreated"
	default:
		return "metrics.ideasContributed"
	}
}

// Valid reports whether m is a known metric
func (m LeaderboardMetric) Valid() bool {
	return m == MetricIdeas || m == MetricSessions || m == MetricCreated
}

// LeaderboardEntry is one row of a global metric leaderboard
type LeaderboardEntry struct {
	UserID string `json:"userId"`
	Nick   string `json:"nick"`
	Value  int    `json:"valorMetrica"`
	Rank   int    `json:"posicao"`
}
