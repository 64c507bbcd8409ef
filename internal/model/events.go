package model

import "time"

// Inbound real-time events
const (
	EvtJoinSession     = "entrarSessao"
	EvtLeaveSession    = "sairSessao"
	EvtStartSession    = "iniciarSessao"
	EvtPauseSession    = "pausarSessao"
	EvtConcludeSession = "concluirSessao"
	EvtKick            = "expulsarParticipante"
	EvtSubmitWord      = "submeterPalavra"
	EvtChat            = "chat"
)

// Outbound real-time events
const (
	EvtJoinConfirmed       = "entradaConfirmada"
	EvtSessionState        = "estadoSessao"
	EvtParticipantJoined   = "participanteEntrou"
	EvtParticipantLeft     = "participanteSaiu"
	EvtParticipantsUpdated = "atualizarParticipantes"
	EvtParticipantOffline  = "participanteDesconectado"
	EvtSessionStarted      = "sessaoIniciada"
	EvtSessionPaused       = "sessaoPausada"
	EvtSessionConcluded    = "sessaoConcluida"
	EvtTimeUpdated         = "tempoAtualizado"
	EvtLevelAdvanced       = "nivelAvancado"
	EvtLevelResult         = "resultadoIA"
	EvtWordAccepted        = "palavraAceite"
	EvtRankingUpdated      = "rankingAtualizado"
	EvtKicked              = "expulsado"
	EvtParticipantKicked   = "participanteExpulso"
	EvtClientChat          = "clientChat"
	EvtError               = "erro"
)

// FallbackSummary is stored when the summarizer cannot produce a result
const FallbackSummary = "Falha ao gerar solução automática"

// RankingEntry is one row of the live per-session ranking
type RankingEntry struct {
	ParticipantID string `json:"participanteId"`
	Count         int    `json:"palavrasCount"`
}

// RuntimeState is the live view of a running session
type RuntimeState struct {
	Level     int            `json:"nivelAtual"`
	Status    SessionStatus  `json:"status"`
	Remaining int            `json:"tempoRestante"`
	Ranking   []RankingEntry `json:"ranking"`
}

// Inbound payloads

type SessionRef struct {
	SessionID string `json:"sessaoId"`
}

type JoinPayload struct {
	SessionID string `json:"sessaoId"`
	Password  string `json:"senha,omitempty"`
}

type LeavePayload struct {
	SessionID string `json:"sessaoId"`
	UserID    string `json:"userId"`
}

type KickPayload struct {
	SessionID     string `json:"sessaoId"`
	ParticipantID string `json:"participanteId"`
}

type SubmitPayload struct {
	SessionID string `json:"sessaoId"`
	Level     int    `json:"nivel"`
	Word      string `json:"palavra"`
}

// Outbound payloads

type ErrorPayload struct {
	Message string `json:"mensagem"`
}

type NoticePayload struct {
	Message string `json:"mensagem"`
}

type JoinConfirmedPayload struct {
	SessionID string `json:"sessaoId"`
	IsHost    bool   `json:"isHost"`
}

type ParticipantPayload struct {
	Participant PublicUser `json:"participante"`
}

type ParticipantsPayload struct {
	Participants []PublicUser `json:"participantes"`
}

type ParticipantIDPayload struct {
	ParticipantID string `json:"participanteId"`
}

type SessionStartedPayload struct {
	Level     int           `json:"nivelAtual"`
	Remaining int           `json:"tempoRestante"`
	Status    SessionStatus `json:"status"`
}

type StatusMessagePayload struct {
	Message string        `json:"mensagem"`
	Status  SessionStatus `json:"status"`
}

type TimeUpdatedPayload struct {
	Level     int `json:"nivel"`
	Remaining int `json:"tempoRestante"`
}

type LevelAdvancedPayload struct {
	Previous  int `json:"nivelAnterior"`
	Current   int `json:"nivelAtual"`
	Remaining int `json:"tempoRestante"`
}

type LevelResultPayload struct {
	Level     int    `json:"nivel"`
	Text      string `json:"texto"`
	Processed int    `json:"palavrasProcessadas"`
}

type WordAcceptedPayload struct {
	Word  string `json:"palavra"`
	Level int    `json:"nivel"`
}

type RankingPayload struct {
	Ranking []RankingEntry `json:"ranking"`
}

type KickedPayload struct {
	ParticipantID   string `json:"participanteId"`
	ParticipantName string `json:"participanteNome"`
}

type ConcludedPayload struct {
	Message string        `json:"mensagem"`
	Status  SessionStatus `json:"status"`
	Result  string        `json:"resultadoSessao"`
	Ideas   []Idea        `json:"ideias"`
}

type ChatPayload struct {
	SocketID string    `json:"socketID"`
	Nick     string    `json:"nick"`
	Message  string    `json:"mensagem"`
	SentAt   time.Time `json:"enviadoEm"`
}

// SessionResult is the durable outcome of a completed session
type SessionResult struct {
	SessionID string `json:"sessaoId"`
	Theme     string `json:"tema"`
	Result    string `json:"resultadoSessao"`
	Ideas     []Idea `json:"ideias"`
}
