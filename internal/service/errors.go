package service

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	ErrUnauthenticated    = errors.New("authentication required")
	ErrUnauthorized       = errors.New("action not allowed")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")

	ErrInvalidContribution = errors.New("invalid contribution")

	ErrSessionNotFound     = errors.New("session not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrUserNotFound        = errors.New("user not found")

	ErrInvalidTransition = errors.New("invalid session transition")
	ErrAlreadyConcluded  = errors.New("session already concluded")
	ErrSessionClosed     = errors.New("session is closed")
	ErrSessionNotRunning = errors.New("session is not running")
	ErrLevelMismatch     = errors.New("level is not the current level")

	ErrCapacityExceeded = errors.New("session is full")
	ErrSummarizer       = errors.New("summarizer failed")

	ErrRoomCodeTaken = errors.New("room code already in use")
	ErrEmailTaken    = errors.New("email already registered")
)

// Refinements that keep their category for errors.Is
var (
	ErrNotHost         = fmt.Errorf("%w: host only", ErrUnauthorized)
	ErrNotParticipant  = fmt.Errorf("%w: not a participant", ErrUnauthorized)
	ErrWrongPassword   = fmt.Errorf("%w: wrong room password", ErrUnauthorized)
	ErrHostCannotLeave = fmt.Errorf("%w: host cannot leave", ErrUnauthorized)
	ErrHostImmune      = fmt.Errorf("%w: host cannot be removed", ErrInvalidTransition)
	ErrNotConcluded    = fmt.Errorf("%w: session not concluded", ErrInvalidTransition)
)

// ValidationError reports malformed input per field
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, reason string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = reason
	}
}

// orNil returns e as an error only if it holds at least one field
func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Message maps err to the text shown to end users
func Message(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return "Dados inválidos"
	case errors.Is(err, ErrNotHost):
		return "Apenas o host pode realizar esta ação"
	case errors.Is(err, ErrNotParticipant):
		return "Você não é participante desta sessão"
	case errors.Is(err, ErrWrongPassword):
		return "Senha da sala incorreta"
	case errors.Is(err, ErrHostCannotLeave):
		return "O host não pode sair da sessão"
	case errors.Is(err, ErrHostImmune):
		return "O host não pode ser expulso"
	case errors.Is(err, ErrNotConcluded):
		return "A sessão ainda não foi concluída"
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrInvalidToken):
		return "Autenticação necessária"
	case errors.Is(err, ErrInvalidCredentials):
		return "Email ou senha inválidos"
	case errors.Is(err, ErrUnauthorized):
		return "Sem permissão para esta ação"
	case errors.Is(err, ErrInvalidContribution):
		return "Palavra inválida"
	case errors.Is(err, ErrSessionNotFound):
		return "Sessão não encontrada"
	case errors.Is(err, ErrParticipantNotFound):
		return "Participante não encontrado"
	case errors.Is(err, ErrUserNotFound):
		return "Utilizador não encontrado"
	case errors.Is(err, ErrAlreadyConcluded):
		return "A sessão já foi concluída"
	case errors.Is(err, ErrSessionClosed):
		return "A sessão já foi encerrada"
	case errors.Is(err, ErrSessionNotRunning):
		return "A sessão não está ativa"
	case errors.Is(err, ErrLevelMismatch):
		return "Nível inválido"
	case errors.Is(err, ErrInvalidTransition):
		return "Operação inválida para o estado atual da sessão"
	case errors.Is(err, ErrCapacityExceeded):
		return "A sessão está cheia"
	case errors.Is(err, ErrRoomCodeTaken):
		return "Código de sala já em uso"
	case errors.Is(err, ErrEmailTaken):
		return "Email já registado"
	default:
		return "Erro interno"
	}
}

// HTTPStatus maps err to a response status code
func HTTPStatus(err error) int {
	var verr *ValidationError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &verr), errors.Is(err, ErrInvalidContribution):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrInvalidToken), errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrParticipantNotFound), errors.Is(err, ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrAlreadyConcluded),
		errors.Is(err, ErrSessionClosed), errors.Is(err, ErrSessionNotRunning),
		errors.Is(err, ErrLevelMismatch), errors.Is(err, ErrCapacityExceeded),
		errors.Is(err, ErrRoomCodeTaken), errors.Is(err, ErrEmailTaken):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
