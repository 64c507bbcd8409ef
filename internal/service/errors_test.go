package service

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		msg    string
	}{
		{ErrNotHost, http.StatusForbidden, "Apenas o host pode realizar esta ação"},
		{ErrWrongPassword, http.StatusForbidden, "Senha da sala incorreta"},
		{ErrUnauthenticated, http.StatusUnauthorized, "Autenticação necessária"},
		{fmt.Errorf("join: %w", ErrCapacityExceeded), http.StatusConflict, "A sessão está cheia"},
		{ErrLevelMismatch, http.StatusConflict, "Nível inválido"},
		{ErrHostImmune, http.StatusConflict, "O host não pode ser expulso"},
		{ErrSessionNotFound, http.StatusNotFound, "Sessão não encontrada"},
		{ErrInvalidContribution, http.StatusBadRequest, "Palavra inválida"},
		{&ValidationError{Fields: map[string]string{"tema": "obrigatório"}}, http.StatusBadRequest, "Dados inválidos"},
		{errors.New("boom"), http.StatusInternalServerError, "Erro interno"},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
			assert.Equal(t, tt.msg, Message(tt.err))
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	verr := &ValidationError{}
	assert.NoError(t, verr.orNil())

	verr.add("b", "second")
	verr.add("a", "first")
	verr.add("a", "ignored")
	assert.Equal(t, "invalid input: a: first; b: second", verr.Error())
}
