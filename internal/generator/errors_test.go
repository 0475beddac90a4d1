package generator

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"aina-notebook/internal/model"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

func TestMessage(t *testing.T) {
	tests := []struct {
		name     string
		kind     Kind
		lang     model.Language
		contains string
	}{
		{"catalan auth", KindAuth, model.LanguageCatalan, "autenticació"},
		{"catalan content", KindContent, model.LanguageCatalan, "No he pogut crear la història"},
		{"catalan image", KindImage, model.LanguageCatalan, "No he pogut dibuixar"},
		{"catalan blocked", KindBlocked, model.LanguageCatalan, "seguretat"},
		{"spanish content", KindContent, model.LanguageSpanish, "No he podido crear la historia"},
		{"spanish blocked", KindBlocked, model.LanguageSpanish, "seguridad"},
		{"unknown language falls back to catalan", KindImage, model.Language("fr"), "No he pogut dibuixar"},
		{"unknown kind", Kind("weird"), model.LanguageCatalan, "error desconegut"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, Message(tt.kind, tt.lang), tt.contains)
		})
	}
}

func TestBlockedMessageDiffersFromGenericFailure(t *testing.T) {
	for _, lang := range []model.Language{model.LanguageCatalan, model.LanguageSpanish} {
		assert.NotEqual(t, Message(KindBlocked, lang), Message(KindImage, lang))
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		fallback Kind
		expected Kind
	}{
		{
			name:     "policy violation",
			err:      &openai.APIError{Code: "content_policy_violation", HTTPStatusCode: http.StatusBadRequest, Message: "rejected"},
			fallback: KindImage,
			expected: KindBlocked,
		},
		{
			name:     "moderation",
			err:      fmt.Errorf("wrapped: %w", &openai.APIError{Code: "moderation_blocked", HTTPStatusCode: http.StatusBadRequest}),
			fallback: KindImage,
			expected: KindBlocked,
		},
		{
			name:     "unauthorized api error",
			err:      &openai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"},
			fallback: KindImage,
			expected: KindAuth,
		},
		{
			name:     "forbidden request error",
			err:      &openai.RequestError{HTTPStatusCode: http.StatusForbidden, Err: errors.New("forbidden")},
			fallback: KindContent,
			expected: KindAuth,
		},
		{
			name:     "api key message",
			err:      errors.New("Incorrect API key provided"),
			fallback: KindContent,
			expected: KindAuth,
		},
		{
			name:     "server error",
			err:      &openai.APIError{HTTPStatusCode: http.StatusInternalServerError, Message: "boom"},
			fallback: KindImage,
			expected: KindImage,
		},
		{
			name:     "plain network error",
			err:      errors.New("connection reset by peer"),
			fallback: KindContent,
			expected: KindContent,
		},
		{
			name:     "already classified",
			err:      NewError(KindPersistence, errors.New("disk full")),
			fallback: KindContent,
			expected: KindPersistence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err, tt.fallback)
			assert.Equal(t, tt.expected, KindOf(got))
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.NoError(t, classify(nil, KindImage))
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(NewError(KindBlocked, nil)))
	assert.False(t, Retryable(NewError(KindAuth, nil)))
	assert.True(t, Retryable(NewError(KindImage, errors.New("timeout"))))
	assert.True(t, Retryable(errors.New("unclassified")))
}

func TestErrorString(t *testing.T) {
	err := &Error{Kind: KindBlocked, Reason: "content_policy_violation", Err: errors.New("rejected")}
	assert.Equal(t, "blocked error (content_policy_violation): rejected", err.Error())
	assert.Equal(t, "image error", NewError(KindImage, nil).Error())
	assert.Equal(t, KindUnknown, KindOf(errors.New("x")))
	assert.Equal(t, Message(KindBlocked, model.LanguageSpanish), UserMessage(err, model.LanguageSpanish))
}
