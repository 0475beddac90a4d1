package generator

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"aina-notebook/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// Kind classifies a failure for the user-facing banner.
type Kind string

const (
	KindAuth        Kind = "auth"
	KindContent     Kind = "content"
	KindImage       Kind = "image"
	KindBlocked     Kind = "blocked"
	KindPersistence Kind = "persistence"
	KindUnknown     Kind = "unknown"
)

// Error is a classified AI or persistence failure. Reason carries provider
// detail such as a block reason and may be empty.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + " error"
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with kind.
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf reports the kind of err, or KindUnknown when it was never classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Retryable reports whether another attempt could succeed. Safety blocks and
// credential problems never change on retry.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindBlocked, KindAuth:
		return false
	}
	return true
}

var messages = map[model.Language]map[Kind]string{
	model.LanguageCatalan: {
		KindAuth:        "Hi ha hagut un problema d'autenticació amb el servei d'IA. Verifica que la teva API Key estigui ben configurada.",
		KindContent:     "No he pogut crear la història. Potser el tema és massa complicat. Prova amb un altre!",
		KindImage:       "No he pogut dibuixar una de les imatges. Torna-ho a provar.",
		KindBlocked:     "El contingut d'una imatge ha estat bloquejat per motius de seguretat. La diapositiva s'ha quedat sense imatge.",
		KindPersistence: "La presentació s'ha creat però no s'ha pogut desar a l'historial.",
		KindUnknown:     "Ha ocorregut un error desconegut.",
	},
	model.LanguageSpanish: {
		KindAuth:        "Ha habido un problema de autenticación con el servicio de IA. Verifica que tu API Key esté bien configurada.",
		KindContent:     "No he podido crear la historia. Quizás el tema es demasiado complicado. ¡Prueba con otro!",
		KindImage:       "No he podido dibujar una de las imágenes. Vuelve a intentarlo.",
		KindBlocked:     "El contenido de una imagen ha sido bloqueado por motivos de seguridad. La diapositiva se ha quedado sin imagen.",
		KindPersistence: "La presentación se ha creado pero no se ha podido guardar en el historial.",
		KindUnknown:     "Ha ocurrido un error desconocido.",
	},
}

// Message returns the localized banner text for kind.
func Message(kind Kind, lang model.Language) string {
	set, ok := messages[lang]
	if !ok {
		set = messages[model.LanguageCatalan]
	}
	if msg, ok := set[kind]; ok {
		return msg
	}
	return set[KindUnknown]
}

// UserMessage returns the localized banner text for err.
func UserMessage(err error, lang model.Language) string {
	return Message(KindOf(err), lang)
}

// classify maps a provider error to kind fallback unless it is a credential
// or safety problem. Already classified errors are returned unchanged.
func classify(err error, fallback Kind) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if code := fmt.Sprint(apiErr.Code); isBlockedCode(code) {
			return &Error{Kind: KindBlocked, Reason: code, Err: err}
		}
		if isAuthStatus(apiErr.HTTPStatusCode) {
			return NewError(KindAuth, err)
		}
		return NewError(fallback, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && isAuthStatus(reqErr.HTTPStatusCode) {
		return NewError(KindAuth, err)
	}

	if looksLikeAuth(err.Error()) {
		return NewError(KindAuth, err)
	}
	return NewError(fallback, err)
}

func isAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

func isBlockedCode(code string) bool {
	switch code {
	case "content_policy_violation", "moderation_blocked", "content_filter":
		return true
	}
	return false
}

func looksLikeAuth(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "api key") ||
		strings.Contains(msg, "api_key") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "authentication")
}
