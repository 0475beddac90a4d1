package handler

import (
	"strings"

	"aina-notebook/internal/model"

	"github.com/gin-gonic/gin"
)

type messageKey string

const (
	msgBusy            messageKey = "busy"
	msgInvalidRequest  messageKey = "invalid_request"
	msgEmptyTopic      messageKey = "empty_topic"
	msgUnknownStyle    messageKey = "unknown_style"
	msgNotFound        messageKey = "not_found"
	msgSlideOutOfRange messageKey = "slide_out_of_range"
	msgSlideHasImage   messageKey = "slide_has_image"
	msgStorage         messageKey = "storage"
	msgExport          messageKey = "export"
	msgWrongPassword   messageKey = "wrong_password"
	msgAccessRequired  messageKey = "access_required"
)

var catalog = map[model.Language]map[messageKey]string{
	model.LanguageCatalan: {
		msgBusy:            "Ja s'està creant una presentació. Espera que acabi i torna-ho a provar.",
		msgInvalidRequest:  "La petició no és vàlida.",
		msgEmptyTopic:      "Escriu un tema per a la presentació.",
		msgUnknownStyle:    "Aquest estil no existeix.",
		msgNotFound:        "No he trobat aquesta presentació.",
		msgSlideOutOfRange: "Aquesta diapositiva no existeix.",
		msgSlideHasImage:   "Aquesta diapositiva ja té imatge.",
		msgStorage:         "No s'ha pogut accedir a l'historial.",
		msgExport:          "No s'ha pogut crear el PDF.",
		msgWrongPassword:   "Contrasenya incorrecta.",
		msgAccessRequired:  "Cal introduir la contrasenya d'accés.",
	},
	model.LanguageSpanish: {
		msgBusy:            "Ya se está creando una presentación. Espera a que termine y vuelve a intentarlo.",
		msgInvalidRequest:  "La petición no es válida.",
		msgEmptyTopic:      "Escribe un tema para la presentación.",
		msgUnknownStyle:    "Este estilo no existe.",
		msgNotFound:        "No he encontrado esta presentación.",
		msgSlideOutOfRange: "Esta diapositiva no existe.",
		msgSlideHasImage:   "Esta diapositiva ya tiene imagen.",
		msgStorage:         "No se ha podido acceder al historial.",
		msgExport:          "No se ha podido crear el PDF.",
		msgWrongPassword:   "Contraseña incorrecta.",
		msgAccessRequired:  "Hay que introducir la contraseña de acceso.",
	},
}

func message(key messageKey, lang model.Language) string {
	if m, ok := catalog[lang]; ok {
		return m[key]
	}
	return catalog[model.LanguageCatalan][key]
}

// requestLanguage picks the reply language from ?lang= or Accept-Language.
func requestLanguage(c *gin.Context, fallback model.Language) model.Language {
	if lang := c.Query("lang"); lang != "" {
		return model.ParseLanguage(lang)
	}
	if accept := c.GetHeader("Accept-Language"); accept != "" {
		primary := strings.ToLower(strings.TrimSpace(strings.Split(accept, ",")[0]))
		if strings.HasPrefix(primary, "es") {
			return model.LanguageSpanish
		}
		if strings.HasPrefix(primary, "ca") {
			return model.LanguageCatalan
		}
	}
	return fallback
}

func abortWithMessage(c *gin.Context, status int, key messageKey, lang model.Language) {
	c.AbortWithStatusJSON(status, model.ErrorResponse{Error: message(key, lang), Kind: string(key)})
}
