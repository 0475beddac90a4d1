package model

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"
)

// Language of the text shown to the user. Image prompts are always English.
type Language string

const (
	LanguageCatalan Language = "ca"
	LanguageSpanish Language = "es"
)

// ParseLanguage falls back to Catalan for anything it does not know.
func ParseLanguage(s string) Language {
	switch Language(strings.ToLower(strings.TrimSpace(s))) {
	case LanguageSpanish:
		return LanguageSpanish
	default:
		return LanguageCatalan
	}
}

// DisplayName is the language name used inside prompts.
func (l Language) DisplayName() string {
	if l == LanguageSpanish {
		return "SPANISH"
	}
	return "CATALAN"
}

type Style struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

// SlideDraft is one slide as returned by the text phase.
type SlideDraft struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	ImagePrompt string `json:"imagePrompt"`
}

// Slide is a draft plus its image, once generated. ImageURL is a data URL.
type Slide struct {
	SlideDraft
	ImageURL string `json:"imageUrl,omitempty"`
}

func (s Slide) HasImage() bool {
	return s.ImageURL != ""
}

// ImageBytes decodes the inline data URL of the slide.
func (s Slide) ImageBytes() ([]byte, string, error) {
	return DecodeDataURL(s.ImageURL)
}

type Presentation struct {
	ID       string   `json:"id"`
	Topic    string   `json:"topic"`
	Style    Style    `json:"style"`
	Language Language `json:"language"`
	Slides   []Slide  `json:"slides"`
}

// IDLayout renders creation timestamps so that string order equals time order.
const IDLayout = "2006-01-02T15:04:05.000Z"

// NewPresentationID returns the id for a presentation created at t.
func NewPresentationID(t time.Time) string {
	return t.UTC().Format(IDLayout)
}

// NewShell builds the text-only presentation published before any image work.
func NewShell(id, topic string, style Style, lang Language, drafts []SlideDraft) *Presentation {
	slides := make([]Slide, len(drafts))
	for i, d := range drafts {
		slides[i] = Slide{SlideDraft: d}
	}
	return &Presentation{
		ID:       id,
		Topic:    topic,
		Style:    style,
		Language: lang,
		Slides:   slides,
	}
}

// Clone returns a deep copy that observers may keep without racing the pipeline.
func (p *Presentation) Clone() *Presentation {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Slides = make([]Slide, len(p.Slides))
	copy(cp.Slides, p.Slides)
	return &cp
}

// MissingImages counts slides still without an image.
func (p *Presentation) MissingImages() int {
	n := 0
	for _, s := range p.Slides {
		if !s.HasImage() {
			n++
		}
	}
	return n
}

// GenerationProgress describes where the pipeline is. Never persisted.
type GenerationProgress struct {
	CurrentStep int    `json:"currentStep"`
	TotalSteps  int    `json:"totalSteps"`
	Message     string `json:"message"`
}

var ErrInvalidDataURL = errors.New("invalid data url")

// EncodeDataURL builds a base64 data URL.
func EncodeDataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL splits a base64 data URL into its payload and mime type.
func DecodeDataURL(u string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(u, "data:")
	if !ok {
		return nil, "", ErrInvalidDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", ErrInvalidDataURL
	}
	mimeType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return nil, "", ErrInvalidDataURL
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", ErrInvalidDataURL
	}
	return data, mimeType, nil
}
