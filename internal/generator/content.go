package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"aina-notebook/internal/model"
	"aina-notebook/pkg/logger"

	"github.com/cloudwego/eino/compose"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

var (
	ErrMalformedContent = errors.New("malformed slide content")
	ErrNoSlides         = errors.New("no slides returned")
)

// ContentGenerator turns a topic into slide drafts with a single chat request.
type ContentGenerator struct {
	chain compose.Runnable[map[string]any, []model.SlideDraft]
}

func NewContentGenerator(ctx context.Context, chatModel einoModel.BaseChatModel) (*ContentGenerator, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is nil")
	}

	chain := compose.NewChain[map[string]any, []model.SlideDraft]()
	chain.AppendChatTemplate(newContentPrompt(), compose.WithNodeName("content.template"))
	chain.AppendChatModel(chatModel, compose.WithNodeName("content.llm"))
	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, msg *schema.Message) ([]model.SlideDraft, error) {
			if msg == nil {
				return nil, ErrMalformedContent
			}
			return ParseSlides(msg.Content)
		}),
		compose.WithNodeName("content.parse"),
	)

	runnable, err := chain.Compile(ctx, compose.WithGraphName("slide_content_chain"))
	if err != nil {
		return nil, fmt.Errorf("failed to compile content chain: %w", err)
	}
	return &ContentGenerator{chain: runnable}, nil
}

// Generate returns at least one complete draft or a classified error.
func (g *ContentGenerator) Generate(ctx context.Context, topic string, lang model.Language, band model.AgeBand) ([]model.SlideDraft, error) {
	drafts, err := g.chain.Invoke(ctx, contentVariables(topic, lang, band))
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"topic": topic,
			"error": err.Error(),
		}).Warn("Slide content generation failed")
		return nil, classify(err, KindContent)
	}

	logger.Debugf("Generated %d slide drafts for %q", len(drafts), topic)
	return drafts, nil
}

type slidesEnvelope struct {
	Slides []model.SlideDraft `json:"slides"`
}

// ParseSlides decodes the model's JSON answer. Code fences are tolerated;
// an empty list or a draft missing any field is rejected.
func ParseSlides(raw string) ([]model.SlideDraft, error) {
	text := stripCodeFence(raw)
	if text == "" {
		return nil, NewError(KindContent, ErrMalformedContent)
	}

	var env slidesEnvelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		// some models answer with the bare array
		var list []model.SlideDraft
		if arrErr := json.Unmarshal([]byte(text), &list); arrErr != nil {
			return nil, NewError(KindContent, fmt.Errorf("%w: %v", ErrMalformedContent, err))
		}
		env.Slides = list
	}

	if len(env.Slides) == 0 {
		return nil, NewError(KindContent, ErrNoSlides)
	}

	drafts := make([]model.SlideDraft, 0, len(env.Slides))
	for i, s := range env.Slides {
		s.Title = strings.TrimSpace(s.Title)
		s.Content = strings.TrimSpace(s.Content)
		s.ImagePrompt = strings.TrimSpace(s.ImagePrompt)
		if s.Title == "" || s.Content == "" || s.ImagePrompt == "" {
			return nil, NewError(KindContent, fmt.Errorf("%w: slide %d is incomplete", ErrMalformedContent, i))
		}
		drafts = append(drafts, s)
	}
	return drafts, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
