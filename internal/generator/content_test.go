package generator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"aina-notebook/internal/model"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatModel struct {
	reply    string
	err      error
	received []*schema.Message
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einoModel.Option) (*schema.Message, error) {
	f.received = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einoModel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

const waterCycleReply = `{"slides":[
 {"title":"L'aigua viatja","content":"L'aigua del mar s'escalfa amb el sol.","imagePrompt":"A sunny ocean with rising vapor"},
 {"title":"Els núvols","content":"El vapor es refreda i forma núvols.","imagePrompt":"Fluffy clouds forming over mountains"}
]}`

func TestContentGenerator_Generate(t *testing.T) {
	ctx := context.Background()
	fake := &fakeChatModel{reply: waterCycleReply}

	gen, err := NewContentGenerator(ctx, fake)
	require.NoError(t, err)

	drafts, err := gen.Generate(ctx, "El cicle de l'aigua", model.LanguageCatalan, model.FindAgeBand("9-12"))
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Equal(t, "Els núvols", drafts[1].Title)
	assert.Equal(t, "A sunny ocean with rising vapor", drafts[0].ImagePrompt)

	require.Len(t, fake.received, 2)
	user := fake.received[1].Content
	assert.Contains(t, user, `"El cicle de l'aigua"`)
	assert.Contains(t, user, "CATALAN")
	assert.Contains(t, user, "between 8 to 10 slides")
	assert.Contains(t, user, "40-50 words")
	assert.Contains(t, fake.received[0].Content, "aged 9-12")
}

func TestContentGenerator_AgeBandAndLanguage(t *testing.T) {
	msgs, err := RenderContentPrompt(context.Background(), "Els dinosaures", model.LanguageSpanish, model.FindAgeBand("6-8"))
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Contains(t, msgs[1].Content, "SPANISH")
	assert.Contains(t, msgs[1].Content, "between 5 to 6 slides")
	assert.Contains(t, msgs[1].Content, "25-35 words")
	assert.NotContains(t, msgs[1].Content, "{")
}

func TestContentGenerator_Failures(t *testing.T) {
	tests := []struct {
		name     string
		fake     *fakeChatModel
		expected Kind
	}{
		{"malformed json", &fakeChatModel{reply: "I cannot do that"}, KindContent},
		{"empty list", &fakeChatModel{reply: `{"slides":[]}`}, KindContent},
		{"incomplete slide", &fakeChatModel{reply: `{"slides":[{"title":"A","content":"","imagePrompt":"x"}]}`}, KindContent},
		{"network", &fakeChatModel{err: errors.New("connection refused")}, KindContent},
		{"auth", &fakeChatModel{err: errors.New("401 Unauthorized: invalid api key")}, KindAuth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			gen, err := NewContentGenerator(ctx, tt.fake)
			require.NoError(t, err)

			drafts, err := gen.Generate(ctx, "Volcans", model.LanguageCatalan, model.FindAgeBand(""))
			require.Error(t, err)
			assert.Nil(t, drafts)
			assert.Equal(t, tt.expected, KindOf(err))
		})
	}
}

func TestParseSlides(t *testing.T) {
	t.Run("code fence", func(t *testing.T) {
		drafts, err := ParseSlides("```json\n" + waterCycleReply + "\n```")
		require.NoError(t, err)
		assert.Len(t, drafts, 2)
	})

	t.Run("bare array", func(t *testing.T) {
		drafts, err := ParseSlides(`[{"title":"T","content":"C","imagePrompt":"P"}]`)
		require.NoError(t, err)
		assert.Equal(t, []model.SlideDraft{{Title: "T", Content: "C", ImagePrompt: "P"}}, drafts)
	})

	t.Run("trims fields", func(t *testing.T) {
		drafts, err := ParseSlides(`{"slides":[{"title":" T ","content":"C\n","imagePrompt":" P"}]}`)
		require.NoError(t, err)
		assert.Equal(t, "T", drafts[0].Title)
		assert.Equal(t, "C", drafts[0].Content)
		assert.Equal(t, "P", drafts[0].ImagePrompt)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := ParseSlides(`{"slides":[]}`)
		assert.ErrorIs(t, err, ErrNoSlides)
	})

	t.Run("blank", func(t *testing.T) {
		_, err := ParseSlides("   ")
		assert.ErrorIs(t, err, ErrMalformedContent)
	})

	t.Run("missing field", func(t *testing.T) {
		_, err := ParseSlides(`{"slides":[{"title":"T","content":"C"}]}`)
		assert.ErrorIs(t, err, ErrMalformedContent)
		assert.True(t, strings.Contains(err.Error(), "slide 0"))
	})
}

func TestImagePrompt(t *testing.T) {
	got := ImagePrompt("A volcano erupting", "hyper-detailed diorama")
	assert.Equal(t,
		"Image content description: \"A volcano erupting\".\n\nThe image MUST strictly adhere to the following artistic style and constraints: \"hyper-detailed diorama\".",
		got)
}
