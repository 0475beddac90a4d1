package generator

import (
	"context"
	"fmt"
	"strconv"

	"aina-notebook/internal/model"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

const contentSystemPrompt = `You are an enthusiastic and knowledgeable guide for curious young learners, aged {ages}.
The tone should be {tone}.`

const contentUserPrompt = `Create a clear, engaging, and informative presentation about "{topic}".
The presentation must be written entirely in {language} for the parts that will be displayed to the user.
Generate between {min_slides} to {max_slides} slides.
For each slide, provide the following fields:
1. "title": A concise and interesting title for the slide, in {language}.
2. "content": An informative and engaging paragraph (around {min_words}-{max_words} words) for the slide, in {language}.
3. "imagePrompt": A detailed description in ENGLISH for an AI image generator. This prompt should describe a scene that is visually compelling and accurately represents the slide's content, leaning towards realism or a specific artistic style rather than a cartoonish one.

The entire final output must be a single valid JSON object whose only key, "slides", holds the array of slides.`

func newContentPrompt() prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(contentSystemPrompt),
		schema.UserMessage(contentUserPrompt),
	)
}

// contentVariables fills the text prompt for a topic, language and age band.
func contentVariables(topic string, lang model.Language, band model.AgeBand) map[string]any {
	return map[string]any{
		"topic":      topic,
		"ages":       band.Ages,
		"tone":       band.Tone,
		"language":   lang.DisplayName(),
		"min_slides": strconv.Itoa(band.MinSlides),
		"max_slides": strconv.Itoa(band.MaxSlides),
		"min_words":  strconv.Itoa(band.MinWords),
		"max_words":  strconv.Itoa(band.MaxWords),
	}
}

// RenderContentPrompt returns the messages sent for a topic. Used for logging and tests.
func RenderContentPrompt(ctx context.Context, topic string, lang model.Language, band model.AgeBand) ([]*schema.Message, error) {
	return newContentPrompt().Format(ctx, contentVariables(topic, lang, band))
}

// ImagePrompt keeps the style a dominant, separate instruction so the
// storyteller tone of the text phase does not leak into realistic styles.
func ImagePrompt(description, stylePrompt string) string {
	return fmt.Sprintf("Image content description: \"%s\".\n\nThe image MUST strictly adhere to the following artistic style and constraints: \"%s\".",
		description, stylePrompt)
}
