package model

import (
	"context"
	"fmt"
	"net/http"

	"aina-notebook/internal/config"
	"aina-notebook/pkg/logger"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/qwen"
	einoModel "github.com/cloudwego/eino/components/model"
)

// NewChatModel builds the chat model used by the text phase for the
// configured provider. Missing credentials surface as *config.MissingError.
func NewChatModel(ctx context.Context, cfg config.AIConfig) (einoModel.BaseChatModel, error) {
	switch cfg.Provider {
	case "", "openai":
		return createOpenAIModel(ctx, cfg.OpenAI)
	case "doubao":
		return createDoubaoModel(ctx, cfg.Doubao)
	case "qwen":
		return createQwenModel(ctx, cfg.Qwen)
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", cfg.Provider)
	}
}

func maskKey(key string) string {
	if len(key) > 6 {
		return key[:6] + "..."
	}
	return "***"
}

func createOpenAIModel(ctx context.Context, cfg config.OpenAIConfig) (einoModel.BaseChatModel, error) {
	if err := config.Require("ai.openai.api_key", cfg.APIKey, "ai.openai.model", cfg.Model); err != nil {
		return nil, err
	}
	logger.Infof("Using OpenAI model %s (key %s)", cfg.Model, maskKey(cfg.APIKey))

	return newOpenAIChatModel(ctx, cfg)
}

func createDoubaoModel(ctx context.Context, cfg config.DoubaoConfig) (einoModel.BaseChatModel, error) {
	if err := config.Require("ai.doubao.api_key", cfg.APIKey, "ai.doubao.model", cfg.Model); err != nil {
		return nil, err
	}
	logger.Infof("Using Doubao model %s (key %s)", cfg.Model, maskKey(cfg.APIKey))

	chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		APIKey: cfg.APIKey,
		Model:  cfg.Model,
		CustomHeader: map[string]string{
			"X-Ark-Thinking-Mode": "disable",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create doubao model: %w", err)
	}
	return chatModel, nil
}

func createQwenModel(ctx context.Context, cfg config.QwenConfig) (einoModel.BaseChatModel, error) {
	if err := config.Require("ai.qwen.api_key", cfg.APIKey, "ai.qwen.model", cfg.Model); err != nil {
		return nil, err
	}
	logger.Infof("Using Qwen model %s at %s (key %s)", cfg.Model, cfg.BaseURL, maskKey(cfg.APIKey))

	httpClient := &http.Client{
		Transport: NewDebugTransport(nil, cfg.DebugRequest),
		Timeout:   cfg.Timeout,
	}

	chatModel, err := qwen.NewChatModel(ctx, &qwen.ChatModelConfig{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		MaxTokens:   &cfg.MaxTokens,
		Temperature: &cfg.Temperature,
		TopP:        &cfg.TopP,
		Timeout:     cfg.Timeout,
		HTTPClient:  httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qwen model: %w", err)
	}
	return chatModel, nil
}
