package generator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"aina-notebook/internal/config"
	"aina-notebook/internal/model"
	"aina-notebook/internal/utils"
	"aina-notebook/pkg/logger"

	"github.com/gabriel-vasile/mimetype"
	openai "github.com/sashabaranov/go-openai"
)

const maxImageBytes = 20 << 20

var ErrNoImageData = errors.New("no image data in response")

// ImageGenerator renders one slide image through an OpenAI-compatible images API.
type ImageGenerator struct {
	client     *openai.Client
	httpClient *http.Client
	model      string
	size       string
}

func NewImageGenerator(cfg config.ImageConfig) (*ImageGenerator, error) {
	if err := config.Require("ai.image.api_key", cfg.APIKey, "ai.image.model", cfg.Model); err != nil {
		return nil, err
	}

	httpClient := utils.NewHTTPClient(cfg.Timeout, func(base http.RoundTripper) http.RoundTripper {
		return model.NewDebugTransport(base, cfg.DebugRequest)
	})

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = httpClient

	size := cfg.Size
	if size == "" {
		size = openai.CreateImageSize1792x1024
	}

	logger.Infof("Using image model %s (%s)", cfg.Model, size)

	return &ImageGenerator{
		client:     openai.NewClientWithConfig(clientConfig),
		httpClient: httpClient,
		model:      cfg.Model,
		size:       size,
	}, nil
}

// Generate returns the image as a data URL. Safety refusals come back as
// KindBlocked, credential problems as KindAuth, everything else as KindImage.
func (g *ImageGenerator) Generate(ctx context.Context, imagePrompt string, style model.Style) (string, error) {
	req := openai.ImageRequest{
		Prompt: ImagePrompt(imagePrompt, style.Prompt),
		Model:  g.model,
		N:      1,
		Size:   g.size,
	}
	// gpt-image models always answer in base64 and reject the field
	if strings.HasPrefix(g.model, "dall-e") {
		req.ResponseFormat = openai.CreateImageResponseFormatB64JSON
	}

	resp, err := g.client.CreateImage(ctx, req)
	if err != nil {
		return "", classify(err, KindImage)
	}
	if len(resp.Data) == 0 {
		return "", NewError(KindImage, ErrNoImageData)
	}

	data, err := g.imageBytes(ctx, resp.Data[0])
	if err != nil {
		return "", NewError(KindImage, err)
	}

	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return "", NewError(KindImage, fmt.Errorf("unexpected image content type %s", mime.String()))
	}

	logger.WithFields(map[string]interface{}{
		"style": style.Name,
		"mime":  mime.String(),
		"bytes": len(data),
	}).Debug("Slide image generated")

	return model.EncodeDataURL(mime.String(), data), nil
}

func (g *ImageGenerator) imageBytes(ctx context.Context, item openai.ImageResponseDataInner) ([]byte, error) {
	switch {
	case item.B64JSON != "":
		data, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("decode image payload: %w", err)
		}
		return data, nil
	case item.URL != "":
		return utils.Fetch(ctx, g.httpClient, item.URL, maxImageBytes)
	default:
		return nil, ErrNoImageData
	}
}
