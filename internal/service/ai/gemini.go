package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

// GeminiProvider describes frames with a Gemini vision model.
type GeminiProvider struct {
	apiKey string
	model  string

	client  *genai.Client
	initErr error
	once    sync.Once
}

func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	return &GeminiProvider{apiKey: apiKey, model: model}
}

func (p *GeminiProvider) Name() string { return "gemini:" + p.model }

// Describe asks the model for a JSON reply about the image.
func (p *GeminiProvider) Describe(ctx context.Context, image []byte, mimeType, instruction string) (string, error) {
	if p.apiKey == "" {
		return "", errors.New("GEMINI_API_KEY is not set")
	}

	p.once.Do(func() {
		p.client, p.initErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  p.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	if p.initErr != nil {
		return "", fmt.Errorf("failed to create Gemini client: %w", p.initErr)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image, mimeType),
			genai.NewPartFromText(instruction),
		}, genai.RoleUser),
	}

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(0.7)),
		MaxOutputTokens:  512,
		ResponseMIMEType: "application/json",
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", errors.New("gemini returned no text")
	}
	return text, nil
}
