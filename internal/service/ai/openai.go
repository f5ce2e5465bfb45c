package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider describes frames with an OpenAI vision-capable chat model.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	hasKey bool
}

// NewOpenAIProvider builds a provider; extra options (base URL, HTTP client) are passed to the SDK.
func NewOpenAIProvider(apiKey, model string, opts ...option.RequestOption) *OpenAIProvider {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := openai.NewClient(opts...)
	return &OpenAIProvider{client: &client, model: model, hasKey: apiKey != ""}
}

func (p *OpenAIProvider) Name() string { return "openai:" + p.model }

// Describe sends the image inline as a data URL next to the instruction text.
func (p *OpenAIProvider) Describe(ctx context.Context, image []byte, mimeType, instruction string) (string, error) {
	if !p.hasKey {
		return "", errors.New("OPENAI_API_KEY is not set")
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(instruction),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL:    dataURL,
					Detail: "low",
				}),
			}),
		},
		MaxCompletionTokens: openai.Int(512),
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.New("openai returned no content")
	}
	return resp.Choices[0].Message.Content, nil
}
