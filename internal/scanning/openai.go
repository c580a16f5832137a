package scanning

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAITimeout bounds a single chat-completions call
const DefaultOpenAITimeout = 60 * time.Second

// OpenAI runs prompts against any OpenAI-compatible chat-completions API,
// such as OpenAI itself or OpenRouter
type OpenAI struct {
	client *openai.Client
}

// NewOpenAI creates an OpenAI backend. An empty baseURL uses api.openai.com.
func NewOpenAI(apiKey, baseURL string, timeout time.Duration) *OpenAI {
	if timeout <= 0 {
		timeout = DefaultOpenAITimeout
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	config.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAI{client: openai.NewClientWithConfig(config)}
}

// Generate sends the image as a data URI alongside the prompt
func (o *OpenAI) Generate(ctx context.Context, model string, img Image, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    img.DataURI(),
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("creating chat completion with %s: %w", model, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices from model %s", model)
	}

	return resp.Choices[0].Message.Content, nil
}

// Close is a no-op for the OpenAI client
func (o *OpenAI) Close() error {
	return nil
}
