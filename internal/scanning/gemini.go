package scanning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiTimeout bounds a single Gemini call
const DefaultGeminiTimeout = 30 * time.Second

// Gemini runs prompts against Google Gemini models
type Gemini struct {
	client  *genai.Client
	timeout time.Duration
}

// NewGemini creates a Gemini backend. The model is chosen per call.
func NewGemini(ctx context.Context, apiKey string, timeout time.Duration, opts ...option.ClientOption) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if timeout <= 0 {
		timeout = DefaultGeminiTimeout
	}

	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client:  client,
		timeout: timeout,
	}, nil
}

// Generate sends the image and prompt to the named Gemini model
func (g *Gemini) Generate(ctx context.Context, model string, img Image, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	// genai.ImageData wants the format suffix ("png"), not the full MIME type
	parts := []genai.Part{
		genai.ImageData(img.Format(), img.Data),
		genai.Text(prompt),
	}

	resp, err := g.client.GenerativeModel(model).GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("generating content with %s: %w", model, err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini model %s", model)
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	return text.String(), nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
