package collab

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GenAIGenerator implements LLMGenerator against Google's Gemini API. It is
// the kernel's default LLM collaborator when PAGI_GENAI_API_KEY is set.
type GenAIGenerator struct {
	client *genai.Client
	model  string
}

// NewGenAIGenerator constructs a Gemini-backed generator. model defaults to
// "gemini-2.0-flash" when empty.
func NewGenAIGenerator(ctx context.Context, apiKey, model string) (*GenAIGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("genai: API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("genai: create client: %w", err)
	}
	return &GenAIGenerator{client: client, model: model}, nil
}

// Generate implements LLMGenerator. It is deliberately non-retrying: the
// kernel treats a failed generation as a hard stop for the calling turn.
func (g *GenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("genai: generate content: %w", err)
	}
	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("genai: empty response")
	}
	return text, nil
}
