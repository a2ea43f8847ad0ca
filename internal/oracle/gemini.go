package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	cwerrors "github.com/rooney011/CodeWeaver/internal/errors"
	"google.golang.org/genai"
)

// GeminiOracle calls the Gemini API through the genai SDK.
type GeminiOracle struct {
	client *genai.Client
	model  string
}

// NewGeminiOracle creates a Gemini-backed Oracle. baseURL is optional and is
// mostly useful for pointing tests at a stub server.
func NewGeminiOracle(ctx context.Context, apiKey, model, baseURL string) (*GeminiOracle, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if strings.TrimSpace(model) == "" {
		model = "gemini-2.0-flash"
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiOracle{client: client, model: model}, nil
}

// Name returns "gemini".
func (g *GeminiOracle) Name() string {
	return "gemini"
}

// Invoke sends the user content with system as the system instruction.
func (g *GeminiOracle) Invoke(ctx context.Context, system, user string) (string, error) {
	temperature := float32(0)
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       &temperature,
		ResponseMIMEType:  "application/json",
	}
	contents := []*genai.Content{genai.NewContentFromText(user, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", cwerrors.Transient("oracle.invoke", "gemini", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", cwerrors.Malformed("oracle.invoke", errors.New("gemini returned no text"))
	}
	return text, nil
}
