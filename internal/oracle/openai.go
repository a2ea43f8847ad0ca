package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	cwerrors "github.com/rooney011/CodeWeaver/internal/errors"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

// Base URLs for OpenAI-compatible providers.
const (
	GroqBaseURL     = "https://api.groq.com/openai/v1"
	DeepSeekBaseURL = "https://api.deepseek.com/v1"
)

// OpenAIOracle calls any OpenAI-compatible chat completion API.
type OpenAIOracle struct {
	client   *openai.Client
	model    string
	provider string
}

// NewOpenAIOracle creates an Oracle for provider. An empty baseURL uses the
// provider's public endpoint.
func NewOpenAIOracle(provider, apiKey, model, baseURL string) (*OpenAIOracle, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%s API key is required", provider)
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("%s model is required", provider)
	}

	cfg := openai.DefaultConfig(apiKey)
	switch {
	case baseURL != "":
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	case provider == "groq":
		cfg.BaseURL = GroqBaseURL
	case provider == "deepseek":
		cfg.BaseURL = DeepSeekBaseURL
	}

	return &OpenAIOracle{
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		provider: provider,
	}, nil
}

// Name returns the provider name.
func (o *OpenAIOracle) Name() string {
	return o.provider
}

// Invoke sends one system and one user message at temperature 0.
func (o *OpenAIOracle) Invoke(ctx context.Context, system, user string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0,
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", cwerrors.Transient("oracle.invoke", o.provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", cwerrors.Malformed("oracle.invoke", errors.New("provider returned no choices"))
	}

	log.Debug().
		Str("provider", o.provider).
		Str("model", o.model).
		Str("finish_reason", string(resp.Choices[0].FinishReason)).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("Oracle response received")

	return resp.Choices[0].Message.Content, nil
}
