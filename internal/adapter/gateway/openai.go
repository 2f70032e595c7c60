// Package gateway holds the language model adapters: an OpenAI-compatible
// client (OpenAI, OpenRouter, Ollama), a local hash embedder and a rate
// limiting wrapper.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/V4T54L/worksync/internal/domain"
)

// OpenAIConfig configures an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
	Dimensions     int
	Temperature    float64
	MaxTokens      int
	Timeout        time.Duration
	// MaxRetries is the SDK's own retry count. Use cases already retry with
	// their policy, so it is normally left at zero.
	MaxRetries     int
	HTTPClient     *http.Client
}

// OpenAIGateway implements domain.Gateway over the chat completions and
// embeddings endpoints.
type OpenAIGateway struct {
	client openai.Client
	cfg    OpenAIConfig
	logger *slog.Logger
}

func NewOpenAIGateway(cfg OpenAIConfig, logger *slog.Logger) (*OpenAIGateway, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("gateway: model is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &OpenAIGateway{
		client: openai.NewClient(opts...),
		cfg:    cfg,
		logger: logger.With("component", "openai_gateway"),
	}, nil
}

// Complete sends a system and user message and returns the first choice.
// Request fields left zero fall back to the configured defaults.
func (g *OpenAIGateway) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = g.cfg.Model
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = g.cfg.Temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = g.cfg.MaxTokens
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if s := strings.TrimSpace(req.SystemPrompt); s != "" {
		messages = append(messages, openai.SystemMessage(s))
	}
	messages = append(messages, openai.UserMessage(req.UserPrompt))

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(model),
		Messages:    messages,
		Temperature: openai.Float(temperature),
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	completion, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: chat completion: %v", domain.ErrGateway, describe(err))
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%w: chat completion returned no choices", domain.ErrGateway)
	}
	return completion.Choices[0].Message.Content, nil
}

// Embed calls the embeddings endpoint for a single input.
func (g *OpenAIGateway) Embed(ctx context.Context, text string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: embed: empty text", domain.ErrGateway)
	}

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(trimmed)},
		Model: openai.EmbeddingModel(g.cfg.EmbeddingModel),
	}
	if g.cfg.Dimensions > 0 {
		params.Dimensions = openai.Int(int64(g.cfg.Dimensions))
	}

	resp, err := g.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: embeddings: %v", domain.ErrGateway, describe(err))
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: embeddings returned no vector", domain.ErrGateway)
	}

	raw := resp.Data[0].Embedding
	if g.cfg.Dimensions > 0 && len(raw) != g.cfg.Dimensions {
		return nil, fmt.Errorf("%w: embedding dimension: got %d want %d", domain.ErrGateway, len(raw), g.cfg.Dimensions)
	}
	vector := make([]float32, len(raw))
	for i, v := range raw {
		vector[i] = float32(v)
	}
	return vector, nil
}

func describe(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("status %d: %s", apiErr.StatusCode, strings.TrimSpace(apiErr.Message))
	}
	return err
}
