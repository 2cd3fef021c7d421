package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Config selects and configures one model tier.
type Config struct {
	Provider  string // openai (default) or anthropic
	Endpoint  string // base URL; required for openai-compatible endpoints
	Model     string
	APIKey    string // may be empty for local endpoints
	Tier      string // primary or secondary; used in logs
	MaxTokens int    // completion cap; provider default when zero
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	client    *openai.Client
	endpoint  string
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewClient creates a client for an OpenAI-compatible endpoint.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")

	return &Client{
		client:    openai.NewClientWithConfig(clientConfig),
		endpoint:  cfg.Endpoint,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    logger.Named("llm").With(zap.String("tier", cfg.Tier), zap.String("provider", ProviderOpenAI)),
	}, nil
}

func (c *Client) GenerateResponse(ctx context.Context, prompt, systemMessage string, temperature float64) (*GenerateResponseResult, error) {
	call := startCall(c.logger, c.model, prompt, temperature)

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemMessage},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(temperature),
	}
	if c.maxTokens > 0 {
		req.MaxTokens = c.maxTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, call.failed(withContext(ClassifyError(err), c.model, c.endpoint))
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, call.failed(NewErrorWithContext(ErrorTypeEmpty, "no content in response", true, nil, c.model, c.endpoint, 0))
	}

	return call.completed(&GenerateResponseResult{
		Content:          resp.Choices[0].Message.Content,
		Model:            firstNonEmpty(resp.Model, c.model),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}), nil
}

func (c *Client) GetModel() string    { return c.model }
func (c *Client) GetEndpoint() string { return c.endpoint }

// call logs one model request from start to outcome.
type call struct {
	logger *zap.Logger
	start  time.Time
}

func startCall(logger *zap.Logger, model, prompt string, temperature float64) *call {
	logger.Debug("LLM request",
		zap.String("model", model),
		zap.Int("prompt_len", len(prompt)),
		zap.Float64("temperature", temperature))
	return &call{logger: logger, start: time.Now()}
}

func (c *call) failed(err *Error) error {
	c.logger.Warn("LLM request failed",
		zap.String("error_type", string(err.Type)),
		zap.Duration("elapsed", time.Since(c.start)),
		zap.Error(err))
	return err
}

func (c *call) completed(res *GenerateResponseResult) *GenerateResponseResult {
	res.Elapsed = time.Since(c.start)
	c.logger.Info("LLM request completed",
		zap.String("model", res.Model),
		zap.Int("prompt_tokens", res.PromptTokens),
		zap.Int("completion_tokens", res.CompletionTokens),
		zap.Duration("elapsed", res.Elapsed))
	return res
}

// withContext fills in the model and endpoint when classification left them empty.
func withContext(e *Error, model, endpoint string) *Error {
	if e.Model == "" {
		e.Model = model
	}
	if e.Endpoint == "" {
		e.Endpoint = endpoint
	}
	return e
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
