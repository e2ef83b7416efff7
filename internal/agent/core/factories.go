package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mohammad-safakhou/sentiscope/config"
	"github.com/mohammad-safakhou/sentiscope/internal/apperr"
)

// NewLLMProvider creates the LLM provider named by configuration
func NewLLMProvider(cfg config.LLMConfig, budget Budget, policy RetryPolicy) (LLMProvider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(cfg, budget, policy)
	default:
		return nil, fmt.Errorf("unsupported LLM provider type: %s", cfg.Provider)
	}
}

// OpenAIProvider implements LLMProvider on the Chat Completions API
type OpenAIProvider struct {
	client    *openai.Client
	model     string
	maxTokens int
	budget    Budget
	policy    RetryPolicy
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(cfg config.LLMConfig, budget Budget, policy RetryPolicy) (*OpenAIProvider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key not configured")
	}
	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}
	if budget == nil {
		budget = Unlimited{}
	}
	return &OpenAIProvider{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Routing.Fallback,
		maxTokens: cfg.MaxTokens,
		budget:    budget,
		policy:    policy,
	}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Complete sends one prompt, retrying transient failures.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}
	// the client drops a zero temperature as an omitted field, which the API reads as 1
	temperature := float32(req.Temperature)
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	apiReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	if req.JSON {
		apiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var out Completion
	err := Retry(ctx, p.policy, func(ctx context.Context) error {
		if err := p.budget.Take(ctx, p.Name()); err != nil {
			return err
		}
		resp, err := p.client.CreateChatCompletion(ctx, apiReq)
		if err != nil {
			return p.classify(err)
		}
		if len(resp.Choices) == 0 {
			return &apperr.UpstreamError{Provider: p.Name(), Op: "chat", Err: errors.New("no choices")}
		}
		out = Completion{
			Text:             resp.Choices[0].Message.Content,
			Model:            resp.Model,
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		}
		return nil
	}, nil)
	return out, err
}

func (p *OpenAIProvider) classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == http.StatusTooManyRequests {
		return &apperr.RateLimitError{Provider: p.Name()}
	}
	return &apperr.UpstreamError{Provider: p.Name(), Op: "chat", Status: status, Err: err}
}

// ExtractJSON finds the first top-level JSON object in an LLM answer,
// tolerating code fences and surrounding prose.
func ExtractJSON(s string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i, ch := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return strings.TrimSpace(s)
}

// DecodeJSON extracts and unmarshals the JSON object in an LLM answer.
func DecodeJSON(text string, out any) error {
	if err := json.Unmarshal([]byte(ExtractJSON(text)), out); err != nil {
		return fmt.Errorf("decode llm json: %w", err)
	}
	return nil
}
