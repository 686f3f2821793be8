package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIConfig configures the real, network-calling client.
type OpenAIConfig struct {
	Model    string
	BaseURL  string
	APIToken string
	Timeout  time.Duration
	ForceJSON bool
}

// OpenAIClient calls a hosted chat-completions-compatible endpoint via
// langchaingo. It is the same construction pattern the teacher pipeline
// used for its inference models, generalized to the two calling
// conventions this pipeline needs.
type OpenAIClient struct {
	llm     llms.Model
	timeout time.Duration
	force   bool
}

// NewOpenAIClient builds an OpenAIClient from cfg.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(cfg.APIToken),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("llmclient: create openai model: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIClient{llm: model, timeout: timeout, force: cfg.ForceJSON}, nil
}

func (c *OpenAIClient) Name() string { return "openai" }

// GenerateText implements Client.
func (c *OpenAIClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	text, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return "", &TimeoutError{Err: err}
		}
		return "", fmt.Errorf("llmclient: generate text: %w", err)
	}
	return text, nil
}

// GenerateJSON implements Client. It asks the model to respond with a
// single JSON object and falls back to scanning for the first balanced
// {...} block if the response isn't directly parseable, mirroring the
// teacher's JSON-extraction fallback.
func (c *OpenAIClient) GenerateJSON(ctx context.Context, prompt string) (map[string]any, error) {
	if c.force {
		prompt = prompt + "\n\nRespond with a single JSON object and nothing else."
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	text, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &TimeoutError{Err: err}
		}
		return nil, fmt.Errorf("llmclient: generate json: %w", err)
	}

	obj, err := decodeJSONObject(text)
	if err != nil {
		return nil, &MalformedJSONError{Raw: text, Err: err}
	}
	return obj, nil
}

// decodeJSONObject first tries a direct decode, then falls back to
// scanning the text for the first balanced {...} block.
func decodeJSONObject(text string) (map[string]any, error) {
	trimmed := strings.TrimSpace(text)
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
		return obj, nil
	}
	block, ok := extractBalancedBraces(trimmed)
	if !ok {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	if err := json.Unmarshal([]byte(block), &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func extractBalancedBraces(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if ch == '\\' {
				escaped = true
			} else if ch == '"' {
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
