// Package completion wraps the remote text-completion backend behind a
// small interface. The backend is opaque: ordered messages in, one text
// reply out. Every transport, status, or timeout failure surfaces as
// chat.ErrUpstream.
package completion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"github.com/verassium/internal/chat"
)

// Client is the completion collaborator consumed by the session
// coordinator.
type Client interface {
	Complete(ctx context.Context, modelID string, msgs []chat.PromptMessage) (string, error)
}

// Options configures a GroqClient.
type Options struct {
	APIKey  string
	BaseURL string        // openai-compatible endpoint, default Groq
	Timeout time.Duration // per-call ceiling, default 60s
	// RequestsPerMinute caps outbound calls across all conversations.
	// Zero disables the limiter.
	RequestsPerMinute int
}

const defaultBaseURL = "https://api.groq.com/openai/v1"

// GroqClient talks to Groq's openai-compatible completion endpoint via
// langchaingo.
type GroqClient struct {
	llm     llms.Model
	timeout time.Duration
	limiter *rate.Limiter
}

// NewGroqClient creates a completion client for the configured endpoint.
func NewGroqClient(opts Options) (*GroqClient, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("completion api key is required")
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	llm, err := openai.New(
		openai.WithToken(opts.APIKey),
		openai.WithBaseURL(baseURL),
		openai.WithModel(DefaultModel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create completion backend client: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	var limiter *rate.Limiter
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), opts.RequestsPerMinute)
	}

	return &GroqClient{llm: llm, timeout: timeout, limiter: limiter}, nil
}

// Complete sends the ordered context window to the backend and returns
// the assistant text. No transparent retry happens here; a failed call
// is reported once and the caller decides what to do.
func (c *GroqClient) Complete(ctx context.Context, modelID string, msgs []chat.PromptMessage) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: rate limiter wait: %v", chat.ErrUpstream, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	content := make([]llms.MessageContent, 0, len(msgs))
	for _, msg := range msgs {
		content = append(content, llms.TextParts(messageType(msg.Role), msg.Content))
	}

	started := time.Now()
	resp, err := c.llm.GenerateContent(ctx, content,
		llms.WithModel(modelID),
		llms.WithTemperature(0.7),
		llms.WithMaxTokens(maxTokensFor(modelID)),
	)
	if err != nil {
		log.Error().Err(err).
			Str("model", modelID).
			Dur("elapsed", time.Since(started)).
			Msg("Completion call failed")
		return "", fmt.Errorf("%w: %v", chat.ErrUpstream, err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", fmt.Errorf("%w: backend returned no content", chat.ErrUpstream)
	}

	log.Debug().
		Str("model", modelID).
		Int("window_size", len(msgs)).
		Dur("elapsed", time.Since(started)).
		Msg("Completion call succeeded")

	return resp.Choices[0].Content, nil
}

func messageType(role string) llms.ChatMessageType {
	switch role {
	case "system":
		return llms.ChatMessageTypeSystem
	case string(chat.RoleAssistant):
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// maxTokensFor mirrors the reply budget the service has always used:
// mixtral-class models get a bigger ceiling.
func maxTokensFor(modelID string) int {
	if strings.Contains(modelID, "mixtral") {
		return 2048
	}
	return 1024
}
