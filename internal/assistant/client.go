// Package assistant answers questions about the current event snapshot with
// a chat model and recovers the structured part of its replies.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	appLog "campusmap/internal/log"
	"campusmap/internal/model"
)

var (
	ErrNotConfigured = errors.New("assistant is not configured")
	ErrNoQuestion    = errors.New("conversation has no user message")
	ErrProvider      = errors.New("assistant provider failed")
)

// Config holds the model connection and prompt sizing.
type Config struct {
	BaseURL           string
	APIKey            string
	Model             string
	MaxTokens         int
	Temperature       float32
	MaxContextTokens  int
	OutputReserve     int
	RequestsPerSecond float64
	// Location anchors "today" in the prompt.
	Location *time.Location
}

// Message is one conversation turn. Role is "user" or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Reply is the model's answer. Structured is nil when the reply could not
// be read as the structured shape; Message always holds the raw text.
type Reply struct {
	Message    string                   `json:"message"`
	Structured *model.AssistantResponse `json:"structured"`
}

type completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	api     completer
	cfg     Config
	limiter *rate.Limiter
	budget  Budget
	now     func() time.Time
}

// New builds a client. counter sizes the event snapshot; nil disables
// trimming.
func New(cfg Config, counter Counter) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return newClient(openai.NewClientWithConfig(oc), cfg, counter), nil
}

func newClient(api completer, cfg Config, counter Counter) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		api:     api,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		budget: Budget{
			Counter:   counter,
			MaxTokens: cfg.MaxContextTokens,
			Reserve:   cfg.OutputReserve,
		},
		now: time.Now,
	}
}

// Ask sends the conversation with a system prompt describing events and
// returns the model's reply.
func (c *Client) Ask(ctx context.Context, events []model.Event, history []Message) (Reply, error) {
	turns := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	hasQuestion := false
	conversation := make([]string, 0, len(history))
	for _, m := range history {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		var role string
		switch strings.ToLower(m.Role) {
		case "user":
			role = openai.ChatMessageRoleUser
			hasQuestion = true
		case "assistant":
			role = openai.ChatMessageRoleAssistant
		default:
			continue
		}
		turns = append(turns, openai.ChatCompletionMessage{Role: role, Content: content})
		conversation = append(conversation, content)
	}
	if !hasQuestion {
		return Reply{}, ErrNoQuestion
	}

	header := SystemPrompt(c.now(), c.cfg.Location, "")
	snapshot, omitted := Snapshot(events, c.budget, header+strings.Join(conversation, "\n"))
	if omitted > 0 {
		appLog.Warn("event snapshot trimmed to token budget", "omitted", omitted, "total", len(events))
	}

	req := openai.ChatCompletionRequest{
		Model:          c.cfg.Model,
		MaxTokens:      c.cfg.MaxTokens,
		Temperature:    c.cfg.Temperature,
		ResponseFormat: ResponseFormat(),
		Messages: append([]openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleSystem,
			Content: SystemPrompt(c.now(), c.cfg.Location, snapshot),
		}}, turns...),
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Reply{}, err
	}

	resp, err := retry.DoWithData(
		func() (openai.ChatCompletionResponse, error) {
			resp, err := c.api.CreateChatCompletion(ctx, req)
			if err != nil {
				return resp, err
			}
			if len(resp.Choices) == 0 {
				return resp, errors.New("no choices in completion")
			}
			return resp, nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			appLog.Warn("assistant request failed; retrying", "attempt", n+1, "err", err)
		}),
	)
	if err != nil {
		appLog.Error("assistant request failed", err, "model", c.cfg.Model)
		return Reply{}, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	content := resp.Choices[0].Message.Content
	structured := Parse(content)
	if structured == nil {
		appLog.Warn("assistant reply had no structured part", "length", len(content))
	}
	return Reply{Message: content, Structured: structured}, nil
}

// retryable skips client errors other than rate limiting.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
