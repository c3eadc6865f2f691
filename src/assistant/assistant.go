// Package assistant is the conversational session that screen text is
// delivered into. Each delivery is sent as a user turn to an
// OpenAI-compatible chat endpoint (OpenRouter by default) and the reply is
// handed to a callback.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"screen-ocr-assist/src/logutil"
)

const (
	DefaultSystemPrompt = "You are a helpful assistant. The user shares text captured from their screen. " +
		"Use it as context and answer briefly."
	DefaultMaxHistory = 20
	maxRetries        = 2
	requestTimeout    = 60 * time.Second
)

var (
	ErrMissingAPIKey = errors.New("API key is required")
	ErrMissingModel  = errors.New("model is required")
	ErrEmptyReply    = errors.New("no choices in API response")
)

type Config struct {
	APIKey       string
	Model        string
	BaseURL      string
	Providers    []string
	SystemPrompt string
	// MaxHistory bounds the number of user and assistant turns kept.
	MaxHistory int
}

// ReplyFunc receives each assistant reply. It runs on the delivering goroutine.
type ReplyFunc func(reply string)

// Session keeps a bounded conversation and forwards new input to the model.
type Session struct {
	client  openai.Client
	model   string
	system  string
	maxHist int
	onReply ReplyFunc

	mu      sync.Mutex
	history []openai.ChatCompletionMessageParamUnion
}

func New(cfg Config, onReply ReplyFunc) (*Session, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		return nil, ErrMissingModel
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(maxRetries),
		option.WithRequestTimeout(requestTimeout),
	}
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, option.WithBaseURL(base))
	}
	if len(cfg.Providers) > 0 {
		// OpenRouter routing preferences; pinned providers, no fallbacks.
		opts = append(opts, option.WithJSONSet("provider", map[string]any{
			"order":           cfg.Providers,
			"allow_fallbacks": false,
		}))
	}
	system := cfg.SystemPrompt
	if system == "" {
		system = DefaultSystemPrompt
	}
	maxHist := cfg.MaxHistory
	if maxHist <= 0 {
		maxHist = DefaultMaxHistory
	}
	log.Printf("Assistant: session ready (model=%s, key=%s)", cfg.Model, logutil.RedactKey(cfg.APIKey))
	return &Session{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		system:  system,
		maxHist: maxHist,
		onReply: onReply,
	}, nil
}

// SendRealtimeInput appends text as a user turn, waits for the reply and
// records both. A failed request leaves the history unchanged.
func (s *Session) SendRealtimeInput(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(s.history)+2)
	messages = append(messages, openai.SystemMessage(s.system))
	messages = append(messages, s.history...)
	messages = append(messages, openai.UserMessage(text))

	completion, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       s.model,
		Temperature: openai.Float(0.2),
	})
	if err != nil {
		return fmt.Errorf("assistant request failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return ErrEmptyReply
	}
	reply := strings.TrimSpace(completion.Choices[0].Message.Content)

	s.history = append(s.history, openai.UserMessage(text), openai.AssistantMessage(reply))
	if over := len(s.history) - s.maxHist; over > 0 {
		// drop whole user/assistant pairs
		if over%2 == 1 {
			over++
		}
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
	log.Printf("Assistant: reply %q", logutil.SanitizeForLogging(reply))

	if s.onReply != nil && reply != "" {
		s.onReply(reply)
	}
	return nil
}

// Turns reports how many user and assistant messages are retained.
func (s *Session) Turns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// Reset forgets the conversation.
func (s *Session) Reset() {
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
}
