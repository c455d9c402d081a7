// Package translate turns mesh chat messages into a target language using an
// OpenAI-compatible chat completion endpoint.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Config selects the completion endpoint and model. Endpoint may point at
// any OpenAI-compatible server, including a local one.
type Config struct {
	Endpoint       string
	APIKey         string
	Model          string
	TargetLanguage string
	Temperature    float32
	MaxTokens      int
	Timeout        time.Duration
}

// Translator produces length-bounded translations of short chat messages.
type Translator struct {
	client *openai.Client
	cfg    Config
	log    *slog.Logger
}

func New(cfg Config, log *slog.Logger) *Translator {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.TargetLanguage == "" {
		cfg.TargetLanguage = "English"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = cfg.Endpoint
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Translator{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		log:    log,
	}
}

// Translate returns the text translated into the configured target language,
// instructed to fit within maxChars characters. The model's answer is
// whitespace-trimmed but not truncated here; callers enforce the hard limit.
func (t *Translator) Translate(ctx context.Context, text string, maxChars int) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("empty text")
	}

	system := fmt.Sprintf(
		"You translate short packet-radio chat messages into %s. "+
			"Reply with the translation only, no commentary or quotes. "+
			"The translation must fit in %d characters; compress if needed.",
		t.cfg.TargetLanguage, maxChars)

	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       t.cfg.Model,
		Temperature: t.cfg.Temperature,
		MaxTokens:   t.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	t.log.Debug("translated message", "in_len", len(text), "out_len", len(out))
	return out, nil
}
