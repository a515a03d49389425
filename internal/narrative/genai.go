// Package narrative provides the OpenAI-backed narration generator.
package narrative

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// chatService defines the minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Opts holds configuration for the GenAI generator.
type Opts struct {
	APIKey string
}

// Option configures the GenAI generator.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// GenAIGenerator produces healer narration through the OpenAI chat API.
type GenAIGenerator struct {
	chat chatService
}

// NewGenAIGenerator initializes an OpenAI-backed generator. The API key
// comes from options or the OPENAI_API_KEY environment variable.
func NewGenAIGenerator(opts ...Option) (*GenAIGenerator, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	client := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &GenAIGenerator{chat: &client.Chat.Completions}, nil
}

const systemPrompt = "You narrate short fantasy vignettes for a village healer " +
	"treating a character sick with a corrupting blight. Answer with one or two " +
	"sentences of in-world prose, no preamble, no quotes around the whole text."

// Narrate generates narration for the given moment.
func (g *GenAIGenerator) Narrate(ctx context.Context, healerName, characterName string, moment Moment) (string, error) {
	beat := "greets the patient and names the price of the cure"
	if moment == MomentAfter {
		beat = "finishes the cure and sends the patient on their way"
	}
	userPrompt := fmt.Sprintf("The healer %s %s. The patient is named %s.", healerName, beat, characterName)

	resp, err := g.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModelGPT4oMini,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		slog.Error("GenAIGenerator Narrate failed", "error", err, "healer", healerName)
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
