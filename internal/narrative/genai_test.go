package narrative

import (
	"context"
	"errors"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type mockChatService struct {
	lastParams openai.ChatCompletionNewParams
	reply      string
	err        error
}

func (m *mockChatService) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.lastParams = params
	if m.err != nil {
		return nil, m.err
	}
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: m.reply}},
		},
	}, nil
}

func TestNewGenAIGeneratorRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewGenAIGenerator(); err == nil {
		t.Fatal("expected an error without an API key")
	}

	if _, err := NewGenAIGenerator(WithAPIKey("test-key")); err != nil {
		t.Fatalf("NewGenAIGenerator with key failed: %v", err)
	}
}

func TestGenAINarrate(t *testing.T) {
	mock := &mockChatService{reply: "The healer hums over the wound."}
	g := &GenAIGenerator{chat: mock}

	text, err := g.Narrate(context.Background(), "Petra", "Wren", MomentBefore)
	if err != nil {
		t.Fatalf("Narrate failed: %v", err)
	}
	if text != mock.reply {
		t.Errorf("Narrate = %q, want %q", text, mock.reply)
	}

	if len(mock.lastParams.Messages) != 2 {
		t.Fatalf("expected system and user messages, got %d", len(mock.lastParams.Messages))
	}
	if mock.lastParams.Model != openai.ChatModelGPT4oMini {
		t.Errorf("model = %q, want %q", mock.lastParams.Model, openai.ChatModelGPT4oMini)
	}
}

func TestGenAINarrateError(t *testing.T) {
	mock := &mockChatService{err: errors.New("rate limited")}
	g := &GenAIGenerator{chat: mock}

	if _, err := g.Narrate(context.Background(), "Petra", "Wren", MomentAfter); err == nil {
		t.Fatal("expected the transport error to surface")
	}
}

func TestGenAINarrateEmptyChoices(t *testing.T) {
	empty := &emptyChatService{}
	g := &GenAIGenerator{chat: empty}

	if _, err := g.Narrate(context.Background(), "Petra", "Wren", MomentAfter); err == nil {
		t.Fatal("expected an error when the model returns no choices")
	}
}

type emptyChatService struct{}

func (emptyChatService) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	return &openai.ChatCompletion{}, nil
}
