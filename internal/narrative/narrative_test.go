package narrative

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestStaticGeneratorNarrate(t *testing.T) {
	g := NewStaticGenerator()
	g.pick = func(n int) int { return 0 }

	before, err := g.Narrate(context.Background(), "Maren", "Wren", MomentBefore)
	if err != nil {
		t.Fatalf("Narrate failed: %v", err)
	}
	if !strings.Contains(before, "Maren") || !strings.Contains(before, "Wren") {
		t.Errorf("narration should name both parties: %q", before)
	}

	after, err := g.Narrate(context.Background(), "Maren", "Wren", MomentAfter)
	if err != nil {
		t.Fatalf("Narrate failed: %v", err)
	}
	if after == before {
		t.Error("before and after moments should use different pools")
	}
}

type failingGenerator struct{}

func (failingGenerator) Narrate(ctx context.Context, healerName, characterName string, moment Moment) (string, error) {
	return "", errors.New("model unavailable")
}

func TestFallbackNarrate(t *testing.T) {
	text := FallbackNarrate(context.Background(), failingGenerator{}, "Maren", "Wren", MomentBefore)
	if text == "" {
		t.Fatal("fallback must always produce text")
	}
	if !strings.Contains(text, "Wren") {
		t.Errorf("fallback narration should name the character: %q", text)
	}
}

func TestFallbackNarrateNilGenerator(t *testing.T) {
	if text := FallbackNarrate(context.Background(), nil, "Maren", "Wren", MomentAfter); text == "" {
		t.Fatal("nil generator must still fall back to the static pool")
	}
}
