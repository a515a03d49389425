// Package narrative produces healer flavor text for healing encounters.
//
// The engine treats narration as an opaque text producer: a static template
// pool by default, optionally an OpenAI-backed generator for richer copy.
package narrative

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
)

// Moment identifies which beat of the encounter is being narrated.
type Moment string

const (
	// MomentBefore is spoken when the healer accepts a healing request.
	MomentBefore Moment = "before"
	// MomentAfter is spoken when the cure lands.
	MomentAfter Moment = "after"
)

// Generator produces narration for a healer/character pair. Implementations
// must be safe for concurrent use.
type Generator interface {
	Narrate(ctx context.Context, healerName, characterName string, moment Moment) (string, error)
}

// StaticGenerator cycles through a fixed template pool. It is the default
// generator and the fallback when no API key is configured.
type StaticGenerator struct {
	pick func(n int) int
}

// NewStaticGenerator creates a template-pool generator.
func NewStaticGenerator() *StaticGenerator {
	return &StaticGenerator{pick: rand.IntN}
}

var beforeTemplates = []string{
	"%[1]s studies %[2]s carefully. \"The blight runs deep, but it has not won yet. Bring me what I ask and we will drive it out.\"",
	"%[1]s lays a hand over the darkened veins. \"You came in time, %[2]s. Do as I say and you will see the morning.\"",
	"\"Sit still,\" %[1]s murmurs, tracing the marks on %[2]s's skin. \"This will take a price, but it can be undone.\"",
}

var afterTemplates = []string{
	"%[1]s steps back as the last of the corruption drains away. \"It is done. Walk carefully, %[2]s. The blight remembers.\"",
	"A long breath leaves %[2]s as the color returns. %[1]s nods once. \"You are free of it.\"",
	"%[1]s wipes their hands clean. \"The sickness is gone, %[2]s. Do not make me do that twice.\"",
}

// Narrate renders a template for the given moment.
func (g *StaticGenerator) Narrate(ctx context.Context, healerName, characterName string, moment Moment) (string, error) {
	pool := beforeTemplates
	if moment == MomentAfter {
		pool = afterTemplates
	}
	tmpl := pool[g.pick(len(pool))]
	return fmt.Sprintf(tmpl, healerName, characterName), nil
}

// FallbackNarrate wraps a generator call with the static fallback so callers
// always get usable text; narration is flavor, never a failure path.
func FallbackNarrate(ctx context.Context, g Generator, healerName, characterName string, moment Moment) string {
	if g != nil {
		text, err := g.Narrate(ctx, healerName, characterName, moment)
		if err == nil && text != "" {
			return text
		}
		if err != nil {
			slog.Warn("narrative generation failed, using static fallback", "error", err, "healer", healerName)
		}
	}
	text, _ := NewStaticGenerator().Narrate(ctx, healerName, characterName, moment)
	return text
}
