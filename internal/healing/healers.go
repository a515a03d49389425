// Package healing implements the healer directory and the healing
// request/fulfillment workflow that resolves a character's blight.
package healing

import (
	"context"
	"math/rand/v2"
	"strings"

	"github.com/mossvale/blight/internal/models"
	"github.com/mossvale/blight/internal/narrative"
)

// Category ranks a healer's power. Higher blight stages demand rarer
// categories.
type Category string

const (
	// CategorySage is the common village healer tier.
	CategorySage Category = "Sage"
	// CategoryOracle can treat deeper infections.
	CategoryOracle Category = "Oracle"
	// CategoryDragon is the only tier that can face the terminal stage.
	CategoryDragon Category = "Dragon"
)

// CategoryPermitted reports whether a healer category may treat the given
// blight stage. Stages 1-2 accept any category, stage 3 excludes Sages,
// stage 4 and the terminal stage are Dragon-only.
func CategoryPermitted(stage int, c Category) bool {
	switch stage {
	case 1, 2:
		return c == CategorySage || c == CategoryOracle || c == CategoryDragon
	case 3:
		return c == CategoryOracle || c == CategoryDragon
	case 4, 5:
		return c == CategoryDragon
	default:
		return false
	}
}

// Healer is the capability contract the workflow consumes. Requirement
// generation and narration are black boxes; the workflow owns only the
// permission policy.
type Healer interface {
	Name() string
	Village() string
	Category() Category
	GenerateRequirement(characterName string) models.HealingRequirement
	NarrateBefore(ctx context.Context, characterName string) string
	NarrateAfter(ctx context.Context, characterName string) string
}

// Directory is a read-only lookup of healer identities.
type Directory interface {
	// Lookup finds a healer by name (case-insensitive).
	Lookup(name string) (Healer, bool)
	// All returns every configured healer.
	All() []Healer
}

// StaticHealer is a configured healer backed by a fixed requirement pool and
// a narration generator.
type StaticHealer struct {
	name         string
	village      string
	category     Category
	requirements []models.HealingRequirement
	narrator     narrative.Generator
	pick         func(n int) int
}

// NewStaticHealer creates a healer with the given requirement pool.
func NewStaticHealer(name, village string, category Category, requirements []models.HealingRequirement, narrator narrative.Generator) *StaticHealer {
	return &StaticHealer{
		name:         name,
		village:      village,
		category:     category,
		requirements: requirements,
		narrator:     narrator,
		pick:         rand.IntN,
	}
}

func (h *StaticHealer) Name() string       { return h.name }
func (h *StaticHealer) Village() string    { return h.village }
func (h *StaticHealer) Category() Category { return h.category }

// GenerateRequirement draws uniformly from the healer's configured options.
func (h *StaticHealer) GenerateRequirement(characterName string) models.HealingRequirement {
	return h.requirements[h.pick(len(h.requirements))]
}

// NarrateBefore produces the pre-heal flavor text.
func (h *StaticHealer) NarrateBefore(ctx context.Context, characterName string) string {
	return narrative.FallbackNarrate(ctx, h.narrator, h.name, characterName, narrative.MomentBefore)
}

// NarrateAfter produces the post-heal flavor text.
func (h *StaticHealer) NarrateAfter(ctx context.Context, characterName string) string {
	return narrative.FallbackNarrate(ctx, h.narrator, h.name, characterName, narrative.MomentAfter)
}

// StaticDirectory serves a fixed set of healers.
type StaticDirectory struct {
	healers []Healer
}

// NewStaticDirectory creates a directory over the given healers.
func NewStaticDirectory(healers ...Healer) *StaticDirectory {
	return &StaticDirectory{healers: healers}
}

func (d *StaticDirectory) Lookup(name string) (Healer, bool) {
	for _, h := range d.healers {
		if strings.EqualFold(h.Name(), name) {
			return h, true
		}
	}
	return nil, false
}

func (d *StaticDirectory) All() []Healer {
	out := make([]Healer, len(d.healers))
	copy(out, d.healers)
	return out
}

// DefaultDirectory returns the stock healer roster, one tier per village
// plus the dragons that can face the terminal stage.
func DefaultDirectory(narrator narrative.Generator) *StaticDirectory {
	item := func(desc string, alts ...models.ItemAlternative) models.HealingRequirement {
		return models.HealingRequirement{Type: models.RequirementItem, Description: desc, Items: alts}
	}
	art := func(desc string) models.HealingRequirement {
		return models.HealingRequirement{Type: models.RequirementArt, Description: desc}
	}
	writing := func(desc string) models.HealingRequirement {
		return models.HealingRequirement{Type: models.RequirementWriting, Description: desc}
	}

	return NewStaticDirectory(
		NewStaticHealer("Maren", "Emberfall", CategorySage, []models.HealingRequirement{
			item("Gather the herbs Maren needs for a cleansing poultice.",
				models.ItemAlternative{ItemName: "Silent Princess", Quantity: 2, Emoji: "🌸"},
				models.ItemAlternative{ItemName: "Blue Nightshade", Quantity: 5, Emoji: "🌿"}),
			writing("Write the story of how the blight found you, so others may avoid it."),
		}, narrator),
		NewStaticHealer("Odell", "Mistlake", CategorySage, []models.HealingRequirement{
			item("Bring Odell fresh catch to brew a restorative broth.",
				models.ItemAlternative{ItemName: "Staminoka Bass", Quantity: 3, Emoji: "🐟"},
				models.ItemAlternative{ItemName: "Bright-Eyed Crab", Quantity: 4, Emoji: "🦀"}),
			art("Paint the lake at dawn as an offering of calm."),
		}, narrator),
		NewStaticHealer("Petra", "Thornwood", CategoryOracle, []models.HealingRequirement{
			item("Petra asks for tokens of the deep forest.",
				models.ItemAlternative{ItemName: "Ancient Core", Quantity: 1, Emoji: "⚙️"},
				models.ItemAlternative{ItemName: "Razorclaw", Quantity: 6, Emoji: "🪓"}),
			writing("Record a week of fevered dreams for Petra's archive."),
		}, narrator),
		NewStaticHealer("Isolde", "Emberfall", CategoryOracle, []models.HealingRequirement{
			art("Draw the face the blight shows you when you sleep."),
			item("Fetch embersalt from the caldera for Isolde's ritual.",
				models.ItemAlternative{ItemName: "Embersalt", Quantity: 8, Emoji: "🔥"}),
		}, narrator),
		NewStaticHealer("Vharen", "Mistlake", CategoryDragon, []models.HealingRequirement{
			item("Vharen demands a tribute worthy of a dragon.",
				models.ItemAlternative{ItemName: "Diamond", Quantity: 1, Emoji: "💎"},
				models.ItemAlternative{ItemName: "Star Fragment", Quantity: 1, Emoji: "⭐"}),
			art("Carve Vharen's likeness into something that will outlast you."),
		}, narrator),
		NewStaticHealer("Korvassa", "Thornwood", CategoryDragon, []models.HealingRequirement{
			item("Korvassa will burn out the blight for the right price.",
				models.ItemAlternative{ItemName: "Dinraal's Scale", Quantity: 1, Emoji: "🐉"},
				models.ItemAlternative{ItemName: "Amber", Quantity: 10, Emoji: "🟠"}),
			writing("Compose the account of your survival for Korvassa's hoard of stories."),
		}, narrator),
	)
}
