package healing

import (
	"context"
	"testing"

	"github.com/mossvale/blight/internal/models"
	"github.com/mossvale/blight/internal/narrative"
)

func TestCategoryPermitted(t *testing.T) {
	tests := []struct {
		stage    int
		category Category
		want     bool
	}{
		{1, CategorySage, true},
		{1, CategoryOracle, true},
		{1, CategoryDragon, true},
		{2, CategorySage, true},
		{3, CategorySage, false},
		{3, CategoryOracle, true},
		{3, CategoryDragon, true},
		{4, CategorySage, false},
		{4, CategoryOracle, false},
		{4, CategoryDragon, true},
		{5, CategorySage, false},
		{5, CategoryOracle, false},
		{5, CategoryDragon, true},
		{0, CategoryDragon, false},
		{6, CategoryDragon, false},
	}

	for _, tt := range tests {
		if got := CategoryPermitted(tt.stage, tt.category); got != tt.want {
			t.Errorf("CategoryPermitted(%d, %s) = %v, want %v", tt.stage, tt.category, got, tt.want)
		}
	}
}

func TestDirectoryLookupCaseInsensitive(t *testing.T) {
	dir := DefaultDirectory(narrative.NewStaticGenerator())

	for _, name := range []string{"Maren", "maren", "MAREN"} {
		h, ok := dir.Lookup(name)
		if !ok {
			t.Fatalf("Lookup(%q) should find the healer", name)
		}
		if h.Name() != "Maren" {
			t.Errorf("Lookup(%q) returned %q", name, h.Name())
		}
	}

	if _, ok := dir.Lookup("nobody"); ok {
		t.Error("Lookup of an unknown name should fail")
	}
}

func TestDefaultDirectoryCoversEveryVillageAndTier(t *testing.T) {
	dir := DefaultDirectory(narrative.NewStaticGenerator())

	dragons := map[string]bool{}
	for _, h := range dir.All() {
		if h.Category() == CategoryDragon {
			dragons[h.Village()] = true
		}
	}
	if len(dragons) == 0 {
		t.Fatal("the roster needs at least one dragon")
	}
}

func TestStaticHealerGenerateRequirement(t *testing.T) {
	pool := []models.HealingRequirement{
		{Type: models.RequirementArt, Description: "first"},
		{Type: models.RequirementWriting, Description: "second"},
	}
	h := NewStaticHealer("Test", "Emberfall", CategorySage, pool, narrative.NewStaticGenerator())
	h.pick = func(n int) int { return 1 }

	req := h.GenerateRequirement("Wren")
	if req.Description != "second" {
		t.Errorf("GenerateRequirement picked %q, want %q", req.Description, "second")
	}
	if err := req.Validate(); err != nil {
		t.Errorf("generated requirement should be valid: %v", err)
	}
}

func TestStaticHealerNarration(t *testing.T) {
	h := NewStaticHealer("Test", "Emberfall", CategorySage, nil, narrative.NewStaticGenerator())

	before := h.NarrateBefore(context.Background(), "Wren")
	after := h.NarrateAfter(context.Background(), "Wren")
	if before == "" || after == "" {
		t.Error("narration must never be empty")
	}
}
