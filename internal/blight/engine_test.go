package blight

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mossvale/blight/internal/models"
	"github.com/mossvale/blight/internal/store"
)

// fixedNow sits inside the window that opened at 20:00 on March 10.
var fixedNow = time.Date(2026, 3, 10, 22, 0, 0, 0, rollWindowZone)

func newTestEngine(t *testing.T, st store.CharacterStore, draw int) *Engine {
	t.Helper()
	return NewEngine(st,
		WithClock(func() time.Time { return fixedNow }),
		WithDraw(func() int { return draw }),
	)
}

func seedCharacter(t *testing.T, st *store.InMemoryStore, ch models.Character) models.Character {
	t.Helper()
	if ch.ID == "" {
		ch.ID = "char-1"
	}
	if ch.Name == "" {
		ch.Name = "Wren"
	}
	ch.Effects = models.EffectsForStage(ch.BlightStage)
	if err := st.SaveCharacter(ch); err != nil {
		t.Fatalf("SaveCharacter failed: %v", err)
	}
	return ch
}

func mustGet(t *testing.T, st *store.InMemoryStore, id string) *models.Character {
	t.Helper()
	ch, err := st.GetCharacter(id)
	if err != nil {
		t.Fatalf("GetCharacter failed: %v", err)
	}
	if ch == nil {
		t.Fatalf("character %s not found", id)
	}
	return ch
}

func TestTargetStage(t *testing.T) {
	tests := []struct {
		draw   int
		target int
		hit    bool
	}{
		{1, 2, true},
		{25, 2, true},
		{26, 3, true},
		{40, 3, true},
		{41, 4, true},
		{67, 4, true},
		{68, 5, true},
		{100, 5, true},
		{101, 0, false},
		{500, 0, false},
		{1000, 0, false},
	}

	for _, tt := range tests {
		target, hit := targetStage(tt.draw)
		if target != tt.target || hit != tt.hit {
			t.Errorf("targetStage(%d) = (%d, %v), want (%d, %v)", tt.draw, target, hit, tt.target, tt.hit)
		}
	}
}

func TestRollProgresses(t *testing.T) {
	st := store.NewInMemoryStore()
	seedCharacter(t, st, models.Character{Blighted: true, BlightStage: 1})
	eng := newTestEngine(t, st, 30) // band for stage 3

	outcome, err := eng.Roll(context.Background(), "char-1")
	if err != nil {
		t.Fatalf("Roll failed: %v", err)
	}
	if outcome.PreviousStage != 1 || outcome.NewStage != 3 || !outcome.Progressed {
		t.Errorf("unexpected outcome: %+v", outcome)
	}

	ch := mustGet(t, st, "char-1")
	if ch.BlightStage != 3 {
		t.Errorf("stage = %d, want 3", ch.BlightStage)
	}
	if !ch.LastRollDate.Equal(fixedNow) {
		t.Errorf("LastRollDate = %v, want %v", ch.LastRollDate, fixedNow)
	}
	if !ch.Effects.NoMonsters {
		t.Error("stage 3 should disable monster encounters")
	}
	if ch.DeathDeadline != nil {
		t.Error("stage 3 should not arm a death deadline")
	}
}

func TestRollNoProgressionConsumesWindow(t *testing.T) {
	st := store.NewInMemoryStore()
	seedCharacter(t, st, models.Character{Blighted: true, BlightStage: 2})
	eng := newTestEngine(t, st, 500)

	outcome, err := eng.Roll(context.Background(), "char-1")
	if err != nil {
		t.Fatalf("Roll failed: %v", err)
	}
	if outcome.Progressed || outcome.NewStage != 2 {
		t.Errorf("draw of 500 should not progress: %+v", outcome)
	}

	ch := mustGet(t, st, "char-1")
	if !ch.LastRollDate.Equal(fixedNow) {
		t.Error("a no-progression roll must still consume the window")
	}
}

func TestRollNeverDemotes(t *testing.T) {
	st := store.NewInMemoryStore()
	seedCharacter(t, st, models.Character{Blighted: true, BlightStage: 4})
	eng := newTestEngine(t, st, 10) // band for stage 2, below current

	outcome, err := eng.Roll(context.Background(), "char-1")
	if err != nil {
		t.Fatalf("Roll failed: %v", err)
	}
	if outcome.NewStage != 4 || outcome.Progressed {
		t.Errorf("roll into a lower band must clamp to current stage: %+v", outcome)
	}
}

func TestRollIntoTerminalArmsDeadline(t *testing.T) {
	st := store.NewInMemoryStore()
	seedCharacter(t, st, models.Character{Blighted: true, BlightStage: 3})
	eng := newTestEngine(t, st, 80) // band for stage 5

	outcome, err := eng.Roll(context.Background(), "char-1")
	if err != nil {
		t.Fatalf("Roll failed: %v", err)
	}
	if !outcome.DeadlineArmed {
		t.Fatal("entering the terminal stage should arm the death deadline")
	}

	ch := mustGet(t, st, "char-1")
	if ch.DeathDeadline == nil {
		t.Fatal("DeathDeadline not persisted")
	}
	want := fixedNow.Add(DeathDeadlineTTL)
	if !ch.DeathDeadline.Equal(want) {
		t.Errorf("DeathDeadline = %v, want %v", ch.DeathDeadline, want)
	}
	if ch.DeathWarningAt != nil {
		t.Error("arming a fresh deadline must clear the warning marker")
	}
	if !ch.Effects.NoMonsters || !ch.Effects.NoGathering {
		t.Errorf("terminal stage effects wrong: %+v", ch.Effects)
	}
}

func TestRollGuards(t *testing.T) {
	tests := []struct {
		name string
		ch   models.Character
		want error
	}{
		{"not afflicted", models.Character{Blighted: false}, models.ErrNotAfflicted},
		{"paused", models.Character{Blighted: true, BlightStage: 2, BlightPaused: true}, models.ErrBlightPaused},
		{"already rolled", models.Character{Blighted: true, BlightStage: 2, LastRollDate: fixedNow.Add(-time.Hour)}, models.ErrAlreadyRolled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewInMemoryStore()
			seedCharacter(t, st, tt.ch)
			eng := newTestEngine(t, st, 30)

			if _, err := eng.Roll(context.Background(), "char-1"); !errors.Is(err, tt.want) {
				t.Errorf("Roll error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRollUnknownCharacter(t *testing.T) {
	eng := newTestEngine(t, store.NewInMemoryStore(), 30)
	if _, err := eng.Roll(context.Background(), "ghost"); !errors.Is(err, models.ErrCharacterNotFound) {
		t.Errorf("Roll error = %v, want ErrCharacterNotFound", err)
	}
}

func TestRollAllowedInNextWindow(t *testing.T) {
	st := store.NewInMemoryStore()
	// Rolled yesterday's window; today's 20:00 boundary has passed.
	seedCharacter(t, st, models.Character{Blighted: true, BlightStage: 1, LastRollDate: fixedNow.Add(-26 * time.Hour)})
	eng := newTestEngine(t, st, 500)

	if _, err := eng.Roll(context.Background(), "char-1"); err != nil {
		t.Fatalf("roll in a fresh window should be allowed: %v", err)
	}
}

func TestForceAdvance(t *testing.T) {
	st := store.NewInMemoryStore()
	ch := seedCharacter(t, st, models.Character{Blighted: true, BlightStage: 1, LastRollDate: fixedNow.Add(-30 * time.Hour)})
	eng := newTestEngine(t, st, 500)

	updated, armed, err := eng.ForceAdvance(context.Background(), ch)
	if err != nil {
		t.Fatalf("ForceAdvance failed: %v", err)
	}
	if updated.BlightStage != 2 || armed {
		t.Errorf("got stage %d armed=%v, want stage 2 armed=false", updated.BlightStage, armed)
	}

	persisted := mustGet(t, st, "char-1")
	if persisted.BlightStage != 2 {
		t.Errorf("persisted stage = %d, want 2", persisted.BlightStage)
	}
	if !persisted.LastRollDate.Equal(fixedNow) {
		t.Error("forced escalation must consume the roll window")
	}
}

func TestForceAdvanceIntoTerminal(t *testing.T) {
	st := store.NewInMemoryStore()
	ch := seedCharacter(t, st, models.Character{Blighted: true, BlightStage: 4, LastRollDate: fixedNow.Add(-25 * time.Hour)})
	eng := newTestEngine(t, st, 500)

	updated, armed, err := eng.ForceAdvance(context.Background(), ch)
	if err != nil {
		t.Fatalf("ForceAdvance failed: %v", err)
	}
	if updated.BlightStage != models.StageTerminal || !armed {
		t.Errorf("got stage %d armed=%v, want terminal armed=true", updated.BlightStage, armed)
	}
	want := fixedNow.Add(DeathDeadlineTTL)
	if updated.DeathDeadline == nil || !updated.DeathDeadline.Equal(want) {
		t.Errorf("DeathDeadline = %v, want %v", updated.DeathDeadline, want)
	}
}

func TestForceAdvanceAtTerminalIsNoop(t *testing.T) {
	st := store.NewInMemoryStore()
	deadline := fixedNow.Add(time.Hour)
	ch := seedCharacter(t, st, models.Character{Blighted: true, BlightStage: 5, DeathDeadline: &deadline})
	eng := newTestEngine(t, st, 500)

	updated, armed, err := eng.ForceAdvance(context.Background(), ch)
	if err != nil {
		t.Fatalf("ForceAdvance failed: %v", err)
	}
	if updated.BlightStage != 5 || armed {
		t.Errorf("terminal characters must never be re-escalated: stage=%d armed=%v", updated.BlightStage, armed)
	}
}

func TestAfflict(t *testing.T) {
	st := store.NewInMemoryStore()
	seedCharacter(t, st, models.Character{})
	eng := newTestEngine(t, st, 500)

	ch, err := eng.Afflict(context.Background(), "char-1")
	if err != nil {
		t.Fatalf("Afflict failed: %v", err)
	}
	if !ch.Blighted || ch.BlightStage != 1 {
		t.Errorf("got blighted=%v stage=%d, want blighted stage 1", ch.Blighted, ch.BlightStage)
	}
	if ch.Effects.RollMultiplier != 1.0 {
		t.Errorf("stage 1 should have no gather penalty, got %v", ch.Effects.RollMultiplier)
	}

	// Afflicting again is a no-op.
	again, err := eng.Afflict(context.Background(), "char-1")
	if err != nil {
		t.Fatalf("second Afflict failed: %v", err)
	}
	if again.BlightStage != 1 {
		t.Errorf("second afflict changed the stage to %d", again.BlightStage)
	}
}

func TestCure(t *testing.T) {
	st := store.NewInMemoryStore()
	deadline := fixedNow.Add(time.Hour)
	seedCharacter(t, st, models.Character{Blighted: true, BlightStage: 5, DeathDeadline: &deadline})
	eng := newTestEngine(t, st, 500)

	cured, err := eng.Cure(context.Background(), "char-1")
	if err != nil {
		t.Fatalf("Cure failed: %v", err)
	}
	if !cured {
		t.Fatal("first cure should report cured=true")
	}

	ch := mustGet(t, st, "char-1")
	if ch.Blighted || ch.BlightStage != models.StageCured || ch.DeathDeadline != nil {
		t.Errorf("cure left residue: %+v", ch)
	}

	cured, err = eng.Cure(context.Background(), "char-1")
	if err != nil {
		t.Fatalf("second Cure failed: %v", err)
	}
	if cured {
		t.Error("curing an already-cured character must be a no-op")
	}
}

func TestClaimDeath(t *testing.T) {
	st := store.NewInMemoryStore()
	deadline := fixedNow.Add(-time.Hour)
	ch := seedCharacter(t, st, models.Character{Blighted: true, BlightStage: 5, DeathDeadline: &deadline})
	eng := newTestEngine(t, st, 500)

	claimed, err := eng.ClaimDeath(context.Background(), ch)
	if err != nil {
		t.Fatalf("ClaimDeath failed: %v", err)
	}
	if !claimed {
		t.Fatal("death should have been claimed")
	}

	persisted := mustGet(t, st, "char-1")
	if persisted.Blighted || persisted.BlightStage != models.StageCured {
		t.Errorf("death must collapse the character to stage 0: %+v", persisted)
	}
}

func TestClaimDeathLosesToConcurrentCure(t *testing.T) {
	st := store.NewInMemoryStore()
	deadline := fixedNow.Add(-time.Hour)
	ch := seedCharacter(t, st, models.Character{Blighted: true, BlightStage: 5, DeathDeadline: &deadline})
	eng := newTestEngine(t, st, 500)

	// A cure lands between the sweeper's read and its claim.
	if _, err := eng.Cure(context.Background(), "char-1"); err != nil {
		t.Fatalf("Cure failed: %v", err)
	}

	claimed, err := eng.ClaimDeath(context.Background(), ch)
	if err != nil {
		t.Fatalf("ClaimDeath failed: %v", err)
	}
	if claimed {
		t.Error("death must lose the race when a cure already landed")
	}
}

func TestClaimDeathRequiresArmedTerminal(t *testing.T) {
	st := store.NewInMemoryStore()
	ch := seedCharacter(t, st, models.Character{Blighted: true, BlightStage: 4})
	eng := newTestEngine(t, st, 500)

	claimed, err := eng.ClaimDeath(context.Background(), ch)
	if err != nil {
		t.Fatalf("ClaimDeath failed: %v", err)
	}
	if claimed {
		t.Error("only terminal characters with an armed deadline can die")
	}
}

func TestMarkDeathWarned(t *testing.T) {
	st := store.NewInMemoryStore()
	deadline := fixedNow.Add(12 * time.Hour)
	ch := seedCharacter(t, st, models.Character{Blighted: true, BlightStage: 5, DeathDeadline: &deadline})
	eng := newTestEngine(t, st, 500)

	if err := eng.MarkDeathWarned(context.Background(), ch); err != nil {
		t.Fatalf("MarkDeathWarned failed: %v", err)
	}

	persisted := mustGet(t, st, "char-1")
	if persisted.DeathWarningAt == nil || !persisted.DeathWarningAt.Equal(fixedNow) {
		t.Errorf("DeathWarningAt = %v, want %v", persisted.DeathWarningAt, fixedNow)
	}
}
