package blight

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/mossvale/blight/internal/models"
	"github.com/mossvale/blight/internal/store"
)

// Tunables for the stage machine.
const (
	// DeathDeadlineTTL is how long a character at the terminal stage has
	// before the sweeper executes death.
	DeathDeadlineTTL = 7 * 24 * time.Hour
	// rollSides is the size of the uniform daily draw.
	rollSides = 1000
	// casRetries bounds optimistic-update retries before giving up.
	casRetries = 3
)

// Engine owns the blight stage transitions for characters. All mutations go
// through conditional store updates so concurrent triggers (user rolls, the
// sweeper, cures) cannot interleave.
type Engine struct {
	store store.CharacterStore
	now   func() time.Time
	draw  func() int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects the time source (for tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithDraw injects the daily roll draw, which must return a uniform integer
// in [1, rollSides] (for tests).
func WithDraw(draw func() int) Option {
	return func(e *Engine) { e.draw = draw }
}

// NewEngine creates a stage engine backed by the given character store.
func NewEngine(st store.CharacterStore, opts ...Option) *Engine {
	e := &Engine{
		store: st,
		now:   time.Now,
		draw:  func() int { return rand.IntN(rollSides) + 1 },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// targetStage maps a draw to an absolute target stage via the fixed
// cumulative bands. The second return is false for the no-progression
// outcome, which covers 90% of draws.
func targetStage(draw int) (int, bool) {
	switch {
	case draw <= 25:
		return 2, true
	case draw <= 40:
		return 3, true
	case draw <= 67:
		return 4, true
	case draw <= 100:
		return 5, true
	default:
		return 0, false
	}
}

// Roll performs the manual daily blight roll for a character. The roll
// consumes the character's slot in the current window regardless of outcome.
// A draw into a band at or below the current stage never demotes; the result
// is clamped to max(current, target).
func (e *Engine) Roll(ctx context.Context, characterID string) (*models.RollOutcome, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		ch, err := e.store.GetCharacter(characterID)
		if err != nil {
			return nil, err
		}
		if ch == nil {
			return nil, models.ErrCharacterNotFound
		}
		if !ch.Blighted {
			return nil, models.ErrNotAfflicted
		}
		if ch.BlightPaused {
			return nil, models.ErrBlightPaused
		}

		now := e.now()
		if RolledInWindow(ch.LastRollDate, now) {
			return nil, models.ErrAlreadyRolled
		}

		draw := e.draw()
		prev := ch.BlightStage
		next := prev
		if target, hit := targetStage(draw); hit && target > prev {
			next = target
		}

		outcome := &models.RollOutcome{
			CharacterID:   ch.ID,
			Draw:          draw,
			PreviousStage: prev,
			NewStage:      next,
			Progressed:    next != prev,
			RolledAt:      now,
		}

		expected := ch.Version
		ch.LastRollDate = now
		ch.BlightStage = next
		ch.Effects = models.EffectsForStage(next)
		if next == models.StageTerminal && prev != models.StageTerminal {
			deadline := now.Add(DeathDeadlineTTL)
			ch.DeathDeadline = &deadline
			ch.DeathWarningAt = nil
			outcome.DeadlineArmed = true
			outcome.DeathDeadline = &deadline
		}

		err = e.store.UpdateCharacterCAS(*ch, expected)
		if err == models.ErrVersionConflict {
			slog.Debug("Engine.Roll: version conflict, retrying", "characterID", characterID, "attempt", attempt)
			continue
		}
		if err != nil {
			slog.Error("Engine.Roll: update failed", "error", err, "characterID", characterID)
			return nil, err
		}

		slog.Info("Engine.Roll: roll consumed", "characterID", characterID, "draw", draw, "previousStage", prev, "newStage", next, "deadlineArmed", outcome.DeadlineArmed)
		return outcome, nil
	}
	return nil, fmt.Errorf("roll for %s: %w", characterID, models.ErrVersionConflict)
}

// ForceAdvance applies the missed-roll escalation: strictly monotonic,
// stage += 1 capped at the terminal stage, arming the death deadline only on
// the transition into it. Only the sweeper calls this. The forced roll
// consumes the window like a manual roll would.
func (e *Engine) ForceAdvance(ctx context.Context, ch models.Character) (models.Character, bool, error) {
	if ch.BlightStage >= models.StageTerminal {
		return ch, false, nil
	}

	now := e.now()
	expected := ch.Version
	ch.BlightStage++
	ch.Effects = models.EffectsForStage(ch.BlightStage)
	ch.LastRollDate = now
	armed := false
	if ch.BlightStage == models.StageTerminal {
		deadline := now.Add(DeathDeadlineTTL)
		ch.DeathDeadline = &deadline
		ch.DeathWarningAt = nil
		armed = true
	}

	if err := e.store.UpdateCharacterCAS(ch, expected); err != nil {
		return ch, false, err
	}
	slog.Info("Engine.ForceAdvance: stage escalated", "characterID", ch.ID, "newStage", ch.BlightStage, "deadlineArmed", armed)
	return ch, armed, nil
}

// Afflict puts a healthy character at stage 1 and starts its daily cadence.
func (e *Engine) Afflict(ctx context.Context, characterID string) (*models.Character, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		ch, err := e.store.GetCharacter(characterID)
		if err != nil {
			return nil, err
		}
		if ch == nil {
			return nil, models.ErrCharacterNotFound
		}
		if ch.Blighted {
			return ch, nil
		}

		expected := ch.Version
		ch.Blighted = true
		ch.BlightStage = 1
		ch.Effects = models.EffectsForStage(1)
		ch.LastRollDate = e.now()
		ch.DeathDeadline = nil
		ch.DeathWarningAt = nil

		err = e.store.UpdateCharacterCAS(*ch, expected)
		if err == models.ErrVersionConflict {
			continue
		}
		if err != nil {
			return nil, err
		}
		ch.Version = expected + 1
		slog.Info("Engine.Afflict: character afflicted", "characterID", characterID)
		return ch, nil
	}
	return nil, fmt.Errorf("afflict %s: %w", characterID, models.ErrVersionConflict)
}

// Cure collapses a character back to stage 0. It is the single state
// transition every successful fulfillment path ends in, and it is
// idempotent: curing an already-cured character is a no-op that reports
// cured=false.
func (e *Engine) Cure(ctx context.Context, characterID string) (bool, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		ch, err := e.store.GetCharacter(characterID)
		if err != nil {
			return false, err
		}
		if ch == nil {
			return false, models.ErrCharacterNotFound
		}
		if !ch.Blighted && ch.BlightStage == models.StageCured {
			slog.Debug("Engine.Cure: already cured", "characterID", characterID)
			return false, nil
		}

		expected := ch.Version
		ch.Blighted = false
		ch.BlightStage = models.StageCured
		ch.DeathDeadline = nil
		ch.DeathWarningAt = nil
		ch.Effects = models.EffectsForStage(models.StageCured)

		err = e.store.UpdateCharacterCAS(*ch, expected)
		if err == models.ErrVersionConflict {
			// Another trigger (death, concurrent cure) got here first.
			continue
		}
		if err != nil {
			return false, err
		}
		slog.Info("Engine.Cure: character cured", "characterID", characterID)
		return true, nil
	}
	return false, fmt.Errorf("cure %s: %w", characterID, models.ErrVersionConflict)
}

// ClaimDeath atomically collapses a terminal character whose deadline
// elapsed. It reports claimed=false when another trigger (a racing cure)
// already changed the character, so exactly one of cure and death wins.
func (e *Engine) ClaimDeath(ctx context.Context, ch models.Character) (bool, error) {
	if !ch.Blighted || ch.BlightStage != models.StageTerminal || ch.DeathDeadline == nil {
		return false, nil
	}

	expected := ch.Version
	ch.Blighted = false
	ch.BlightStage = models.StageCured
	ch.DeathDeadline = nil
	ch.DeathWarningAt = nil
	ch.Effects = models.EffectsForStage(models.StageCured)

	err := e.store.UpdateCharacterCAS(ch, expected)
	if err == models.ErrVersionConflict {
		slog.Debug("Engine.ClaimDeath: lost race to concurrent mutation", "characterID", ch.ID)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	slog.Info("Engine.ClaimDeath: death claimed", "characterID", ch.ID)
	return true, nil
}

// MarkDeathWarned records that the imminent-death warning for the currently
// armed deadline has been sent, so later sweeps do not repeat it.
func (e *Engine) MarkDeathWarned(ctx context.Context, ch models.Character) error {
	now := e.now()
	expected := ch.Version
	ch.DeathWarningAt = &now
	err := e.store.UpdateCharacterCAS(ch, expected)
	if err == models.ErrVersionConflict {
		// A concurrent mutation wins; worst case the warning repeats next sweep.
		return nil
	}
	return err
}

// Clock returns the engine's time source, shared with the sweeper.
func (e *Engine) Clock() func() time.Time {
	return e.now
}
