// Package sweeper implements the periodic blight jobs: the missed-roll
// sweep that enforces escalations and deaths, and the daily roll-call
// announcement.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mossvale/blight/internal/blight"
	"github.com/mossvale/blight/internal/healing"
	"github.com/mossvale/blight/internal/models"
	"github.com/mossvale/blight/internal/notify"
	"github.com/mossvale/blight/internal/store"
)

// DeathWarningWindow is how close to the deadline the imminent-death
// warning fires.
const DeathWarningWindow = 24 * time.Hour

// ErrSweepInProgress is returned when a sweep tick overlaps a running sweep.
var ErrSweepInProgress = errors.New("a sweep is already running")

// Sweeper walks every afflicted character on a fixed cadence and applies
// the failure-to-act consequences: forced stage escalation, imminent-death
// warnings, and death once the terminal deadline elapses.
type Sweeper struct {
	store    store.Store
	engine   *blight.Engine
	workflow *healing.Workflow
	notifier notify.Service
	now      func() time.Time

	// mu serializes sweep invocations; overlapping ticks are rejected
	// rather than queued.
	mu sync.Mutex
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithClock injects the time source (for tests).
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// NewSweeper creates a sweeper over the given store and engine.
func NewSweeper(st store.Store, engine *blight.Engine, workflow *healing.Workflow, notifier notify.Service, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:    st,
		engine:   engine,
		workflow: workflow,
		notifier: notifier,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep runs one tick over every blighted character. One character's
// failure never aborts the sweep for the rest; failures are carried in the
// per-character results. Returns ErrSweepInProgress if another sweep holds
// the lock.
func (s *Sweeper) Sweep(ctx context.Context) ([]models.SweepResult, error) {
	if !s.mu.TryLock() {
		slog.Warn("Sweeper.Sweep: overlapping sweep rejected")
		return nil, ErrSweepInProgress
	}
	defer s.mu.Unlock()

	now := s.now()
	slog.Debug("Sweeper.Sweep: starting", "now", now)

	if purged, err := s.store.PurgeExpiredRequests(now); err != nil {
		slog.Error("Sweeper.Sweep: purge of expired requests failed", "error", err)
	} else if purged > 0 {
		slog.Info("Sweeper.Sweep: purged expired healing requests", "count", purged)
	}

	characters, err := s.store.ListBlighted()
	if err != nil {
		return nil, fmt.Errorf("failed to list blighted characters: %w", err)
	}

	results := make([]models.SweepResult, 0, len(characters))
	for _, ch := range characters {
		if ch.BlightPaused {
			continue
		}
		result := s.sweepCharacter(ctx, ch, now)
		if result.Err != nil {
			slog.Error("Sweeper.Sweep: character sweep failed", "error", result.Err, "characterID", ch.ID)
		}
		results = append(results, result)
	}

	slog.Info("Sweeper.Sweep: completed", "characters", len(results))
	return results, nil
}

func (s *Sweeper) sweepCharacter(ctx context.Context, ch models.Character, now time.Time) models.SweepResult {
	result := models.SweepResult{CharacterID: ch.ID, Action: models.SweepActionNone, NewStage: ch.BlightStage}

	if ch.BlightStage == models.StageTerminal && ch.DeathDeadline != nil {
		deadline := *ch.DeathDeadline
		switch {
		case now.After(deadline):
			claimed, err := s.executeDeath(ctx, ch)
			if err != nil {
				result.Err = err
				return result
			}
			if claimed {
				result.Action = models.SweepActionDeath
				result.NewStage = models.StageCured
			}
		case deadline.Sub(now) <= DeathWarningWindow && ch.DeathWarningAt == nil:
			// One warning per armed deadline; the marker is cleared
			// whenever the deadline is re-armed.
			s.dmBestEffort(ctx, ch.OwnerUserID, fmt.Sprintf(
				"⚠️ %s is dying. The blight claims them in less than a day unless they are healed.", ch.Name))
			if err := s.engine.MarkDeathWarned(ctx, ch); err != nil {
				result.Err = err
				return result
			}
			result.Action = models.SweepActionWarned
		}
		// Terminal characters are never auto-advanced further.
		return result
	}

	if blight.MissedRollWindow(ch.LastRollDate, now) {
		updated, armed, err := s.engine.ForceAdvance(ctx, ch)
		if err == models.ErrVersionConflict {
			// A concurrent roll or cure won; leave the character alone this tick.
			return result
		}
		if err != nil {
			result.Err = err
			return result
		}
		result.Action = models.SweepActionAdvanced
		result.NewStage = updated.BlightStage

		msg := fmt.Sprintf("%s missed their blight roll and worsened to stage %d.", ch.Name, updated.BlightStage)
		if armed {
			msg = fmt.Sprintf("%s missed their blight roll and reached stage %d. They have %s to be healed.",
				ch.Name, updated.BlightStage, blight.DeathDeadlineTTL)
		}
		s.dmBestEffort(ctx, ch.OwnerUserID, msg)
	}

	return result
}

// executeDeath claims the death transition and applies its destructive side
// effects: the pending healing request is deleted and the character's
// inventory is irreversibly wiped.
func (s *Sweeper) executeDeath(ctx context.Context, ch models.Character) (bool, error) {
	claimed, err := s.engine.ClaimDeath(ctx, ch)
	if err != nil {
		return false, err
	}
	if !claimed {
		// A racing cure won; nothing to destroy.
		return false, nil
	}

	if err := s.workflow.DeletePendingRequest(ctx, ch.Name); err != nil {
		slog.Error("Sweeper.executeDeath: failed to delete pending request", "error", err, "character", ch.Name)
	}
	if err := s.store.WipeInventory(ch.ID); err != nil {
		slog.Error("Sweeper.executeDeath: inventory wipe failed", "error", err, "characterID", ch.ID)
	}

	s.dmBestEffort(ctx, ch.OwnerUserID, fmt.Sprintf(
		"💀 %s has succumbed to the blight. Their belongings are lost.", ch.Name))
	slog.Info("Sweeper.executeDeath: character died", "characterID", ch.ID, "name", ch.Name)
	return true, nil
}

// dmBestEffort sends a DM and only logs failures; notification delivery
// never fails a sweep.
func (s *Sweeper) dmBestEffort(ctx context.Context, userID, message string) {
	if s.notifier == nil || userID == "" {
		return
	}
	if err := s.notifier.DMUser(ctx, userID, message); err != nil {
		slog.Warn("Sweeper: DM delivery failed", "error", err, "userID", userID)
	}
}
