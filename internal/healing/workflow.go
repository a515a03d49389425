package healing

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mossvale/blight/internal/blight"
	"github.com/mossvale/blight/internal/models"
	"github.com/mossvale/blight/internal/store"
	"github.com/mossvale/blight/internal/util"
)

// DefaultRequestTTL is how long a healing request stays fulfillable.
const DefaultRequestTTL = 30 * 24 * time.Hour

// Inventory is the narrow external inventory contract the workflow consumes.
type Inventory interface {
	SumQuantity(characterID, itemName string) (int, error)
	DeductItem(characterID, itemName string, quantity int) error
	WipeInventory(characterID string) error
}

// Ledger is the external token ledger contract.
type Ledger interface {
	Balance(userID string) (int, error)
	ZeroBalance(userID string) (int, error)
	RecordAudit(entry models.LedgerAudit) error
}

// Workflow orchestrates healing request creation and the three mutually
// exclusive fulfillment paths. It never mutates character state partially: a
// failed path leaves the request pending and the character untouched.
type Workflow struct {
	characters store.CharacterStore
	requests   store.RequestStore
	inventory  Inventory
	ledger     Ledger
	directory  Directory
	engine     *blight.Engine
	now        func() time.Time
	requestTTL time.Duration
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithClock injects the time source (for tests).
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

// WithRequestTTL overrides the healing request TTL.
func WithRequestTTL(ttl time.Duration) Option {
	return func(w *Workflow) { w.requestTTL = ttl }
}

// WithInventory overrides the inventory contract.
func WithInventory(inv Inventory) Option {
	return func(w *Workflow) { w.inventory = inv }
}

// WithLedger overrides the ledger contract. Passing nil disables the
// token-forfeiture path.
func WithLedger(l Ledger) Option {
	return func(w *Workflow) { w.ledger = l }
}

// NewWorkflow creates a healing workflow. The store supplies the default
// inventory and ledger contracts; options can swap them for external ones.
func NewWorkflow(st store.Store, directory Directory, engine *blight.Engine, opts ...Option) *Workflow {
	w := &Workflow{
		characters: st,
		requests:   st,
		inventory:  st,
		ledger:     st,
		directory:  directory,
		engine:     engine,
		now:        time.Now,
		requestTTL: DefaultRequestTTL,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// CreateRequest opens a healing request for a character with the named
// healer. Preconditions are checked in order and the first failure wins;
// every failure is one of the typed errors in models. Uniqueness is enforced
// by the store's conditional insert, so two racing calls cannot both
// succeed.
func (w *Workflow) CreateRequest(ctx context.Context, characterID, healerName, actingUserID string) (*models.HealingRequest, string, error) {
	slog.Debug("Workflow.CreateRequest", "characterID", characterID, "healer", healerName, "actingUserID", actingUserID)

	ch, err := w.characters.GetCharacter(characterID)
	if err != nil {
		return nil, "", err
	}
	if ch == nil {
		return nil, "", models.ErrCharacterNotFound
	}
	if !ch.Blighted || ch.BlightStage == models.StageCured {
		return nil, "", models.ErrNotAfflicted
	}
	if ch.BlightPaused {
		return nil, "", models.ErrBlightPaused
	}

	now := w.now()
	existing, err := w.requests.GetPendingRequestByCharacter(ch.Name)
	if err != nil {
		return nil, "", err
	}
	if existing != nil {
		if !existing.Expired(now) {
			return nil, "", models.ErrDuplicatePending
		}
		// A lapsed request still holds the uniqueness slot; purge it so a
		// fresh one can take its place.
		if err := w.requests.DeleteRequest(existing.SubmissionID); err != nil {
			return nil, "", err
		}
		slog.Info("Workflow.CreateRequest: purged expired request", "submissionID", existing.SubmissionID, "character", ch.Name)
	}

	healer, ok := w.directory.Lookup(healerName)
	if !ok {
		return nil, "", models.ErrHealerNotFound
	}
	if !strings.EqualFold(healer.Village(), ch.CurrentVillage) {
		return nil, "", models.ErrVillageMismatch
	}
	if !CategoryPermitted(ch.BlightStage, healer.Category()) {
		return nil, "", models.ErrStageForbidden
	}

	requirement := healer.GenerateRequirement(ch.Name)
	if err := requirement.Validate(); err != nil {
		slog.Error("Workflow.CreateRequest: healer produced invalid requirement", "error", err, "healer", healer.Name())
		return nil, "", err
	}

	req := models.HealingRequest{
		SubmissionID:    util.GenerateSubmissionID(),
		OwnerUserID:     actingUserID,
		CharacterName:   ch.Name,
		HealerName:      healer.Name(),
		TaskType:        requirement.Type,
		TaskDescription: requirement.Description,
		Items:           requirement.Items,
		StageAtCreation: ch.BlightStage,
		Status:          models.RequestStatusPending,
		CreatedAt:       now,
		ExpiresAt:       now.Add(w.requestTTL),
	}

	if err := w.requests.CreatePendingRequest(req); err != nil {
		if err == models.ErrDuplicatePending {
			return nil, "", err
		}
		slog.Error("Workflow.CreateRequest: insert failed", "error", err, "character", ch.Name)
		return nil, "", err
	}

	narration := healer.NarrateBefore(ctx, ch.Name)
	slog.Info("Workflow.CreateRequest: request created", "submissionID", req.SubmissionID, "character", ch.Name, "healer", healer.Name(), "taskType", req.TaskType)
	return &req, narration, nil
}

// FulfillRequest resolves a pending request via one of the three paths. Any
// failure leaves the record pending and the character unchanged; external
// side effects (deduction, forfeiture) happen strictly before the cure.
func (w *Workflow) FulfillRequest(ctx context.Context, submissionID string, method models.FulfillMethod, payload models.FulfillPayload) (*models.FulfillOutcome, error) {
	slog.Debug("Workflow.FulfillRequest", "submissionID", submissionID, "method", method)

	if !models.IsValidFulfillMethod(method) {
		return nil, models.ErrInvalidMethod
	}

	req, err := w.requests.GetRequest(submissionID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, models.ErrRequestNotFound
	}
	if req.Status != models.RequestStatusPending {
		return nil, models.ErrRequestNotPending
	}

	now := w.now()
	if req.Expired(now) {
		// Expiry is terminal: purge the record so the uniqueness slot frees.
		if err := w.requests.DeleteRequest(req.SubmissionID); err != nil {
			slog.Error("Workflow.FulfillRequest: failed to purge expired request", "error", err, "submissionID", submissionID)
			return nil, err
		}
		slog.Info("Workflow.FulfillRequest: request expired", "submissionID", submissionID)
		return nil, models.ErrRequestExpired
	}

	ch, err := w.characters.GetCharacterByName(req.CharacterName)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, models.ErrCharacterNotFound
	}

	outcome := &models.FulfillOutcome{
		SubmissionID:  req.SubmissionID,
		CharacterName: req.CharacterName,
		HealerName:    req.HealerName,
		Method:        method,
	}

	switch method {
	case models.FulfillTokens:
		if w.ledger == nil {
			return nil, models.ErrNoTokenTracker
		}
		balance, err := w.ledger.Balance(req.OwnerUserID)
		if err != nil {
			return nil, err
		}
		if balance <= 0 {
			return nil, models.ErrNoBalance
		}
		forfeited, err := w.ledger.ZeroBalance(req.OwnerUserID)
		if err != nil {
			return nil, err
		}
		if forfeited <= 0 {
			return nil, models.ErrNoBalance
		}
		audit := models.LedgerAudit{
			ID:            uuid.NewString(),
			UserID:        req.OwnerUserID,
			CharacterName: req.CharacterName,
			Amount:        forfeited,
			Reason:        "blight healing token forfeiture",
			CreatedAt:     now,
		}
		if err := w.ledger.RecordAudit(audit); err != nil {
			slog.Error("Workflow.FulfillRequest: audit record failed", "error", err, "submissionID", submissionID)
			return nil, err
		}
		outcome.TokensForfeited = forfeited

	case models.FulfillItem:
		if req.TaskType != models.RequirementItem {
			return nil, models.ErrInvalidMethod
		}
		var matched *models.ItemAlternative
		for i := range req.Items {
			alt := &req.Items[i]
			if strings.EqualFold(alt.ItemName, payload.ItemName) && alt.Quantity == payload.Quantity {
				matched = alt
				break
			}
		}
		if matched == nil {
			return nil, models.ErrItemMismatch
		}
		have, err := w.inventory.SumQuantity(ch.ID, matched.ItemName)
		if err != nil {
			return nil, err
		}
		if have < matched.Quantity {
			return nil, models.ErrInsufficientQuantity
		}
		if err := w.inventory.DeductItem(ch.ID, matched.ItemName, matched.Quantity); err != nil {
			// Includes the lost-race case where holdings shrank between
			// the sum and the deduction.
			return nil, err
		}
		outcome.ItemName = matched.ItemName
		outcome.QuantityDeducted = matched.Quantity

	case models.FulfillCreative:
		if req.TaskType != models.RequirementArt && req.TaskType != models.RequirementWriting {
			return nil, models.ErrInvalidMethod
		}
		if strings.TrimSpace(payload.Link) == "" {
			return nil, models.ErrEmptyLink
		}
	}

	if _, err := w.engine.Cure(ctx, ch.ID); err != nil {
		slog.Error("Workflow.FulfillRequest: cure failed after side effects", "error", err, "submissionID", submissionID)
		return nil, err
	}
	if err := w.requests.DeleteRequest(req.SubmissionID); err != nil {
		slog.Error("Workflow.FulfillRequest: failed to delete fulfilled request", "error", err, "submissionID", submissionID)
		return nil, err
	}

	if healer, ok := w.directory.Lookup(req.HealerName); ok {
		outcome.Narration = healer.NarrateAfter(ctx, req.CharacterName)
	}

	slog.Info("Workflow.FulfillRequest: request fulfilled", "submissionID", submissionID, "character", req.CharacterName, "method", method)
	return outcome, nil
}

// DeletePendingRequest removes a character's pending request if one exists.
// Used by the death path to free the uniqueness slot.
func (w *Workflow) DeletePendingRequest(ctx context.Context, characterName string) error {
	req, err := w.requests.GetPendingRequestByCharacter(characterName)
	if err != nil {
		return err
	}
	if req == nil {
		return nil
	}
	return w.requests.DeleteRequest(req.SubmissionID)
}
