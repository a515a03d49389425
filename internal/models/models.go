// Package models defines the core data structures for the blight engine.
//
// It includes the character blight fields, healing requests and requirements,
// and the typed domain errors shared across modules.
package models

import (
	"errors"
	"time"
)

// Stage bounds for the blight state machine.
const (
	// StageCured is the sole entry/exit stage; cure and death both return here.
	StageCured = 0
	// StageTerminal is the final stage with an armed death deadline.
	StageTerminal = 5
)

// Domain error variables surfaced verbatim to callers.
var (
	ErrCharacterNotFound    = errors.New("character not found")
	ErrNotAfflicted         = errors.New("character is not blighted")
	ErrBlightPaused         = errors.New("blight progression is paused for this character")
	ErrDuplicatePending     = errors.New("a pending healing request already exists for this character")
	ErrHealerNotFound       = errors.New("healer not found")
	ErrVillageMismatch      = errors.New("healer is not in the character's current village")
	ErrStageForbidden       = errors.New("healer category cannot heal this blight stage")
	ErrRequestNotFound      = errors.New("healing request not found")
	ErrRequestNotPending    = errors.New("healing request is no longer pending")
	ErrRequestExpired       = errors.New("healing request has expired")
	ErrAlreadyRolled        = errors.New("blight roll already consumed for this window")
	ErrInvalidMethod        = errors.New("invalid fulfillment method")
	ErrItemMismatch         = errors.New("offered item does not match any required alternative")
	ErrInsufficientQuantity = errors.New("insufficient item quantity")
	ErrNoBalance            = errors.New("token balance is empty")
	ErrNoTokenTracker       = errors.New("no token tracker configured for forfeiture")
	ErrEmptyLink            = errors.New("a link to the finished work is required")
	ErrVersionConflict      = errors.New("character was modified concurrently")
	ErrInvalidStage         = errors.New("blight stage out of range")
)

// BlightEffects caches the stage-dependent gameplay flags. It is derived
// state, recomputed on every stage change, never authoritative.
type BlightEffects struct {
	RollMultiplier float64 `json:"roll_multiplier"`
	NoMonsters     bool    `json:"no_monsters"`
	NoGathering    bool    `json:"no_gathering"`
}

// EffectsForStage returns the gameplay effects policy for a blight stage.
func EffectsForStage(stage int) BlightEffects {
	switch stage {
	case 2:
		return BlightEffects{RollMultiplier: 1.5}
	case 3:
		return BlightEffects{RollMultiplier: 1.0, NoMonsters: true}
	case 4, 5:
		return BlightEffects{RollMultiplier: 1.0, NoMonsters: true, NoGathering: true}
	default:
		return BlightEffects{RollMultiplier: 1.0}
	}
}

// Character carries the blight fields this engine owns. Profile cosmetics
// live elsewhere; only identity and village routing are mirrored here.
type Character struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	OwnerUserID    string         `json:"owner_user_id"`
	HomeVillage    string         `json:"home_village"`
	CurrentVillage string         `json:"current_village"`
	Blighted       bool           `json:"blighted"`
	BlightStage    int            `json:"blight_stage"`
	LastRollDate   time.Time      `json:"last_roll_date"`
	DeathDeadline  *time.Time     `json:"death_deadline,omitempty"`
	DeathWarningAt *time.Time     `json:"death_warning_at,omitempty"`
	BlightPaused   bool           `json:"blight_paused"`
	Effects        BlightEffects  `json:"blight_effects"`
	// Version guards concurrent mutations; every conditional update
	// increments it.
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CheckInvariants reports a violated engine invariant. A non-nil return
// indicates a missed atomicity guarantee, not user error, and should be
// logged loudly by the caller.
func (c *Character) CheckInvariants() error {
	if c.BlightStage < StageCured || c.BlightStage > StageTerminal {
		return ErrInvalidStage
	}
	if c.Blighted != (c.BlightStage > StageCured) {
		return errors.New("blighted flag disagrees with blight stage")
	}
	if (c.DeathDeadline != nil) != (c.BlightStage == StageTerminal) {
		return errors.New("death deadline set without terminal stage")
	}
	return nil
}

// RequirementType defines what a healer demands in exchange for a cure.
type RequirementType string

const (
	// RequirementItem demands one of a set of item alternatives.
	RequirementItem RequirementType = "item"
	// RequirementArt demands a piece of finished art.
	RequirementArt RequirementType = "art"
	// RequirementWriting demands a piece of finished writing.
	RequirementWriting RequirementType = "writing"
)

// IsValidRequirementType checks if the given requirement type is supported.
func IsValidRequirementType(rt RequirementType) bool {
	switch rt {
	case RequirementItem, RequirementArt, RequirementWriting:
		return true
	default:
		return false
	}
}

// ItemAlternative is one acceptable (item, quantity) pair for an item
// requirement. Emoji is presentation-only.
type ItemAlternative struct {
	ItemName string `json:"item_name"`
	Quantity int    `json:"quantity"`
	Emoji    string `json:"emoji,omitempty"`
}

// HealingRequirement is the task a healer assigns for a specific character.
// Items is populated only for item requirements.
type HealingRequirement struct {
	Type        RequirementType   `json:"type"`
	Description string            `json:"description"`
	Items       []ItemAlternative `json:"items,omitempty"`
}

// Validate checks structural validity of a generated requirement.
func (r *HealingRequirement) Validate() error {
	if !IsValidRequirementType(r.Type) {
		return errors.New("unknown requirement type")
	}
	if r.Description == "" {
		return errors.New("requirement description is required")
	}
	if r.Type == RequirementItem && len(r.Items) == 0 {
		return errors.New("item requirement needs at least one alternative")
	}
	for _, alt := range r.Items {
		if alt.ItemName == "" || alt.Quantity <= 0 {
			return errors.New("item alternative needs a name and positive quantity")
		}
	}
	return nil
}

// RequestStatus tracks the lifecycle of a healing request.
type RequestStatus string

const (
	// RequestStatusPending indicates the request awaits fulfillment.
	RequestStatusPending RequestStatus = "pending"
	// RequestStatusCompleted indicates a fulfillment path succeeded.
	RequestStatusCompleted RequestStatus = "completed"
	// RequestStatusExpired indicates the TTL lapsed before fulfillment.
	RequestStatusExpired RequestStatus = "expired"
)

// HealingRequest is the persisted, expiring record of an in-progress cure
// attempt. At most one pending request may exist per character.
type HealingRequest struct {
	SubmissionID    string            `json:"submission_id"`
	OwnerUserID     string            `json:"owner_user_id"`
	CharacterName   string            `json:"character_name"`
	HealerName      string            `json:"healer_name"`
	TaskType        RequirementType   `json:"task_type"`
	TaskDescription string            `json:"task_description"`
	Items           []ItemAlternative `json:"items,omitempty"`
	StageAtCreation int               `json:"stage_at_creation"`
	Status          RequestStatus     `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	ExpiresAt       time.Time         `json:"expires_at"`
}

// Expired reports whether the request's TTL has lapsed at the given time.
func (r *HealingRequest) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// FulfillMethod selects one of the mutually exclusive resolution paths.
type FulfillMethod string

const (
	// FulfillItem resolves the request by handing over a required item.
	FulfillItem FulfillMethod = "item"
	// FulfillTokens resolves the request by forfeiting the entire token balance.
	FulfillTokens FulfillMethod = "tokens"
	// FulfillCreative resolves the request with a link to the finished work.
	FulfillCreative FulfillMethod = "creative"
)

// IsValidFulfillMethod checks if the given fulfillment method is supported.
func IsValidFulfillMethod(m FulfillMethod) bool {
	switch m {
	case FulfillItem, FulfillTokens, FulfillCreative:
		return true
	default:
		return false
	}
}

// FulfillPayload carries method-specific input for FulfillRequest.
type FulfillPayload struct {
	ItemName string `json:"item_name,omitempty"`
	Quantity int    `json:"quantity,omitempty"`
	Link     string `json:"link,omitempty"`
}

// LedgerAudit records a token forfeiture for the external audit trail.
type LedgerAudit struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	CharacterName string    `json:"character_name"`
	Amount        int       `json:"amount"`
	Reason        string    `json:"reason"`
	CreatedAt     time.Time `json:"created_at"`
}
