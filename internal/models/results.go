// Package models defines result types returned by engine operations.
//
// Operations return plain values; a separate presentation layer translates
// them into notifications. Discord interaction objects never reach the
// engine.
package models

import "time"

// RollOutcome describes the result of a manual daily blight roll.
type RollOutcome struct {
	CharacterID   string     `json:"character_id"`
	Draw          int        `json:"draw"`
	PreviousStage int        `json:"previous_stage"`
	NewStage      int        `json:"new_stage"`
	Progressed    bool       `json:"progressed"`
	DeadlineArmed bool       `json:"deadline_armed"`
	DeathDeadline *time.Time `json:"death_deadline,omitempty"`
	RolledAt      time.Time  `json:"rolled_at"`
}

// SweepAction identifies what the sweeper did for one character.
type SweepAction string

const (
	// SweepActionNone means the character needed no intervention this tick.
	SweepActionNone SweepAction = "none"
	// SweepActionAdvanced means a missed roll forced a stage escalation.
	SweepActionAdvanced SweepAction = "advanced"
	// SweepActionWarned means an imminent-death warning was emitted.
	SweepActionWarned SweepAction = "warned"
	// SweepActionDeath means the stage-5 deadline elapsed and the character died.
	SweepActionDeath SweepAction = "death"
)

// SweepResult describes the outcome of one sweep for one character.
type SweepResult struct {
	CharacterID string      `json:"character_id"`
	Action      SweepAction `json:"action"`
	NewStage    int         `json:"new_stage,omitempty"`
	Err         error       `json:"-"`
}

// FulfillOutcome describes a successful fulfillment.
type FulfillOutcome struct {
	SubmissionID     string        `json:"submission_id"`
	CharacterName    string        `json:"character_name"`
	HealerName       string        `json:"healer_name"`
	Method           FulfillMethod `json:"method"`
	TokensForfeited  int           `json:"tokens_forfeited,omitempty"`
	ItemName         string        `json:"item_name,omitempty"`
	QuantityDeducted int           `json:"quantity_deducted,omitempty"`
	Narration        string        `json:"narration,omitempty"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse is the standard JSON envelope for the presentation API.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
