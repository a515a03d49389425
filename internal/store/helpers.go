package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mossvale/blight/internal/models"
)

// rowScanner abstracts *sql.Row and *sql.Rows for the shared scan helpers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// characterColumns is the column order shared by every character query.
const characterColumns = `id, name, owner_user_id, home_village, current_village,
	blighted, blight_stage, last_roll_date, death_deadline, death_warning_at,
	blight_paused, roll_multiplier, no_monsters, no_gathering, version,
	created_at, updated_at`

// scanCharacter scans one character row in characterColumns order.
func scanCharacter(row rowScanner) (models.Character, error) {
	var ch models.Character
	var lastRoll, deadline, warning sql.NullTime
	err := row.Scan(
		&ch.ID, &ch.Name, &ch.OwnerUserID, &ch.HomeVillage, &ch.CurrentVillage,
		&ch.Blighted, &ch.BlightStage, &lastRoll, &deadline, &warning,
		&ch.BlightPaused, &ch.Effects.RollMultiplier, &ch.Effects.NoMonsters,
		&ch.Effects.NoGathering, &ch.Version, &ch.CreatedAt, &ch.UpdatedAt,
	)
	if err != nil {
		return ch, err
	}
	if lastRoll.Valid {
		ch.LastRollDate = lastRoll.Time
	}
	if deadline.Valid {
		ch.DeathDeadline = &deadline.Time
	}
	if warning.Valid {
		ch.DeathWarningAt = &warning.Time
	}
	return ch, nil
}

// requestColumns is the column order shared by every healing request query.
const requestColumns = `submission_id, owner_user_id, character_name, healer_name,
	task_type, task_description, items_json, stage_at_creation, status,
	created_at, expires_at`

// scanRequest scans one healing request row in requestColumns order.
func scanRequest(row rowScanner) (models.HealingRequest, error) {
	var req models.HealingRequest
	var itemsJSON sql.NullString
	err := row.Scan(
		&req.SubmissionID, &req.OwnerUserID, &req.CharacterName, &req.HealerName,
		&req.TaskType, &req.TaskDescription, &itemsJSON, &req.StageAtCreation,
		&req.Status, &req.CreatedAt, &req.ExpiresAt,
	)
	if err != nil {
		return req, err
	}
	if itemsJSON.Valid && itemsJSON.String != "" {
		if err := json.Unmarshal([]byte(itemsJSON.String), &req.Items); err != nil {
			return req, fmt.Errorf("failed to decode request items: %w", err)
		}
	}
	return req, nil
}

// marshalItems encodes item alternatives for the items_json column.
// Returns nil for an empty list so the column stays NULL.
func marshalItems(items []models.ItemAlternative) (interface{}, error) {
	if len(items) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request items: %w", err)
	}
	return string(data), nil
}

// timePtr converts an optional time for a nullable column.
func timePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// zeroAsNull stores the zero time as NULL.
func zeroAsNull(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
