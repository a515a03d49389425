// Package store provides storage backends for the blight engine.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
	"github.com/mossvale/blight/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SaveCharacter(ch models.Character) error {
	query := `INSERT INTO characters (` + characterColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, owner_user_id = EXCLUDED.owner_user_id,
			home_village = EXCLUDED.home_village, current_village = EXCLUDED.current_village,
			blighted = EXCLUDED.blighted, blight_stage = EXCLUDED.blight_stage,
			last_roll_date = EXCLUDED.last_roll_date, death_deadline = EXCLUDED.death_deadline,
			death_warning_at = EXCLUDED.death_warning_at, blight_paused = EXCLUDED.blight_paused,
			roll_multiplier = EXCLUDED.roll_multiplier, no_monsters = EXCLUDED.no_monsters,
			no_gathering = EXCLUDED.no_gathering, version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at`
	_, err := s.db.Exec(query,
		ch.ID, ch.Name, ch.OwnerUserID, ch.HomeVillage, ch.CurrentVillage,
		ch.Blighted, ch.BlightStage, zeroAsNull(ch.LastRollDate),
		timePtr(ch.DeathDeadline), timePtr(ch.DeathWarningAt),
		ch.BlightPaused, ch.Effects.RollMultiplier, ch.Effects.NoMonsters,
		ch.Effects.NoGathering, ch.Version, ch.CreatedAt, ch.UpdatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore SaveCharacter failed", "error", err, "characterID", ch.ID)
		return fmt.Errorf("failed to save character %s: %w", ch.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetCharacter(id string) (*models.Character, error) {
	row := s.db.QueryRow(`SELECT `+characterColumns+` FROM characters WHERE id = $1`, id)
	ch, err := scanCharacter(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetCharacter failed", "error", err, "characterID", id)
		return nil, fmt.Errorf("failed to get character %s: %w", id, err)
	}
	return &ch, nil
}

func (s *PostgresStore) GetCharacterByName(name string) (*models.Character, error) {
	row := s.db.QueryRow(`SELECT `+characterColumns+` FROM characters WHERE LOWER(name) = LOWER($1)`, name)
	ch, err := scanCharacter(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetCharacterByName failed", "error", err, "name", name)
		return nil, fmt.Errorf("failed to get character %q: %w", name, err)
	}
	return &ch, nil
}

func (s *PostgresStore) ListBlighted() ([]models.Character, error) {
	rows, err := s.db.Query(`SELECT ` + characterColumns + ` FROM characters WHERE blighted`)
	if err != nil {
		slog.Error("PostgresStore ListBlighted query failed", "error", err)
		return nil, fmt.Errorf("failed to query blighted characters: %w", err)
	}
	defer rows.Close()

	var out []models.Character
	for rows.Next() {
		ch, err := scanCharacter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan character row: %w", err)
		}
		out = append(out, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate character rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpdateCharacterCAS(ch models.Character, expectedVersion int) error {
	query := `UPDATE characters SET
		name = $1, owner_user_id = $2, home_village = $3, current_village = $4,
		blighted = $5, blight_stage = $6, last_roll_date = $7, death_deadline = $8,
		death_warning_at = $9, blight_paused = $10, roll_multiplier = $11,
		no_monsters = $12, no_gathering = $13, version = version + 1, updated_at = $14
		WHERE id = $15 AND version = $16`
	res, err := s.db.Exec(query,
		ch.Name, ch.OwnerUserID, ch.HomeVillage, ch.CurrentVillage,
		ch.Blighted, ch.BlightStage, zeroAsNull(ch.LastRollDate),
		timePtr(ch.DeathDeadline), timePtr(ch.DeathWarningAt),
		ch.BlightPaused, ch.Effects.RollMultiplier, ch.Effects.NoMonsters,
		ch.Effects.NoGathering, time.Now(), ch.ID, expectedVersion,
	)
	if err != nil {
		slog.Error("PostgresStore UpdateCharacterCAS failed", "error", err, "characterID", ch.ID)
		return fmt.Errorf("failed to update character %s: %w", ch.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		existing, err := s.GetCharacter(ch.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			return models.ErrCharacterNotFound
		}
		return models.ErrVersionConflict
	}
	return nil
}

func (s *PostgresStore) CreatePendingRequest(req models.HealingRequest) error {
	items, err := marshalItems(req.Items)
	if err != nil {
		return err
	}
	query := `INSERT INTO healing_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT DO NOTHING`
	res, err := s.db.Exec(query,
		req.SubmissionID, req.OwnerUserID, req.CharacterName, req.HealerName,
		req.TaskType, req.TaskDescription, items, req.StageAtCreation,
		req.Status, req.CreatedAt, req.ExpiresAt,
	)
	if err != nil {
		slog.Error("PostgresStore CreatePendingRequest failed", "error", err, "character", req.CharacterName)
		return fmt.Errorf("failed to insert healing request for %s: %w", req.CharacterName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return models.ErrDuplicatePending
	}
	return nil
}

func (s *PostgresStore) GetRequest(submissionID string) (*models.HealingRequest, error) {
	row := s.db.QueryRow(`SELECT `+requestColumns+` FROM healing_requests WHERE submission_id = $1`, submissionID)
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetRequest failed", "error", err, "submissionID", submissionID)
		return nil, fmt.Errorf("failed to get healing request %s: %w", submissionID, err)
	}
	return &req, nil
}

func (s *PostgresStore) GetPendingRequestByCharacter(characterName string) (*models.HealingRequest, error) {
	row := s.db.QueryRow(`SELECT `+requestColumns+` FROM healing_requests
		WHERE LOWER(character_name) = LOWER($1) AND status = $2`,
		characterName, models.RequestStatusPending)
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetPendingRequestByCharacter failed", "error", err, "character", characterName)
		return nil, fmt.Errorf("failed to get pending request for %s: %w", characterName, err)
	}
	return &req, nil
}

func (s *PostgresStore) ListRequests() ([]models.HealingRequest, error) {
	rows, err := s.db.Query(`SELECT ` + requestColumns + ` FROM healing_requests`)
	if err != nil {
		slog.Error("PostgresStore ListRequests query failed", "error", err)
		return nil, fmt.Errorf("failed to query healing requests: %w", err)
	}
	defer rows.Close()

	var out []models.HealingRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan healing request row: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate healing request rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteRequest(submissionID string) error {
	_, err := s.db.Exec(`DELETE FROM healing_requests WHERE submission_id = $1`, submissionID)
	if err != nil {
		slog.Error("PostgresStore DeleteRequest failed", "error", err, "submissionID", submissionID)
		return fmt.Errorf("failed to delete healing request %s: %w", submissionID, err)
	}
	return nil
}

func (s *PostgresStore) PurgeExpiredRequests(now time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM healing_requests WHERE expires_at <= $1`, now)
	if err != nil {
		slog.Error("PostgresStore PurgeExpiredRequests failed", "error", err)
		return 0, fmt.Errorf("failed to purge expired requests: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n > 0 {
		slog.Info("PostgresStore PurgeExpiredRequests removed expired requests", "count", n)
	}
	return int(n), nil
}

func (s *PostgresStore) AddItem(characterID, itemName string, quantity int) error {
	_, err := s.db.Exec(`INSERT INTO inventory_items (character_id, item_name, quantity) VALUES ($1, $2, $3)`,
		characterID, itemName, quantity)
	if err != nil {
		slog.Error("PostgresStore AddItem failed", "error", err, "characterID", characterID, "item", itemName)
		return fmt.Errorf("failed to add inventory item: %w", err)
	}
	return nil
}

func (s *PostgresStore) SumQuantity(characterID, itemName string) (int, error) {
	var total sql.NullInt64
	err := s.db.QueryRow(`SELECT SUM(quantity) FROM inventory_items
		WHERE character_id = $1 AND LOWER(item_name) = LOWER($2)`,
		characterID, itemName).Scan(&total)
	if err != nil {
		slog.Error("PostgresStore SumQuantity failed", "error", err, "characterID", characterID, "item", itemName)
		return 0, fmt.Errorf("failed to sum item quantity: %w", err)
	}
	return int(total.Int64), nil
}

func (s *PostgresStore) DeductItem(characterID, itemName string, quantity int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin deduction transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT id, quantity FROM inventory_items
		WHERE character_id = $1 AND LOWER(item_name) = LOWER($2) ORDER BY id FOR UPDATE`,
		characterID, itemName)
	if err != nil {
		return fmt.Errorf("failed to query holdings: %w", err)
	}
	type holding struct {
		id       int64
		quantity int
	}
	var holdings []holding
	total := 0
	for rows.Next() {
		var h holding
		if err := rows.Scan(&h.id, &h.quantity); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan holding row: %w", err)
		}
		holdings = append(holdings, h)
		total += h.quantity
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate holding rows: %w", err)
	}

	if total < quantity {
		return models.ErrInsufficientQuantity
	}

	remaining := quantity
	for _, h := range holdings {
		if remaining == 0 {
			break
		}
		if h.quantity <= remaining {
			if _, err := tx.Exec(`DELETE FROM inventory_items WHERE id = $1`, h.id); err != nil {
				return fmt.Errorf("failed to consume holding row: %w", err)
			}
			remaining -= h.quantity
		} else {
			if _, err := tx.Exec(`UPDATE inventory_items SET quantity = quantity - $1 WHERE id = $2`, remaining, h.id); err != nil {
				return fmt.Errorf("failed to reduce holding row: %w", err)
			}
			remaining = 0
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit deduction: %w", err)
	}
	return nil
}

func (s *PostgresStore) WipeInventory(characterID string) error {
	_, err := s.db.Exec(`DELETE FROM inventory_items WHERE character_id = $1`, characterID)
	if err != nil {
		slog.Error("PostgresStore WipeInventory failed", "error", err, "characterID", characterID)
		return fmt.Errorf("failed to wipe inventory for %s: %w", characterID, err)
	}
	slog.Info("PostgresStore WipeInventory succeeded", "characterID", characterID)
	return nil
}

func (s *PostgresStore) Balance(userID string) (int, error) {
	var balance int
	err := s.db.QueryRow(`SELECT balance FROM token_balances WHERE user_id = $1`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		slog.Error("PostgresStore Balance failed", "error", err, "userID", userID)
		return 0, fmt.Errorf("failed to get balance for %s: %w", userID, err)
	}
	return balance, nil
}

func (s *PostgresStore) SetBalance(userID string, balance int) error {
	_, err := s.db.Exec(`INSERT INTO token_balances (user_id, balance) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET balance = EXCLUDED.balance`, userID, balance)
	if err != nil {
		slog.Error("PostgresStore SetBalance failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to set balance for %s: %w", userID, err)
	}
	return nil
}

func (s *PostgresStore) ZeroBalance(userID string) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin forfeiture transaction: %w", err)
	}
	defer tx.Rollback()

	var balance int
	err = tx.QueryRow(`SELECT balance FROM token_balances WHERE user_id = $1 FOR UPDATE`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance for %s: %w", userID, err)
	}
	if _, err := tx.Exec(`UPDATE token_balances SET balance = 0 WHERE user_id = $1`, userID); err != nil {
		return 0, fmt.Errorf("failed to zero balance for %s: %w", userID, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit forfeiture: %w", err)
	}
	slog.Info("PostgresStore ZeroBalance succeeded", "userID", userID, "forfeited", balance)
	return balance, nil
}

func (s *PostgresStore) RecordAudit(entry models.LedgerAudit) error {
	_, err := s.db.Exec(`INSERT INTO ledger_audits (id, user_id, character_name, amount, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.UserID, entry.CharacterName, entry.Amount, entry.Reason, entry.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore RecordAudit failed", "error", err, "userID", entry.UserID)
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	return s.db.Close()
}
