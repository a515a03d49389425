// Package store provides storage backends for the blight engine.
//
// This file implements the SQLite-backed store, the default for single-node
// deployments.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/mossvale/blight/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// A single connection serializes writers, so conditional inserts and
	// CAS updates never surface SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveCharacter(ch models.Character) error {
	query := `INSERT OR REPLACE INTO characters (` + characterColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.Exec(query,
		ch.ID, ch.Name, ch.OwnerUserID, ch.HomeVillage, ch.CurrentVillage,
		ch.Blighted, ch.BlightStage, zeroAsNull(ch.LastRollDate),
		timePtr(ch.DeathDeadline), timePtr(ch.DeathWarningAt),
		ch.BlightPaused, ch.Effects.RollMultiplier, ch.Effects.NoMonsters,
		ch.Effects.NoGathering, ch.Version, ch.CreatedAt, ch.UpdatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore SaveCharacter failed", "error", err, "characterID", ch.ID)
		return fmt.Errorf("failed to save character %s: %w", ch.ID, err)
	}
	slog.Debug("SQLiteStore SaveCharacter succeeded", "characterID", ch.ID)
	return nil
}

func (s *SQLiteStore) GetCharacter(id string) (*models.Character, error) {
	row := s.db.QueryRow(`SELECT `+characterColumns+` FROM characters WHERE id = ?`, id)
	ch, err := scanCharacter(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetCharacter failed", "error", err, "characterID", id)
		return nil, fmt.Errorf("failed to get character %s: %w", id, err)
	}
	return &ch, nil
}

func (s *SQLiteStore) GetCharacterByName(name string) (*models.Character, error) {
	row := s.db.QueryRow(`SELECT `+characterColumns+` FROM characters WHERE name = ?`, name)
	ch, err := scanCharacter(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetCharacterByName failed", "error", err, "name", name)
		return nil, fmt.Errorf("failed to get character %q: %w", name, err)
	}
	return &ch, nil
}

func (s *SQLiteStore) ListBlighted() ([]models.Character, error) {
	rows, err := s.db.Query(`SELECT ` + characterColumns + ` FROM characters WHERE blighted = 1`)
	if err != nil {
		slog.Error("SQLiteStore ListBlighted query failed", "error", err)
		return nil, fmt.Errorf("failed to query blighted characters: %w", err)
	}
	defer rows.Close()

	var out []models.Character
	for rows.Next() {
		ch, err := scanCharacter(rows)
		if err != nil {
			slog.Error("SQLiteStore ListBlighted scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan character row: %w", err)
		}
		out = append(out, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate character rows: %w", err)
	}
	slog.Debug("SQLiteStore ListBlighted succeeded", "count", len(out))
	return out, nil
}

func (s *SQLiteStore) UpdateCharacterCAS(ch models.Character, expectedVersion int) error {
	query := `UPDATE characters SET
		name = ?, owner_user_id = ?, home_village = ?, current_village = ?,
		blighted = ?, blight_stage = ?, last_roll_date = ?, death_deadline = ?,
		death_warning_at = ?, blight_paused = ?, roll_multiplier = ?,
		no_monsters = ?, no_gathering = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`
	res, err := s.db.Exec(query,
		ch.Name, ch.OwnerUserID, ch.HomeVillage, ch.CurrentVillage,
		ch.Blighted, ch.BlightStage, zeroAsNull(ch.LastRollDate),
		timePtr(ch.DeathDeadline), timePtr(ch.DeathWarningAt),
		ch.BlightPaused, ch.Effects.RollMultiplier, ch.Effects.NoMonsters,
		ch.Effects.NoGathering, time.Now(), ch.ID, expectedVersion,
	)
	if err != nil {
		slog.Error("SQLiteStore UpdateCharacterCAS failed", "error", err, "characterID", ch.ID)
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
		slog.Debug("SQLiteStore UpdateCharacterCAS version conflict", "characterID", ch.ID, "expected", expectedVersion, "actual", existing.Version)
		return models.ErrVersionConflict
	}
	return nil
}

func (s *SQLiteStore) CreatePendingRequest(req models.HealingRequest) error {
	items, err := marshalItems(req.Items)
	if err != nil {
		return err
	}
	query := `INSERT OR IGNORE INTO healing_requests (` + requestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.Exec(query,
		req.SubmissionID, req.OwnerUserID, req.CharacterName, req.HealerName,
		req.TaskType, req.TaskDescription, items, req.StageAtCreation,
		req.Status, req.CreatedAt, req.ExpiresAt,
	)
	if err != nil {
		slog.Error("SQLiteStore CreatePendingRequest failed", "error", err, "character", req.CharacterName)
		return fmt.Errorf("failed to insert healing request for %s: %w", req.CharacterName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		// Lost the conditional insert; a pending request already holds the slot.
		return models.ErrDuplicatePending
	}
	slog.Debug("SQLiteStore CreatePendingRequest succeeded", "submissionID", req.SubmissionID, "character", req.CharacterName)
	return nil
}

func (s *SQLiteStore) GetRequest(submissionID string) (*models.HealingRequest, error) {
	row := s.db.QueryRow(`SELECT `+requestColumns+` FROM healing_requests WHERE submission_id = ?`, submissionID)
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetRequest failed", "error", err, "submissionID", submissionID)
		return nil, fmt.Errorf("failed to get healing request %s: %w", submissionID, err)
	}
	return &req, nil
}

func (s *SQLiteStore) GetPendingRequestByCharacter(characterName string) (*models.HealingRequest, error) {
	row := s.db.QueryRow(`SELECT `+requestColumns+` FROM healing_requests WHERE character_name = ? AND status = ?`,
		characterName, models.RequestStatusPending)
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetPendingRequestByCharacter failed", "error", err, "character", characterName)
		return nil, fmt.Errorf("failed to get pending request for %s: %w", characterName, err)
	}
	return &req, nil
}

func (s *SQLiteStore) ListRequests() ([]models.HealingRequest, error) {
	rows, err := s.db.Query(`SELECT ` + requestColumns + ` FROM healing_requests`)
	if err != nil {
		slog.Error("SQLiteStore ListRequests query failed", "error", err)
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

func (s *SQLiteStore) DeleteRequest(submissionID string) error {
	_, err := s.db.Exec(`DELETE FROM healing_requests WHERE submission_id = ?`, submissionID)
	if err != nil {
		slog.Error("SQLiteStore DeleteRequest failed", "error", err, "submissionID", submissionID)
		return fmt.Errorf("failed to delete healing request %s: %w", submissionID, err)
	}
	slog.Debug("SQLiteStore DeleteRequest succeeded", "submissionID", submissionID)
	return nil
}

func (s *SQLiteStore) PurgeExpiredRequests(now time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM healing_requests WHERE expires_at <= ?`, now)
	if err != nil {
		slog.Error("SQLiteStore PurgeExpiredRequests failed", "error", err)
		return 0, fmt.Errorf("failed to purge expired requests: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n > 0 {
		slog.Info("SQLiteStore PurgeExpiredRequests removed expired requests", "count", n)
	}
	return int(n), nil
}

func (s *SQLiteStore) AddItem(characterID, itemName string, quantity int) error {
	_, err := s.db.Exec(`INSERT INTO inventory_items (character_id, item_name, quantity) VALUES (?, ?, ?)`,
		characterID, itemName, quantity)
	if err != nil {
		slog.Error("SQLiteStore AddItem failed", "error", err, "characterID", characterID, "item", itemName)
		return fmt.Errorf("failed to add inventory item: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SumQuantity(characterID, itemName string) (int, error) {
	var total sql.NullInt64
	err := s.db.QueryRow(`SELECT SUM(quantity) FROM inventory_items WHERE character_id = ? AND item_name = ?`,
		characterID, itemName).Scan(&total)
	if err != nil {
		slog.Error("SQLiteStore SumQuantity failed", "error", err, "characterID", characterID, "item", itemName)
		return 0, fmt.Errorf("failed to sum item quantity: %w", err)
	}
	return int(total.Int64), nil
}

func (s *SQLiteStore) DeductItem(characterID, itemName string, quantity int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin deduction transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT id, quantity FROM inventory_items WHERE character_id = ? AND item_name = ? ORDER BY id`,
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
			if _, err := tx.Exec(`DELETE FROM inventory_items WHERE id = ?`, h.id); err != nil {
				return fmt.Errorf("failed to consume holding row: %w", err)
			}
			remaining -= h.quantity
		} else {
			if _, err := tx.Exec(`UPDATE inventory_items SET quantity = quantity - ? WHERE id = ?`, remaining, h.id); err != nil {
				return fmt.Errorf("failed to reduce holding row: %w", err)
			}
			remaining = 0
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit deduction: %w", err)
	}
	slog.Debug("SQLiteStore DeductItem succeeded", "characterID", characterID, "item", itemName, "quantity", quantity)
	return nil
}

func (s *SQLiteStore) WipeInventory(characterID string) error {
	_, err := s.db.Exec(`DELETE FROM inventory_items WHERE character_id = ?`, characterID)
	if err != nil {
		slog.Error("SQLiteStore WipeInventory failed", "error", err, "characterID", characterID)
		return fmt.Errorf("failed to wipe inventory for %s: %w", characterID, err)
	}
	slog.Info("SQLiteStore WipeInventory succeeded", "characterID", characterID)
	return nil
}

func (s *SQLiteStore) Balance(userID string) (int, error) {
	var balance int
	err := s.db.QueryRow(`SELECT balance FROM token_balances WHERE user_id = ?`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		slog.Error("SQLiteStore Balance failed", "error", err, "userID", userID)
		return 0, fmt.Errorf("failed to get balance for %s: %w", userID, err)
	}
	return balance, nil
}

func (s *SQLiteStore) SetBalance(userID string, balance int) error {
	_, err := s.db.Exec(`INSERT INTO token_balances (user_id, balance) VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET balance = excluded.balance`, userID, balance)
	if err != nil {
		slog.Error("SQLiteStore SetBalance failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to set balance for %s: %w", userID, err)
	}
	return nil
}

func (s *SQLiteStore) ZeroBalance(userID string) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin forfeiture transaction: %w", err)
	}
	defer tx.Rollback()

	var balance int
	err = tx.QueryRow(`SELECT balance FROM token_balances WHERE user_id = ?`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance for %s: %w", userID, err)
	}
	if _, err := tx.Exec(`UPDATE token_balances SET balance = 0 WHERE user_id = ?`, userID); err != nil {
		return 0, fmt.Errorf("failed to zero balance for %s: %w", userID, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit forfeiture: %w", err)
	}
	slog.Info("SQLiteStore ZeroBalance succeeded", "userID", userID, "forfeited", balance)
	return balance, nil
}

func (s *SQLiteStore) RecordAudit(entry models.LedgerAudit) error {
	_, err := s.db.Exec(`INSERT INTO ledger_audits (id, user_id, character_name, amount, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.CharacterName, entry.Amount, entry.Reason, entry.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore RecordAudit failed", "error", err, "userID", entry.UserID)
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
