// Package store provides storage backends for the blight engine.
//
// Three backends implement the same Store interface: an in-memory store for
// tests and development, an SQLite store for single-node deployments, and a
// PostgreSQL store. All mutations that race across triggers (user commands,
// the sweeper, the announcer) are expressed as conditional updates so the
// backends can enforce them atomically.
package store

import (
	"strings"
	"time"

	"github.com/mossvale/blight/internal/models"
)

// Opts holds configuration for store backends.
type Opts struct {
	// DSN is the database connection string. File paths select SQLite,
	// postgres:// URLs or key=value DSNs select PostgreSQL.
	DSN string
}

// Option configures store construction.
type Option func(*Opts)

// WithSQLiteDSN sets a SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets a PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL connection strings and
// "sqlite" for anything else (treated as a file path).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// CharacterStore is the persistence contract for character blight state.
type CharacterStore interface {
	// SaveCharacter inserts or replaces a character record.
	SaveCharacter(ch models.Character) error

	// GetCharacter returns the character with the given id, or nil if absent.
	GetCharacter(id string) (*models.Character, error)

	// GetCharacterByName returns the character with the given name, or nil if absent.
	GetCharacterByName(name string) (*models.Character, error)

	// ListBlighted returns every character with an active blight stage.
	ListBlighted() ([]models.Character, error)

	// UpdateCharacterCAS writes ch only if the stored version still equals
	// expectedVersion, bumping the version on success. Returns
	// models.ErrVersionConflict if another writer got there first.
	UpdateCharacterCAS(ch models.Character, expectedVersion int) error
}

// RequestStore is the persistence contract for expiring healing requests.
type RequestStore interface {
	// CreatePendingRequest inserts req if and only if no pending request
	// exists for the same character. The check-and-insert is atomic;
	// a lost race returns models.ErrDuplicatePending.
	CreatePendingRequest(req models.HealingRequest) error

	// GetRequest returns the request with the given submission id, or nil if absent.
	GetRequest(submissionID string) (*models.HealingRequest, error)

	// GetPendingRequestByCharacter returns the pending request for a
	// character, or nil if none exists.
	GetPendingRequestByCharacter(characterName string) (*models.HealingRequest, error)

	// ListRequests returns all persisted healing requests.
	ListRequests() ([]models.HealingRequest, error)

	// DeleteRequest removes a request, freeing the character's uniqueness slot.
	DeleteRequest(submissionID string) error

	// PurgeExpiredRequests deletes every request whose TTL lapsed before
	// now and returns how many were removed.
	PurgeExpiredRequests(now time.Time) (int, error)
}

// InventoryStore is the narrow inventory contract the engine consumes.
// Holdings may span multiple rows per item name; quantities are summed.
type InventoryStore interface {
	// AddItem appends a holding row for the character.
	AddItem(characterID, itemName string, quantity int) error

	// SumQuantity returns the summed quantity of an item across the
	// character's holdings. The name match is case-insensitive.
	SumQuantity(characterID, itemName string) (int, error)

	// DeductItem removes quantity units of an item across the character's
	// holdings in a single transaction. Returns
	// models.ErrInsufficientQuantity if the holdings sum falls short, in
	// which case nothing is deducted.
	DeductItem(characterID, itemName string, quantity int) error

	// WipeInventory removes every holding of the character.
	WipeInventory(characterID string) error
}

// LedgerStore is the token ledger contract.
type LedgerStore interface {
	// Balance returns the user's current token balance.
	Balance(userID string) (int, error)

	// SetBalance sets the user's token balance.
	SetBalance(userID string, balance int) error

	// ZeroBalance atomically forfeits the user's entire balance and
	// returns the amount that was forfeited.
	ZeroBalance(userID string) (int, error)

	// RecordAudit persists a ledger audit entry.
	RecordAudit(entry models.LedgerAudit) error
}

// Store combines every persistence contract the engine consumes.
type Store interface {
	CharacterStore
	RequestStore
	InventoryStore
	LedgerStore

	// Close releases the backend's resources.
	Close() error
}

// FromOpts constructs a store from options: a PostgreSQL store for postgres
// DSNs, an SQLite store for file DSNs, and an in-memory store when no DSN is
// configured.
func FromOpts(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		return NewPostgresStore(WithPostgresDSN(cfg.DSN))
	}
	return NewSQLiteStore(WithSQLiteDSN(cfg.DSN))
}
