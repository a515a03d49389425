// Package store provides storage backends for the blight engine.
//
// This file implements the in-memory store used by tests and development
// setups. All operations lock a single mutex, which trivially gives the
// conditional-update semantics the interface demands.
package store

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mossvale/blight/internal/models"
)

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// InMemoryStore keeps all engine state in process memory.
type InMemoryStore struct {
	mu         sync.Mutex
	characters map[string]models.Character        // keyed by id
	requests   map[string]models.HealingRequest   // keyed by submission id
	pending    map[string]string                  // lower(character name) -> submission id
	holdings   map[string][]inventoryRow          // keyed by character id
	balances   map[string]int                     // keyed by user id
	audits     []models.LedgerAudit
}

type inventoryRow struct {
	itemName string
	quantity int
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		characters: make(map[string]models.Character),
		requests:   make(map[string]models.HealingRequest),
		pending:    make(map[string]string),
		holdings:   make(map[string][]inventoryRow),
		balances:   make(map[string]int),
	}
}

func (s *InMemoryStore) SaveCharacter(ch models.Character) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.characters[ch.ID] = ch
	return nil
}

func (s *InMemoryStore) GetCharacter(id string) (*models.Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.characters[id]
	if !ok {
		return nil, nil
	}
	out := ch
	return &out, nil
}

func (s *InMemoryStore) GetCharacterByName(name string) (*models.Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.characters {
		if strings.EqualFold(ch.Name, name) {
			out := ch
			return &out, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) ListBlighted() ([]models.Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Character
	for _, ch := range s.characters {
		if ch.Blighted {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (s *InMemoryStore) UpdateCharacterCAS(ch models.Character, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.characters[ch.ID]
	if !ok {
		return models.ErrCharacterNotFound
	}
	if current.Version != expectedVersion {
		slog.Debug("InMemoryStore UpdateCharacterCAS version conflict", "characterID", ch.ID, "expected", expectedVersion, "actual", current.Version)
		return models.ErrVersionConflict
	}
	ch.Version = expectedVersion + 1
	ch.UpdatedAt = time.Now()
	s.characters[ch.ID] = ch
	return nil
}

func (s *InMemoryStore) CreatePendingRequest(req models.HealingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(req.CharacterName)
	if _, exists := s.pending[key]; exists {
		return models.ErrDuplicatePending
	}
	s.pending[key] = req.SubmissionID
	s.requests[req.SubmissionID] = req
	return nil
}

func (s *InMemoryStore) GetRequest(submissionID string) (*models.HealingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[submissionID]
	if !ok {
		return nil, nil
	}
	out := req
	return &out, nil
}

func (s *InMemoryStore) GetPendingRequestByCharacter(characterName string) (*models.HealingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.pending[strings.ToLower(characterName)]
	if !ok {
		return nil, nil
	}
	req := s.requests[id]
	out := req
	return &out, nil
}

func (s *InMemoryStore) ListRequests() ([]models.HealingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.HealingRequest, 0, len(s.requests))
	for _, req := range s.requests {
		out = append(out, req)
	}
	return out, nil
}

func (s *InMemoryStore) DeleteRequest(submissionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[submissionID]
	if !ok {
		return nil
	}
	delete(s.requests, submissionID)
	delete(s.pending, strings.ToLower(req.CharacterName))
	return nil
}

func (s *InMemoryStore) PurgeExpiredRequests(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for id, req := range s.requests {
		if req.Expired(now) {
			delete(s.requests, id)
			delete(s.pending, strings.ToLower(req.CharacterName))
			purged++
		}
	}
	return purged, nil
}

func (s *InMemoryStore) AddItem(characterID, itemName string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdings[characterID] = append(s.holdings[characterID], inventoryRow{itemName: itemName, quantity: quantity})
	return nil
}

func (s *InMemoryStore) SumQuantity(characterID, itemName string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sumLocked(characterID, itemName), nil
}

func (s *InMemoryStore) sumLocked(characterID, itemName string) int {
	total := 0
	for _, row := range s.holdings[characterID] {
		if strings.EqualFold(row.itemName, itemName) {
			total += row.quantity
		}
	}
	return total
}

func (s *InMemoryStore) DeductItem(characterID, itemName string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sumLocked(characterID, itemName) < quantity {
		return models.ErrInsufficientQuantity
	}
	remaining := quantity
	rows := s.holdings[characterID]
	kept := rows[:0]
	for _, row := range rows {
		if remaining > 0 && strings.EqualFold(row.itemName, itemName) {
			take := row.quantity
			if take > remaining {
				take = remaining
			}
			row.quantity -= take
			remaining -= take
		}
		if row.quantity > 0 {
			kept = append(kept, row)
		}
	}
	s.holdings[characterID] = kept
	return nil
}

func (s *InMemoryStore) WipeInventory(characterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.holdings, characterID)
	return nil
}

func (s *InMemoryStore) Balance(userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID], nil
}

func (s *InMemoryStore) SetBalance(userID string, balance int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] = balance
	return nil
}

func (s *InMemoryStore) ZeroBalance(userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	forfeited := s.balances[userID]
	s.balances[userID] = 0
	return forfeited, nil
}

func (s *InMemoryStore) RecordAudit(entry models.LedgerAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, entry)
	return nil
}

// Audits returns recorded ledger audits (for tests).
func (s *InMemoryStore) Audits() []models.LedgerAudit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.LedgerAudit, len(s.audits))
	copy(out, s.audits)
	return out
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
