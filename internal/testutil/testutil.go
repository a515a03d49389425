// Package testutil provides shared fixtures and helpers for blight engine tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mossvale/blight/internal/blight"
	"github.com/mossvale/blight/internal/healing"
	"github.com/mossvale/blight/internal/models"
	"github.com/mossvale/blight/internal/narrative"
	"github.com/mossvale/blight/internal/notify"
	"github.com/mossvale/blight/internal/store"
	"github.com/mossvale/blight/internal/sweeper"
)

// Stack bundles a full in-memory engine assembly for tests.
type Stack struct {
	Store    *store.InMemoryStore
	Engine   *blight.Engine
	Workflow *healing.Workflow
	Sweeper  *sweeper.Sweeper
	Notifier *notify.RecordingService

	// Draw feeds the engine's roll draw; tests mutate it between calls.
	Draw int
}

// NewStack assembles an in-memory engine, workflow and sweeper sharing one
// frozen clock and a controllable draw.
func NewStack(t *testing.T, now time.Time) *Stack {
	t.Helper()
	s := &Stack{Store: store.NewInMemoryStore(), Draw: 500, Notifier: notify.NewRecordingService()}
	clock := func() time.Time { return now }
	s.Engine = blight.NewEngine(s.Store,
		blight.WithClock(clock),
		blight.WithDraw(func() int { return s.Draw }),
	)
	dir := healing.DefaultDirectory(narrative.NewStaticGenerator())
	s.Workflow = healing.NewWorkflow(s.Store, dir, s.Engine, healing.WithClock(clock))
	s.Sweeper = sweeper.NewSweeper(s.Store, s.Engine, s.Workflow, s.Notifier, sweeper.WithClock(clock))
	return s
}

// SeedCharacter stores a character, filling in fixture defaults for any
// identity field left blank.
func (s *Stack) SeedCharacter(t *testing.T, ch models.Character) models.Character {
	t.Helper()
	if ch.ID == "" {
		ch.ID = "char-1"
	}
	if ch.Name == "" {
		ch.Name = "Wren"
	}
	if ch.OwnerUserID == "" {
		ch.OwnerUserID = "user-1"
	}
	if ch.CurrentVillage == "" {
		ch.CurrentVillage = "Emberfall"
	}
	ch.Effects = models.EffectsForStage(ch.BlightStage)
	if err := s.Store.SaveCharacter(ch); err != nil {
		t.Fatalf("SaveCharacter failed: %v", err)
	}
	return ch
}

// DoJSON performs an HTTP request against the handler with an optional JSON
// body and returns the recorded response.
func DoJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// DecodeEnvelope decodes the standard API response envelope.
func DecodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

// DecodeResult re-marshals the envelope's result field into target.
func DecodeResult(t *testing.T, resp models.APIResponse, target interface{}) {
	t.Helper()
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("failed to re-marshal result: %v", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
}

// AssertStatus fails the test when the recorded status differs.
func AssertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d, body = %s", rec.Code, want, rec.Body.String())
	}
}
