package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mossvale/blight/internal/models"
	"github.com/mossvale/blight/internal/sweeper"
	"github.com/mossvale/blight/internal/testutil"
)

var apiNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestHandler(t *testing.T) (*testutil.Stack, http.Handler) {
	t.Helper()
	stack := testutil.NewStack(t, apiNow)
	server := NewServer(stack.Engine, stack.Workflow, stack.Sweeper, stack.Store)
	return stack, server.Handler()
}

func TestGetCharacter(t *testing.T) {
	stack, handler := newTestHandler(t)
	stack.SeedCharacter(t, models.Character{Blighted: true, BlightStage: 2})

	rec := testutil.DoJSON(t, handler, http.MethodGet, "/characters/char-1", nil)
	testutil.AssertStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	resp := testutil.DecodeEnvelope(t, rec)
	if resp.Status != string(models.APIStatusOK) {
		t.Errorf("response status = %q", resp.Status)
	}
	var ch models.Character
	testutil.DecodeResult(t, resp, &ch)
	if ch.ID != "char-1" || ch.BlightStage != 2 {
		t.Errorf("unexpected character payload: %+v", ch)
	}
}

func TestGetCharacterNotFound(t *testing.T) {
	_, handler := newTestHandler(t)
	rec := testutil.DoJSON(t, handler, http.MethodGet, "/characters/ghost", nil)
	testutil.AssertStatus(t, rec, http.StatusNotFound)
}

func TestRollEndpoint(t *testing.T) {
	stack, handler := newTestHandler(t)
	stack.SeedCharacter(t, models.Character{Blighted: true, BlightStage: 1})
	stack.Draw = 30 // band for stage 3

	rec := testutil.DoJSON(t, handler, http.MethodPost, "/characters/char-1/roll", nil)
	testutil.AssertStatus(t, rec, http.StatusOK)

	var outcome models.RollOutcome
	testutil.DecodeResult(t, testutil.DecodeEnvelope(t, rec), &outcome)
	if outcome.NewStage != 3 || !outcome.Progressed {
		t.Errorf("unexpected roll outcome: %+v", outcome)
	}

	// Rolling again in the same window conflicts.
	rec = testutil.DoJSON(t, handler, http.MethodPost, "/characters/char-1/roll", nil)
	testutil.AssertStatus(t, rec, http.StatusConflict)
}

func TestRollEndpointNotAfflicted(t *testing.T) {
	stack, handler := newTestHandler(t)
	stack.SeedCharacter(t, models.Character{})

	rec := testutil.DoJSON(t, handler, http.MethodPost, "/characters/char-1/roll", nil)
	testutil.AssertStatus(t, rec, http.StatusBadRequest)
}

func TestAfflictEndpoint(t *testing.T) {
	stack, handler := newTestHandler(t)
	stack.SeedCharacter(t, models.Character{})

	rec := testutil.DoJSON(t, handler, http.MethodPost, "/characters/char-1/afflict", nil)
	testutil.AssertStatus(t, rec, http.StatusOK)

	ch, _ := stack.Store.GetCharacter("char-1")
	if !ch.Blighted || ch.BlightStage != 1 {
		t.Errorf("character not afflicted: %+v", ch)
	}
}

func TestCreateAndFulfillRequest(t *testing.T) {
	stack, handler := newTestHandler(t)
	stack.SeedCharacter(t, models.Character{Blighted: true, BlightStage: 2})

	rec := testutil.DoJSON(t, handler, http.MethodPost, "/healing/requests", createRequestPayload{
		CharacterID: "char-1", HealerName: "Maren", UserID: "user-1",
	})
	testutil.AssertStatus(t, rec, http.StatusCreated)
	resp := testutil.DecodeEnvelope(t, rec)
	if resp.Message == "" {
		t.Error("create response should carry the healer narration")
	}

	var created models.HealingRequest
	testutil.DecodeResult(t, resp, &created)
	if !strings.HasPrefix(created.SubmissionID, "heal_") {
		t.Fatalf("unexpected submission id %q", created.SubmissionID)
	}

	rec = testutil.DoJSON(t, handler, http.MethodGet, "/healing/requests/"+created.SubmissionID, nil)
	testutil.AssertStatus(t, rec, http.StatusOK)

	if err := stack.Store.SetBalance("user-1", 50); err != nil {
		t.Fatal(err)
	}
	rec = testutil.DoJSON(t, handler, http.MethodPost, "/healing/requests/"+created.SubmissionID+"/fulfill", fulfillPayload{
		Method: models.FulfillTokens,
	})
	testutil.AssertStatus(t, rec, http.StatusOK)

	var outcome models.FulfillOutcome
	testutil.DecodeResult(t, testutil.DecodeEnvelope(t, rec), &outcome)
	if outcome.TokensForfeited != 50 {
		t.Errorf("TokensForfeited = %d, want 50", outcome.TokensForfeited)
	}

	ch, _ := stack.Store.GetCharacter("char-1")
	if ch.Blighted {
		t.Error("character should be cured after fulfillment")
	}
}

func TestCreateRequestValidation(t *testing.T) {
	_, handler := newTestHandler(t)

	rec := testutil.DoJSON(t, handler, http.MethodPost, "/healing/requests", createRequestPayload{CharacterID: "char-1"})
	testutil.AssertStatus(t, rec, http.StatusBadRequest)

	req := httptest.NewRequest(http.MethodPost, "/healing/requests", strings.NewReader("{not json"))
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusBadRequest {
		t.Errorf("bad JSON status = %d, want 400", rec2.Code)
	}
}

func TestCreateRequestDuplicateConflict(t *testing.T) {
	stack, handler := newTestHandler(t)
	stack.SeedCharacter(t, models.Character{Blighted: true, BlightStage: 2})

	payload := createRequestPayload{CharacterID: "char-1", HealerName: "Maren", UserID: "user-1"}
	rec := testutil.DoJSON(t, handler, http.MethodPost, "/healing/requests", payload)
	testutil.AssertStatus(t, rec, http.StatusCreated)

	rec = testutil.DoJSON(t, handler, http.MethodPost, "/healing/requests", payload)
	testutil.AssertStatus(t, rec, http.StatusConflict)
}

func TestFulfillUnknownRequest(t *testing.T) {
	_, handler := newTestHandler(t)
	rec := testutil.DoJSON(t, handler, http.MethodPost, "/healing/requests/heal_missing/fulfill",
		fulfillPayload{Method: models.FulfillTokens})
	testutil.AssertStatus(t, rec, http.StatusNotFound)
}

func TestSweepEndpoint(t *testing.T) {
	stack, handler := newTestHandler(t)
	stack.SeedCharacter(t, models.Character{Blighted: true, BlightStage: 1, LastRollDate: apiNow.Add(-30 * time.Hour)})

	rec := testutil.DoJSON(t, handler, http.MethodPost, "/sweep", nil)
	testutil.AssertStatus(t, rec, http.StatusOK)

	ch, _ := stack.Store.GetCharacter("char-1")
	if ch.BlightStage != 2 {
		t.Errorf("sweep should escalate the stale character, stage = %d", ch.BlightStage)
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.ErrCharacterNotFound, http.StatusNotFound},
		{models.ErrRequestNotFound, http.StatusNotFound},
		{models.ErrAlreadyRolled, http.StatusConflict},
		{models.ErrDuplicatePending, http.StatusConflict},
		{models.ErrVersionConflict, http.StatusConflict},
		{sweeper.ErrSweepInProgress, http.StatusConflict},
		{models.ErrRequestExpired, http.StatusGone},
		{models.ErrStageForbidden, http.StatusBadRequest},
		{models.ErrEmptyLink, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if got := statusForError(tt.err); got != tt.want {
			t.Errorf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
