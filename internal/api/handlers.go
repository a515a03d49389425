// Package api provides HTTP handlers for the blight engine endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mossvale/blight/internal/models"
)

// createRequestPayload is the body for POST /healing/requests.
type createRequestPayload struct {
	CharacterID string `json:"character_id"`
	HealerName  string `json:"healer_name"`
	UserID      string `json:"user_id"`
}

// fulfillPayload is the body for POST /healing/requests/{id}/fulfill.
type fulfillPayload struct {
	Method   models.FulfillMethod `json:"method"`
	ItemName string               `json:"item_name,omitempty"`
	Quantity int                  `json:"quantity,omitempty"`
	Link     string               `json:"link,omitempty"`
}

func (s *Server) getCharacterHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ch, err := s.store.GetCharacter(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if ch == nil {
		writeDomainError(w, models.ErrCharacterNotFound)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(ch))
}

func (s *Server) rollHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	slog.Debug("Server.rollHandler: processing roll", "characterID", id)

	outcome, err := s.engine.Roll(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(outcome))
}

func (s *Server) afflictHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	slog.Debug("Server.afflictHandler: afflicting character", "characterID", id)

	ch, err := s.engine.Afflict(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(ch))
}

func (s *Server) createRequestHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	var p createRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		slog.Warn("Server.createRequestHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if p.CharacterID == "" || p.HealerName == "" || p.UserID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("character_id, healer_name and user_id are required"))
		return
	}

	req, narration, err := s.workflow.CreateRequest(r.Context(), p.CharacterID, p.HealerName, p.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage(narration, req))
}

func (s *Server) getRequestHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	req, err := s.store.GetRequest(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if req == nil {
		writeDomainError(w, models.ErrRequestNotFound)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(req))
}

func (s *Server) fulfillHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	id := r.PathValue("id")
	var p fulfillPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		slog.Warn("Server.fulfillHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	outcome, err := s.workflow.FulfillRequest(r.Context(), id, p.Method, models.FulfillPayload{
		ItemName: p.ItemName,
		Quantity: p.Quantity,
		Link:     p.Link,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(outcome))
}

func (s *Server) sweepHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.sweepHandler: manual sweep triggered")
	results, err := s.sweeper.Sweep(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(results))
}
