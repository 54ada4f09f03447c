package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayboard/internal/dashboard"
	"github.com/dokzlo13/relayboard/internal/relay"
	"github.com/dokzlo13/relayboard/internal/remote"
	"github.com/dokzlo13/relayboard/internal/session"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

type stateRequest struct {
	State string `json:"state"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type createdResponse struct {
	ID int `json:"id"`
}

// ruleRequest carries the rule fields to change. Absent fields keep their
// current value.
type ruleRequest struct {
	Time      *string         `json:"time"`
	Target    *string         `json:"target"`
	Weekdays  *relay.Weekdays `json:"weekdays"`
	Days      []string        `json:"days"`
	Immediate bool            `json:"immediate"`
}

func (req ruleRequest) apply(base relay.AlarmRule) (relay.AlarmRule, error) {
	if req.Time != nil {
		t, err := relay.ParseTimeOfDay(*req.Time)
		if err != nil {
			return base, err
		}
		base.Trigger = t
	}
	if req.Target != nil {
		st, err := relay.ParseState(*req.Target)
		if err != nil {
			return base, err
		}
		base.Target = st
	}
	if req.Weekdays != nil {
		base.Weekdays = *req.Weekdays
	}
	if req.Days != nil {
		var w relay.Weekdays
		for _, name := range req.Days {
			d, err := relay.ParseWeekday(name)
			if err != nil {
				return base, err
			}
			w[d] = true
		}
		base.Weekdays = w
	}
	return base, nil
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.board.Snapshot())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.opts.Refresh != nil {
		s.opts.Refresh()
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if err := s.board.Refresh(r.Context()); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	s.board.Dismiss()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearNotice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid notice id")
		return
	}
	if !s.board.ClearNotice(id) {
		writeError(w, http.StatusNotFound, "unknown notice")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var req stateRequest
	if !decode(w, r, &req) {
		return
	}
	state, err := relay.ParseState(req.State)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.board.Toggle(r.Context(), id, state); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var req nameRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.board.Rename(id, req.Name); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleSystemName(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.board.SetSystemName(req.Name); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleEditRule(w http.ResponseWriter, r *http.Request) {
	relayID, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	ruleID, ok := pathInt(w, r, "ruleId")
	if !ok {
		return
	}
	var req ruleRequest
	if !decode(w, r, &req) {
		return
	}

	base, err := s.board.Rule(relayID, ruleID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	rule, err := req.apply(base)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	immediate := req.Immediate || r.URL.Query().Get("flush") == "true"
	if err := s.board.EditRule(relayID, ruleID, rule, immediate); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) ruleAction(w http.ResponseWriter, r *http.Request, action func(relayID, ruleID int) error) {
	relayID, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	ruleID, ok := pathInt(w, r, "ruleId")
	if !ok {
		return
	}
	if err := action(relayID, ruleID); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRequestDelete(w http.ResponseWriter, r *http.Request) {
	s.ruleAction(w, r, s.board.RequestDelete)
}

func (s *Server) handleCancelDelete(w http.ResponseWriter, r *http.Request) {
	s.ruleAction(w, r, s.board.CancelDelete)
}

func (s *Server) handleConfirmDelete(w http.ResponseWriter, r *http.Request) {
	s.ruleAction(w, r, func(relayID, ruleID int) error {
		return s.board.ConfirmDelete(r.Context(), relayID, ruleID)
	})
}

func (s *Server) handleSetDraft(w http.ResponseWriter, r *http.Request) {
	relayID, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var req ruleRequest
	if !decode(w, r, &req) {
		return
	}
	base, err := s.board.Draft(relayID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	rule, err := req.apply(base)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.board.SetDraft(relayID, rule); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubmitDraft(w http.ResponseWriter, r *http.Request) {
	relayID, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	id, err := s.board.SubmitDraft(r.Context(), relayID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{ID: id})
}

func (s *Server) handleAdjustClock(w http.ResponseWriter, r *http.Request) {
	var adj relay.TimeAdjustment
	if !decode(w, r, &adj) {
		return
	}
	t, err := s.board.AdjustClock(r.Context(), adj)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
		return 0, false
	}
	return v, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return false
	}
	return true
}

// writeFailure maps board errors to status codes.
func writeFailure(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, dashboard.ErrUnknownRelay), errors.Is(err, dashboard.ErrUnknownRule):
		code = http.StatusNotFound
	case errors.Is(err, session.ErrInvalidTransition), errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrClosed):
		code = http.StatusConflict
	case errors.Is(err, relay.ErrInvalidRule), errors.Is(err, relay.ErrMalformedPayload), errors.Is(err, dashboard.ErrEmptyName):
		code = http.StatusBadRequest
	case errors.Is(err, remote.ErrRequestFailed):
		code = http.StatusBadGateway
	}
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	}
	writeError(w, code, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
