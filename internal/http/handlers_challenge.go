package http

import (
	"errors"
	"net/http"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

func (s *Server) handleListChallenges(w http.ResponseWriter, r *http.Request) {
	status := core.ChallengeStatus(r.URL.Query().Get("status"))
	list, err := s.store.ListChallenges(r.Context(), ownerFrom(r), status)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Challenge listing failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toChallengeList(list))
}

// handleGenerateChallenges proposes new spending challenges from recent
// history. Generation failures come back as an empty list, never an error.
func (s *Server) handleGenerateChallenges(w http.ResponseWriter, r *http.Request) {
	created, err := s.challenges.Generate(r.Context(), ownerFrom(r), time.Now())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Challenge generation failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toChallengeList(created))
}

func (s *Server) handleAcceptChallenge(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ch, err := s.challenges.Accept(r.Context(), ownerFrom(r), id, time.Now())
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "challenge not found")
		case errors.Is(err, services.ErrChallengeNotPending):
			writeError(w, http.StatusConflict, "challenge is not pending")
		default:
			s.logger.ErrorContext(r.Context(), "Challenge accept failed", log.FieldError, err, log.FieldChallengeID, id)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, toChallengeJSON(*ch))
}

// handleChallengeProgress refreshes every active challenge against the
// ledger and settles those past their end date.
func (s *Server) handleChallengeProgress(w http.ResponseWriter, r *http.Request) {
	list, err := s.challenges.CheckProgress(r.Context(), ownerFrom(r), time.Now())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Challenge progress check failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, toChallengeList(list))
}
