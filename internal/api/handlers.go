// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/tgstream/internal/domain/session/model"
	"github.com/ManuGH/tgstream/internal/log"
)

const maxRequestBody = 64 << 10

// StartStreamRequest is the body of POST /api/streams.
type StartStreamRequest struct {
	Chat    string `json:"chat"`
	Source  string `json:"source"`
	Profile string `json:"profile,omitempty"`
}

// StreamListResponse is the body of GET /api/streams.
type StreamListResponse struct {
	Streams []model.Snapshot `json:"streams"`
	Count   int              `json:"count"`
}

func (s *Server) handleStartStream(w http.ResponseWriter, r *http.Request) {
	var req StartStreamRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body: "+err.Error())
		return
	}
	req.Chat = strings.TrimSpace(req.Chat)
	req.Source = strings.TrimSpace(req.Source)
	if req.Chat == "" || req.Source == "" {
		writeProblem(w, http.StatusBadRequest, codeInvalidRequest, "chat and source are required")
		return
	}

	profile := s.defaultProfile()
	if req.Profile != "" {
		p, err := model.ParseProfile(req.Profile)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, codeInvalidProfile, err.Error())
			return
		}
		profile = p
	}

	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str(log.FieldEvent, "stream.start_requested").
		Str("chat", req.Chat).
		Str(log.FieldProfile, string(profile)).
		Msg("start stream requested")

	snap, err := s.sessions.Start(r.Context(), req.Chat, req.Source, profile)
	if err != nil {
		logger.Warn().Err(err).Str(log.FieldEvent, "stream.start_failed").Str("chat", req.Chat).Msg("start stream failed")
		writeSessionError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/streams/"+snap.ID)
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleListStreams(w http.ResponseWriter, r *http.Request) {
	activeOnly := false
	if v := r.URL.Query().Get("active_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, codeInvalidRequest, fmt.Sprintf("invalid active_only value %q", v))
			return
		}
		activeOnly = b
	}

	var streams []model.Snapshot
	if activeOnly {
		streams = s.sessions.ListActive()
	} else {
		streams = s.sessions.List()
	}
	if streams == nil {
		streams = []model.Snapshot{}
	}
	writeJSON(w, http.StatusOK, StreamListResponse{Streams: streams, Count: len(streams)})
}

// sessionID returns the {id} path parameter, writing a 404 when it cannot
// name any session.
func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !model.IsSafeSessionID(id) {
		writeNotFound(w, id)
		return "", false
	}
	return id, true
}

func writeNotFound(w http.ResponseWriter, id string) {
	writeProblem(w, http.StatusNotFound, codeNotFound, "Stream not found: "+id)
}

func (s *Server) handleGetStream(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	snap, found := s.sessions.Get(id)
	if !found {
		writeNotFound(w, id)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStopStream(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	if !s.sessions.Stop(r.Context(), id) {
		writeNotFound(w, id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePauseStream(w http.ResponseWriter, r *http.Request) {
	s.toggle(w, r, s.sessions.Pause, "Stream not in pausable state")
}

func (s *Server) handleResumeStream(w http.ResponseWriter, r *http.Request) {
	s.toggle(w, r, s.sessions.Resume, "Stream not paused")
}

// toggle runs pause or resume. A refusal is a 404 when the session is gone
// and otherwise a 409 naming the current status.
func (s *Server) toggle(w http.ResponseWriter, r *http.Request,
	do func(ctx context.Context, id string) bool, refusal string) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	if !do(r.Context(), id) {
		snap, found := s.sessions.Get(id)
		if !found {
			writeNotFound(w, id)
			return
		}
		writeProblem(w, http.StatusConflict, codeInvalidState, fmt.Sprintf("%s: %s", refusal, snap.Status))
		return
	}
	snap, found := s.sessions.Get(id)
	if !found {
		writeNotFound(w, id)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
