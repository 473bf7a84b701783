// Livefeed - Resilient Streaming Client and Adaptive Consumption Queue
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/livefeed

package server

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/livefeed/internal/logging"
	"github.com/tomtom215/livefeed/internal/models"
	"github.com/tomtom215/livefeed/internal/queue"
)

// maxBodySize bounds control-endpoint request bodies.
const maxBodySize = 64 << 10 // 64 KiB

type feedStatusResponse struct {
	Name     string    `json:"name"`
	State    string    `json:"state"`
	Received uint64    `json:"received"`
	LastSeen time.Time `json:"last_seen,omitempty"`
	Attempt  int       `json:"attempt,omitempty"`
}

type statusResponse struct {
	Feeds   []feedStatusResponse `json:"feeds"`
	Queue   queueSummary         `json:"queue"`
	Advance *advanceStatus       `json:"advance,omitempty"`
}

type queueSummary struct {
	Depth    int    `json:"depth"`
	Cursor   int    `json:"cursor"`
	SortMode string `json:"sort_mode"`
	HasMore  bool   `json:"has_more"`
	Error    string `json:"error,omitempty"`
}

type advanceStatus struct {
	Running   bool          `json:"running"`
	Remaining time.Duration `json:"remaining_ms"`
}

type snapshotResponse struct {
	Items    []models.QueueItem `json:"items"`
	Cursor   int                `json:"cursor"`
	Current  *models.QueueItem  `json:"current,omitempty"`
	SortMode string             `json:"sort_mode"`
	HasMore  bool               `json:"has_more"`
}

type moveResponse struct {
	Moved   bool              `json:"moved"`
	Cursor  int               `json:"cursor"`
	Current *models.QueueItem `json:"current,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Feeds: make([]feedStatusResponse, 0, len(s.opts.Feeds))}

	for _, f := range s.opts.Feeds {
		resp.Feeds = append(resp.Feeds, feedStatusResponse{
			Name:     f.Name(),
			State:    string(f.Status()),
			Received: f.Received(),
			LastSeen: f.LastSeen(),
			Attempt:  f.Attempt(),
		})
	}

	snap := s.opts.Queue.Snapshot()
	resp.Queue = queueSummary{
		Depth:    len(snap.Items),
		Cursor:   snap.Cursor,
		SortMode: string(snap.SortMode),
		HasMore:  snap.HasMore,
	}
	if err := s.opts.Queue.Err(); err != nil {
		resp.Queue.Error = err.Error()
	}

	if s.opts.Advance != nil {
		resp.Advance = &advanceStatus{
			Running:   s.opts.Advance.Running(),
			Remaining: s.opts.Advance.Remaining() / time.Millisecond,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQueueSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap := s.opts.Queue.Snapshot()
	writeJSON(w, http.StatusOK, snapshotResponse{
		Items:    snap.Items,
		Cursor:   snap.Cursor,
		Current:  snap.Current,
		SortMode: string(snap.SortMode),
		HasMore:  snap.HasMore,
	})
}

func (s *Server) handleQueueNext(w http.ResponseWriter, _ *http.Request) {
	before := s.opts.Queue.Snapshot().Cursor
	s.opts.Queue.Next()
	s.writeMove(w, before)
}

func (s *Server) handleQueuePrevious(w http.ResponseWriter, _ *http.Request) {
	before := s.opts.Queue.Snapshot().Cursor
	s.opts.Queue.Previous()
	s.writeMove(w, before)
}

// writeMove reports the cursor position after a navigation call. Moved
// is derived from the cursor itself: a no-op at the boundary reports
// false even though the queue is non-empty.
func (s *Server) writeMove(w http.ResponseWriter, before int) {
	snap := s.opts.Queue.Snapshot()
	writeJSON(w, http.StatusOK, moveResponse{Moved: snap.Cursor != before, Cursor: snap.Cursor, Current: snap.Current})
}

func (s *Server) handleQueueViewed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := s.opts.Queue.MarkViewed(req.ID); err != nil {
		logging.Error().Err(err).Str("id", req.ID).Msg("mark viewed failed")
		writeError(w, http.StatusInternalServerError, "failed to persist viewed mark")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQueueSort(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	mode, err := queue.ParseSortMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.opts.Queue.SetSortMode(mode)
	writeJSON(w, http.StatusOK, map[string]string{"sort_mode": string(mode)})
}

func (s *Server) handleQueueReset(w http.ResponseWriter, _ *http.Request) {
	if err := s.opts.Queue.Reset(); err != nil {
		logging.Error().Err(err).Msg("queue reset failed")
		writeError(w, http.StatusInternalServerError, "failed to reset queue")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQueueMore(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Queue.LoadMore(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, "failed to load more items")
		return
	}
	s.handleQueueSnapshot(w, r)
}

func (s *Server) handleAdvancePause(w http.ResponseWriter, _ *http.Request) {
	s.opts.Advance.Pause()
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleAdvanceResume(w http.ResponseWriter, _ *http.Request) {
	s.opts.Advance.Resume()
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

// decodeBody reads a JSON body, writing a 400 on malformed input.
// Returns false when the response has been written.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
