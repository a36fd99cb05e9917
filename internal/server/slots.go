package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/teemow/workspace-agent/internal/availability"
	"github.com/teemow/workspace-agent/internal/logging"
	"github.com/teemow/workspace-agent/internal/slots"
)

// UserIDHeader carries the session id of the caller.
const UserIDHeader = "X-User-ID"

// SlotFinder runs a slot search for a session.
// availability.Service implements it.
type SlotFinder interface {
	FindSlots(ctx context.Context, sessionID string, req availability.Request, source string) (*availability.Result, error)
}

// findSlotsRequest is the find-slots body. The session id may be sent in
// the body instead of the header.
type findSlotsRequest struct {
	availability.Request
	UserID string `json:"userId"`
}

type slotResponse struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type findSlotsResponse struct {
	AvailableSlots []slotResponse `json:"availableSlots"`
}

func (s *Server) handleFindSlots(w http.ResponseWriter, r *http.Request) {
	body := findSlotsRequest{Request: availability.DefaultRequest()}
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodyBytes)).Decode(&body)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sessionID := strings.TrimSpace(r.Header.Get(UserIDHeader))
	if sessionID == "" {
		sessionID = strings.TrimSpace(body.UserID)
	}
	if sessionID == "" {
		writeError(w, http.StatusUnauthorized, msgAuthRequired)
		return
	}

	result, err := s.finder.FindSlots(r.Context(), sessionID, body.Request, availability.SourceHTTP)
	if err != nil {
		httpErr := classifyError(err)
		if httpErr.Status >= http.StatusInternalServerError {
			s.logger.Error("Slot search failed",
				logging.RequestID(RequestIDFromContext(r.Context())),
				logging.SessionHash(sessionID),
				logging.Err(err))
		}
		writeError(w, httpErr.Status, httpErr.Message)
		return
	}

	if wantsICS(r) {
		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="available-slots.ics"`)
		if err := slots.WriteICS(w, result.Slots, slots.ICSOptions{Now: s.now()}); err != nil {
			s.logger.Error("Failed to write calendar", logging.Err(err))
		}
		return
	}

	resp := findSlotsResponse{AvailableSlots: make([]slotResponse, 0, len(result.Slots))}
	for _, slot := range result.Slots {
		resp.AvailableSlots = append(resp.AvailableSlots, slotResponse{
			Start: slot.Start.UTC().Format(time.RFC3339),
			End:   slot.End.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func wantsICS(r *http.Request) bool {
	if r.URL.Query().Get("format") == "ics" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/calendar")
}
