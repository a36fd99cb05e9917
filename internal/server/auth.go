package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/teemow/workspace-agent/internal/google"
	"github.com/teemow/workspace-agent/internal/instrumentation"
	"github.com/teemow/workspace-agent/internal/logging"
	"github.com/teemow/workspace-agent/internal/session"
)

// Exchanger trades an authorization code for a new session id.
// session.Provider implements it.
type Exchanger interface {
	Exchange(ctx context.Context, code string) (string, error)
}

type authURLRequest struct {
	Origin string `json:"origin"`
}

type authURLResponse struct {
	URL string `json:"url"`
}

// handleAuthURL starts the consent flow for the origin the user should be
// sent back to.
func (s *Server) handleAuthURL(w http.ResponseWriter, r *http.Request) {
	var req authURLRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}
	if err := session.ValidateOrigin(req.Origin, s.allowedHosts); err != nil {
		s.logger.Warn("Rejected auth origin", logging.Origin(req.Origin), logging.Err(err))
		writeError(w, http.StatusBadRequest, "Invalid origin")
		return
	}

	state, err := s.states.Issue(r.Context(), req.Origin)
	if err != nil {
		s.logger.Error("Failed to issue oauth state", logging.Err(err))
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	writeJSON(w, http.StatusOK, authURLResponse{URL: google.AuthCodeURL(s.oauth, state)})
}

// handleAuthCallback completes the consent flow and redirects back to the
// origin with either the new session id or auth=failed.
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()
	clientIP := getClientIP(r, s.trustProxy)

	state, err := s.states.Consume(ctx, query.Get("state"))
	if err != nil {
		s.authFailed(ctx, "", clientIP, err)
		if s.frontendURL == "" {
			writeError(w, http.StatusBadRequest, "Invalid or expired state")
			return
		}
		s.redirect(w, r, s.frontendURL, url.Values{"auth": {"failed"}})
		return
	}

	target := state.Origin
	if s.frontendURL != "" {
		target = s.frontendURL
	}

	if oauthErr := query.Get("error"); oauthErr != "" {
		s.authFailed(ctx, target, clientIP, errors.New("consent denied: "+oauthErr))
		s.redirect(w, r, target, url.Values{"auth": {"failed"}})
		return
	}
	code := query.Get("code")
	if code == "" {
		s.authFailed(ctx, target, clientIP, errors.New("missing authorization code"))
		s.redirect(w, r, target, url.Values{"auth": {"failed"}})
		return
	}

	sessionID, err := s.sessions.Exchange(ctx, code)
	if err != nil {
		s.authFailed(ctx, target, clientIP, err)
		s.redirect(w, r, target, url.Values{"auth": {"failed"}})
		return
	}

	s.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)
	s.audit.LogSessionEvent(ctx, instrumentation.NewSessionEvent(ctx,
		instrumentation.SessionCreated, logging.AnonymizeSession(sessionID)).
		WithOrigin(logging.ExtractHost(target)).
		WithClientIP(clientIP))

	s.redirect(w, r, target, url.Values{"userId": {sessionID}, "auth": {"success"}})
}

func (s *Server) authFailed(ctx context.Context, origin, clientIP string, cause error) {
	s.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
	s.audit.LogSessionEvent(ctx, instrumentation.NewSessionEvent(ctx, instrumentation.SessionAuthFailed, "").
		WithOrigin(logging.ExtractHost(origin)).
		WithClientIP(clientIP).
		WithReason(cause.Error()))
	s.logger.Warn("OAuth callback failed", logging.Origin(origin), logging.Err(cause))
}

// redirect sends the browser to target with params merged into its query.
func (s *Server) redirect(w http.ResponseWriter, r *http.Request, target string, params url.Values) {
	u, err := url.Parse(target)
	if err != nil {
		s.logger.Error("Invalid redirect target", slog.String("target", logging.ExtractHost(target)), logging.Err(err))
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	q := u.Query()
	for k, v := range params {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}
