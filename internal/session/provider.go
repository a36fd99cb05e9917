package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/teemow/workspace-agent/internal/google"
	"github.com/teemow/workspace-agent/internal/instrumentation"
	"github.com/teemow/workspace-agent/internal/logging"
)

// ProviderConfig configures a Provider.
type ProviderConfig struct {
	// OAuth is the client configuration used for exchange and refresh.
	OAuth *oauth2.Config

	// Store holds the session tokens.
	Store TokenStore

	// HTTPClient is used for token requests and as the base of the clients
	// returned by Client (default: google.NewHTTPClient).
	HTTPClient *http.Client

	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger
	Logger  *slog.Logger
}

// Provider resolves sessions to Google credentials.
// It is safe for concurrent use.
type Provider struct {
	oauth      *oauth2.Config
	store      TokenStore
	httpClient *http.Client
	metrics    *instrumentation.Metrics
	audit      *instrumentation.AuditLogger
	logger     *slog.Logger

	refreshes singleflight.Group
	now       func() time.Time
}

// NewProvider creates a Provider.
func NewProvider(config ProviderConfig) (*Provider, error) {
	if config.OAuth == nil {
		return nil, errors.New("oauth config is required")
	}
	if config.Store == nil {
		return nil, errors.New("token store is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = google.NewHTTPClient(0)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Provider{
		oauth:      config.OAuth,
		store:      config.Store,
		httpClient: httpClient,
		metrics:    config.Metrics,
		audit:      config.Audit,
		logger:     logging.WithService(logger, instrumentation.ServiceOAuth),
		now:        time.Now,
	}, nil
}

// Exchange trades an authorization code for a token and stores it under a
// new session id, which it returns.
func (p *Provider) Exchange(ctx context.Context, code string) (string, error) {
	start := time.Now()
	token, err := p.oauth.Exchange(google.WithHTTPClient(ctx, p.httpClient), code)
	if err != nil {
		p.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationTokenExchange, instrumentation.StatusError, time.Since(start))
		return "", fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	p.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationTokenExchange, instrumentation.StatusSuccess, time.Since(start))

	id, err := NewID()
	if err != nil {
		return "", err
	}
	if err := p.store.SaveToken(ctx, id, token); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}

	p.metrics.RecordSessionCreated(ctx)
	p.logger.Info("Session created",
		logging.SessionHash(id),
		slog.Bool("has_refresh_token", token.RefreshToken != ""))
	return id, nil
}

// Token returns a valid access token for sessionID, refreshing it when it
// expires within RefreshThreshold.
func (p *Provider) Token(ctx context.Context, sessionID string) (*oauth2.Token, error) {
	token, err := p.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !isTokenExpired(token, RefreshThreshold, p.now()) {
		return token, nil
	}
	return p.refresh(ctx, sessionID, token)
}

// Refresh unconditionally refreshes the token of sessionID.
func (p *Provider) Refresh(ctx context.Context, sessionID string) (*oauth2.Token, error) {
	token, err := p.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return p.refresh(ctx, sessionID, token)
}

// Client returns an HTTP client authorized as sessionID. A request answered
// with 401 is retried once after a forced refresh; a second 401 yields
// ErrNeedsReauth.
func (p *Provider) Client(ctx context.Context, sessionID string) (*http.Client, error) {
	token, err := p.Token(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	base := p.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{
		Timeout: p.httpClient.Timeout,
		Transport: &retryTransport{
			provider:  p,
			sessionID: sessionID,
			base:      base,
			token:     token,
		},
	}, nil
}

func (p *Provider) load(ctx context.Context, sessionID string) (*oauth2.Token, error) {
	if err := ValidateID(sessionID); err != nil {
		return nil, err
	}

	token, err := p.store.GetToken(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return token, nil
}

// refresh coalesces concurrent refreshes of one session. A caller whose
// ctx ends stops waiting, while the refresh continues for the others.
func (p *Provider) refresh(ctx context.Context, sessionID string, token *oauth2.Token) (*oauth2.Token, error) {
	ch := p.refreshes.DoChan(sessionID, func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), RefreshTimeout)
		defer cancel()
		return p.doRefresh(refreshCtx, sessionID, token)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*oauth2.Token), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Provider) doRefresh(ctx context.Context, sessionID string, token *oauth2.Token) (*oauth2.Token, error) {
	start := time.Now()
	newToken, err := refreshToken(ctx, token, p.oauth, p.httpClient)
	if err != nil {
		p.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationTokenRefresh, instrumentation.StatusError, time.Since(start))
		if errors.Is(err, ErrNeedsReauth) {
			p.needsReauth(ctx, sessionID, err)
			return nil, err
		}
		p.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		p.logger.Warn("Token refresh failed", logging.SessionHash(sessionID), logging.Err(err))
		return nil, err
	}
	p.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationTokenRefresh, instrumentation.StatusSuccess, time.Since(start))
	p.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)

	if err := p.store.SaveToken(ctx, sessionID, newToken); err != nil {
		// The new token is still usable for this request.
		p.logger.Warn("Failed to save refreshed token", logging.SessionHash(sessionID), logging.Err(err))
	}

	p.audit.LogSessionEvent(ctx, instrumentation.NewSessionEvent(ctx,
		instrumentation.SessionTokenRefreshed, logging.AnonymizeSession(sessionID)))
	p.logger.Debug("Token refreshed",
		logging.SessionHash(sessionID),
		slog.String("access_token", logging.SanitizeToken(newToken.AccessToken)),
		slog.Time("expiry", newToken.Expiry))
	return newToken, nil
}

func (p *Provider) needsReauth(ctx context.Context, sessionID string, cause error) {
	p.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultExpired)
	p.metrics.RecordReauthRequired(ctx)
	p.audit.LogSessionEvent(ctx, instrumentation.NewSessionEvent(ctx,
		instrumentation.SessionReauthRequired, logging.AnonymizeSession(sessionID)).
		WithReason(cause.Error()))
	p.logger.Info("Session needs reauthorization", logging.SessionHash(sessionID), logging.Err(cause))
}
