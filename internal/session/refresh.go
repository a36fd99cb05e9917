package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/workspace-agent/internal/google"
)

// RefreshThreshold is how long before expiry a token is refreshed.
const RefreshThreshold = 5 * time.Minute

// RefreshTimeout bounds one token refresh. The refresh is shared by every
// caller waiting on the session, so it does not end with any one of them.
const RefreshTimeout = 30 * time.Second

// isTokenExpired reports whether token has expired or expires within
// threshold. Tokens without an expiry never expire.
func isTokenExpired(token *oauth2.Token, threshold time.Duration, now time.Time) bool {
	if token.Expiry.IsZero() {
		return false
	}
	return now.Add(threshold).After(token.Expiry)
}

// refreshToken exchanges token's refresh token for a new access token.
// Rejections by the token endpoint are reported as ErrNeedsReauth.
func refreshToken(ctx context.Context, token *oauth2.Token, config *oauth2.Config, httpClient *http.Client) (*oauth2.Token, error) {
	if token.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token available", ErrNeedsReauth)
	}

	ctx = google.WithHTTPClient(ctx, httpClient)

	// Without an access token the token source always refreshes.
	newToken, err := config.TokenSource(ctx, &oauth2.Token{RefreshToken: token.RefreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && isRejection(retrieveErr) {
			return nil, fmt.Errorf("%w: %w", ErrNeedsReauth, err)
		}
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	// Google omits the refresh token from refresh responses.
	if newToken.RefreshToken == "" {
		newToken.RefreshToken = token.RefreshToken
	}
	return newToken, nil
}

func isRejection(err *oauth2.RetrieveError) bool {
	if err.ErrorCode == "invalid_grant" || err.ErrorCode == "unauthorized_client" {
		return true
	}
	if err.Response == nil {
		return false
	}
	return err.Response.StatusCode == http.StatusBadRequest || err.Response.StatusCode == http.StatusUnauthorized
}
