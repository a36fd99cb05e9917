package session

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
)

// retryTransport authorizes requests as one session and replays a request
// once with a refreshed token when the first attempt is answered with 401.
type retryTransport struct {
	provider  *Provider
	sessionID string
	base      http.RoundTripper

	mu    sync.Mutex
	token *oauth2.Token
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	getBody, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	resp, err := t.send(req, getBody, t.currentToken())
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	drain(resp)

	token, err := t.provider.Refresh(req.Context(), t.sessionID)
	if err != nil {
		return nil, err
	}
	t.setToken(token)

	resp, err = t.send(req, getBody, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		cause := fmt.Errorf("%w: request rejected after token refresh", ErrNeedsReauth)
		t.provider.needsReauth(req.Context(), t.sessionID, cause)
		return nil, cause
	}
	return resp, nil
}

func (t *retryTransport) send(req *http.Request, getBody func() (io.ReadCloser, error), token *oauth2.Token) (*http.Response, error) {
	out := req.Clone(req.Context())
	if getBody != nil {
		body, err := getBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		out.Body = body
	}
	token.SetAuthHeader(out)
	return t.base.RoundTrip(out)
}

func (t *retryTransport) currentToken() *oauth2.Token {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.token
}

func (t *retryTransport) setToken(token *oauth2.Token) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = token
}

// replayableBody returns a function producing a fresh copy of the request
// body, or nil when the request has none.
func replayableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		// The first attempt may use the original body.
		first := true
		return func() (io.ReadCloser, error) {
			if first {
				first = false
				return req.Body, nil
			}
			return req.GetBody()
		}, nil
	}

	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
