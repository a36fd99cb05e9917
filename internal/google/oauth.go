package google

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// DefaultHTTPTimeout bounds a single call to a Google endpoint.
const DefaultHTTPTimeout = 30 * time.Second

// OAuthConfig returns the OAuth2 configuration for the Google consent
// handshake. redirectURL must match a redirect URI registered for clientID.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirectURL,
		Scopes:       DefaultOAuthScopes,
	}
}

// AuthCodeURL returns the consent URL for state. It asks for offline access
// and forces the consent screen so Google always returns a refresh token.
func AuthCodeURL(conf *oauth2.Config, state string) string {
	return conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// NewHTTPClient returns an HTTP client for Google APIs.
// The client is configured to use HTTP/1.1 to avoid HTTP/2 protocol errors.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: NewTransport(),
	}
}

// NewTracedHTTPClient is NewHTTPClient with a client span around every
// request, named after the Google host.
func NewTracedHTTPClient(timeout time.Duration) *http.Client {
	client := NewHTTPClient(timeout)
	client.Transport = otelhttp.NewTransport(client.Transport,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "google " + r.Method + " " + r.URL.Host
		}))
	return client
}

// NewTransport returns an HTTP/1.1-only transport.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		ForceAttemptHTTP2: false,
		// A non-nil empty map disables the automatic HTTP/2 upgrade.
		TLSNextProto:        map[string]func(string, *tls.Conn) http.RoundTripper{},
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
}

// WithHTTPClient returns a context that makes golang.org/x/oauth2 use client
// for token exchange and refresh requests.
func WithHTTPClient(ctx context.Context, client *http.Client) context.Context {
	if client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}
