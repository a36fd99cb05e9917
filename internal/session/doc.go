// Package session maps opaque session ids to stored Google OAuth
// credentials.
//
// A session is created by the consent handshake (Provider.Exchange) and is
// identified by "session_" followed by 64 hex characters. Provider resolves a
// session to a bearer token, refreshes it when it is about to expire and
// returns HTTP clients that retry a request once after a 401 with a freshly
// refreshed token. When a token can no longer be refreshed, callers receive
// ErrNeedsReauth and the user has to reconnect.
//
// Tokens are kept in a TokenStore: an in-process store for single replicas
// and a Valkey store, encrypted with AES-256-GCM, for deployments with more
// than one replica.
package session
