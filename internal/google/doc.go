// Package google holds the Google OAuth2 configuration and the HTTP client
// settings shared by every call to Google endpoints.
package google
