package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/workspace-agent/internal/logging"
	"github.com/teemow/workspace-agent/internal/session"
)

// LogConfig holds the logging flags.
type LogConfig struct {
	Debug  bool
	Format string
}

// GoogleConfig holds the Google OAuth client credentials.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
}

// SessionStorageConfig holds the session store flags.
type SessionStorageConfig struct {
	// Type is the storage backend type: "memory" or "valkey" (default: "memory")
	Type string

	// EncryptionKey is the base64 AES-256 key for tokens at rest in Valkey.
	EncryptionKey string

	// TTL expires sessions in Valkey.
	TTL time.Duration

	Valkey ValkeyStorageConfig
}

// ValkeyStorageConfig holds configuration for Valkey storage backend
type ValkeyStorageConfig struct {
	// URL is the Valkey server address (e.g., "valkey.namespace.svc:6379")
	URL string

	// Password is the optional password for Valkey authentication
	Password string

	// TLSEnabled enables TLS for Valkey connections
	TLSEnabled bool

	// KeyPrefix is the prefix for all Valkey keys
	KeyPrefix string

	// DB is the Valkey database number (default: 0)
	DB int
}

func addLogFlags(cmd *cobra.Command, c *LogConfig) {
	cmd.Flags().BoolVar(&c.Debug, "debug", false, "Enable debug logging. Can also use DEBUG env var.")
	cmd.Flags().StringVar(&c.Format, "log-format", string(logging.FormatText), "Log format: text or json. Can also use LOG_FORMAT env var.")
}

func addGoogleFlags(cmd *cobra.Command, c *GoogleConfig) {
	cmd.Flags().StringVar(&c.ClientID, "google-client-id", "", "Google OAuth Client ID. Can also use GOOGLE_CLIENT_ID env var.")
	cmd.Flags().StringVar(&c.ClientSecret, "google-client-secret", "", "Google OAuth Client Secret. Can also use GOOGLE_CLIENT_SECRET env var.")
}

func addSessionStorageFlags(cmd *cobra.Command, c *SessionStorageConfig) {
	cmd.Flags().StringVar(&c.Type, "session-storage-type", string(session.StorageTypeMemory), "Session storage type: memory or valkey. Can also use SESSION_STORAGE_TYPE env var.")
	cmd.Flags().StringVar(&c.EncryptionKey, "session-encryption-key", "", "AES-256 key for session tokens at rest (32 bytes, base64 encoded). Can also use SESSION_ENCRYPTION_KEY env var. Generate with: openssl rand -base64 32")
	cmd.Flags().DurationVar(&c.TTL, "session-ttl", session.DefaultSessionTTL, "Lifetime of an unused session in Valkey. Can also use SESSION_TTL env var.")
	cmd.Flags().StringVar(&c.Valkey.URL, "valkey-url", "", "Valkey server address (e.g., valkey.namespace.svc:6379). Can also use VALKEY_URL env var.")
	cmd.Flags().StringVar(&c.Valkey.Password, "valkey-password", "", "Valkey authentication password. Can also use VALKEY_PASSWORD env var.")
	cmd.Flags().BoolVar(&c.Valkey.TLSEnabled, "valkey-tls", false, "Enable TLS for Valkey connections. Can also use VALKEY_TLS_ENABLED env var.")
	cmd.Flags().StringVar(&c.Valkey.KeyPrefix, "valkey-key-prefix", session.DefaultKeyPrefix, "Prefix for all Valkey keys. Can also use VALKEY_KEY_PREFIX env var.")
	cmd.Flags().IntVar(&c.Valkey.DB, "valkey-db", 0, "Valkey database number. Can also use VALKEY_DB env var.")
}

func loadLogEnvVars(cmd *cobra.Command, c *LogConfig) error {
	if err := envBool(cmd, "debug", "DEBUG", &c.Debug); err != nil {
		return err
	}
	envString(cmd, "log-format", "LOG_FORMAT", &c.Format)
	return nil
}

func loadGoogleEnvVars(cmd *cobra.Command, c *GoogleConfig) {
	envString(cmd, "google-client-id", "GOOGLE_CLIENT_ID", &c.ClientID)
	envString(cmd, "google-client-secret", "GOOGLE_CLIENT_SECRET", &c.ClientSecret)
}

// loadSessionStorageEnvVars loads session storage configuration from
// environment variables. Environment variables only override flag values
// when the flag was not explicitly set.
func loadSessionStorageEnvVars(cmd *cobra.Command, c *SessionStorageConfig) error {
	envString(cmd, "session-storage-type", "SESSION_STORAGE_TYPE", &c.Type)
	envString(cmd, "session-encryption-key", "SESSION_ENCRYPTION_KEY", &c.EncryptionKey)
	envString(cmd, "valkey-url", "VALKEY_URL", &c.Valkey.URL)
	envString(cmd, "valkey-password", "VALKEY_PASSWORD", &c.Valkey.Password)
	envString(cmd, "valkey-key-prefix", "VALKEY_KEY_PREFIX", &c.Valkey.KeyPrefix)
	if err := envBool(cmd, "valkey-tls", "VALKEY_TLS_ENABLED", &c.Valkey.TLSEnabled); err != nil {
		return err
	}
	if err := envInt(cmd, "valkey-db", "VALKEY_DB", &c.Valkey.DB); err != nil {
		return err
	}
	return envDuration(cmd, "session-ttl", "SESSION_TTL", &c.TTL)
}

// newLogger builds the process logger and installs it as the slog default.
// Logs go to w, which must not be the MCP stdio channel.
func newLogger(w io.Writer, c LogConfig) (*slog.Logger, error) {
	format := logging.Format(strings.ToLower(c.Format))
	switch format {
	case logging.FormatText, logging.FormatJSON:
	default:
		return nil, fmt.Errorf("invalid log format %q, must be one of: text, json", c.Format)
	}
	logger := logging.New(w, format, c.Debug)
	slog.SetDefault(logger)
	return logger, nil
}

// newSessionStore opens the configured session store.
func newSessionStore(c SessionStorageConfig, logger *slog.Logger) (session.Store, error) {
	var key []byte
	if c.EncryptionKey != "" {
		decoded, err := session.KeyFromBase64(c.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("invalid session encryption key: %w", err)
		}
		key = decoded
	}

	storageType := session.StorageType(strings.ToLower(c.Type))
	if storageType == session.StorageTypeValkey && key == nil {
		logger.Warn("Session tokens are stored in Valkey without encryption; set SESSION_ENCRYPTION_KEY in production")
	}

	store, err := session.NewStore(session.StoreConfig{
		Type: storageType,
		Valkey: session.ValkeyConfig{
			URL:        c.Valkey.URL,
			Password:   c.Valkey.Password,
			TLSEnabled: c.Valkey.TLSEnabled,
			DB:         c.Valkey.DB,
			KeyPrefix:  c.Valkey.KeyPrefix,
			TTL:        c.TTL,
		},
		EncryptionKey: key,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}
	logger.Info("Session store ready", slog.String("type", string(storageType)))
	return store, nil
}

// pinger is implemented by stores that can check their backend.
type pinger interface {
	Ping(ctx context.Context) error
}

// envString sets dst from env when the flag was not explicitly set and
// the variable is not empty.
func envString(cmd *cobra.Command, flag, env string, dst *string) {
	if cmd.Flags().Changed(flag) {
		return
	}
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func envBool(cmd *cobra.Command, flag, env string, dst *bool) error {
	if cmd.Flags().Changed(flag) {
		return nil
	}
	v := os.Getenv(env)
	if v == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s value %q (expected true/false): %w", env, v, err)
	}
	*dst = parsed
	return nil
}

func envInt(cmd *cobra.Command, flag, env string, dst *int) error {
	if cmd.Flags().Changed(flag) {
		return nil
	}
	v := os.Getenv(env)
	if v == "" {
		return nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", env, v, err)
	}
	*dst = parsed
	return nil
}

func envFloat(cmd *cobra.Command, flag, env string, dst *float64) error {
	if cmd.Flags().Changed(flag) {
		return nil
	}
	v := os.Getenv(env)
	if v == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", env, v, err)
	}
	*dst = parsed
	return nil
}

func envDuration(cmd *cobra.Command, flag, env string, dst *time.Duration) error {
	if cmd.Flags().Changed(flag) {
		return nil
	}
	v := os.Getenv(env)
	if v == "" {
		return nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", env, v, err)
	}
	*dst = parsed
	return nil
}

func envList(cmd *cobra.Command, flag, env string, dst *[]string) {
	if cmd.Flags().Changed(flag) {
		return
	}
	if v := parseCommaSeparatedList(os.Getenv(env)); v != nil {
		*dst = v
	}
}

// parseCommaSeparatedList parses a comma-separated string into a slice,
// trimming whitespace from each element and filtering out empty strings.
// Returns nil if the input is empty or contains only whitespace/commas.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
