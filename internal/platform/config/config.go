package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultMaxDeliverableBytes = int64(10 * 1024 * 1024) // 10 MiB per deliverable
	defaultOrderCacheTTL       = 30 * time.Second
	defaultCommandTimeout      = 15 * time.Second
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server       ServerConfig
	Firestore    FirestoreConfig
	Storage      StorageConfig
	Stripe       StripeConfig
	Firebase     FirebaseConfig
	Events       EventsConfig
	Commands     CommandsConfig
	Webhooks     WebhooksConfig
	Finalization FinalizationConfig
	Cache        CacheConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig lists bucket settings for deliverable uploads.
type StorageConfig struct {
	DeliverablesBucket string
	PublicBaseURL      string
}

// StripeConfig collects the payment processor settings used for payout checks.
type StripeConfig struct {
	APIKey string
}

// FirebaseConfig stores Firebase project settings for request authentication.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// EventsConfig configures the Pub/Sub topic order events are published to.
type EventsConfig struct {
	ProjectID  string
	OrderTopic string
}

// CommandsConfig locates the external order command service.
type CommandsConfig struct {
	BaseURL string
	Timeout time.Duration
}

// WebhooksConfig holds the shared secret payment processor deliveries are signed with.
type WebhooksConfig struct {
	SigningSecret string
}

// FinalizationConfig bounds deliverable uploads.
type FinalizationConfig struct {
	MaxFileBytes int64
}

// CacheConfig tunes the injectable order read cache.
type CacheConfig struct {
	OrderTTL time.Duration
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// ValidationError aggregates missing or invalid configuration fields.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: invalid configuration: %s", strings.Join(e.fields, ", "))
}

// Fields lists the offending configuration keys.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Load resolves configuration from the environment with .env overrides
// (dotenv < OS env < explicit env map).
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	values, err := environmentValues(options)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		value, ok := values[key]
		return strings.TrimSpace(value), ok
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			DeliverablesBucket: stringWithDefault(lookup, "STORAGE_DELIVERABLES_BUCKET", ""),
			PublicBaseURL:      stringWithDefault(lookup, "STORAGE_PUBLIC_BASE_URL", "https://storage.googleapis.com"),
		},
		Stripe: StripeConfig{
			APIKey: stringWithDefault(lookup, "STRIPE_API_KEY", ""),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "FIREBASE_CREDENTIALS_FILE", ""),
		},
		Events: EventsConfig{
			ProjectID:  stringWithDefault(lookup, "EVENTS_PROJECT_ID", ""),
			OrderTopic: stringWithDefault(lookup, "EVENTS_ORDER_TOPIC", ""),
		},
		Commands: CommandsConfig{
			BaseURL: stringWithDefault(lookup, "COMMANDS_BASE_URL", ""),
			Timeout: durationWithDefault(lookup, "COMMANDS_TIMEOUT", defaultCommandTimeout),
		},
		Webhooks: WebhooksConfig{
			SigningSecret: stringWithDefault(lookup, "WEBHOOK_SIGNING_SECRET", ""),
		},
		Finalization: FinalizationConfig{
			MaxFileBytes: int64WithDefault(lookup, "FINALIZATION_MAX_FILE_BYTES", defaultMaxDeliverableBytes),
		},
		Cache: CacheConfig{
			OrderTTL: durationWithDefault(lookup, "ORDER_CACHE_TTL", defaultOrderCacheTTL),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func environmentValues(options loaderOptions) (map[string]string, error) {
	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	merge := func(source map[string]string) {
		for key, value := range source {
			values[key] = value
		}
	}

	merge(dotEnvValues)

	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			if key == "" {
				continue
			}
			values[key] = parts[1]
		}
	}

	merge(options.envMap)
	return values, nil
}

func validateConfig(cfg Config) error {
	var missing []string
	if cfg.Server.Port == "" {
		missing = append(missing, "PORT")
	}
	if cfg.Finalization.MaxFileBytes <= 0 {
		missing = append(missing, "FINALIZATION_MAX_FILE_BYTES")
	}
	if cfg.Cache.OrderTTL <= 0 {
		missing = append(missing, "ORDER_CACHE_TTL")
	}
	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func int64WithDefault(lookup func(string) (string, bool), key string, fallback int64) int64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
