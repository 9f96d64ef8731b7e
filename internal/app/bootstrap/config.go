package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	schemeRS256 = "rs256"
	schemeHS256 = "hs256"
)

// Config is the resolved runtime configuration shared by the API and
// worker binaries. It merges file defaults and environment overrides so
// the same YAML works locally and in deployed environments.
type Config struct {
	ServiceID string `validate:"required"`

	HTTPPort int `validate:"min=1,max=65535"`
	GRPCPort int `validate:"min=1,max=65535"`

	DatabaseURL string
	RedisURL    string

	// KafkaBrokers empty means outbox events are logged instead of
	// published. KafkaTopic is the default topic for all event types.
	KafkaBrokers []string
	KafkaTopic   string

	SigningScheme     string `validate:"oneof=rs256 hs256"`
	JWTKeyID          string `validate:"required"`
	JWTPrivateKeyPEM  string
	JWTPublicKeyPEM   string
	JWTHS256Secret    string
	AllowEphemeralJWT bool

	BcryptCost int `validate:"min=4,max=31"`

	Issuer   string `validate:"required,url"`
	Audience string `validate:"required"`

	AccessTokenTTL       time.Duration `validate:"gt=0"`
	RefreshTokenTTL      time.Duration `validate:"gt=0"`
	ServiceTokenTTL      time.Duration `validate:"gt=0"`
	AllowUntrackedTokens bool

	DeviceBinding   bool
	DeviceSalt      string
	FailedThreshold int           `validate:"min=1"`
	LockoutDuration time.Duration `validate:"gt=0"`

	// Clients are the registered service accounts for the
	// client_credentials grant. SecretHash is a bcrypt hash, so the
	// list is safe to keep in the config file.
	Clients []ServiceClientConfig `validate:"dive"`

	MaxDBConns         int32         `validate:"min=1"`
	OutboxPollInterval time.Duration `validate:"gt=0"`
	OutboxBatchSize    int           `validate:"min=1"`
	OutboxClaimTTL     time.Duration `validate:"gt=0"`
	OutboxMaxRetries   int           `validate:"min=1"`
}

type ServiceClientConfig struct {
	ClientID   string `yaml:"client_id" validate:"required"`
	SecretHash string `yaml:"secret_hash" validate:"required"`
}

// configFile mirrors the YAML schema used by configs/default.yaml.
// Durations are strings in time.ParseDuration form ("15m", "720h").
// It is intentionally separate from Config so env-only secrets never
// gain a file representation.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL  string   `yaml:"postgres_url"`
		RedisURL     string   `yaml:"redis_url"`
		KafkaBrokers []string `yaml:"kafka_brokers"`
		KafkaTopic   string   `yaml:"kafka_topic"`
		MaxDBConns   int      `yaml:"max_db_conns"`
	} `yaml:"dependencies"`
	Tokens struct {
		Issuer         string `yaml:"issuer"`
		Audience       string `yaml:"audience"`
		AccessTTL      string `yaml:"access_ttl"`
		RefreshTTL     string `yaml:"refresh_ttl"`
		ServiceTTL     string `yaml:"service_ttl"`
		AllowUntracked *bool  `yaml:"allow_untracked"`
	} `yaml:"tokens"`
	Signing struct {
		Scheme         string `yaml:"scheme"`
		KeyID          string `yaml:"key_id"`
		AllowEphemeral *bool  `yaml:"allow_ephemeral"`
	} `yaml:"signing"`
	Sessions struct {
		DeviceBinding        *bool  `yaml:"device_binding"`
		DeviceSalt           string `yaml:"device_salt"`
		FailedLoginThreshold int    `yaml:"failed_login_threshold"`
		Lockout              string `yaml:"lockout"`
	} `yaml:"sessions"`
	Clients []ServiceClientConfig `yaml:"clients"`
	Outbox  struct {
		PollInterval string `yaml:"poll_interval"`
		BatchSize    int    `yaml:"batch_size"`
		ClaimTTL     string `yaml:"claim_ttl"`
		MaxRetries   int    `yaml:"max_retries"`
	} `yaml:"outbox"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// Key material and connection URLs come from the environment; the file
// carries everything that is safe to commit.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:          "auth-service",
		HTTPPort:           8080,
		GRPCPort:           9090,
		KafkaTopic:         "auth.events",
		SigningScheme:      schemeRS256,
		JWTKeyID:           "auth-key-1",
		AllowEphemeralJWT:  true,
		BcryptCost:         12,
		Issuer:             "https://auth.shopmesh.dev",
		Audience:           "shopmesh",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    30 * 24 * time.Hour,
		ServiceTokenTTL:    20 * time.Minute,
		DeviceBinding:      true,
		FailedThreshold:    5,
		LockoutDuration:    30 * time.Minute,
		MaxDBConns:         20,
		OutboxPollInterval: 2 * time.Second,
		OutboxBatchSize:    100,
		OutboxClaimTTL:     30 * time.Second,
		OutboxMaxRetries:   5,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if len(f.Dependencies.KafkaBrokers) > 0 {
			cfg.KafkaBrokers = f.Dependencies.KafkaBrokers
		}
		if f.Dependencies.KafkaTopic != "" {
			cfg.KafkaTopic = f.Dependencies.KafkaTopic
		}
		if f.Dependencies.MaxDBConns > 0 {
			cfg.MaxDBConns = int32(f.Dependencies.MaxDBConns)
		}
		if f.Tokens.Issuer != "" {
			cfg.Issuer = f.Tokens.Issuer
		}
		if f.Tokens.Audience != "" {
			cfg.Audience = f.Tokens.Audience
		}
		if f.Tokens.AllowUntracked != nil {
			cfg.AllowUntrackedTokens = *f.Tokens.AllowUntracked
		}
		if f.Signing.Scheme != "" {
			cfg.SigningScheme = f.Signing.Scheme
		}
		if f.Signing.KeyID != "" {
			cfg.JWTKeyID = f.Signing.KeyID
		}
		if f.Signing.AllowEphemeral != nil {
			cfg.AllowEphemeralJWT = *f.Signing.AllowEphemeral
		}
		if f.Sessions.DeviceBinding != nil {
			cfg.DeviceBinding = *f.Sessions.DeviceBinding
		}
		if f.Sessions.DeviceSalt != "" {
			cfg.DeviceSalt = f.Sessions.DeviceSalt
		}
		if f.Sessions.FailedLoginThreshold > 0 {
			cfg.FailedThreshold = f.Sessions.FailedLoginThreshold
		}
		if len(f.Clients) > 0 {
			cfg.Clients = f.Clients
		}
		if f.Outbox.BatchSize > 0 {
			cfg.OutboxBatchSize = f.Outbox.BatchSize
		}
		if f.Outbox.MaxRetries > 0 {
			cfg.OutboxMaxRetries = f.Outbox.MaxRetries
		}

		fileDurations := []struct {
			field string
			raw   string
			dst   *time.Duration
		}{
			{"tokens.access_ttl", f.Tokens.AccessTTL, &cfg.AccessTokenTTL},
			{"tokens.refresh_ttl", f.Tokens.RefreshTTL, &cfg.RefreshTokenTTL},
			{"tokens.service_ttl", f.Tokens.ServiceTTL, &cfg.ServiceTokenTTL},
			{"sessions.lockout", f.Sessions.Lockout, &cfg.LockoutDuration},
			{"outbox.poll_interval", f.Outbox.PollInterval, &cfg.OutboxPollInterval},
			{"outbox.claim_ttl", f.Outbox.ClaimTTL, &cfg.OutboxClaimTTL},
		}
		for _, d := range fileDurations {
			if d.raw == "" {
				continue
			}
			parsed, parseErr := time.ParseDuration(d.raw)
			if parseErr != nil {
				return Config{}, fmt.Errorf("parse %s: %w", d.field, parseErr)
			}
			*d.dst = parsed
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopic = envOrDefault("KAFKA_TOPIC", cfg.KafkaTopic)

	cfg.SigningScheme = strings.ToLower(strings.TrimSpace(envOrDefault("JWT_SIGNING_SCHEME", cfg.SigningScheme)))
	cfg.JWTKeyID = envOrDefault("JWT_KEY_ID", cfg.JWTKeyID)
	cfg.JWTPrivateKeyPEM = envOrDefault("JWT_PRIVATE_KEY_PEM", cfg.JWTPrivateKeyPEM)
	cfg.JWTPublicKeyPEM = envOrDefault("JWT_PUBLIC_KEY_PEM", cfg.JWTPublicKeyPEM)
	cfg.JWTHS256Secret = envOrDefault("JWT_HS256_SECRET", cfg.JWTHS256Secret)
	cfg.AllowEphemeralJWT = envBool("JWT_ALLOW_EPHEMERAL", cfg.AllowEphemeralJWT)

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.BcryptCost = envInt("BCRYPT_ROUNDS", cfg.BcryptCost)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))

	cfg.Issuer = envOrDefault("TOKEN_ISSUER", cfg.Issuer)
	cfg.Audience = envOrDefault("TOKEN_AUDIENCE", cfg.Audience)
	cfg.AccessTokenTTL = envDuration("ACCESS_TOKEN_TTL", cfg.AccessTokenTTL)
	cfg.RefreshTokenTTL = envDuration("REFRESH_TOKEN_TTL", cfg.RefreshTokenTTL)
	cfg.ServiceTokenTTL = envDuration("SERVICE_TOKEN_TTL", cfg.ServiceTokenTTL)
	cfg.AllowUntrackedTokens = envBool("ALLOW_UNTRACKED_TOKENS", cfg.AllowUntrackedTokens)

	cfg.DeviceBinding = envBool("DEVICE_BINDING", cfg.DeviceBinding)
	cfg.DeviceSalt = envOrDefault("DEVICE_SALT", cfg.DeviceSalt)
	cfg.FailedThreshold = envInt("FAILED_LOGIN_THRESHOLD", cfg.FailedThreshold)
	cfg.LockoutDuration = envDuration("LOCKOUT_DURATION", cfg.LockoutDuration)

	cfg.OutboxPollInterval = envDuration("OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval)
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxClaimTTL = envDuration("OUTBOX_CLAIM_TTL", cfg.OutboxClaimTTL)
	cfg.OutboxMaxRetries = envInt("OUTBOX_MAX_RETRIES", cfg.OutboxMaxRetries)

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}
	if cfg.SigningScheme == schemeHS256 && cfg.JWTHS256Secret == "" {
		return Config{}, fmt.Errorf("hs256 signing requires JWT_HS256_SECRET")
	}
	if cfg.SigningScheme == schemeRS256 && !cfg.AllowEphemeralJWT &&
		(cfg.JWTPrivateKeyPEM == "" || cfg.JWTPublicKeyPEM == "") {
		return Config{}, fmt.Errorf("rs256 signing requires JWT_PRIVATE_KEY_PEM and JWT_PUBLIC_KEY_PEM")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envBool parses common boolean env forms while keeping a deterministic fallback.
func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}

// envDuration parses time.ParseDuration env vars ("15m", "720h") with
// safe fallback on empty/invalid values.
func envDuration(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

// envCSV parses comma-separated env vars and removes empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
