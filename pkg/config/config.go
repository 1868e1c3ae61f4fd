// Package config provides unified configuration for the authgate server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (AUTHGATE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Link types accepted in auth.links[*].type.
const (
	LinkTypeJWT    = "jwt"
	LinkTypeBasic  = "basic"
	LinkTypeAPIKey = "apikey"
	LinkTypeNone   = "none"
)

// API key store kinds accepted in auth.links[*].store.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds all configuration for the authgate server.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Log           LogConfig           `yaml:"log"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 120s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s

	// TrustForwardedProto takes the request scheme from X-Forwarded-Proto.
	TrustForwardedProto bool `yaml:"trust_forwarded_proto"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // TRACE, DEBUG, INFO, WARN, ERROR; default: INFO
	Debug  string `yaml:"debug"`  // comma-separated debug categories
	Format string `yaml:"format"` // "text" or "json", default: "text"
}

// AuthConfig holds the authentication chain settings.
type AuthConfig struct {
	// Bypass lists paths served without running the chain.
	Bypass []string `yaml:"bypass"`

	// Links are applied in order, outermost first.
	Links []LinkConfig `yaml:"links"`

	RateLimit   RateLimitConfig   `yaml:"ratelimit"`
	AntiForgery AntiForgeryConfig `yaml:"antiforgery"`
}

// LinkConfig describes one link of the chain. Which fields apply depends
// on Type.
type LinkConfig struct {
	Type string `yaml:"type"`

	// IncludeByDefault defaults to true. Links with false only run on
	// routes that opt in to them.
	IncludeByDefault *bool `yaml:"include_by_default"`

	// ForceSSL defaults to true for basic links and false otherwise.
	ForceSSL *bool `yaml:"force_ssl"`

	// jwt
	Issuer   string        `yaml:"issuer"`
	Audience string        `yaml:"audience"`
	JWKSURL  string        `yaml:"jwks_url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// basic
	Realm string       `yaml:"realm"`
	Users []UserConfig `yaml:"users"`

	// apikey
	Header   string         `yaml:"header"`
	Store    string         `yaml:"store"` // "memory" or "postgres", default: "memory"
	Keys     []APIKeyConfig `yaml:"keys"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// IncludedByDefault resolves IncludeByDefault.
func (l LinkConfig) IncludedByDefault() bool {
	if l.IncludeByDefault == nil {
		return true
	}
	return *l.IncludeByDefault
}

// SSLRequired resolves ForceSSL for the link type.
func (l LinkConfig) SSLRequired() bool {
	if l.ForceSSL == nil {
		return l.Type == LinkTypeBasic
	}
	return *l.ForceSSL
}

// StoreKind returns the API key store kind, defaulting to memory.
func (l LinkConfig) StoreKind() string {
	if l.Store == "" {
		return StoreMemory
	}
	return l.Store
}

// UserConfig describes a Basic auth user.
type UserConfig struct {
	Name             string   `yaml:"name"`
	PasswordHash     string   `yaml:"password_hash"`
	PasswordHashFile string   `yaml:"password_hash_file"` // _file variant for password_hash
	TenantID         string   `yaml:"tenant_id"`
	ServiceTier      string   `yaml:"service_tier"`
	Scopes           []string `yaml:"scopes"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string   `yaml:"key" json:"key"`
	KeyFile     string   `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject     string   `yaml:"subject" json:"subject"`
	TenantID    string   `yaml:"tenant_id" json:"tenant_id"`
	ServiceTier string   `yaml:"service_tier" json:"service_tier"`
	Scopes      []string `yaml:"scopes" json:"scopes"`
}

// PostgresConfig holds settings for the PostgreSQL key store.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 10
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// RateLimitConfig holds per-tier request limits. Zero means unlimited.
type RateLimitConfig struct {
	DefaultRPM int                   `yaml:"default_rpm"`
	Tiers      map[string]TierConfig `yaml:"tiers"`
}

// TierConfig holds the limit of one service tier.
type TierConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// AntiForgeryConfig holds double-submit token settings.
type AntiForgeryConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CookieName string `yaml:"cookie_name"`
	HeaderName string `yaml:"header_name"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// TracingConfig enables OpenTelemetry spans around chain links, exported
// over OTLP/gRPC.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"` // host:port of the OTLP collector
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"` // default: "authgate"
}

// Defaults returns a Config with all default values filled in. The default
// chain holds a single "none" link, which admits everyone.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "INFO",
			Format: "text",
		},
		Auth: AuthConfig{
			Bypass: []string{"/healthz", "/readyz", "/metrics"},
			Links:  []LinkConfig{{Type: LinkTypeNone}},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
			Tracing: TracingConfig{
				ServiceName: "authgate",
			},
		},
	}
}
