package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be \"text\" or \"json\", got %q", c.Log.Format))
	}

	if len(c.Auth.Links) == 0 {
		errs = append(errs, errors.New("auth.links must contain at least one link"))
	}

	seen := make(map[string]int, len(c.Auth.Links))
	for i, link := range c.Auth.Links {
		if prev, dup := seen[link.Type]; dup {
			errs = append(errs, fmt.Errorf("auth.links[%d]: link type %q already used by auth.links[%d]", i, link.Type, prev))
			continue
		}
		seen[link.Type] = i
		errs = append(errs, link.validate(i)...)
	}

	if c.Auth.RateLimit.DefaultRPM < 0 {
		errs = append(errs, fmt.Errorf("auth.ratelimit.default_rpm must be >= 0, got %d", c.Auth.RateLimit.DefaultRPM))
	}
	for name, tier := range c.Auth.RateLimit.Tiers {
		if tier.RequestsPerMinute < 0 {
			errs = append(errs, fmt.Errorf("auth.ratelimit.tiers.%s.requests_per_minute must be >= 0, got %d", name, tier.RequestsPerMinute))
		}
	}

	if c.Observability.Tracing.Enabled && c.Observability.Tracing.Endpoint == "" {
		errs = append(errs, errors.New("observability.tracing.endpoint is required when tracing is enabled"))
	}

	return errors.Join(errs...)
}

func (l LinkConfig) validate(i int) []error {
	var errs []error

	switch l.Type {
	case LinkTypeNone:
	case LinkTypeJWT:
		if l.JWKSURL == "" {
			errs = append(errs, fmt.Errorf("auth.links[%d].jwks_url is required for jwt links", i))
		}
	case LinkTypeBasic:
		if len(l.Users) == 0 {
			errs = append(errs, fmt.Errorf("auth.links[%d].users must not be empty for basic links", i))
		}
		for j, u := range l.Users {
			if u.Name == "" {
				errs = append(errs, fmt.Errorf("auth.links[%d].users[%d].name is required", i, j))
			}
			if u.PasswordHash == "" {
				errs = append(errs, fmt.Errorf("auth.links[%d].users[%d].password_hash is required", i, j))
			}
		}
	case LinkTypeAPIKey:
		switch l.StoreKind() {
		case StoreMemory:
			for j, k := range l.Keys {
				if k.Key == "" || k.Subject == "" {
					errs = append(errs, fmt.Errorf("auth.links[%d].keys[%d]: key and subject are required", i, j))
				}
			}
		case StorePostgres:
			if l.Postgres.DSN == "" {
				errs = append(errs, fmt.Errorf("auth.links[%d].postgres.dsn or dsn_file is required when store is \"postgres\"", i))
			}
		default:
			errs = append(errs, fmt.Errorf("auth.links[%d].store must be \"memory\" or \"postgres\", got %q", i, l.Store))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.links[%d].type must be \"jwt\", \"basic\", \"apikey\", or \"none\", got %q", i, l.Type))
	}

	return errs
}
