package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			msgs := make([]string, 0, len(ve))
			for _, fe := range ve {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if u := cfg.Engine.ServerURL; u != "" {
		if err := validate.Var(u, "url"); err != nil {
			return fmt.Errorf("invalid config: engine.server_url %q is not a URL", u)
		}
	}
	s := cfg.Supervision
	if s.FirstTokenTimeout.Duration <= 0 || s.TotalTimeout.Duration <= 0 {
		return errors.New("invalid config: supervision timeouts must be positive")
	}
	if s.FirstTokenTimeout.Duration > s.TotalTimeout.Duration {
		return fmt.Errorf("invalid config: first_token_timeout (%s) exceeds total_timeout (%s)", s.FirstTokenTimeout, s.TotalTimeout)
	}
	if cfg.HTTP.CORSEnabled && len(cfg.HTTP.CORSOrigins) == 0 {
		return errors.New("invalid config: cors_enabled requires cors_origins")
	}
	return nil
}
