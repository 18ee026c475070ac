package moderation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// BootstrapAdmin is one entry of the bootstrap file
type BootstrapAdmin struct {
	ID   string `json:"id"`
	Note string `json:"note,omitempty"`
}

// BootstrapConfig is the JSON bootstrap file granting the first admins
type BootstrapConfig struct {
	Admins []BootstrapAdmin `json:"admins"`
}

// Validate checks that the config is valid
func (c *BootstrapConfig) Validate() error {
	seen := make(map[string]bool, len(c.Admins))
	for i, a := range c.Admins {
		id := strings.TrimSpace(a.ID)
		if id == "" {
			return &ConfigError{Field: "admins", Message: fmt.Sprintf("entry %d has no id", i)}
		}
		if seen[id] {
			return &ConfigError{Field: "admins", Message: "duplicate id " + id}
		}
		seen[id] = true
		c.Admins[i].ID = id
	}
	return nil
}

// ConfigError represents a bootstrap file validation error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "moderation config error in " + e.Field + ": " + e.Message
}

// LoadBootstrap reads the bootstrap file at path. A missing file yields an
// empty config.
func LoadBootstrap(path string) (*BootstrapConfig, error) {
	var config BootstrapConfig
	if path == "" {
		return &config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("path", path).Msg("moderation: bootstrap file not found, skipping")
			return &config, nil
		}
		return nil, fmt.Errorf("failed to read bootstrap file: %w", err)
	}

	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse bootstrap file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bootstrap file: %w", err)
	}
	return &config, nil
}

// SeedAdmins grants the admin role to every account listed in the bootstrap
// file at path that is not already an admin. Grants are recorded in the
// audit log as made by SystemActor. Returns the number of grants made.
func (s *RoleService) SeedAdmins(ctx context.Context, path string) (int, error) {
	config, err := LoadBootstrap(path)
	if err != nil {
		return 0, err
	}

	granted := 0
	for _, a := range config.Admins {
		if s.CheckRole(ctx, a.ID) == RoleAdmin {
			continue
		}
		reason := "bootstrap"
		if a.Note != "" {
			reason = "bootstrap: " + a.Note
		}
		if _, err := s.apply(ctx, RoleChange{
			ActorID:   SystemActor,
			AccountID: a.ID,
			NewRole:   RoleAdmin,
			Reason:    reason,
		}); err != nil {
			return granted, fmt.Errorf("seed admin %s: %w", a.ID, err)
		}
		granted++
	}

	log.Info().
		Int("listed", len(config.Admins)).
		Int("granted", granted).
		Str("path", path).
		Msg("moderation: bootstrap admins applied")
	return granted, nil
}
