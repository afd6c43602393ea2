// Package config loads the configuration shared by the hooks, the
// command wrapper and the mirror runner.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mhagander/pg-githooks/internal/audit"
	"github.com/mhagander/pg-githooks/internal/identity"
	"github.com/mhagander/pg-githooks/internal/mirror"
	"github.com/mhagander/pg-githooks/internal/notify"
	"github.com/mhagander/pg-githooks/internal/policy"
	"github.com/mhagander/pg-githooks/internal/wrap"
)

// EnvVar names the environment variable pointing at the config file.
const EnvVar = "PG_GITHOOKS_CONFIG"

// DefaultFile is the config file looked up in the working directory
// when nothing else names one; hooks run inside $GIT_DIR.
const DefaultFile = "pg-githooks.yml"

// Config is the full configuration. Every section is optional; an
// absent policies section enforces nothing.
type Config struct {
	Debug      bool              `yaml:"debug"`
	Policy     policy.Config     `yaml:"policies"`
	Committers map[string]string `yaml:"committers"`
	Notify     notify.Config     `yaml:"notify"`
	Wrap       wrap.Config       `yaml:"wrap"`
	Mirror     mirror.Config     `yaml:"mirror"`
	Audit      audit.Config      `yaml:"audit"`
}

// Discover resolves the config file path: an explicit path wins, then
// $PG_GITHOOKS_CONFIG, then pg-githooks.yml in the working directory.
// A .env next to the executable is loaded first, so the variable can
// live beside the binary the way the hook scripts themselves do.
func Discover(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if exe, err := os.Executable(); err == nil {
		godotenv.Load(filepath.Join(filepath.Dir(exe), ".env"))
	}
	if path := os.Getenv(EnvVar); path != "" {
		return path
	}
	return DefaultFile
}

// Load reads and parses the configuration at path. Duplicate
// committer names are a parse error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if cfg.Notify.Subject == "" {
		cfg.Notify.Subject = "$shortmsg"
	}
	return &cfg, nil
}

// Registry builds the committer allowlist from the committers section.
func (c *Config) Registry() identity.Registry {
	return identity.NewRegistry(c.Committers)
}
