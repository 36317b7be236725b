package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models crewdesk.yml.
type Config struct {
	Org struct {
		Name string `yaml:"name"`
	} `yaml:"org"`
	Roles struct {
		// Aliases maps org-specific role names onto staff/manager/admin.
		Aliases          map[string]string `yaml:"aliases"`
		DefaultHierarchy int               `yaml:"default_hierarchy"`
	} `yaml:"roles"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

var canonicalTiers = map[string]bool{"staff": true, "manager": true, "admin": true}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Roles.DefaultHierarchy < 0 {
		return fmt.Errorf("config.roles.default_hierarchy must not be negative")
	}
	for alias, target := range c.Roles.Aliases {
		if strings.TrimSpace(alias) == "" {
			return fmt.Errorf("config.roles.aliases contains empty alias")
		}
		if !canonicalTiers[target] {
			return fmt.Errorf("role alias %s maps to unknown tier %s", alias, target)
		}
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "crewdesk.yml")
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found", Path(workspace))
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

const defaultTemplate = `org:
  name: crewdesk

roles:
  default_hierarchy: 1
  aliases:
    administrator: admin
    supervisor: manager
    lead: manager
    team_lead: manager
    employee: staff
    contractor: staff
`
