package doctor

import (
	"context"
	"fmt"

	"github.com/vpspilot/pilot/internal/config"
)

// ConfigFileCheck reports which config file is in use. Running on defaults
// is a warning, not a failure.
type ConfigFileCheck struct {
	ConfigPath string // explicit path, or empty to search
}

func (c *ConfigFileCheck) Name() string     { return "config_file" }
func (c *ConfigFileCheck) Category() string { return CategoryConfig }

func (c *ConfigFileCheck) Run(ctx context.Context) CheckResult {
	path, err := config.Find(c.ConfigPath)
	if err != nil {
		return failure(c, err)
	}
	if path == "" {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    "No config file found, using defaults",
			Suggestion: "Run 'pilot init' to create a .pilot.yaml",
		}
	}
	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: "Config file: " + path,
	}
}

// ConfigSchemaCheck loads and validates the config, with the server
// override applied.
type ConfigSchemaCheck struct {
	ConfigPath string
	Server     string

	// Loaded is set when the config validates.
	Loaded *config.Config
}

func (c *ConfigSchemaCheck) Name() string     { return "config_schema" }
func (c *ConfigSchemaCheck) Category() string { return CategoryConfig }

func (c *ConfigSchemaCheck) Run(ctx context.Context) CheckResult {
	cfg, _, err := config.LoadOrDefault(c.ConfigPath)
	if err != nil {
		return failure(c, err)
	}
	if c.Server != "" {
		cfg.Server.URL = c.Server
	}
	if err := config.Validate(cfg); err != nil {
		return failure(c, err)
	}
	c.Loaded = cfg
	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("Backend %s, default range %s", cfg.Server.URL, cfg.Stream.DefaultRange),
	}
}
