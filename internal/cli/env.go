// Package cli implements the fieldctl operator commands.
package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"

	"fieldcrm/internal/app"
	"fieldcrm/internal/config"
	"fieldcrm/internal/logging"
)

var (
	okMark   = color.New(color.FgGreen).Sprint("✓")
	failMark = color.New(color.FgRed).Sprint("✗")
)

// loadConfig is swapped in tests.
var loadConfig = config.Load

// openApp loads configuration, applies overrides and connects the configured backends.
func openApp(ctx context.Context, overrides ...func(*config.Config) error) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	for _, o := range overrides {
		if err := o(&cfg); err != nil {
			return nil, err
		}
	}
	a, err := app.Build(ctx, cfg, logging.New(cfg.Logging))
	if err != nil {
		return nil, fmt.Errorf("init services: %w", err)
	}
	return a, nil
}
