package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"medallion/internal/config"
	"medallion/internal/ledger"
	"medallion/internal/lifecycle"
	"medallion/internal/merge"
	"medallion/internal/store"
	"medallion/internal/ui"
	"medallion/pkg/models"
)

// resolveConfigFile picks the config file for this invocation. An explicit
// MEDALLION_CONFIG wins, then whatever viper discovered (working directory
// before ~/.medallion), then the default location.
func resolveConfigFile() string {
	if os.Getenv("MEDALLION_CONFIG") != "" {
		return config.GetConfigFile()
	}
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return config.GetConfigFile()
}

// loadPipelineConfig loads and validates the full pipeline configuration.
func loadPipelineConfig() (*models.Config, error) {
	cfg, err := config.LoadFrom(resolveConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// selectEntities resolves the entities a command should operate on: the named
// one, or all configured entities when no name is given.
func selectEntities(cfg *models.Config, name string) ([]models.Entity, error) {
	if name == "" {
		return cfg.Entities, nil
	}
	for _, entity := range cfg.Entities {
		if entity.Name == name {
			return []models.Entity{entity}, nil
		}
	}
	return nil, fmt.Errorf("entity %q is not configured", name)
}

// connectService opens the warehouse connection for a run, with a spinner
// while the handshake is in flight.
func connectService(cfg *models.Config) (*store.Service, error) {
	svc := store.NewService(store.Config{
		Account:   cfg.Snowflake.Account,
		Username:  cfg.Snowflake.Username,
		Password:  cfg.Snowflake.Password,
		Database:  cfg.Snowflake.Database,
		Schema:    cfg.Snowflake.Schema,
		Warehouse: cfg.Snowflake.Warehouse,
		Role:      cfg.Snowflake.Role,
		BatchSize: cfg.Pipeline.BatchSize,
	})

	var spin *ui.Spinner
	if !flagQuiet {
		spin = ui.NewSpinner(fmt.Sprintf("Connecting to %s", cfg.Snowflake.Account))
		spin.Start()
	}

	if err := svc.Connect(); err != nil {
		if spin != nil {
			spin.Stop(false, fmt.Sprintf("Connection to %s failed", cfg.Snowflake.Account))
		}
		return nil, err
	}
	if spin != nil {
		spin.Stop(true, fmt.Sprintf("Connected to %s", cfg.Snowflake.Account))
	}
	return svc, nil
}

// debugLogging reports whether the configured log level asks for per-key
// output, independent of the --verbose flag.
func debugLogging(p models.Pipeline) bool {
	return strings.EqualFold(p.LogLevel, "debug")
}

// runHooks builds the lifecycle observers for CLI runs.
func runHooks(cfg *models.Config) *lifecycle.Hooks {
	hooks := lifecycle.NewHooks()
	if !flagQuiet {
		verbose := flagVerbose || debugLogging(cfg.Pipeline)
		hooks.Register(lifecycle.NewLogObserver(os.Stderr, verbose))
	}
	return hooks
}

// mergeEngine wires the merge engine for one entity.
func mergeEngine(es *store.EntityStore, entity models.Entity, defaults models.Pipeline, hooks *lifecycle.Hooks) *merge.Engine {
	return merge.NewEngine(es, es, merge.Options{
		Schema:   entity.Schema(),
		Lookback: entity.Lookback(defaults),
		Hooks:    hooks,
	})
}

// ledgerEngine wires the change-tracking engine for one entity.
func ledgerEngine(es *store.EntityStore, entity models.Entity, hooks *lifecycle.Hooks) *ledger.Engine {
	return ledger.NewEngine(es, es, ledger.Options{
		Entity:                entity.Name,
		TrackedFields:         entity.TrackedFields,
		InvalidateHardDeletes: entity.InvalidateHardDeletes,
		Hooks:                 hooks,
	})
}
