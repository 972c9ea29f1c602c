package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/meshnode/meshnode/internal/config"
	"github.com/meshnode/meshnode/internal/core"
	"github.com/meshnode/meshnode/internal/security"
	"github.com/spf13/cobra"
)

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the node with all configured modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			if cfgPath == "" {
				resolved, err := resolveConfigPath()
				if err != nil {
					return err
				}
				cfgPath = resolved
			}

			app, ids, err := buildApp(cfgPath)
			if err != nil {
				return err
			}
			if err := app.LoadModules(ids); err != nil {
				return err
			}

			return app.Run()
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration and load every module without starting them",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			app, ids, err := buildApp(args[0])
			if err != nil {
				return err
			}
			if err := app.LoadModules(ids); err != nil {
				return err
			}
			defer app.Stop()

			fmt.Printf("Configuration OK (%d modules)\n", len(ids))
			for _, id := range ids {
				fmt.Printf("  %s\n", id)
			}
			return nil
		},
	})
	return cmd
}

// buildApp loads and validates the config at path, then constructs a
// core.App with its per-module config wired in and returns the dependency
// order to pass to App.LoadModules.
func buildApp(path string) (*core.App, []string, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, err
	}

	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	redactor := security.NewRedactor()
	logger := slog.New(security.NewRedactingHandler(textHandler, redactor))

	appCtx := core.NewAppContext(logger, defaultDataDir(), defaultWorkspace())
	appCtx = appCtx.WithModuleConfigs(cfg.Modules)

	credentials := security.NewCredentialStore()
	appCtx.RegisterService("credentials", credentials)
	appCtx.RegisterService("redactor", redactor)

	app := core.NewApp(appCtx)
	return app, config.Resolve(cfg), nil
}

// resolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/meshnoded/meshnoded.yaml → ./meshnoded.yaml
func resolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "meshnoded", "meshnoded.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "meshnoded", "meshnoded.yaml"))
	}

	candidates = append(candidates, "meshnoded.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

func defaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "meshnoded")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "meshnoded", "data")
}

func defaultWorkspace() string {
	dir, _ := os.Getwd()
	return dir
}
