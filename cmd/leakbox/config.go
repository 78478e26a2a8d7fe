package main

import (
	"fmt"
	"log/slog"

	"github.com/nao1215/leakbox/internal/config"
	"github.com/nao1215/leakbox/internal/database"
	"github.com/nao1215/leakbox/internal/log"
	"github.com/spf13/cobra"
)

// loadConfig builds a Config from defaults, the configuration file and the
// persistent flags, in that order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}

	path := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case path != "":
		f, err := config.LoadConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		f.Apply(cfg)
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	if flags.Changed("data-dir") {
		if cfg.DataDir, err = flags.GetString("data-dir"); err != nil {
			return nil, err
		}
	}
	if cfg.Verbose, err = flags.GetBool("verbose"); err != nil {
		return nil, err
	}
	if cfg.JSONLog, err = flags.GetBool("json-log"); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger creates the process logger and installs it as the default.
func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	logger := log.New(cmd.ErrOrStderr(), log.Options{Verbose: cfg.Verbose, JSON: cfg.JSONLog})
	slog.SetDefault(logger)
	return logger
}

// openExistingDB opens the database for the read-only commands. It fails
// instead of creating an empty database when serve has never run.
func openExistingDB(cfg *config.Config) (*database.MailDB, error) {
	db, err := database.Open(cfg.DataDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}
