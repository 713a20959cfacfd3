package main

import (
	"fmt"
	"io"
	"os"

	"github.com/michaelbrown/gradebox/internal/config"
	"github.com/michaelbrown/gradebox/internal/exercise"
	"github.com/michaelbrown/gradebox/internal/grader"
	"github.com/michaelbrown/gradebox/internal/logging"
	"github.com/michaelbrown/gradebox/internal/sandbox"
	"github.com/michaelbrown/gradebox/internal/storage"
	"github.com/michaelbrown/gradebox/internal/storage/sqlite"
)

// loadConfig reads the config and installs the process logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	if _, err := logging.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newGrader builds a grader whose precheck runs on sb.
func newGrader(cfg *config.Config, sb sandbox.Sandbox, obs grader.Observer) (*grader.Grader, error) {
	return grader.New(grader.Config{
		Precheck:        sb,
		Policy:          cfg.Policy(),
		Timeout:         cfg.Grading.Timeout,
		PrecheckTimeout: cfg.Grading.PrecheckTimeout,
		Observer:        obs,
	})
}

func loadCatalog(cfg *config.Config) (*exercise.Catalog, error) {
	catalog, err := exercise.LoadDir(cfg.Exercises.Dir)
	if err != nil {
		return nil, fmt.Errorf("loading exercises: %w", err)
	}
	return catalog, nil
}

func openStore(cfg *config.Config) (storage.Store, error) {
	return sqlite.Open(cfg.Storage.DBPath)
}

// readSource reads a file argument, or stdin for "-".
func readSource(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
