package main

import (
	"fmt"

	"github.com/scaleformeter/scaleformeter/internal/config"
	"github.com/scaleformeter/scaleformeter/internal/logging"
	"github.com/scaleformeter/scaleformeter/internal/storage"
)

func initStorage(storageCfg config.StorageConfig, resourceName, level string) (storage.Backend, error) {
	Logger.Debug("Initializing storage", "type", storageCfg.Type)

	backend, err := storage.NewBackend(storageCfg, storage.Options{
		DB:           config.GetDBConfig(),
		ResourceName: resourceName,
		LogManager:   SlogManager,
		DBLogger:     logging.NewZerolog(LogFile, level, "database"),
	})
	if err != nil {
		Logger.Error("Failed to create storage backend", "error", err)
		return nil, err
	}
	if err := backend.Init(); err != nil {
		Logger.Error("Failed to initialize storage backend", "error", err)
		return nil, fmt.Errorf("storage init: %w", err)
	}

	Logger.Info("Storage backend initialized", "type", storageCfg.Type)
	return backend, nil
}
