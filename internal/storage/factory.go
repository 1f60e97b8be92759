package storage

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/scaleformeter/scaleformeter/internal/config"
	"github.com/scaleformeter/scaleformeter/internal/database"
	"github.com/scaleformeter/scaleformeter/internal/logging"
	gormstorage "github.com/scaleformeter/scaleformeter/internal/storage/gorm"
	"github.com/scaleformeter/scaleformeter/internal/storage/memory"
	sqlitestorage "github.com/scaleformeter/scaleformeter/internal/storage/sqlite"
)

// Options carries what NewBackend needs beyond the storage section.
type Options struct {
	DB           config.DBConfig
	ResourceName string
	LogManager   *logging.SlogManager
	// DBLogger logs connection handling of the postgres backend.
	DBLogger zerolog.Logger
}

// NewBackend creates a storage backend based on configuration. The postgres
// backend falls back to in-memory SQLite, dumped to the sqlite path, when the
// server cannot be reached.
func NewBackend(cfg config.StorageConfig, opts Options) (Backend, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(cfg.Memory), nil
	case "sqlite":
		return sqlitestorage.New(sqlitestorage.Config{
			DumpPath:     cfg.SQLite.Path,
			DumpInterval: cfg.SQLite.DumpInterval,
			ResourceName: opts.ResourceName,
		}, opts.LogManager)
	case "postgres":
		m := database.NewManager(opts.DBLogger)
		if err := m.Connect(opts.DB); err != nil {
			return nil, err
		}
		if m.ShouldSaveLocal {
			return sqlitestorage.NewWithDB(m.DB, sqlitestorage.Config{
				DumpPath:     cfg.SQLite.Path,
				DumpInterval: cfg.SQLite.DumpInterval,
				ResourceName: opts.ResourceName,
			}, opts.LogManager), nil
		}
		return gormstorage.New(gormstorage.Dependencies{
			DB:           m.DB,
			ResourceName: opts.ResourceName,
			LogManager:   opts.LogManager,
		}), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
