package core

import (
	"context"
	"fmt"
	"io"

	blobcore "pharmacore/internal/blob/core"
	blobfs "pharmacore/internal/infra/blob/fs"
	blobmemory "pharmacore/internal/infra/blob/memory"
	blobs3 "pharmacore/internal/infra/blob/s3"
	"pharmacore/internal/infra/persistence/memory"
	"pharmacore/internal/infra/persistence/postgres"
	"pharmacore/internal/infra/persistence/sqlite"
	"pharmacore/pkg/domain"
)

// Persistence drivers selectable at startup.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// StorageConfig selects and parameterizes the persistence driver.
type StorageConfig struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

// BlobConfig selects and parameterizes the prescription image store.
type BlobConfig struct {
	Driver string
	FSRoot string
	S3     blobs3.Config
}

// OpenPersistentStore constructs the persistent store named by the config.
// An empty driver defaults to sqlite. The returned closer is non-nil for
// drivers holding external resources.
func OpenPersistentStore(ctx context.Context, cfg StorageConfig, engine *domain.RulesEngine, logger Logger) (PersistentStore, io.Closer, error) {
	if logger == nil {
		logger = NopLogger{}
	}
	switch cfg.Driver {
	case DriverMemory:
		return memory.NewStore(engine), nil, nil
	case DriverSQLite, "":
		store, err := sqlite.NewStore(cfg.SQLitePath, engine)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		if warn := store.LoadWarning(); warn != nil {
			logger.Error("snapshot load failed, starting empty", "path", store.Path(), "error", warn)
		}
		return store, store, nil
	case DriverPostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN, engine)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		if warn := store.LoadWarning(); warn != nil {
			logger.Error("snapshot load failed, starting empty", "error", warn)
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// OpenBlobStore constructs the prescription image store named by the
// config. An empty driver defaults to the filesystem store.
func OpenBlobStore(ctx context.Context, cfg BlobConfig) (blobcore.Store, error) {
	switch blobcore.Driver(cfg.Driver) {
	case blobcore.DriverMemory:
		return blobmemory.New(), nil
	case blobcore.DriverFilesystem, "":
		return blobfs.New(cfg.FSRoot)
	case blobcore.DriverS3:
		return blobs3.New(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}
