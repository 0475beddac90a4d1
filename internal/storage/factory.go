package storage

import (
	"fmt"

	"aina-notebook/internal/config"
)

// New builds the history backend selected by configuration. The store still
// needs Init before use.
func New(cfg *config.Config) (HistoryStore, error) {
	switch t := cfg.StorageType(); t {
	case "memory":
		return NewMemoryStore(), nil
	case "disk":
		return NewDiskStore(cfg.Storage.DataDir, cfg.Storage.CacheSize), nil
	case "sqlite":
		return NewSQLiteStore(cfg.Storage.SQLitePath), nil
	case "redis":
		if cfg.Redis.Addr == "" {
			return nil, &config.MissingError{Keys: []string{"redis.addr"}}
		}
		return NewRedisStore(cfg.Redis), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", t)
	}
}
