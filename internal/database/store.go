package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"wifiportal/internal/config"
	"wifiportal/internal/repository"
	"wifiportal/internal/repository/memory"
)

// OpenStore connects the configured backend and runs migrations when asked
// to. The returned close func releases the pool.
func OpenStore(ctx context.Context, cfg *config.AppConfig, appName string, log zerolog.Logger) (repository.Store, func(), error) {
	switch cfg.Database.Driver {
	case "memory":
		log.Warn().Msg("using in-memory store, data is lost on restart")
		return memory.New(), func() {}, nil
	case "postgres":
		pool, err := NewPostgresPool(ctx, cfg.Postgres, appName)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Database.Migrate {
			if err := Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, err
			}
			log.Info().Msg("database migrations applied")
		}
		return repository.NewPostgresStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}
