package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/pawpass-backend/pkg/config"
	"github.com/angelmondragon/pawpass-backend/pkg/db"
	"github.com/angelmondragon/pawpass-backend/pkg/logger"
)

// MaybeRunDev brings the schema up to date from the embedded migrations.
// It is a no-op unless the app runs in dev with PAWPASS_AUTO_MIGRATE set;
// every other environment migrates through cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg == nil || client == nil || !cfg.App.IsDev() || !cfg.Features.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("dev autorun: sql handle: %w", err)
	}

	started := time.Now()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dir": EmbeddedDir})
	logg.Info(ctx, "migrate.dev_autorun.start")

	if err := ValidateFS(Embedded, EmbeddedDir); err != nil {
		return fmt.Errorf("dev autorun: embedded migrations invalid: %w", err)
	}
	if err := Run(ctx, sqlDB, Embedded, EmbeddedDir, "up"); err != nil {
		return fmt.Errorf("dev autorun: goose up: %w", err)
	}

	logg.Info(logg.WithField(ctx, "duration_ms", time.Since(started).Milliseconds()), "migrate.dev_autorun.done")
	return nil
}
