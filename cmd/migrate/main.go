package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/pawpass-backend/pkg/config"
	"github.com/angelmondragon/pawpass-backend/pkg/db"
	"github.com/angelmondragon/pawpass-backend/pkg/logger"
	"github.com/angelmondragon/pawpass-backend/pkg/migrate"
)

type options struct {
	cmd      string
	dir      string
	name     string
	version  string
	embedded bool
}

// source resolves where goose reads migrations from.
func (o options) source() (fs.FS, string) {
	if o.embedded {
		return migrate.Embedded, migrate.EmbeddedDir
	}
	return nil, o.dir
}

// offline commands never open a database connection.
var offline = map[string]func(options) error{
	"create": func(o options) error {
		if o.name == "" {
			return errors.New("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(o.dir, o.name)
		if err != nil {
			return err
		}
		fmt.Println("created migration:", path)
		return nil
	},
	"validate": func(o options) error {
		fsys, dir := o.source()
		var err error
		if fsys == nil {
			err = migrate.ValidateDir(dir)
		} else {
			err = migrate.ValidateFS(fsys, dir)
		}
		if err != nil {
			return err
		}
		fmt.Println("migration validation passed")
		return nil
	},
}

var online = map[string]func(context.Context, *sql.DB, options) error{
	"up":     gooseCommand("up"),
	"down":   gooseCommand("down"),
	"status": gooseCommand("status"),
	"version": func(ctx context.Context, sqlDB *sql.DB, o options) error {
		if o.version == "" {
			return errors.New("missing -version for version")
		}
		fsys, dir := o.source()
		return migrate.MigrateToVersion(ctx, sqlDB, fsys, dir, o.version)
	},
}

func gooseCommand(name string) func(context.Context, *sql.DB, options) error {
	return func(ctx context.Context, sqlDB *sql.DB, o options) error {
		fsys, dir := o.source()
		return migrate.Run(ctx, sqlDB, fsys, dir, name)
	}
}

func main() {
	_ = godotenv.Load()

	var o options
	flag.StringVar(&o.cmd, "cmd", "up", "one of: "+commandList())
	flag.StringVar(&o.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&o.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&o.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.BoolVar(&o.embedded, "embedded", false, "use the migrations compiled into the binary instead of -dir")
	flag.Parse()

	if err := run(context.Background(), o); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", o.cmd, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options) error {
	if cmd, ok := offline[o.cmd]; ok {
		return cmd(o)
	}
	cmd, ok := online[o.cmd]
	if !ok {
		return fmt.Errorf("unknown command %q (want one of: %s)", o.cmd, commandList())
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"cmd":      o.cmd,
		"dir":      o.dir,
		"embedded": o.embedded,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("unwrap sql db: %w", err)
	}

	logg.Info(ctx, "migrate.start")
	if err := cmd(ctx, sqlDB, o); err != nil {
		logg.Error(ctx, "migrate.failed", err)
		return err
	}
	logg.Info(ctx, "migrate.done")
	return nil
}

func commandList() string {
	names := make([]string, 0, len(offline)+len(online))
	for name := range offline {
		names = append(names, name)
	}
	for name := range online {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprint(names)
}
