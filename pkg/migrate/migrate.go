// Package migrate applies the goose SQL migrations, either from a directory on
// disk or from the copy compiled into the binary.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
)

const DefaultDir = "pkg/migrate/migrations"

// Embedded lets binaries migrate without the source tree on disk.
//
//go:embed migrations/*.sql
var Embedded embed.FS

// EmbeddedDir is the directory name inside Embedded.
const EmbeddedDir = "migrations"

// report receives per-migration progress lines.
var report io.Writer = os.Stdout

// Run executes up, down (one step) or status. A nil fsys reads dir from the
// local filesystem.
func Run(ctx context.Context, db *sql.DB, fsys fs.FS, dir string, command string) error {
	provider, err := newProvider(db, fsys, dir)
	if err != nil {
		return err
	}
	defer provider.Close()

	switch command {
	case "up":
		results, err := provider.Up(ctx)
		printResults(results)
		return wrap(command, err)
	case "down":
		result, err := provider.Down(ctx)
		if result != nil {
			printResults([]*goose.MigrationResult{result})
		}
		return wrap(command, err)
	case "status":
		statuses, err := provider.Status(ctx)
		if err != nil {
			return wrap(command, err)
		}
		for _, s := range statuses {
			applied := "pending"
			if s.State == goose.StateApplied {
				applied = s.AppliedAt.UTC().Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(report, "%-20s %s\n", applied, s.Source.Path)
		}
		return nil
	default:
		return fmt.Errorf("unsupported goose command %q", command)
	}
}

// MigrateToVersion moves the schema up or down to targetVersion (YYYYMMDDHHMMSS).
func MigrateToVersion(ctx context.Context, db *sql.DB, fsys fs.FS, dir string, targetVersion string) error {
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}
	provider, err := newProvider(db, fsys, dir)
	if err != nil {
		return err
	}
	defer provider.Close()

	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}
	var results []*goose.MigrationResult
	switch {
	case current == target:
		return nil
	case current < target:
		results, err = provider.UpTo(ctx, target)
	default:
		results, err = provider.DownTo(ctx, target)
	}
	printResults(results)
	return wrap(fmt.Sprintf("migrate %d -> %d", current, target), err)
}

func newProvider(db *sql.DB, fsys fs.FS, dir string) (*goose.Provider, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if dir == "" {
		return nil, errors.New("dir is required")
	}
	var (
		source fs.FS
		err    error
	)
	if fsys == nil {
		source = os.DirFS(dir)
	} else if source, err = fs.Sub(fsys, dir); err != nil {
		return nil, fmt.Errorf("open migrations %s: %w", dir, err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, source)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return provider, nil
}

func printResults(results []*goose.MigrationResult) {
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		fmt.Fprintf(report, "%-4s %s (%s)\n", r.Direction, r.Source.Path, r.Duration.Round(time.Millisecond))
	}
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("goose %s: %w", op, err)
}
