package store

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrateOptions selects the migration source and direction.
type MigrateOptions struct {
	Dir       string // file://path; empty uses the embedded migrations
	Direction string // up or down
	Steps     int    // 0 = all
}

// Migrate applies database migrations. Already being at the target version is not an error.
func Migrate(dsn string, opts MigrateOptions) error {
	if dsn == "" {
		return errors.New("migrate: postgres dsn required")
	}
	var (
		m   *migrate.Migrate
		err error
	)
	if opts.Dir != "" {
		m, err = migrate.New(opts.Dir, dsn)
	} else {
		src, srcErr := iofs.New(migrationsFS, "migrations")
		if srcErr != nil {
			return srcErr
		}
		m, err = migrate.NewWithSourceInstance("iofs", src, dsn)
	}
	if err != nil {
		return err
	}
	defer m.Close()

	switch opts.Direction {
	case "", "up":
		if opts.Steps > 0 {
			err = m.Steps(opts.Steps)
		} else {
			err = m.Up()
		}
	case "down":
		if opts.Steps > 0 {
			err = m.Steps(-opts.Steps)
		} else {
			err = m.Down()
		}
	default:
		return fmt.Errorf("unknown direction: %s", opts.Direction)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
