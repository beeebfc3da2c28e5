package db

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sahana-project/ewaste-api/config"
)

// DefaultMigrationsURL points at the SQL files shipped with the repo.
const DefaultMigrationsURL = "file://internal/db/migrations"

// Direction selects which way Migrate moves the schema.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Migrate applies every migration in the given direction. Running with no
// pending changes is not an error.
func Migrate(cfg config.DatabaseConfig, sourceURL string, dir Direction) error {
	if dir != Up && dir != Down {
		return fmt.Errorf("unknown migration direction %q", dir)
	}
	if sourceURL == "" {
		sourceURL = DefaultMigrationsURL
	}

	migrator, err := migrate.New(sourceURL, DSN(cfg))
	if err != nil {
		return fmt.Errorf("init migrator failed: %w", err)
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	switch dir {
	case Up:
		err = migrator.Up()
	case Down:
		err = migrator.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s failed: %w", dir, err)
	}
	return nil
}
