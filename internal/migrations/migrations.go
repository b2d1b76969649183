// Package migrations holds the database schema and applies it at startup.
package migrations

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

//go:embed sql/*.sql
var files embed.FS

type migrateLogger struct {
	*logrus.Entry
}

func (l migrateLogger) Verbose() bool {
	return l.Logger.IsLevelEnabled(logrus.DebugLevel)
}

// Up applies every pending migration. databaseURL uses the pgx5:// scheme.
func Up(databaseURL string, log *logrus.Entry) (err error) {
	src, err := iofs.New(files, "sql")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}
	m.Log = migrateLogger{log}
	defer func() {
		srcErr, dbErr := m.Close()
		err = multierror.Append(err, srcErr, dbErr).ErrorOrNil()
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("schema is up to date")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	version, dirty, _ := m.Version()
	log.WithFields(logrus.Fields{"version": version, "dirty": dirty}).Info("migrations applied")
	return nil
}
