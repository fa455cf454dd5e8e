package chmigrations

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Apply runs every pending numbered migration embedded in files against the
// ClickHouse HTTP endpoint, e.g. "http://clickhouse:8123".
func Apply(endpoint string) error {
	src, err := iofs.New(files, ".")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}

	drv := newHTTPDriver(endpoint)
	if err := drv.ensureVersionsTable(); err != nil {
		return fmt.Errorf("ensure %s table: %w", versionsTable, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "clickhouse", drv)
	if err != nil {
		return fmt.Errorf("build migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply clickhouse migrations: %w", err)
	}
	return nil
}
