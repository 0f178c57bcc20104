package pg

import (
	"github.com/home-express/finance-core/pkg/logger"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

func Migrate(cfg Config, dir string) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	db, err := newSqlConnection(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	current, err := goose.GetDBVersion(db)
	if err != nil {
		logger.Warn("migration: could not read current version", "error", err)
	}
	logger.Info("migration: applying", "dir", dir, "current_version", current)

	if err = goose.Up(db, dir); err != nil {
		return err
	}

	return nil
}
