package main

import (
	"os"
	"strings"

	"github.com/home-express/finance-core/internal/app"
	"github.com/home-express/finance-core/internal/config"
	"github.com/home-express/finance-core/pkg/logger"
	"github.com/home-express/finance-core/pkg/pg"
)

func main() {
	err := config.Load(getEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	// main.go --dir=./migrations
	err = pg.Migrate(app.WriteConfig(config.Get()), getMigrationPath())
	if err != nil {
		logger.Error("migration: error running migrations", "error", err)
		os.Exit(1)
	}
}

func getEnvPath() string {
	if path := app.EnvPathFromArgs(os.Args); path != "" {
		return path
	}
	if _, err := os.Stat(".env"); err != nil {
		logger.Warn("no env file found, reading the environment only")
		return ""
	}
	return ".env"
}

func getMigrationPath() string {
	for _, v := range os.Args {
		if strings.HasPrefix(v, "--dir=") {
			dir := strings.TrimPrefix(v, "--dir=")
			if _, err := os.Stat(dir); err != nil {
				logger.Error("failed to open the passed migration dir, got error" + err.Error())
				return ""
			}
			return dir
		}
	}
	return "./migrations"
}
