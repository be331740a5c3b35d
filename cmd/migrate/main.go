package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"

	"github.com/noah-isme/invoice-assistant/internal/db"
	"github.com/noah-isme/invoice-assistant/internal/obs"
)

const usage = `usage: migrate [up|down [n]|version|force v]`

func main() {
	_ = godotenv.Load()
	flag.Parse()
	logger := obs.NewLogger("console", "info")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}
	m, err := db.NewMigrator(dbURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("init migrator")
	}
	defer func() { _, _ = m.Close() }()

	if err := run(m, flag.Args()); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		logger.Fatal().Err(err).Msg("read version")
	}
	logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("schema version")
}

func run(m *migrate.Migrate, args []string) error {
	cmd := "up"
	if len(args) > 0 {
		cmd = args[0]
	}
	var err error
	switch cmd {
	case "up":
		err = m.Up()
	case "down":
		if len(args) > 1 {
			n, convErr := strconv.Atoi(args[1])
			if convErr != nil || n <= 0 {
				return fmt.Errorf("down step must be a positive integer: %q", args[1])
			}
			err = m.Steps(-n)
		} else {
			err = m.Down()
		}
	case "version":
		return nil
	case "force":
		if len(args) < 2 {
			return errors.New(usage)
		}
		v, convErr := strconv.Atoi(args[1])
		if convErr != nil {
			return fmt.Errorf("force version must be an integer: %q", args[1])
		}
		err = m.Force(v)
	default:
		return errors.New(usage)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
