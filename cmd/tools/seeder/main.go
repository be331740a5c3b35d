package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/noah-isme/invoice-assistant/internal/catalog"
	"github.com/noah-isme/invoice-assistant/internal/db"
	"github.com/noah-isme/invoice-assistant/internal/obs"
)

// seeder loads a JSON product file into catalog_products so the API can run
// with CATALOG_SOURCE=postgres.
func main() {
	_ = godotenv.Load()

	file := flag.String("file", envOrDefault("CATALOG_FILE", "product_data.json"), "JSON array of product records")
	migrate := flag.Bool("migrate", false, "apply schema migrations first")
	flag.Parse()

	logger := obs.NewLogger(envOrDefault("OBS_LOG_FORMAT", "console"), "info")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if *migrate {
		if err := db.Up(dbURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	records, err := catalog.FileSource{Path: *file}.Load(ctx)
	if err != nil {
		logger.Fatal().Err(err).Str("file", *file).Msg("read catalog file")
	}
	if err := catalog.Validate(records); err != nil {
		logger.Fatal().Err(err).Str("file", *file).Msg("catalog file rejected")
	}

	pool, err := db.Connect(ctx, dbURL, "invoice-assistant-seeder")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := (catalog.PGSource{Pool: pool}).Replace(ctx, records); err != nil {
		logger.Fatal().Err(err).Msg("seed catalog products")
	}
	logSummary(logger, records)
}

func logSummary(logger zerolog.Logger, records []catalog.Record) {
	names := catalog.Names(records)
	logger.Info().Int("products", len(records)).Strs("names", names).Msg("catalog seeded")
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
