package main

import (
	"database/sql"
	"flag"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"taleweaver/internal/infra"
	"taleweaver/migrations"
)

func main() {
	_ = godotenv.Load()

	command := flag.String("command", "up", "goose command: up, down, status, version")
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("migrate: open database failed")
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		logger.Fatal().Err(err).Msg("migrate: set dialect failed")
	}

	if err := goose.Run(*command, db, "."); err != nil {
		logger.Fatal().Err(err).Str("command", *command).Msg("migrate: command failed")
	}
	logger.Info().Str("command", *command).Msg("migrate: done")
}
