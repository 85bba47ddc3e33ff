package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"annotext/internal/config"
	"annotext/internal/logger"
)

const usage = "Usage: migrate [up|down|steps N|version|force V]"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	path := os.Getenv("ANNOTEXT_MIGRATIONS_PATH")
	if path == "" {
		path = "db/migrations"
	}
	m, err := migrate.New("file://"+path, cfg.DB.DSN())
	if err != nil {
		log.Fatal("failed to create migrate instance", "error", err)
	}
	defer m.Close()

	switch cmd := os.Args[1]; cmd {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal("migration up failed", "error", err)
		}
		log.Info("migrations applied")

	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal("migration down failed", "error", err)
		}
		log.Info("migrations reverted")

	case "steps":
		n := intArg("steps", log)
		if err := m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal("migration steps failed", "error", err)
		}
		log.Info("applied migration steps", "steps", n)

	case "force":
		v := intArg("force", log)
		if err := m.Force(v); err != nil {
			log.Fatal("force version failed", "error", err)
		}
		log.Info("forced migration version", "version", v)

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			log.Fatal("failed to get version", "error", err)
		}
		fmt.Printf("version: %d, dirty: %v\n", version, dirty)

	default:
		fmt.Printf("unknown command: %s\n", cmd)
		fmt.Println(usage)
		os.Exit(1)
	}
}

func intArg(cmd string, log *logger.Logger) int {
	if len(os.Args) < 3 {
		log.Fatal(cmd + " requires a number argument")
	}
	n, err := strconv.Atoi(os.Args[2])
	if err != nil {
		log.Fatal("invalid argument", "command", cmd, "error", err)
	}
	return n
}
