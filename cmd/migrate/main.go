package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/db"
	"github.com/hackgods/clinic-appointment-scheduling/internal/logging"
	"github.com/hackgods/clinic-appointment-scheduling/migrations"
)

const usage = `usage: migrate <command>

commands:
  up           apply all pending migrations
  down N       roll back N migrations
  force V      mark version V as applied without running it
  version      print the current schema version`

func main() {
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	_ = godotenv.Load()

	logger, err := logging.New(getEnv("APP_ENV", "dev"), getEnv("LOG_LEVEL", "info"))
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal("POSTGRES_DSN is required")
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	m, err := db.NewMigrator(dsn, migrations.FS)
	if err != nil {
		logger.Fatal("init migrator", zap.Error(err))
	}

	err = run(logger, m, args)
	if cerr := m.Close(); cerr != nil {
		logger.Warn("close migrator", zap.Error(cerr))
	}
	if err != nil {
		logger.Error("migration failed", zap.String("command", args[0]), zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(logger *zap.Logger, m *db.Migrator, args []string) error {
	switch args[0] {
	case "up":
		if err := m.Up(); err != nil {
			return err
		}
		logger.Info("migrations applied")
	case "down":
		n, err := intArg(args, "down")
		if err != nil {
			return err
		}
		if err := m.Down(n); err != nil {
			return err
		}
		logger.Info("migrations rolled back", zap.Int("steps", n))
	case "force":
		v, err := intArg(args, "force")
		if err != nil {
			return err
		}
		if err := m.Force(v); err != nil {
			return err
		}
		logger.Info("version forced", zap.Int("version", v))
	case "version":
		v, dirty, err := m.Version()
		if err != nil {
			return err
		}
		fmt.Printf("version=%d dirty=%t\n", v, dirty)
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
	return nil
}

func intArg(args []string, cmd string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%s needs a number", cmd)
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s needs a non-negative number, got %q", cmd, args[1])
	}
	return n, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
