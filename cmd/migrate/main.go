package main

import (
	"database/sql"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/crewdesk/backend/internal/infrastructure/config"
	"github.com/crewdesk/backend/internal/infrastructure/logger"
	"github.com/crewdesk/backend/internal/infrastructure/migration"
	"github.com/crewdesk/backend/migrations"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func main() {
	var (
		migrationsPath string
		logLevel       string
	)
	flag.StringVar(&migrationsPath, "path", "", "read migrations from this directory instead of the embedded set")
	flag.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}
	command := args[0]

	log, err := logger.New(&logger.Config{Level: logLevel, Format: "console", Output: "stdout"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	switch command {
	case "create":
		if len(args) < 2 {
			log.Fatal("usage: migrate -path ./migrations create <name> [description]")
		}
		dir := migrationsPath
		if dir == "" {
			dir = "migrations"
		}
		desc := ""
		if len(args) > 2 {
			desc = args[2]
		}
		mf, err := migration.CreateMigration(dir, args[1], desc)
		if err != nil {
			log.Fatal("create migration failed", zap.Error(err))
		}
		log.Info("migration created", zap.Uint("version", mf.Version), zap.String("up", mf.UpPath), zap.String("down", mf.DownPath))
		return
	case "list":
		entries, err := listFrom(migrationsPath, migrations.FS)
		if err != nil {
			log.Fatal("list migrations failed", zap.Error(err))
		}
		for _, e := range entries {
			fmt.Printf("%06d  %s\n", e.Version, e.Name)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load configuration failed", zap.Error(err))
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal("open database failed", zap.Error(err))
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal("ping database failed", zap.Error(err))
	}

	var m *migration.Migrator
	if migrationsPath != "" {
		m, err = migration.New(db, migrationsPath, log)
	} else {
		m, err = migration.NewEmbedded(db, migrations.FS, log)
	}
	if err != nil {
		log.Fatal("create migrator failed", zap.Error(err))
	}
	defer func() { _ = m.Close() }()

	if err := run(m, command, args[1:], log); err != nil {
		log.Fatal("migration command failed", zap.String("command", command), zap.Error(err))
	}
}

func run(m *migration.Migrator, command string, args []string, log *zap.Logger) error {
	switch command {
	case "up":
		return m.Up()
	case "down":
		return m.Down()
	case "step":
		n, err := intArg(args, "step <n>")
		if err != nil {
			return err
		}
		return m.Steps(n)
	case "goto":
		n, err := intArg(args, "goto <version>")
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("version must not be negative")
		}
		return m.GoTo(uint(n))
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		log.Info("current schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))
		return nil
	case "force":
		n, err := intArg(args, "force <version>")
		if err != nil {
			return err
		}
		return m.Force(n)
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func intArg(args []string, usage string) (int, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("usage: migrate %s", usage)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", args[0])
	}
	return n, nil
}

func listFrom(path string, embedded fs.FS) ([]migration.Entry, error) {
	if path != "" {
		return migration.ListMigrations(os.DirFS(path))
	}
	return migration.ListMigrations(embedded)
}

func printUsage() {
	fmt.Fprint(os.Stderr, `crewdesk schema migrations

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    apply all pending migrations
  down                  roll back all migrations
  step <n>              apply n migrations (negative rolls back)
  goto <version>        migrate to a specific version
  version               print the current version
  force <version>       set the version without running migrations (clears dirty state)
  create <name> [desc]  write the next numbered migration pair
  list                  list known migrations

Flags:
  -path string          migrations directory (default: embedded migrations)
  -log-level string     debug, info, warn, error (default: info)

Database settings are read from config.toml or CREWDESK_DATABASE_* variables.
`)
}
