// Command migrate manages the partner_relationships schema.
package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/supplychain/backend/internal/infrastructure/config"
	"github.com/supplychain/backend/internal/infrastructure/logger"
	"github.com/supplychain/backend/internal/infrastructure/migration"
	"github.com/supplychain/backend/migrations"
	"go.uber.org/zap"
)

const defaultMigrationsPath = "migrations"

type options struct {
	path       string
	configPath string
	logLevel   string
	embedded   bool
}

// dbCommand runs against an open migrator
type dbCommand func(m *migration.Migrator, args []string, log *zap.Logger) error

var dbCommands = map[string]dbCommand{
	"up":      func(m *migration.Migrator, _ []string, _ *zap.Logger) error { return m.Up() },
	"down":    func(m *migration.Migrator, _ []string, _ *zap.Logger) error { return m.Down() },
	"step":    stepCommand,
	"goto":    gotoCommand,
	"version": versionCommand,
	"force":   forceCommand,
	"drop":    dropCommand,
}

func main() {
	var opts options
	flag.StringVar(&opts.path, "path", "", "Path to migrations directory (default: ./migrations)")
	flag.StringVar(&opts.configPath, "config", "", "Path to config file (default: search ./config.toml)")
	flag.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.BoolVar(&opts.embedded, "embedded", false, "Use the migrations compiled into the binary")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		Level:      opts.logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	if err := run(opts, args, log); err != nil {
		log.Fatal("Migration command failed", zap.String("command", args[0]), zap.Error(err))
	}
}

func run(opts options, args []string, log *zap.Logger) error {
	command, rest := args[0], args[1:]
	dir := resolveMigrationsPath(opts.path)
	log.Debug("Migration CLI started",
		zap.String("command", command),
		zap.String("migrations_path", dir),
		zap.Bool("embedded", opts.embedded),
	)

	switch command {
	case "create":
		return createCommand(dir, rest, log)
	case "list":
		var files fs.FS = os.DirFS(dir)
		if opts.embedded {
			files = migrations.FS
		}
		return listCommand(files, log)
	}

	cmd, ok := dbCommands[command]
	if !ok {
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	var m *migration.Migrator
	if opts.embedded {
		m, err = migration.NewFromFS(db, migrations.FS, log)
	} else {
		m, err = migration.New(db, dir, log)
	}
	if err != nil {
		_ = db.Close()
		return err
	}
	// closing the migrator also closes db
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("Failed to close migrator", zap.Error(err))
		}
	}()

	return cmd(m, rest, log)
}

func resolveMigrationsPath(path string) string {
	if path == "" {
		path = defaultMigrationsPath
		if _, err := os.Stat(path); err != nil {
			if exe, err := os.Executable(); err == nil {
				candidate := filepath.Join(filepath.Dir(exe), "..", "..", defaultMigrationsPath)
				if _, err := os.Stat(candidate); err == nil {
					path = candidate
				}
			}
		}
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func createCommand(dir string, args []string, log *zap.Logger) error {
	if len(args) < 1 {
		return errors.New("migration name required: migrate create <name> [description]")
	}
	description := ""
	if len(args) > 1 {
		description = args[1]
	}
	mf, err := migration.CreateMigration(dir, args[0], description)
	if err != nil {
		return err
	}
	log.Info("Migration created",
		zap.String("version", mf.Version),
		zap.String("up_file", mf.UpPath),
		zap.String("down_file", mf.DownPath),
	)
	return nil
}

func listCommand(files fs.FS, log *zap.Logger) error {
	names, err := migration.ListMigrations(files)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		log.Info("No migrations found")
		return nil
	}
	log.Info("Available migrations", zap.Int("count", len(names)))
	for _, name := range names {
		fmt.Println("  -", name)
	}
	return nil
}

func stepCommand(m *migration.Migrator, args []string, _ *zap.Logger) error {
	if len(args) < 1 {
		return errors.New("step count required: migrate step <n>")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid step count %q", args[0])
	}
	return m.Steps(n)
}

func gotoCommand(m *migration.Migrator, args []string, _ *zap.Logger) error {
	if len(args) < 1 {
		return errors.New("version required: migrate goto <version>")
	}
	version, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid version %q", args[0])
	}
	return m.GoTo(uint(version))
}

func versionCommand(m *migration.Migrator, _ []string, log *zap.Logger) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if version == 0 {
		log.Info("No migrations applied")
		return nil
	}
	log.Info("Current migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

func forceCommand(m *migration.Migrator, args []string, _ *zap.Logger) error {
	if len(args) < 1 {
		return errors.New("version required: migrate force <version>")
	}
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version %q", args[0])
	}
	return m.Force(version)
}

func dropCommand(m *migration.Migrator, args []string, _ *zap.Logger) error {
	if !slices.Contains(args, "-confirm") && !slices.Contains(args, "--confirm") {
		return errors.New("drop removes every table; rerun as 'migrate drop -confirm'")
	}
	return m.Drop()
}

func printUsage() {
	fmt.Println(`Partner service schema migrations

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  down                  Roll back all migrations
  step <n>              Apply n migrations (positive=up, negative=down)
  goto <version>        Migrate to a specific version
  version               Show current migration version
  force <version>       Force set migration version after a manual fix
  drop -confirm         Drop all database objects
  create <name> [desc]  Create a new migration file pair
  list                  List available migrations

Flags:
  -path string          Path to migrations directory (default: ./migrations)
  -config string        Path to config file (default: ./config.toml)
  -log-level string     Log level: debug, info, warn, error (default: info)
  -embedded             Use the migrations compiled into the binary

Environment:
  PARTNER_DATABASE_HOST, PARTNER_DATABASE_PORT, PARTNER_DATABASE_USER,
  PARTNER_DATABASE_PASSWORD, PARTNER_DATABASE_DBNAME, PARTNER_DATABASE_SSLMODE`)
}
