package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/pastrypickup-backend/pkg/config"
	"github.com/angelmondragon/pastrypickup-backend/pkg/db"
	"github.com/angelmondragon/pastrypickup-backend/pkg/logger"
	"github.com/angelmondragon/pastrypickup-backend/pkg/migrate"
)

func main() {
	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
	dir := flag.String("dir", "", "migrations directory; empty uses the files built into the binary")
	name := flag.String("name", "", "migration name (create)")
	version := flag.String("version", "", "target version YYYYMMDDHHMMSS (version)")
	flag.Parse()

	// create and validate only touch files, so they run without config.
	switch *cmd {
	case "create":
		exitOn(createMigration(fileDir(*dir), *name))
		return
	case "validate":
		exitOn(migrate.ValidateDir(fileDir(*dir)))
		fmt.Println("migration validation passed")
		return
	}

	_ = godotenv.Load()
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
		"dir": *dir,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.SQL()
	requireResource(ctx, logg, "sql database", err)
	files, err := migrate.Source(*dir)
	requireResource(ctx, logg, "migration files", err)
	runner, err := migrate.NewRunner(sqlDB, files, logg)
	requireResource(ctx, logg, "migration runner", err)

	switch *cmd {
	case "up":
		err = runner.Up(ctx)
	case "down":
		err = runner.Down(ctx)
	case "status":
		err = printStatus(ctx, runner)
	case "version":
		if *version == "" {
			err = fmt.Errorf("missing -version for version command")
			break
		}
		err = runner.MigrateTo(ctx, *version)
	default:
		err = fmt.Errorf("unknown -cmd value: %s", *cmd)
	}
	if err != nil {
		logg.Error(ctx, "migration command failed", err)
		os.Exit(1)
	}
}

func fileDir(dir string) string {
	if dir == "" {
		return migrate.DefaultDir
	}
	return dir
}

func createMigration(dir, name string) error {
	if name == "" {
		return fmt.Errorf("missing -name for create")
	}
	path, err := migrate.CreateSQLMigration(dir, name)
	if err != nil {
		return err
	}
	fmt.Println("created migration:", path)
	return nil
}

func printStatus(ctx context.Context, runner *migrate.Runner) error {
	statuses, err := runner.Status(ctx)
	if err != nil {
		return err
	}
	out := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(out, "VERSION\tSTATE\tAPPLIED AT\tFILE")
	for _, st := range statuses {
		applied := "-"
		if !st.AppliedAt.IsZero() {
			applied = st.AppliedAt.UTC().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(out, "%d\t%s\t%s\t%s\n", st.Source.Version, st.State, applied, filepath.Base(st.Source.Path))
	}
	return out.Flush()
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "resource not working: "+resource, err)
	os.Exit(1)
}
