// Command authd serves the authentication HTTP API.
//
//	authd -config authd.toml          serve
//	authd -config authd.toml -migrate apply Postgres migrations and exit
//	authd -config authd.toml -seed    create catalog roles and the admin, then exit
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/authcore/internal/app"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "authd:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", os.Getenv("AUTHCORE_CONFIG"), "path to TOML config file")
		migrate    = flag.Bool("migrate", false, "apply database migrations and exit")
		seed       = flag.Bool("seed", false, "seed roles, permissions and the bootstrap admin, then exit")
	)
	flag.Parse()

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := app.NewLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if *migrate {
		if _, err := a.Migrate(ctx); err != nil {
			return err
		}
		if !*seed {
			return nil
		}
	}
	if *seed {
		report, err := a.Seed(ctx)
		if err != nil {
			return err
		}
		logger.Info("seed.done", "roles", report.Roles, "permissions", report.Permissions, "admin_created", report.AdminCreated)
		return nil
	}

	return a.Run(ctx)
}
