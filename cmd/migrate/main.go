package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	appMigrations "github.com/yigit/unisphere-enrollment/internal/app/migrations"
	"github.com/yigit/unisphere-enrollment/internal/bootstrap"
	"github.com/yigit/unisphere-enrollment/internal/pkg/logger"
	"github.com/yigit/unisphere-enrollment/internal/seed"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "migrate",
		Usage: "prepare the enrollment database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "configs/config.yaml",
				Usage:   "path of the YAML configuration file",
				EnvVars: []string{"CONFIG_PATH"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "optional dotenv file loaded before the configuration",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply pending migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "seed", Usage: "create the default course catalogue afterwards"},
				},
				Action: func(c *cli.Context) error {
					return run(c, c.Bool("seed"))
				},
			},
			{
				Name:  "seed",
				Usage: "apply pending migrations and create the default course catalogue",
				Action: func(c *cli.Context) error {
					return run(c, true)
				},
			},
			{
				Name:  "list",
				Usage: "print the embedded migrations in apply order",
				Action: func(c *cli.Context) error {
					files, err := appMigrations.Pending(appMigrations.Files())
					if err != nil {
						return err
					}
					for _, name := range files {
						fmt.Fprintf(c.App.Writer, "%s\t%s\n", appMigrations.Version(name), name)
					}
					return nil
				},
			},
		},
	}
}

func run(c *cli.Context, withSeed bool) error {
	cfg, lgr, err := bootstrap.LoadConfigAndSetupLogger(c.String("config"), c.String("env-file"))
	if err != nil {
		return err
	}

	database, err := bootstrap.SetupDatabase(c.Context, cfg, lgr)
	if err != nil {
		return err
	}
	deps := bootstrap.BuildDependencies(cfg, database, lgr)
	defer deps.Close()

	if !withSeed {
		return nil
	}
	return seed.CreateDefaultData(c.Context, deps.Services.Courses, seed.DefaultCourses, lgr)
}
