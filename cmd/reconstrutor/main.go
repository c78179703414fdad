package main

import (
	"fmt"
	"os"

	"github.com/Miguel3074/servidor-reconstrucao-ultrassom/internal/config"
	"github.com/Miguel3074/servidor-reconstrucao-ultrassom/internal/validate"
	"github.com/Miguel3074/servidor-reconstrucao-ultrassom/internal/version"

	"github.com/urfave/cli/v2"
)

// loadConfigWithOverrides loads configuration from the --config path and
// applies any CLI flag overrides on top, mirroring the teacher's
// flags-then-defaults-then-overrides layering.
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", c.String("config"), err)
	}

	if addr := c.String("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if c.IsSet("workers") {
		if workers := c.Int("workers"); workers > 0 {
			cfg.Server.MaxConcurrentJobs = workers
		} else {
			cfg.Server.MaxConcurrentJobs = config.NumCPUFallback()
		}
	}
	if cacheDir := c.String("cache-dir"); cacheDir != "" {
		cfg.Store.CacheDir = cacheDir
	}
	if c.Bool("png") {
		cfg.Render.Format = "png"
	}
	if minRAM := c.Float64("min-ram-mb"); minRAM > 0 {
		cfg.Server.MinFreeRAMMB = minRAM
	}
	if maxIter := c.Int("max-iter"); maxIter > 0 {
		cfg.Solver.MaxIter = maxIter
	}
	if tol := c.Float64("tol"); tol > 0 {
		cfg.Solver.Tol = tol
	}

	return cfg, nil
}

func main() {
	app := &cli.App{
		Name:                   "reconstrutor",
		Usage:                  "image reconstruction service: CGNR/CGLS solver over HTTP",
		Version:                version.Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (TOML)",
				Value:   "reconstrutor.toml",
			},
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Usage:   "HTTP listen address (overrides config)",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Worker pool capacity, max concurrent jobs; 0 auto-detects from NumCPU (overrides config)",
			},
			&cli.StringFlag{
				Name:  "cache-dir",
				Usage: "Directory for rendered output rasters (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "png",
				Usage: "Emit PNG rasters instead of the canonical PGM-P2 format",
			},
			&cli.Float64Flag{
				Name:  "min-ram-mb",
				Usage: "Advisory free-RAM floor in MiB before admission (overrides config)",
			},
			&cli.IntFlag{
				Name:  "max-iter",
				Usage: "Solver maximum iteration count (overrides config)",
			},
			&cli.Float64Flag{
				Name:  "tol",
				Usage: "Solver convergence tolerance (overrides config)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Start the reconstruction HTTP service",
				Action: func(c *cli.Context) error {
					return serveCommand(c)
				},
			},
			{
				Name:      "validar",
				Usage:     "Run the offline matrix-op validator against a fixture directory",
				ArgsUsage: "<fixture-dir>",
				Action:    validarCommand,
			},
		},
		Action: func(c *cli.Context) error {
			if c.Args().Present() {
				return cli.ShowAppHelp(c)
			}
			return serveCommand(c)
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "erro:", err)
		os.Exit(1)
	}
}

// validarCommand runs C8's offline matrix-op validator against the
// fixture directory named on the command line, printing PASS/FAIL per
// check. Exit is informational, not process-terminal, per spec.md §4.8.
func validarCommand(c *cli.Context) error {
	dir := c.Args().First()
	if dir == "" {
		return fmt.Errorf("usage: reconstrutor validar <fixture-dir>")
	}

	reports, err := validate.Run(dir)
	if err != nil {
		return err
	}

	for _, rep := range reports {
		if rep.Passed {
			fmt.Printf("PASS %s\n", rep.Name)
		} else {
			fmt.Printf("FAIL %s: %s\n", rep.Name, rep.Detail)
		}
	}
	return nil
}
