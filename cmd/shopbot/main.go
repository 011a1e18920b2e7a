package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/m3rciful/shopbot/core/buildinfo"
	corecmd "github.com/m3rciful/shopbot/core/cmd"
	"github.com/m3rciful/shopbot/internal/app"
)

const defaultConfigPath = "config.yaml"

type flags struct {
	configPath string
	token      string
	verbose    bool
	quiet      bool
}

func main() {
	f := &flags{}

	cmd := &cli.Command{
		Name:      "shopbot",
		Usage:     "Telegram bot that keeps a shopping list per chat",
		ArgsUsage: "[token]",
		Version:   fmt.Sprintf("%s (%s) %s", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to the YAML config file",
				Sources:     cli.EnvVars("CONFIG_PATH"),
				Destination: &f.configPath,
			},
			&cli.StringFlag{
				Name:        "token",
				Aliases:     []string{"t"},
				Usage:       "Telegram bot token (also accepted as the first argument)",
				Sources:     cli.EnvVars("BOT_TOKEN"),
				Destination: &f.token,
			},
			&cli.BoolFlag{
				Name:        "verbose",
				Aliases:     []string{"v"},
				Usage:       "log at debug level",
				Destination: &f.verbose,
			},
			&cli.BoolFlag{
				Name:        "quiet",
				Aliases:     []string{"q"},
				Usage:       "log errors only",
				Destination: &f.quiet,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if f.verbose && f.quiet {
				return fmt.Errorf("--verbose and --quiet are mutually exclusive")
			}
			if arg := strings.TrimSpace(c.Args().First()); arg != "" {
				f.token = arg
			}
			return corecmd.Run(corecmd.Options{
				ConfigPath:        f.configPath,
				DefaultConfigPath: defaultConfigPath,
				EnvFiles:          []string{".env"},
				LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
					return app.LoadConfig(path, f.apply)
				},
				Bootstrap: func(ctx context.Context, cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
					return app.Bootstrap(ctx, cfg.(*app.Config))
				},
			})
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Printf("shopbot: %v", err)
		os.Exit(1)
	}
}

// apply lays command line values over the decoded configuration.
func (f *flags) apply(cfg *app.Config) {
	if f.token != "" {
		cfg.Telegram.Token = f.token
	}
	switch {
	case f.verbose:
		cfg.Logging.Level = "debug"
	case f.quiet:
		cfg.Logging.Level = "error"
	}
}
