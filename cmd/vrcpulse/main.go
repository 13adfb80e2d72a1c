package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/five82/vrcpulse/internal/app"
	"github.com/five82/vrcpulse/internal/config"
	"github.com/five82/vrcpulse/internal/logtail"
	"github.com/five82/vrcpulse/internal/printer"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	short := commit
	if len(commit) > 7 {
		short = commit[:7]
	}
	return fmt.Sprintf("%s (%s) %s", version, short, date)
}

type flags struct {
	LogLevel   string
	LogFile    string
	ConfigPath string
}

func main() {
	os.Exit(run())
}

func run() int {
	if err := setupLogger("warn", ""); err != nil {
		panic(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	f := &flags{}
	watch := watchCmd(f)

	cmd := &cli.Command{
		Name:      "vrcpulse",
		Usage:     "Watch VRChat friend activity from the terminal",
		UsageText: "vrcpulse [global options] [command] [command options]",
		Description: `vrcpulse signs in to VRChat, polls your friends list and prints every
status, location and avatar change it sees.

Run 'vrcpulse' with no arguments to start watching.`,
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Sources:     cli.EnvVars("VRCPULSE_LOG_LEVEL"),
				Value:       "warn",
				Destination: &f.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (optional)",
				Sources:     cli.EnvVars("VRCPULSE_LOG_FILE"),
				Destination: &f.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("VRCPULSE_CONFIG"),
				Value:       config.DefaultPath(),
				Destination: &f.ConfigPath,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			return ctx, setupLogger(f.LogLevel, f.LogFile)
		},
		Commands: []*cli.Command{watch, configCmd(f), logsCmd(f)},
	}
	cmd.Flags = append(cmd.Flags, watch.Flags...)
	cmd.Action = func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() > 0 {
			return fmt.Errorf("unknown command %q. Run 'vrcpulse --help' for usage", c.Args().First())
		}
		return watch.Action(ctx, c)
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		printer.New(os.Stderr, printer.GetTheme(printer.DefaultTheme)).Errorf("%v", err)
		return 1
	}
	return 0
}

func watchCmd(f *flags) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Sign in and stream friend activity (default)",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "poll",
				Usage:   "friends poll interval (overrides config)",
				Sources: cli.EnvVars("VRCPULSE_POLL"),
			},
			&cli.StringFlag{
				Name:    "theme",
				Usage:   "color theme (Nightfox, Kanagawa, Slate)",
				Sources: cli.EnvVars("VRCPULSE_THEME"),
			},
			&cli.StringFlag{
				Name:    "export",
				Usage:   "write the activity log to this path on exit (.json or .yaml)",
				Sources: cli.EnvVars("VRCPULSE_EXPORT"),
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return app.Run(ctx, app.Options{
				ConfigPath:   f.ConfigPath,
				PollInterval: c.Duration("poll"),
				Theme:        c.String("theme"),
				ExportPath:   c.String("export"),
				Logger:       log.Logger,
				Out:          c.Root().Writer,
			})
		},
	}
}

func configCmd(f *flags) *cli.Command {
	return &cli.Command{
		Name:      "config",
		Usage:     "Print the effective configuration as TOML",
		UsageText: "vrcpulse config [--default]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "default",
				Usage: "print built-in defaults instead of the loaded file",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := config.Default()
			if !c.Bool("default") {
				loaded, err := config.Load(f.ConfigPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				cfg = loaded
			}
			out := c.Root().Writer
			if _, err := fmt.Fprintf(out, "# %s\n", f.ConfigPath); err != nil {
				return err
			}
			return cfg.Encode(out)
		},
	}
}

func logsCmd(f *flags) *cli.Command {
	return &cli.Command{
		Name:      "logs",
		Usage:     "Print the tail of the log file",
		UsageText: "vrcpulse --log-file <path> logs [-n 200] [--level info] [--component session]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "lines",
				Aliases: []string{"n"},
				Usage:   "number of lines to read from the end",
				Value:   200,
			},
			&cli.StringFlag{
				Name:  "level",
				Usage: "minimum level to show",
				Value: "debug",
			},
			&cli.StringFlag{
				Name:  "component",
				Usage: "only show lines from this component (session, poller, vrchat, watch)",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "disable colors",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if f.LogFile == "" {
				return fmt.Errorf("no log file configured, pass --log-file or set VRCPULSE_LOG_FILE")
			}
			level, err := zerolog.ParseLevel(c.String("level"))
			if err != nil {
				return fmt.Errorf("parse level: %w", err)
			}
			lines, err := logtail.Read(f.LogFile, int(c.Int("lines")))
			if err != nil {
				return err
			}
			lines = logtail.Filter(lines, level, c.String("component"))
			return logtail.Render(c.Root().Writer, lines, c.Bool("no-color"))
		},
	}
}

func setupLogger(level string, logFile string) error {
	parsedLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	var output io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}

	if logFile != "" {
		logDir := filepath.Dir(logFile)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}

		output = io.MultiWriter(zerolog.ConsoleWriter{Out: os.Stderr}, file)
	}

	log.Logger = log.Output(output).Level(parsedLevel)

	return nil
}
