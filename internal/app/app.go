package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/five82/vrcpulse/internal/clock"
	"github.com/five82/vrcpulse/internal/config"
	"github.com/five82/vrcpulse/internal/printer"
	"github.com/five82/vrcpulse/internal/session"
	"github.com/five82/vrcpulse/internal/vrchat"
)

// Ensure Client implements Transport at compile time.
var _ session.Transport = (*vrchat.Client)(nil)

// Options configure the watcher.
type Options struct {
	ConfigPath   string
	PollInterval time.Duration // zero uses the config value
	Theme        string        // empty uses the config value
	ExportPath   string        // activity log written here on exit
	Logger       zerolog.Logger

	In       io.Reader // commands; nil uses os.Stdin
	Out      io.Writer // nil uses os.Stdout
	Prompter Prompter  // nil uses interactive forms

	// Transport and Clock replace the VRChat client and wall clock.
	Transport session.Transport
	Clock     clock.Clock
}

// Run connects, prompts for credentials and streams friend activity until
// the context is cancelled or the user quits.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.PollInterval > 0 {
		cfg.PollInterval = opts.PollInterval
	}
	if opts.Theme != "" {
		cfg.Theme = opts.Theme
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}

	transport := opts.Transport
	if transport == nil {
		client, err := vrchat.NewClient(vrchat.Options{
			BaseURL:                       cfg.APIURL,
			UserAgent:                     cfg.UserAgent,
			Timeout:                       cfg.RequestTimeout,
			UnauthorizedMeansSecondFactor: cfg.UnauthorizedMeansSecondFactor,
			Clock:                         clk,
			Logger:                        opts.Logger.With().Str("component", "vrchat").Logger(),
		})
		if err != nil {
			return fmt.Errorf("init vrchat client: %w", err)
		}
		transport = client
	}

	manager := session.New(transport, session.Options{
		Clock:            clk,
		Logger:           opts.Logger.With().Str("component", "session").Logger(),
		PollInterval:     cfg.PollInterval,
		ThrottleCooldown: cfg.ThrottleCooldown,
		ActivityCapacity: cfg.ActivityCapacity,
	})
	defer manager.Close()

	in, out := opts.In, opts.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	prompter := opts.Prompter
	if prompter == nil {
		prompter = FormPrompter{}
	}

	w := &watcher{
		manager:  manager,
		printer:  printer.New(out, printer.GetTheme(cfg.Theme)),
		prompter: prompter,
		clock:    clk,
		format:   cfg.ExportFormat,
		log:      opts.Logger.With().Str("component", "watch").Logger(),
	}
	runErr := w.run(ctx, in)

	if opts.ExportPath != "" {
		if err := exportFile(manager, opts.ExportPath, cfg.ExportFormat); err != nil {
			w.printer.Errorf("export: %v", err)
			if runErr == nil {
				runErr = err
			}
		} else {
			w.printer.Successf("activity log written to %s", opts.ExportPath)
		}
	}
	return runErr
}
