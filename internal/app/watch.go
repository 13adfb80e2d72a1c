package app

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/five82/vrcpulse/internal/activity"
	"github.com/five82/vrcpulse/internal/clock"
	"github.com/five82/vrcpulse/internal/printer"
	"github.com/five82/vrcpulse/internal/session"
	"github.com/five82/vrcpulse/internal/vrchat"
)

const helpText = `commands:
  refresh        poll friends now
  friends        list friends
  status         show connection status
  log            print the activity log
  export <path>  write the activity log (.json or .yaml)
  logout         disconnect and exit
  quit           exit`

type watcher struct {
	manager  *session.Manager
	printer  *printer.Printer
	prompter Prompter
	clock    clock.Clock
	format   activity.Format
	log      zerolog.Logger

	lastEvent string
}

func (w *watcher) run(ctx context.Context, in io.Reader) error {
	changes, unsubscribe := w.manager.Subscribe()
	defer unsubscribe()

	if err := w.login(ctx, changes); err != nil {
		if errors.Is(err, ErrAborted) || ctx.Err() != nil {
			return nil
		}
		return err
	}

	w.printer.Status(w.manager.View(), w.clock.Now())
	w.printer.Infof("type help for commands")
	return w.stream(ctx, readCommands(ctx, in), changes)
}

// login prompts until the manager is connected. A throttled attempt
// waits out the cool-down before prompting again.
func (w *watcher) login(ctx context.Context, changes <-chan struct{}) error {
	for {
		identifier, secret, err := w.prompter.Credentials(ctx)
		if err != nil {
			return err
		}
		out := w.manager.Initiate(ctx, identifier, secret)
		w.printer.Outcome(out, w.clock.Now())

		retry := false
		for out.Phase == session.PhaseAwaitingSecondFactor {
			code, err := w.prompter.SecondFactor(ctx, retry)
			if err != nil {
				w.manager.Disconnect(ctx)
				return err
			}
			out = w.manager.SubmitSecondFactor(ctx, code)
			w.printer.Outcome(out, w.clock.Now())
			retry = out.Kind == vrchat.KindSecondFactorInvalid
		}

		if out.Connected() {
			return nil
		}
		if err := w.waitCooldown(ctx, changes); err != nil {
			return err
		}
	}
}

func (w *watcher) waitCooldown(ctx context.Context, changes <-chan struct{}) error {
	rl := w.manager.View().RateLimit
	if !rl.Active {
		return nil
	}
	w.log.Info().Time("resume_at", rl.ResumeAt).Msg("waiting for cool-down")

	expired := make(chan struct{})
	timer := w.clock.AfterFunc(rl.ResumeAt.Sub(w.clock.Now()), func() { close(expired) })
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-expired:
			return nil
		case _, ok := <-changes:
			if !ok {
				return session.ErrClosed
			}
			if !w.manager.View().RateLimit.Active {
				return nil
			}
		}
	}
}

func (w *watcher) stream(ctx context.Context, commands <-chan string, changes <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case _, ok := <-changes:
			if !ok {
				return nil
			}
			w.printNewEvents()
			if w.manager.Phase() != session.PhaseConnected {
				w.printer.Status(w.manager.View(), w.clock.Now())
				return nil
			}

		case line, ok := <-commands:
			if !ok {
				// stdin closed; keep streaming until cancelled
				commands = nil
				continue
			}
			if quit := w.handle(ctx, line); quit {
				return nil
			}
		}
	}
}

func (w *watcher) handle(ctx context.Context, line string) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch strings.ToLower(fields[0]) {
	case "r", "refresh":
		err := w.manager.RefreshNow(ctx)
		switch {
		case errors.Is(err, session.ErrPollInFlight):
			w.printer.Infof("a poll is already running")
		case err != nil:
			w.printer.Warnf("refresh failed: %v", err)
		}
		w.printNewEvents()

	case "f", "friends":
		w.printer.Friends(w.manager.View().Friends, w.clock.Now())

	case "s", "status":
		w.printer.Status(w.manager.View(), w.clock.Now())

	case "l", "log":
		w.printer.Events(w.manager.View().Activity)

	case "e", "export":
		if len(fields) < 2 {
			w.printer.Warnf("usage: export <path>")
			return false
		}
		if err := exportFile(w.manager, fields[1], w.format); err != nil {
			w.printer.Errorf("export: %v", err)
			return false
		}
		w.printer.Successf("activity log written to %s", fields[1])

	case "logout", "disconnect":
		w.manager.Disconnect(ctx)
		w.printer.Infof("disconnected")
		return true

	case "q", "quit", "exit":
		return true

	case "h", "help", "?":
		for _, l := range strings.Split(helpText, "\n") {
			w.printer.Infof("%s", l)
		}

	default:
		w.printer.Warnf("unknown command %q, type help", fields[0])
	}
	return false
}

// printNewEvents prints events appended since the last call, oldest first.
func (w *watcher) printNewEvents() {
	events := w.manager.View().Activity
	var fresh []activity.Event
	for _, ev := range events {
		if ev.ID == w.lastEvent {
			break
		}
		fresh = append(fresh, ev)
	}
	if len(fresh) == 0 {
		return
	}
	w.lastEvent = fresh[0].ID
	for i := len(fresh) - 1; i >= 0; i-- {
		w.printer.Event(fresh[i])
	}
}

func readCommands(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}
