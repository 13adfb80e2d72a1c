package printer

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/five82/vrcpulse/internal/activity"
	"github.com/five82/vrcpulse/internal/session"
	"github.com/five82/vrcpulse/internal/state"
)

// Symbols
const (
	Check = "✔"
	Cross = "✘"
	Dot   = "•"
	Arrow = "→"
)

// Printer writes styled, line-oriented output.
type Printer struct {
	writer io.Writer
	styles Styles
}

// New creates a Printer that writes to w using theme.
func New(w io.Writer, theme Theme) *Printer {
	return &Printer{writer: w, styles: theme.Styles()}
}

func (p *Printer) line(s string) {
	_, _ = io.WriteString(p.writer, s+"\n")
}

// Errorf prints an error message.
func (p *Printer) Errorf(format string, args ...any) {
	p.line(p.styles.DangerText.Render(Cross + " " + fmt.Sprintf(format, args...)))
}

// Successf prints a success message.
func (p *Printer) Successf(format string, args ...any) {
	p.line(p.styles.SuccessText.Render(Check + " " + fmt.Sprintf(format, args...)))
}

// Infof prints an informational message.
func (p *Printer) Infof(format string, args ...any) {
	p.line(p.styles.MutedText.Render(Dot + " " + fmt.Sprintf(format, args...)))
}

// Warnf prints a warning.
func (p *Printer) Warnf(format string, args ...any) {
	p.line(p.styles.WarningText.Render(Dot + " " + fmt.Sprintf(format, args...)))
}

// Outcome reports the result of a handshake call.
func (p *Printer) Outcome(out session.Outcome, now time.Time) {
	switch {
	case out.Connected():
		p.Successf("connected")
	case out.Phase == session.PhaseAwaitingSecondFactor && out.Err == nil:
		p.Infof("a second factor code is required")
	case !out.ResumeAt.IsZero():
		p.Warnf("rate limited, retry %s", humanize.RelTime(out.ResumeAt, now, "ago", "from now"))
	case out.Err != nil:
		p.Errorf("%s: %v", out.Phase, out.Err)
	default:
		p.Infof("%s", out.Phase)
	}
}

// Status prints a one-line summary of the view.
func (p *Printer) Status(v session.View, now time.Time) {
	var b strings.Builder
	b.WriteString(p.styles.AccentText.Render(v.Phase.String()))

	if v.Session != nil {
		b.WriteString(" as ")
		b.WriteString(p.styles.Name.Render(v.Session.DisplayName))
		fmt.Fprintf(&b, ", %d friends, synced %s", len(v.Friends), humanize.RelTime(v.Session.LastSyncAt, now, "ago", "from now"))
	}
	if v.RateLimit.Active {
		b.WriteString(p.styles.WarningText.Render(
			fmt.Sprintf(", cooling down until %s", v.RateLimit.ResumeAt.Local().Format(time.Kitchen))))
	}
	if v.Offline() {
		b.WriteString(p.styles.DangerText.Render(fmt.Sprintf(", offline after %d failed polls", v.PollFailures)))
	}
	if v.LastError != "" && v.Session == nil {
		b.WriteString(p.styles.MutedText.Render(" (" + v.LastError + ")"))
	}
	p.line(b.String())
}

// Friends prints one line per friend.
func (p *Printer) Friends(friends []state.Friend, now time.Time) {
	if len(friends) == 0 {
		p.Infof("no friends observed yet")
		return
	}

	width := 0
	for _, f := range friends {
		width = max(width, len([]rune(f.DisplayName)))
	}
	for _, f := range friends {
		name := f.DisplayName + strings.Repeat(" ", width-len([]rune(f.DisplayName)))
		p.line(fmt.Sprintf("%s  %s  %s  %s",
			p.styles.Name.Render(name),
			p.styles.StatusStyle(f.PresenceStatus).Render(statusLabel(f.PresenceStatus)),
			p.styles.Text.Render(DescribeLocation(f.LocationToken)),
			p.styles.FaintText.Render("seen "+humanize.RelTime(f.LastSeenAt, now, "ago", "from now")),
		))
	}
}

// Events prints activity events, newest first.
func (p *Printer) Events(events []activity.Event) {
	for _, ev := range events {
		p.Event(ev)
	}
}

// Event prints a single activity event.
func (p *Printer) Event(ev activity.Event) {
	from, to := ev.From, ev.To
	if ev.Kind == activity.KindLocation {
		from, to = DescribeLocation(from), DescribeLocation(to)
	}
	p.line(fmt.Sprintf("%s  %s %s  %s %s %s",
		p.styles.FaintText.Render(ev.At.Local().Format("15:04:05")),
		p.styles.Name.Render(ev.DisplayName),
		p.styles.InfoText.Render(ev.Kind.String()),
		p.styles.MutedText.Render(orDash(from)),
		Arrow,
		p.styles.Text.Render(orDash(to)),
	))
}

// DescribeLocation turns a location token into something readable.
// World instances look like wrld_<id>:<instance>~<access>(<owner>)~region(<r>).
func DescribeLocation(token string) string {
	switch token {
	case "":
		return "unknown"
	case "offline", "private", "traveling":
		return token
	}

	world, rest, ok := strings.Cut(token, ":")
	if !ok {
		return token
	}
	instance, tags, _ := strings.Cut(rest, "~")

	access := "public"
	for tag := range strings.SplitSeq(tags, "~") {
		name, _, _ := strings.Cut(tag, "(")
		switch name {
		case "private", "friends", "hidden", "group":
			access = name
		}
		if name == "canRequestInvite" && access == "private" {
			access = "invite+"
		}
	}
	return fmt.Sprintf("%s #%s (%s)", world, instance, access)
}

func statusLabel(status string) string {
	if status == "" {
		return "unknown"
	}
	return status
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
