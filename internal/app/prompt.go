package app

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/huh"
)

// ErrAborted is returned when the user cancels a prompt.
var ErrAborted = errors.New("aborted")

// Prompter collects credentials and one-time codes from the user.
type Prompter interface {
	// Credentials returns fresh buffers; the caller zeroes them.
	Credentials(ctx context.Context) (identifier, secret []byte, err error)
	SecondFactor(ctx context.Context, retry bool) (string, error)
}

// FormPrompter prompts on the terminal with huh forms.
type FormPrompter struct{}

// Credentials asks for the username or email and the password. The
// password is never echoed. huh binds inputs to strings, so the form's
// own copy cannot be zeroed; it is converted once and dropped.
func (FormPrompter) Credentials(ctx context.Context) ([]byte, []byte, error) {
	var identifier, secret string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("VRChat username or email").
				Value(&identifier).
				Validate(required("username")),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&secret).
				Validate(required("password")),
		),
	).WithTheme(huh.ThemeCharm())

	if err := runForm(ctx, form); err != nil {
		return nil, nil, err
	}
	return []byte(strings.TrimSpace(identifier)), []byte(secret), nil
}

// SecondFactor asks for a one-time code from an authenticator app or
// email.
func (FormPrompter) SecondFactor(ctx context.Context, retry bool) (string, error) {
	title := "Two-factor code"
	if retry {
		title = "That code was not accepted, enter a fresh one"
	}

	var code string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(title).
				Description("From your authenticator app or the email VRChat sent").
				CharLimit(8).
				Value(&code).
				Validate(required("code")),
		),
	).WithTheme(huh.ThemeCharm())

	if err := runForm(ctx, form); err != nil {
		return "", err
	}
	return strings.TrimSpace(code), nil
}

func runForm(ctx context.Context, form *huh.Form) error {
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return ErrAborted
		}
		return err
	}
	return nil
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New(field + " is required")
		}
		return nil
	}
}
