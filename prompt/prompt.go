// Package prompt asks the operator for confirmation and shows notices.
package prompt

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/pterm/pterm"
)

// ErrNoInput is returned by non-interactive prompters asked for free text
// they were not given.
var ErrNoInput = errors.New("no input available")

// Prompter is the confirmation and notification surface.
type Prompter interface {
	// Confirm asks a yes/no question.
	Confirm(title, message string) (bool, error)
	// Alert shows a message that needs no answer.
	Alert(title, message string)
	// Input asks for one line of text.
	Input(title, message string) (string, error)
}

// Terminal prompts interactively through pterm.
type Terminal struct{}

func (Terminal) Confirm(title, message string) (bool, error) {
	pterm.DefaultSection.Println(title)
	return pterm.DefaultInteractiveConfirm.
		WithDefaultText(message).
		WithDefaultValue(false).
		Show()
}

func (Terminal) Alert(title, message string) {
	pterm.DefaultBox.WithTitle(title).Println(message)
}

func (Terminal) Input(title, message string) (string, error) {
	pterm.DefaultSection.Println(title)
	text, err := pterm.DefaultInteractiveTextInput.
		WithDefaultText(message).
		Show()
	return strings.TrimSpace(text), err
}

// Auto answers every confirmation with Answer and Input with Reply. Alerts
// go to the logger. Used for --yes and unattended runs.
type Auto struct {
	Answer bool
	Reply  string
	Logger *slog.Logger
}

func (a Auto) Confirm(title, message string) (bool, error) {
	if a.Logger != nil {
		a.Logger.Info("auto-confirm", "title", title, "answer", a.Answer)
	}
	return a.Answer, nil
}

func (a Auto) Alert(title, message string) {
	if a.Logger != nil {
		a.Logger.Info(title, "message", message)
	}
}

func (a Auto) Input(title, message string) (string, error) {
	if a.Reply == "" {
		return "", ErrNoInput
	}
	return a.Reply, nil
}
