package cli

import (
	"context"
	"errors"

	"github.com/charmbracelet/huh"

	"despesas/internal/core"
)

// Prompter asks the user for input on the terminal.
type Prompter interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
	Secret(ctx context.Context, title string) (string, error)
	Draft(ctx context.Context, categories []string, d *core.Draft) error
}

// ErrAborted is returned when the user cancels a prompt.
var ErrAborted = errors.New("cancelado")

// HuhPrompter implements Prompter with huh forms.
type HuhPrompter struct {
	Accessible bool
}

func (p HuhPrompter) run(ctx context.Context, f *huh.Form) error {
	err := f.WithAccessible(p.Accessible).RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		return ErrAborted
	}
	return err
}

func (p HuhPrompter) Confirm(ctx context.Context, prompt string) (bool, error) {
	var ok bool
	f := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(prompt).
			Affirmative("Sim").
			Negative("Não").
			Value(&ok),
	))
	if err := p.run(ctx, f); err != nil {
		return false, err
	}
	return ok, nil
}

func (p HuhPrompter) Secret(ctx context.Context, title string) (string, error) {
	var s string
	f := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title(title).
			EchoMode(huh.EchoModePassword).
			Value(&s),
	))
	if err := p.run(ctx, f); err != nil {
		return "", err
	}
	return s, nil
}

// Draft fills the empty fields of d interactively. Values already set are
// offered as defaults.
func (p HuhPrompter) Draft(ctx context.Context, categories []string, d *core.Draft) error {
	if d.Category == "" && len(categories) > 0 {
		d.Category = categories[0]
	}
	f := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Valor (€)").
			Placeholder("0.00").
			Value(&d.Amount).
			Validate(func(s string) error {
				_, err := core.ParseAmount(s)
				return err
			}),
		huh.NewInput().
			Title("Descrição").
			CharLimit(core.MaxDescriptionLen).
			Value(&d.Description),
		huh.NewSelect[string]().
			Title("Categoria").
			Options(huh.NewOptions(categories...)...).
			Value(&d.Category),
		huh.NewInput().
			Title("Data").
			Placeholder("AAAA-MM-DD (vazio = hoje)").
			Value(&d.Date),
	))
	return p.run(ctx, f)
}
