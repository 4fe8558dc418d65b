package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"despesas/internal/core"
	"despesas/internal/gateway"
	"despesas/internal/session"
	"despesas/internal/view"
)

// publicAnnotation marks commands that work without a logged-in user.
const publicAnnotation = "public"

// NewRootCommand builds the despesas command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "despesas",
		Short:         "Despesas da Casa",
		Long:          "Shared household expense tracker: add, edit and review the household's expenses.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[publicAnnotation] != "" {
				return nil
			}
			_, err := app.currentUser()
			return err
		},
	}
	root.SetOut(app.Out)

	root.AddCommand(
		app.usersCmd(),
		app.loginCmd(),
		app.logoutCmd(),
		app.listCmd(),
		app.addCmd(),
		app.editCmd(),
		app.rmCmd(),
		app.dashboardCmd(),
		app.watchCmd(),
		app.exportCmd(),
	)
	return root
}

// Execute runs the command tree and prints any error.
func Execute(ctx context.Context, app *App, args []string) int {
	root := NewRootCommand(app)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("erro: ")+describeError(err))
		return 1
	}
	return 0
}

// describeError turns the errors users can act on into short messages.
func describeError(err error) string {
	switch {
	case errors.Is(err, session.ErrNotLoggedIn), errors.Is(err, session.ErrPINRequired):
		return "faça login primeiro: despesas login <usuário>"
	case errors.Is(err, session.ErrWrongPIN):
		return "PIN incorreto"
	case errors.Is(err, gateway.ErrInFlight):
		return "operação já em andamento"
	}
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		return strings.ReplaceAll(err.Error(), "\n", "; ")
	}
	return err.Error()
}

// currentUser returns the logged-in user once the PIN has been verified.
func (a *App) currentUser() (core.User, error) {
	if !a.Gate.Verified() {
		return core.User{}, session.ErrPINRequired
	}
	return a.Gate.CurrentUser()
}

func modeFlag(all bool) core.ViewMode {
	if all {
		return core.AllTime
	}
	return core.CurrentMonth
}

func (a *App) usersCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "users",
		Short:       "List household members",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{publicAnnotation: "true"},
		RunE: func(_ *cobra.Command, _ []string) error {
			current := ""
			if u, err := a.Gate.CurrentUser(); err == nil {
				current = u.ID
			}
			a.printf("%s", RenderUsers(a.Catalog.Users(), current))
			return nil
		},
	}
}

func (a *App) loginCmd() *cobra.Command {
	var pin string
	cmd := &cobra.Command{
		Use:         "login <user-id>",
		Short:       "Unlock the client and choose who is using it",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{publicAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.Gate.Verified() {
				if pin == "" {
					var err error
					if pin, err = a.Prompt.Secret(cmd.Context(), "PIN da casa"); err != nil {
						return err
					}
				}
				if err := a.Gate.VerifyPIN(pin); err != nil {
					return err
				}
			}
			u, err := a.Gate.Login(args[0])
			if err != nil {
				return err
			}
			a.printf("Bem-vindo, %s\n", u.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&pin, "pin", "", "household PIN (prompted when omitted)")
	return cmd
}

func (a *App) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "logout",
		Short:       "Forget the current user and lock the client",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{publicAnnotation: "true"},
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := a.Gate.Logout(); err != nil {
				return err
			}
			a.printf("Sair: sessão encerrada\n")
			return nil
		},
	}
}

func (a *App) listCmd() *cobra.Command {
	var (
		all   bool
		limit int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List expenses, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := a.Store.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing expenses: %w", err)
			}
			agg := core.Aggregate(records, modeFlag(all), a.today())
			a.printf("%s", RenderRecords(agg.Filtered, limit))
			a.printf("  %s %s\n", ModeLabel(agg.Mode)+":", FormatMoney(agg.Total))
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include every month")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most n rows")
	return cmd
}

func (a *App) addCmd() *cobra.Command {
	var d core.Draft
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an expense",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := a.currentUser()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if !cmd.Flags().Changed("amount") {
				if err := a.Prompt.Draft(ctx, a.Catalog.CategoryNames(), &d); err != nil {
					return err
				}
			} else if d.Category == "" {
				d.Category = a.Catalog.DefaultCategory()
			}

			p, err := a.gateway(nil).Create(ctx, user, d)
			if err != nil {
				return err
			}
			if err := p.Wait(ctx); err != nil {
				return fmt.Errorf("saving expense: %w", err)
			}
			a.printf("Despesa adicionada: %s\n", p.RecordID())
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&d.Amount, "amount", "a", "", "amount in euros, e.g. 12.50")
	f.StringVarP(&d.Description, "description", "d", "", "what was bought")
	f.StringVarP(&d.Category, "category", "c", "", "spending category")
	f.StringVar(&d.Date, "date", "", "date as YYYY-MM-DD (default today)")
	return cmd
}

func (a *App) editCmd() *cobra.Command {
	var amount, description, category string
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change the amount, description or category of an expense",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pd core.PatchDraft
			if cmd.Flags().Changed("amount") {
				pd.Amount = &amount
			}
			if cmd.Flags().Changed("description") {
				pd.Description = &description
			}
			if cmd.Flags().Changed("category") {
				pd.Category = &category
			}

			ctx := cmd.Context()
			p, err := a.gateway(nil).Update(ctx, args[0], pd)
			if err != nil {
				return err
			}
			if err := p.Wait(ctx); err != nil {
				return fmt.Errorf("updating expense: %w", err)
			}
			a.printf("Despesa atualizada: %s\n", args[0])
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&amount, "amount", "a", "", "new amount in euros")
	f.StringVarP(&description, "description", "d", "", "new description")
	f.StringVarP(&category, "category", "c", "", "new category")
	return cmd
}

func (a *App) rmCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete an expense",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var confirm gateway.Confirmer = gateway.ConfirmFunc(a.Prompt.Confirm)
			if yes {
				confirm = gateway.ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })
			}

			ctx := cmd.Context()
			p, err := a.gateway(confirm).Delete(ctx, args[0])
			if errors.Is(err, gateway.ErrNotConfirmed) || errors.Is(err, ErrAborted) {
				a.printf("Cancelado\n")
				return nil
			}
			if err != nil {
				return err
			}
			if err := p.Wait(ctx); err != nil {
				return fmt.Errorf("deleting expense: %w", err)
			}
			a.printf("Despesa apagada: %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func (a *App) dashboardCmd() *cobra.Command {
	var (
		all     bool
		records int
	)
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show totals by category and person plus the 12-month history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := a.currentUser()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), a.Timeout)
			defer cancel()

			ctrl := a.controller(modeFlag(all))
			go func() { _ = ctrl.Run(ctx, a.Feed) }()
			v := awaitView(ctx, ctrl)

			a.printf("%s", RenderDashboard(v, a.Catalog, user.Name))
			if records > 0 && v.HasData() {
				a.printf("\n%s", RenderRecords(v.Aggregation.Filtered, records))
			}
			if v.State == view.Unavailable {
				return errors.New(v.Message)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "total every month instead of the current one")
	cmd.Flags().IntVarP(&records, "records", "r", 10, "recent expenses to list (0 hides them)")
	return cmd
}

func (a *App) controller(mode core.ViewMode) *view.Controller {
	return view.New(a.Catalog, a.Logger,
		view.WithClock(a.Now),
		view.WithLocation(a.Location),
		view.WithMode(mode))
}

// awaitView waits for a live view, a cached view the server cannot
// refresh, or a failure. On timeout it settles for whatever is current.
func awaitView(ctx context.Context, c *view.Controller) view.View {
	for {
		select {
		case v := <-c.Updates():
			switch {
			case v.State == view.Unavailable:
				return v
			case v.HasData() && (!v.Offline || v.LastError != nil):
				return v
			case !v.HasData() && v.LastError != nil:
				return v
			}
		case <-ctx.Done():
			return c.Current()
		}
	}
}

func (a *App) exportCmd() *cobra.Command {
	var (
		all    bool
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export expenses as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := a.Store.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing expenses: %w", err)
			}
			today := a.today()
			mode := modeFlag(all)
			agg := core.Aggregate(records, mode, today)

			if output == "-" {
				return core.WriteCSV(a.Out, agg.Filtered)
			}
			if output == "" {
				output = core.ExportFilename(mode, today)
			}
			if err := writeFile(output, func(w io.Writer) error { return core.WriteCSV(w, agg.Filtered) }); err != nil {
				return err
			}
			a.printf("%d despesas exportadas para %s\n", len(agg.Filtered), output)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "export every month")
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (\"-\" for stdout)")
	return cmd
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return write(f)
}
