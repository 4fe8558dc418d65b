package cli

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"despesas/internal/catalog"
	"despesas/internal/core"
	"despesas/internal/view"
)

// viewMsg carries a new controller view into the program.
type viewMsg view.View

// watchModel is a live dashboard that redraws on every feed update.
type watchModel struct {
	ctrl     *view.Controller
	catalog  *catalog.Catalog
	userName string
	records  int
	done     <-chan struct{}

	current view.View
}

func newWatchModel(ctx context.Context, ctrl *view.Controller, cat *catalog.Catalog, userName string, records int) watchModel {
	return watchModel{
		done:     ctx.Done(),
		ctrl:     ctrl,
		catalog:  cat,
		userName: userName,
		records:  records,
		current:  ctrl.Current(),
	}
}

func (m watchModel) Init() tea.Cmd {
	return waitForView(m.ctrl, m.done)
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "t", "m":
			// The new view arrives through Updates like any other change.
			m.ctrl.ToggleMode()
		}
		return m, nil

	case viewMsg:
		m.current = view.View(msg)
		return m, waitForView(m.ctrl, m.done)
	}
	return m, nil
}

func (m watchModel) View() string {
	out := RenderDashboard(m.current, m.catalog, m.userName)
	if m.records > 0 && m.current.HasData() {
		out += "\n" + RenderRecords(m.current.Aggregation.Filtered, m.records)
	}
	return out + "\n" + dimStyle.Render(fmt.Sprintf("  [t] %s  [q] sair", toggleHint(m.current.Mode))) + "\n"
}

func toggleHint(mode core.ViewMode) string {
	if mode == core.AllTime {
		return "ver mês atual"
	}
	return "ver tudo"
}

// waitForView blocks until the controller publishes the next view or done
// is closed.
func waitForView(c *view.Controller, done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case v := <-c.Updates():
			return viewMsg(v)
		case <-done:
			return nil
		}
	}
}

func (a *App) watchCmd() *cobra.Command {
	var (
		all     bool
		records int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live dashboard that follows every change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := a.currentUser()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			ctrl := a.controller(modeFlag(all))
			go func() { _ = ctrl.Run(ctx, a.Feed) }()

			p := tea.NewProgram(newWatchModel(ctx, ctrl, a.Catalog, user.Name, records),
				tea.WithAltScreen(), tea.WithContext(ctx))
			if _, err := p.Run(); err != nil && ctx.Err() == nil {
				return fmt.Errorf("watch: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "start in all-time mode")
	cmd.Flags().IntVarP(&records, "records", "r", 10, "recent expenses to list (0 hides them)")
	return cmd
}
