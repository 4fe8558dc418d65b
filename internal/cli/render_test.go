package cli

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"

	"despesas/internal/catalog"
	"despesas/internal/core"
	"despesas/internal/feed"
	"despesas/internal/view"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "€0.00"},
		{5, "€0.05"},
		{1250, "€12.50"},
		{-300, "-€3.00"},
	}
	for _, tt := range tests {
		if got := FormatMoney(core.Money{Cents: tt.cents}); got != tt.want {
			t.Errorf("FormatMoney(%d) = %q, want %q", tt.cents, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"Mercado", 10, "Mercado"},
		{"Contas - Outras", 8, "Contas…"},
		{"Educação", 5, "Educ…"},
		{"abc", 1, "…"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestRenderTableAlignsRows(t *testing.T) {
	out := RenderTable(Table{
		Headers:    []string{"Categoria", "Valor"},
		Rows:       [][]string{{"Mercado", "€12.50"}, {"Educação", "€1000.00"}},
		RightAlign: map[int]bool{1: true},
	})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 6 {
		t.Fatalf("expected 6 lines, got %d:\n%s", len(lines), out)
	}
	width := lipgloss.Width(lines[0])
	for i, l := range lines {
		if w := lipgloss.Width(l); w != width {
			t.Errorf("line %d has width %d, want %d: %q", i, w, width, l)
		}
	}
	if !strings.Contains(out, "   €12.50 ") {
		t.Errorf("numeric column should be right aligned:\n%s", out)
	}
}

func TestRenderSparkline(t *testing.T) {
	got := []rune(RenderSparkline([]int64{0, 50, 100}))
	if len(got) != 3 {
		t.Fatalf("expected 3 runes, got %d", len(got))
	}
	if got[0] != ' ' || got[2] != '█' {
		t.Errorf("unexpected sparkline %q", string(got))
	}
	if RenderSparkline(nil) != "" {
		t.Error("empty series should render empty")
	}
}

func readyView(records []core.Expense, mode core.ViewMode) view.View {
	today := core.NewDate(2024, 2, 15)
	state := view.Ready
	if len(records) == 0 {
		state = view.Empty
	}
	return view.View{
		State:       state,
		Mode:        mode,
		Today:       today,
		Records:     records,
		Aggregation: core.Aggregate(records, mode, today),
		History:     core.BuildHistory(records, catalog.Default(), today),
	}
}

func TestRenderDashboard(t *testing.T) {
	cat := catalog.Default()
	records := seed()

	t.Run("ready", func(t *testing.T) {
		out := RenderDashboard(readyView(records, core.CurrentMonth), cat, "Claudio")
		for _, want := range []string{
			"Despesas da Casa", "Bem-vindo, Claudio", view.StatusOnline,
			"Total Este Mês", "€20.00", "Exibindo apenas mês atual",
			"Mercado", "Giovanna", "Histórico Global (Últimos 12 Meses)", "2023-03", "2024-02",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("offline", func(t *testing.T) {
		v := readyView(records, core.AllTime)
		v.Offline = true
		out := RenderDashboard(v, cat, "")
		if !strings.Contains(out, view.StatusOffline) || !strings.Contains(out, "Total Geral") {
			t.Errorf("unexpected offline dashboard:\n%s", out)
		}
		if strings.Contains(out, "Bem-vindo") {
			t.Error("no greeting without a user")
		}
	})

	t.Run("empty", func(t *testing.T) {
		out := RenderDashboard(readyView(nil, core.CurrentMonth), cat, "Claudio")
		if !strings.Contains(out, "Sem dados ainda") || !strings.Contains(out, "Adicione despesas para ver o histórico") {
			t.Errorf("unexpected empty dashboard:\n%s", out)
		}
		if !strings.Contains(out, "€0.00") {
			t.Errorf("expected a zero total:\n%s", out)
		}
	})

	t.Run("loading", func(t *testing.T) {
		out := RenderDashboard(view.View{State: view.Loading}, cat, "Claudio")
		if !strings.Contains(out, "Carregando") || strings.Contains(out, "Total") {
			t.Errorf("unexpected loading dashboard:\n%s", out)
		}
	})

	t.Run("unavailable", func(t *testing.T) {
		fe := feed.NewError(feed.KindPermissionDenied, nil)
		out := RenderDashboard(view.View{State: view.Unavailable, LastError: fe, Message: view.Message(fe)}, cat, "")
		if !strings.Contains(out, "ERRO DE PERMISSÃO") {
			t.Errorf("expected the permission message:\n%s", out)
		}
	})
}

func TestRenderRecordsLimit(t *testing.T) {
	out := RenderRecords(seed(), 2)
	if !strings.Contains(out, "Despesas Recentes") || !strings.Contains(out, "Cinema") {
		t.Errorf("unexpected records table:\n%s", out)
	}
	if strings.Contains(out, "Compras") {
		t.Errorf("limit not applied:\n%s", out)
	}
	if !strings.Contains(RenderRecords(nil, 0), "Nenhuma despesa") {
		t.Error("expected the empty message")
	}
}

func TestModeTexts(t *testing.T) {
	if ModeLabel(core.AllTime) != "Total Geral" || ModeHint(core.AllTime) != "Exibindo todo o histórico" {
		t.Error("all-time texts")
	}
	if ModeLabel(core.CurrentMonth) != "Total Este Mês" || ModeHint(core.CurrentMonth) != "Exibindo apenas mês atual" {
		t.Error("month texts")
	}
}
