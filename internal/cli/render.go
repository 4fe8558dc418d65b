package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"despesas/internal/catalog"
	"despesas/internal/core"
	"despesas/internal/view"
)

// Theme colors
var (
	ColorBorder    = lipgloss.Color("#334155")
	ColorTextDim   = lipgloss.Color("#64748b")
	ColorTextMuted = lipgloss.Color("#94a3b8")
	ColorText      = lipgloss.Color("#f8fafc")
	ColorAccent    = lipgloss.Color("#38bdf8")
	ColorOnline    = lipgloss.Color("#4ade80")
	ColorOffline   = lipgloss.Color("#facc15")
	ColorError     = lipgloss.Color("#f87171")
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(ColorText).Align(lipgloss.Center)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	valueStyle  = lipgloss.NewStyle().Foreground(ColorText)
	mutedStyle  = lipgloss.NewStyle().Foreground(ColorTextMuted)
	dimStyle    = lipgloss.NewStyle().Foreground(ColorTextDim)
	totalStyle  = lipgloss.NewStyle().Bold(true).Foreground(ColorOnline)
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(ColorError)
	onlineBadge = lipgloss.NewStyle().Foreground(ColorOnline).
			Border(lipgloss.RoundedBorder()).BorderForeground(ColorOnline).Padding(0, 1)
	offlineBadge = lipgloss.NewStyle().Foreground(ColorOffline).
			Border(lipgloss.RoundedBorder()).BorderForeground(ColorOffline).Padding(0, 1)
)

const (
	sectionWidth = 60
	barWidth     = 24
)

// Table represents a bordered text table for CLI output.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
	// RightAlign marks numeric columns.
	RightAlign map[int]bool
}

// RenderTitle renders a centered title bar in a bordered box.
func RenderTitle(title string) string {
	border := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Width(sectionWidth).
		Align(lipgloss.Center).
		Padding(0, 1)
	return border.Render(titleStyle.Render(title))
}

// RenderTable renders a bordered table with headers and rows. Cells may
// contain styled text; widths are measured on the visible runes.
func RenderTable(t Table) string {
	numCols := len(t.Headers)
	if numCols == 0 && len(t.Rows) > 0 {
		numCols = len(t.Rows[0])
	}
	if numCols == 0 {
		return ""
	}

	widths := make([]int, numCols)
	for i, h := range t.Headers {
		widths[i] = max(widths[i], lipgloss.Width(h))
	}
	for _, row := range t.Rows {
		for i := 0; i < numCols && i < len(row); i++ {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}

	rule := func(left, mid, right string) string {
		var b strings.Builder
		b.WriteString(left)
		for i, w := range widths {
			b.WriteString(strings.Repeat("─", w+2))
			if i < numCols-1 {
				b.WriteString(mid)
			}
		}
		b.WriteString(right)
		return dimStyle.Render(b.String()) + "\n"
	}
	pad := func(cell string, i int) string {
		gap := strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
		if t.RightAlign[i] {
			return " " + gap + cell + " "
		}
		return " " + cell + gap + " "
	}
	line := func(cells []string, style lipgloss.Style) string {
		var b strings.Builder
		b.WriteString(dimStyle.Render("│"))
		for i := 0; i < numCols; i++ {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			b.WriteString(style.Render(pad(cell, i)))
			b.WriteString(dimStyle.Render("│"))
		}
		return b.String() + "\n"
	}

	var b strings.Builder
	if t.Title != "" {
		b.WriteString("  " + headerStyle.Render(t.Title) + "\n")
	}
	b.WriteString(rule("╭", "┬", "╮"))
	if len(t.Headers) > 0 {
		b.WriteString(line(t.Headers, headerStyle))
		b.WriteString(rule("├", "┼", "┤"))
	}
	for _, row := range t.Rows {
		b.WriteString(line(row, valueStyle))
	}
	b.WriteString(rule("╰", "┴", "╯"))
	return b.String()
}

// RenderSparkline generates a unicode block sparkline from a series of values.
func RenderSparkline(values []int64) string {
	if len(values) == 0 {
		return ""
	}
	blocks := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	top := values[0]
	for _, v := range values[1:] {
		top = max(top, v)
	}
	var b strings.Builder
	for _, v := range values {
		if top <= 0 || v <= 0 {
			b.WriteRune(' ')
			continue
		}
		idx := int(v * int64(len(blocks)-1) / top)
		b.WriteRune(blocks[min(max(idx, 0), len(blocks)-1)])
	}
	return b.String()
}

// renderBar draws value as a horizontal bar relative to top.
func renderBar(value, top int64, width int, color string) string {
	if top <= 0 || value <= 0 {
		return ""
	}
	n := int(value * int64(width) / top)
	if n == 0 {
		n = 1
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(strings.Repeat("█", n))
}

func swatch(color string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render("●")
}

// RenderStatus renders the online/offline badge.
func RenderStatus(v view.View) string {
	if v.Offline {
		return offlineBadge.Render(v.Status())
	}
	return onlineBadge.Render(v.Status())
}

// RenderDashboard renders a full dashboard for the current view state.
func RenderDashboard(v view.View, cat *catalog.Catalog, userName string) string {
	var b strings.Builder
	b.WriteString(RenderTitle("Despesas da Casa"))
	b.WriteString("\n")
	if userName != "" {
		b.WriteString(mutedStyle.Render("  Bem-vindo, "+userName) + "\n")
	}
	b.WriteString(RenderStatus(v) + "\n")
	if v.Message != "" {
		b.WriteString(errorStyle.Render("  "+v.Message) + "\n")
	}
	b.WriteString("\n")

	switch v.State {
	case view.Loading:
		b.WriteString(mutedStyle.Render("  Carregando...") + "\n")
		return b.String()
	case view.Unavailable:
		if v.Message == "" {
			b.WriteString(errorStyle.Render("  Não foi possível conectar ao servidor.") + "\n")
		}
		return b.String()
	}

	agg := v.Aggregation
	b.WriteString("  " + headerStyle.Render(ModeLabel(agg.Mode)) + "  " + totalStyle.Render(FormatMoney(agg.Total)) + "\n")
	b.WriteString("  " + dimStyle.Render(ModeHint(agg.Mode)) + "\n\n")

	b.WriteString(RenderBreakdowns(agg, cat))
	b.WriteString("\n")
	b.WriteString(RenderHistory(v.History, cat))
	return b.String()
}

// RenderBreakdowns renders the per-category and per-person totals.
func RenderBreakdowns(agg core.Aggregation, cat *catalog.Catalog) string {
	if agg.Empty() {
		return "  " + mutedStyle.Render("Sem dados ainda") + "\n"
	}

	var b strings.Builder
	categories := agg.Categories()
	top := categories[0].Amount.Cents
	rows := make([][]string, 0, len(categories))
	for _, c := range categories {
		color := cat.Color(c.Name)
		rows = append(rows, []string{
			swatch(color) + " " + c.Name,
			FormatMoney(c.Amount),
			renderBar(c.Amount.Cents, top, barWidth, color),
		})
	}
	b.WriteString(RenderTable(Table{
		Title:      "Por Categoria",
		Headers:    []string{"Categoria", "Valor", ""},
		Rows:       rows,
		RightAlign: map[int]bool{1: true},
	}))

	people := agg.People()
	rows = rows[:0]
	for _, p := range people {
		rows = append(rows, []string{p.Name, FormatMoney(p.Amount)})
	}
	b.WriteString(RenderTable(Table{
		Title:      "Por Pessoa",
		Headers:    []string{"Pessoa", "Valor"},
		Rows:       rows,
		RightAlign: map[int]bool{1: true},
	}))
	return b.String()
}

// RenderHistory renders the trailing months as a stacked summary: one
// total bar per month and one sparkline per category with data.
func RenderHistory(h core.History, cat *catalog.Catalog) string {
	var b strings.Builder
	b.WriteString("  " + headerStyle.Render(fmt.Sprintf("Histórico Global (Últimos %d Meses)", core.HistoryMonths)) + "\n")

	totals := h.Totals()
	var top int64
	for _, t := range totals {
		top = max(top, t.Cents)
	}
	if top == 0 {
		b.WriteString("  " + mutedStyle.Render("Adicione despesas para ver o histórico") + "\n")
		return b.String()
	}

	for i, m := range h.Months {
		b.WriteString(fmt.Sprintf("  %s %10s %s\n",
			dimStyle.Render(m.String()),
			FormatMoney(totals[i]),
			renderBar(totals[i].Cents, top, barWidth, string(ColorAccent))))
	}
	b.WriteString("\n")

	for _, s := range h.Series {
		values := make([]int64, len(s.Values))
		var sum int64
		for i, v := range s.Values {
			values[i] = v.Cents
			sum += v.Cents
		}
		if sum == 0 {
			continue
		}
		color := cat.Color(s.Category)
		name := fmt.Sprintf("%-14s", truncate(s.Category, 14))
		b.WriteString("  " + swatch(color) + " " + name + " " +
			lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(RenderSparkline(values)) +
			" " + mutedStyle.Render(FormatMoney(core.Money{Cents: sum})) + "\n")
	}
	return b.String()
}

// RenderRecords renders expenses as a table, newest first, at most limit
// rows when limit > 0.
func RenderRecords(records []core.Expense, limit int) string {
	if len(records) == 0 {
		return "  " + mutedStyle.Render("Nenhuma despesa registrada") + "\n"
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	rows := make([][]string, 0, len(records))
	for _, e := range records {
		rows = append(rows, []string{
			e.ID, e.Date.String(), truncate(e.Description, 32), e.UserName, e.Category, FormatMoney(e.Amount),
		})
	}
	return RenderTable(Table{
		Title:      "Despesas Recentes",
		Headers:    []string{"ID", "Data", "Descrição", "Pessoa", "Categoria", "Valor"},
		Rows:       rows,
		RightAlign: map[int]bool{5: true},
	})
}

// RenderUsers lists the household members, marking the current one.
func RenderUsers(users []core.User, currentID string) string {
	rows := make([][]string, 0, len(users))
	for _, u := range users {
		mark := ""
		if u.ID == currentID {
			mark = "●"
		}
		rows = append(rows, []string{mark, u.ID, u.Avatar + " " + u.Name})
	}
	return RenderTable(Table{Title: "Usuários", Headers: []string{"", "ID", "Nome"}, Rows: rows})
}
