package cli

import (
	"strings"
	"unicode/utf8"

	"despesas/internal/core"
)

// FormatMoney renders an amount the way the dashboard shows it, e.g. "€12.50".
func FormatMoney(m core.Money) string {
	if m.Cents < 0 {
		return "-€" + core.Money{Cents: -m.Cents}.String()
	}
	return "€" + m.String()
}

// ModeLabel is the heading of the total card for a mode.
func ModeLabel(mode core.ViewMode) string {
	if mode == core.AllTime {
		return "Total Geral"
	}
	return "Total Este Mês"
}

// ModeHint describes what the current mode shows.
func ModeHint(mode core.ViewMode) string {
	if mode == core.AllTime {
		return "Exibindo todo o histórico"
	}
	return "Exibindo apenas mês atual"
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n-1])) + "…"
}
