package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// theme centralizes CLI styling. lipgloss drops colors when stdout is not
// a terminal, so piped output stays plain.
type theme struct {
	OK        lipgloss.Style
	Failed    lipgloss.Style
	Warn      lipgloss.Style
	Title     lipgloss.Style
	Header    lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style
}

func newTheme() theme {
	return theme{
		OK:        lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		Failed:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		Warn:      lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		Title:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA")),
		Header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#61AFEF")),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
	}
}

var styles = newTheme()

// table renders rows as left-aligned columns separated by two spaces. The
// first row is the header.
func table(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); i < len(widths) && w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	for r, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			style := lipgloss.NewStyle()
			if i < len(row)-1 {
				style = style.Width(widths[i] + 2)
			}
			if r == 0 {
				style = style.Inherit(styles.Header)
			}
			cells[i] = style.Render(cell)
		}
		b.WriteString(strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, cells...), " "))
		b.WriteByte('\n')
	}
	return b.String()
}

func okMark() string   { return styles.OK.Render("✓") }
func failMark() string { return styles.Failed.Render("✗") }
