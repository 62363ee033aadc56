package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// RenderTable lays out rows in left-aligned columns under a bold header.
// Widths are measured after styling so colored cells line up.
func RenderTable(headers []string, rows [][]string) string {
	columns := len(headers)
	for _, row := range rows {
		columns = max(columns, len(row))
	}
	if columns == 0 {
		return ""
	}

	widths := make([]int, columns)
	measure := func(cells []string) {
		for i, cell := range cells {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}
	measure(headers)
	for _, row := range rows {
		measure(row)
	}

	var b strings.Builder
	writeRow := func(cells []string, style lipgloss.Style) {
		rendered := make([]string, columns)
		for i := 0; i < columns; i++ {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			width := widths[i]
			if i < columns-1 {
				width += TableCellStyle.GetPaddingRight()
			}
			rendered[i] = style.Render(cell) + strings.Repeat(" ", width-lipgloss.Width(cell))
		}
		b.WriteString(strings.TrimRight(strings.Join(rendered, ""), " "))
		b.WriteString("\n")
	}

	if len(headers) > 0 {
		writeRow(headers, TableHeaderStyle)
	}
	for _, row := range rows {
		writeRow(row, lipgloss.NewStyle())
	}
	return b.String()
}
