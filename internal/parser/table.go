package parser

import "strings"

// tableToMarkdown renders rows as a Markdown table, first row as header.
// Returns "" when there is nothing worth rendering.
func tableToMarkdown(rows [][]string) string {
	if len(rows) < 2 {
		return ""
	}

	width := len(rows[0])
	if width == 0 {
		return ""
	}

	cleaned := make([][]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, width)
		for i := 0; i < width && i < len(row); i++ {
			cells[i] = strings.TrimSpace(strings.ReplaceAll(row[i], "|", "\\|"))
		}
		cleaned = append(cleaned, cells)
	}

	var b strings.Builder
	b.WriteString("| " + strings.Join(cleaned[0], " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", width) + "\n")
	for _, row := range cleaned[1:] {
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
