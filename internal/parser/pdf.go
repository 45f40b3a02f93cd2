package parser

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	// Horizontal gap (in PDF points) between glyph runs that starts a new
	// table cell.
	cellGap = 12.0
	// Minimum consecutive multi-cell rows to treat a region as a table.
	minTableRows = 2
)

// pdfExtractor walks pages in order, emitting prose and heading segments per
// page plus Markdown tables for regions whose rows align into columns.
type pdfExtractor struct{}

func (e *pdfExtractor) Extract(_ context.Context, _ string, data []byte) ([]Segment, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	var segments []Segment
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		pageSegments, err := extractPage(page, pageNum)
		if err != nil {
			// Row extraction is glyph-position based and can fail on odd
			// encodings; fall back to the page's plain text.
			text, plainErr := page.GetPlainText(nil)
			if plainErr != nil {
				continue
			}
			if text = cleanText(text); text != "" {
				segments = append(segments, Segment{Text: text, Kind: KindProse, Page: pageNum})
			}
			continue
		}
		segments = append(segments, pageSegments...)
	}

	if len(segments) == 0 {
		return nil, fmt.Errorf("no extractable text in pdf")
	}
	return segments, nil
}

// rowLine is one physical line of the page with its texts grouped into cells.
type rowLine struct {
	cells    []string
	fontSize float64
	bold     bool
}

func extractPage(page pdf.Page, pageNum int) ([]Segment, error) {
	rows, err := page.GetTextByRow()
	if err != nil {
		return nil, err
	}

	// Top of the page first: PDF Y grows upward.
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Position > rows[j].Position })

	lines := make([]rowLine, 0, len(rows))
	for _, row := range rows {
		if line, ok := buildRowLine(row); ok {
			lines = append(lines, line)
		}
	}

	var segments []Segment
	var prose []string

	flushProse := func() {
		if len(prose) == 0 {
			return
		}
		if text := cleanText(strings.Join(prose, "\n")); text != "" {
			segments = append(segments, Segment{Text: text, Kind: KindProse, Page: pageNum})
		}
		prose = nil
	}

	i := 0
	for i < len(lines) {
		line := lines[i]

		// A run of aligned multi-cell rows is a table region.
		if len(line.cells) >= 2 {
			run := tableRun(lines[i:])
			if run >= minTableRows {
				flushProse()
				table := make([][]string, 0, run)
				for _, tl := range lines[i : i+run] {
					table = append(table, tl.cells)
				}
				if md := tableToMarkdown(table); md != "" {
					segments = append(segments, Segment{Text: md, Kind: KindTable, Page: pageNum})
				}
				i += run
				continue
			}
		}

		text := strings.Join(line.cells, " ")
		if level := headingLevel(line); level > 0 {
			flushProse()
			prefix := strings.Repeat("#", level+1)
			segments = append(segments, Segment{Text: prefix + " " + text, Kind: KindHeading, Page: pageNum})
		} else {
			prose = append(prose, text)
		}
		i++
	}
	flushProse()

	return segments, nil
}

// buildRowLine groups a row's glyph runs into cells by horizontal gap.
func buildRowLine(row *pdf.Row) (rowLine, bool) {
	texts := row.Content
	if len(texts) == 0 {
		return rowLine{}, false
	}

	line := rowLine{bold: true}
	var cell strings.Builder
	var prevEnd float64

	for i, t := range texts {
		if strings.TrimSpace(t.S) == "" && cell.Len() == 0 {
			continue
		}
		if i > 0 && cell.Len() > 0 && t.X-prevEnd > cellGap {
			line.cells = append(line.cells, strings.TrimSpace(cell.String()))
			cell.Reset()
		}
		cell.WriteString(t.S)
		prevEnd = t.X + t.W

		if t.FontSize > line.fontSize {
			line.fontSize = t.FontSize
		}
		if !strings.Contains(strings.ToLower(t.Font), "bold") {
			line.bold = false
		}
	}
	if trimmed := strings.TrimSpace(cell.String()); trimmed != "" {
		line.cells = append(line.cells, trimmed)
	}
	if len(line.cells) == 0 {
		return rowLine{}, false
	}
	return line, true
}

// tableRun counts leading lines that share the first line's cell count.
func tableRun(lines []rowLine) int {
	width := len(lines[0].cells)
	run := 0
	for _, line := range lines {
		if len(line.cells) != width {
			break
		}
		run++
	}
	return run
}

// headingLevel maps bold oversized rows to Markdown heading depth.
func headingLevel(line rowLine) int {
	if !line.bold || len(line.cells) != 1 {
		return 0
	}
	switch {
	case line.fontSize > 14:
		return 1
	case line.fontSize > 12:
		return 2
	default:
		return 0
	}
}
