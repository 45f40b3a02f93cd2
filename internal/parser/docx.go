package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var headingStylePattern = regexp.MustCompile(`(?i)^heading(\d)$`)

// docxExtractor reads word/document.xml out of the OOXML zip container and
// walks its token stream: paragraphs become prose or heading segments by
// style, w:tbl grids become Markdown tables.
type docxExtractor struct{}

func (e *docxExtractor) Extract(_ context.Context, _ string, data []byte) ([]Segment, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open docx container: %w", err)
	}

	var docXML []byte
	for _, file := range archive.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open document part: %w", err)
		}
		docXML, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read document part: %w", err)
		}
		break
	}
	if docXML == nil {
		return nil, errors.New("docx has no word/document.xml")
	}

	return walkDocumentXML(docXML)
}

func walkDocumentXML(docXML []byte) ([]Segment, error) {
	decoder := xml.NewDecoder(bytes.NewReader(docXML))

	var segments []Segment
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode document xml: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "tbl":
			rows, err := readTable(decoder)
			if err != nil {
				return nil, err
			}
			if md := tableToMarkdown(rows); md != "" {
				segments = append(segments, Segment{Text: md, Kind: KindTable, Page: 1})
			}
		case "p":
			text, level, err := readParagraph(decoder)
			if err != nil {
				return nil, err
			}
			text = cleanText(text)
			if text == "" {
				continue
			}
			if level > 0 {
				if level > 5 {
					level = 5
				}
				prefix := strings.Repeat("#", level+1)
				segments = append(segments, Segment{Text: prefix + " " + text, Kind: KindHeading, Page: 1})
			} else {
				segments = append(segments, Segment{Text: text, Kind: KindProse, Page: 1})
			}
		}
	}
	return segments, nil
}

// readParagraph consumes tokens until </w:p>, collecting run text and the
// heading level from the paragraph style, zero for body text.
func readParagraph(decoder *xml.Decoder) (string, int, error) {
	var b strings.Builder
	level := 0
	depth := 1

	for depth > 0 {
		tok, err := decoder.Token()
		if err != nil {
			return "", 0, fmt.Errorf("decode paragraph: %w", err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "p":
				depth++
			case "pStyle":
				for _, attr := range el.Attr {
					if attr.Name.Local != "val" {
						continue
					}
					if m := headingStylePattern.FindStringSubmatch(attr.Value); m != nil {
						level = int(m[1][0] - '0')
					}
				}
			case "t":
				text, err := readElementText(decoder)
				if err != nil {
					return "", 0, err
				}
				b.WriteString(text)
			case "br", "cr":
				b.WriteString("\n")
			case "tab":
				b.WriteString(" ")
			}
		case xml.EndElement:
			if el.Name.Local == "p" {
				depth--
			}
		}
	}
	return b.String(), level, nil
}

// readTable consumes tokens until </w:tbl>, one string per cell. Nested
// tables are flattened into their parent cell's text.
func readTable(decoder *xml.Decoder) ([][]string, error) {
	var rows [][]string
	var row []string
	var cell strings.Builder
	inCell := false
	depth := 1

	for depth > 0 {
		tok, err := decoder.Token()
		if err != nil {
			return nil, fmt.Errorf("decode table: %w", err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "tbl":
				depth++
			case "tr":
				if depth == 1 {
					row = nil
				}
			case "tc":
				if depth == 1 {
					inCell = true
					cell.Reset()
				}
			case "t":
				if inCell {
					text, err := readElementText(decoder)
					if err != nil {
						return nil, err
					}
					cell.WriteString(text)
				}
			case "br", "cr", "tab":
				if inCell {
					cell.WriteString(" ")
				}
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "tbl":
				depth--
			case "tc":
				if depth == 1 && inCell {
					row = append(row, strings.TrimSpace(cell.String()))
					inCell = false
				}
			case "tr":
				if depth == 1 && row != nil {
					rows = append(rows, row)
					row = nil
				}
			}
		}
	}
	return rows, nil
}

// readElementText collects character data up to the current element's end tag.
func readElementText(decoder *xml.Decoder) (string, error) {
	var b strings.Builder
	for {
		tok, err := decoder.Token()
		if err != nil {
			return "", fmt.Errorf("decode text run: %w", err)
		}
		switch el := tok.(type) {
		case xml.CharData:
			b.Write(el)
		case xml.EndElement:
			return b.String(), nil
		case xml.StartElement:
			if err := decoder.Skip(); err != nil {
				return "", fmt.Errorf("decode text run: %w", err)
			}
		}
	}
}
