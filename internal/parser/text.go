package parser

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
)

// textExtractor handles txt and md files: already-normalized prose, split
// into paragraph segments on blank lines. Markdown ATX headings become
// heading segments.
type textExtractor struct{}

func (e *textExtractor) Extract(_ context.Context, _ string, data []byte) ([]Segment, error) {
	text := cleanText(decodeTextBytes(data))
	if text == "" {
		return nil, nil
	}

	var segments []Segment
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		kind := KindProse
		if strings.HasPrefix(para, "#") && !strings.Contains(para, "\n") {
			kind = KindHeading
		}
		segments = append(segments, Segment{Text: para, Kind: kind, Page: 1})
	}
	return segments, nil
}

// csvExtractor turns the whole CSV into one Markdown table segment, first
// record as header.
type csvExtractor struct{}

func (e *csvExtractor) Extract(_ context.Context, _ string, data []byte) ([]Segment, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decode csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	if len(records) == 1 {
		// A single record carries no tabular meaning; keep it as prose.
		return []Segment{{Text: cleanText(strings.Join(records[0], " ")), Kind: KindProse, Page: 1}}, nil
	}

	md := tableToMarkdown(records)
	if md == "" {
		return nil, nil
	}
	return []Segment{{Text: md, Kind: KindTable, Page: 1}}, nil
}

// jsonExtractor pretty-prints the document and treats it as prose.
type jsonExtractor struct{}

func (e *jsonExtractor) Extract(_ context.Context, _ string, data []byte) ([]Segment, error) {
	var parsed interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	pretty, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("format json: %w", err)
	}
	return []Segment{{Text: string(pretty), Kind: KindProse, Page: 1}}, nil
}
