package parser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Kind classifies a normalized text segment.
type Kind string

const (
	KindProse   Kind = "prose"
	KindTable   Kind = "table"
	KindHeading Kind = "heading"
)

// Segment is one normalized span of extracted text, in document order.
type Segment struct {
	Text  string
	Kind  Kind
	Page  int
	Order int
}

var (
	// ErrUnsupportedFormat means the declared type is not in the accepted set.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrParseFailure means the underlying decoder rejected the file.
	ErrParseFailure = errors.New("parse failure")
)

// Transcriber turns an image into a Markdown transcription via a
// vision-capable model.
type Transcriber interface {
	TranscribeImage(ctx context.Context, jpegData []byte) (string, error)
}

// TextExtractor converts one file format into ordered segments.
type TextExtractor interface {
	Extract(ctx context.Context, filename string, data []byte) ([]Segment, error)
}

// Service dispatches to a TextExtractor by file extension.
type Service struct {
	extractors map[string]TextExtractor
}

func NewService(vision Transcriber) *Service {
	pdfExt := &pdfExtractor{}
	textExt := &textExtractor{}
	csvExt := &csvExtractor{}
	jsonExt := &jsonExtractor{}
	docxExt := &docxExtractor{}
	imgExt := &imageExtractor{vision: vision}

	return &Service{
		extractors: map[string]TextExtractor{
			".pdf":  pdfExt,
			".docx": docxExt,
			".txt":  textExt,
			".md":   textExt,
			".csv":  csvExt,
			".json": jsonExt,
			".png":  imgExt,
			".jpg":  imgExt,
			".jpeg": imgExt,
			".webp": imgExt,
		},
	}
}

// Supported reports whether the filename's extension is in the accepted set.
func (s *Service) Supported(filename string) bool {
	_, ok := s.extractors[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Parse converts raw file bytes into ordered, normalized segments. It is a
// pure transform except for image formats, where the vision model is the
// only way to obtain text.
func (s *Service) Parse(ctx context.Context, filename string, data []byte) ([]Segment, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	extractor, ok := s.extractors[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %s (accepted: pdf, docx, txt, md, csv, json, png, jpg, jpeg, webp)", ErrUnsupportedFormat, ext)
	}

	segments, err := extractor.Extract(ctx, filename, data)
	if err != nil {
		if errors.Is(err, ErrParseFailure) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}

	out := segments[:0]
	for _, seg := range segments {
		seg.Text = strings.TrimSpace(seg.Text)
		if seg.Text == "" {
			continue
		}
		seg.Order = len(out)
		out = append(out, seg)
	}
	return out, nil
}
