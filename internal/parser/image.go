package parser

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// Longest image edge sent to the vision model. Larger uploads are
	// downscaled to keep request bodies within model limits.
	maxVisionEdge     = 1600
	visionJPEGQuality = 80
)

// imageExtractor normalizes an uploaded image to a bounded JPEG and asks the
// vision model for a Markdown transcription of its contents.
type imageExtractor struct {
	vision Transcriber
}

func (e *imageExtractor) Extract(ctx context.Context, filename string, data []byte) ([]Segment, error) {
	if e.vision == nil {
		return nil, fmt.Errorf("no vision model configured for %s", filename)
	}

	jpegData, err := normalizeImage(data)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	transcript, err := e.vision.TranscribeImage(ctx, jpegData)
	if err != nil {
		return nil, fmt.Errorf("transcribe image: %w", err)
	}

	transcript = cleanText(transcript)
	if transcript == "" {
		transcript = "[image could not be transcribed]"
	}

	var segments []Segment
	for _, block := range strings.Split(transcript, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		kind := KindProse
		switch {
		case strings.HasPrefix(block, "|"):
			kind = KindTable
		case strings.HasPrefix(block, "#") && !strings.Contains(block, "\n"):
			kind = KindHeading
		}
		segments = append(segments, Segment{Text: block, Kind: kind, Page: 1})
	}
	return segments, nil
}

// normalizeImage decodes png, jpeg, or webp input and re-encodes it as JPEG,
// downscaling so the longest edge fits maxVisionEdge.
func normalizeImage(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("empty image")
	}

	if w > maxVisionEdge || h > maxVisionEdge {
		scale := float64(maxVisionEdge) / float64(w)
		if h > w {
			scale = float64(maxVisionEdge) / float64(h)
		}
		dst := image.NewRGBA(image.Rect(0, 0, int(float64(w)*scale), int(float64(h)*scale)))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: visionJPEGQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
