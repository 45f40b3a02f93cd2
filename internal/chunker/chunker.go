package chunker

import (
	"strings"

	"vextral/internal/parser"
)

// Chunk is one embeddable unit of a parsed document.
type Chunk struct {
	Text    string
	Ordinal int
	Page    int
	Type    string
}

// Chunker splits parsed segments into word-budgeted chunks. Prose is split on
// sentence boundaries with an overlap carried between neighbors; tables are
// emitted whole and headings are glued onto the section they introduce.
type Chunker struct {
	MaxWords     int
	OverlapWords int
	MinWords     int
}

func New(maxWords, overlapWords, minWords int) *Chunker {
	return &Chunker{MaxWords: maxWords, OverlapWords: overlapWords, MinWords: minWords}
}

// Split produces chunks in document order with contiguous ordinals.
// Chunks whose normalized text repeats an earlier chunk are dropped.
func (c *Chunker) Split(segments []parser.Segment) []Chunk {
	b := &builder{chunker: c, seen: make(map[string]struct{})}

	for _, seg := range segments {
		switch seg.Kind {
		case parser.KindHeading:
			b.flushProse(false)
			b.setHeading(seg.Text, seg.Page)
		case parser.KindTable:
			b.flushProse(false)
			b.emitTable(seg.Text, seg.Page)
		default:
			b.addProse(seg.Text, seg.Page)
		}
	}
	b.flushProse(true)

	return b.chunks
}

type builder struct {
	chunker *Chunker
	chunks  []Chunk
	seen    map[string]struct{}

	heading     string
	headingPage int

	sentences []string
	words     int
	page      int
}

func (b *builder) setHeading(text string, page int) {
	if b.heading != "" {
		// Back-to-back headings: keep both so the deeper one retains its
		// parent's context.
		b.heading += "\n" + text
	} else {
		b.heading = text
		b.headingPage = page
	}
}

// takeHeading returns the pending heading and the page to attribute to a
// chunk that starts with it.
func (b *builder) takeHeading(contentPage int) (string, int) {
	if b.heading == "" {
		return "", contentPage
	}
	heading := b.heading
	page := b.headingPage
	b.heading = ""
	return heading, page
}

func (b *builder) emitTable(text string, page int) {
	heading, page := b.takeHeading(page)
	if heading != "" {
		text = heading + "\n\n" + text
	}
	b.emit(text, page, "table")
}

func (b *builder) addProse(text string, page int) {
	for _, sentence := range splitSentences(text) {
		n := wordCount(sentence)
		if b.words > 0 && b.words+n > b.chunker.MaxWords {
			b.flushProse(false)
			b.carryOverlap()
		}
		if n > b.chunker.MaxWords {
			b.flushLongSentence(sentence, page)
			continue
		}
		if len(b.sentences) == 0 {
			b.page = page
		}
		b.sentences = append(b.sentences, sentence)
		b.words += n
	}
}

// flushLongSentence hard-splits a sentence that alone exceeds the budget into
// word windows, overlapping like regular neighbors.
func (b *builder) flushLongSentence(sentence string, page int) {
	words := strings.Fields(sentence)
	step := b.chunker.MaxWords - b.chunker.OverlapWords
	if step <= 0 {
		step = b.chunker.MaxWords
	}
	for start := 0; start < len(words); start += step {
		end := start + b.chunker.MaxWords
		if end > len(words) {
			end = len(words)
		}
		if len(b.sentences) == 0 {
			b.page = page
		}
		b.sentences = append(b.sentences, strings.Join(words[start:end], " "))
		b.words += end - start
		if end < len(words) {
			b.flushProse(false)
		}
	}
}

// flushProse emits the buffered sentences as one prose chunk. A final chunk
// below the minimum is folded into its predecessor instead of standing alone.
func (b *builder) flushProse(last bool) {
	if len(b.sentences) == 0 {
		if last && b.heading != "" {
			// Document ends on a heading with no body.
			heading, page := b.takeHeading(b.headingPage)
			b.emit(heading, page, "prose")
		}
		return
	}

	text := strings.Join(b.sentences, " ")
	heading, page := b.takeHeading(b.page)
	if heading != "" {
		text = heading + "\n\n" + text
	}

	if last && b.words < b.chunker.MinWords && len(b.chunks) > 0 {
		prev := &b.chunks[len(b.chunks)-1]
		prev.Text += "\n\n" + text
		b.reset()
		return
	}

	b.emit(text, page, "prose")
	b.reset()
}

// carryOverlap seeds the next buffer with the previous chunk's trailing
// sentences, up to the overlap budget.
func (b *builder) carryOverlap() {
	if b.chunker.OverlapWords <= 0 || len(b.chunks) == 0 {
		return
	}
	prev := b.chunks[len(b.chunks)-1]
	if prev.Type != "prose" {
		return
	}

	tail := splitSentences(prev.Text)
	var carried []string
	carriedWords := 0
	for i := len(tail) - 1; i >= 0; i-- {
		n := wordCount(tail[i])
		if carriedWords+n > b.chunker.OverlapWords {
			break
		}
		carried = append([]string{tail[i]}, carried...)
		carriedWords += n
	}

	b.sentences = carried
	b.words = carriedWords
	b.page = prev.Page
}

func (b *builder) emit(text string, page int, chunkType string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	key := normalizeKey(text)
	if _, dup := b.seen[key]; dup {
		return
	}
	b.seen[key] = struct{}{}

	b.chunks = append(b.chunks, Chunk{
		Text:    text,
		Ordinal: len(b.chunks),
		Page:    page,
		Type:    chunkType,
	})
}

func (b *builder) reset() {
	b.sentences = nil
	b.words = 0
	b.page = 0
}

// splitSentences breaks text on terminal punctuation followed by whitespace.
// Newlines also terminate so list items stay separate.
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		cur.WriteRune(r)
		boundary := false
		switch r {
		case '.', '!', '?':
			boundary = i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n'
		case '\n':
			boundary = true
		}
		if boundary {
			if s := strings.TrimSpace(cur.String()); s != "" {
				sentences = append(sentences, s)
			}
			cur.Reset()
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

func normalizeKey(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}
