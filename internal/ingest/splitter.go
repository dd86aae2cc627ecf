package ingest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/docmentor/docmentor/internal/config"
)

// Splitter turns document text into ordered, non-empty chunks.
type Splitter interface {
	Split(text string) []string
}

var splitters = map[string]func(cfg config.SplitterConfig) Splitter{
	"fixed_length": func(cfg config.SplitterConfig) Splitter { return NewFixedLength(cfg.ChunkLength, cfg.Overlap) },
	"markdown":     func(cfg config.SplitterConfig) Splitter { return NewMarkdown(cfg.ChunkLength, cfg.Overlap) },
}

// NewSplitter creates the splitter named by cfg.Method
func NewSplitter(cfg config.SplitterConfig) (Splitter, error) {
	factory, ok := splitters[strings.ToLower(cfg.Method)]
	if !ok {
		return nil, fmt.Errorf("unknown splitter method: %s", cfg.Method)
	}
	return factory(cfg), nil
}

// FixedLength cuts whitespace-cleaned text into windows of chunkLength
// runes, each starting overlap runes before the end of the previous one.
type FixedLength struct {
	chunkLength int
	overlap     int
}

// NewFixedLength creates a fixed-length splitter
func NewFixedLength(chunkLength, overlap int) *FixedLength {
	if chunkLength <= 0 {
		chunkLength = 500
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkLength {
		overlap = chunkLength / 4
	}
	return &FixedLength{chunkLength: chunkLength, overlap: overlap}
}

// Split implements Splitter
func (f *FixedLength) Split(text string) []string {
	return f.windows(CleanText(text))
}

func (f *FixedLength) windows(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	step := f.chunkLength - f.overlap

	for start := 0; start < len(runes); start += step {
		end := min(start+f.chunkLength, len(runes))

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}

		// Stop once a window reaches the end
		if end == len(runes) {
			break
		}
	}

	return chunks
}

var headingRegex = regexp.MustCompile(`(?m)^#{1,6}\s+\S.*$`)

// Markdown splits at headings and falls back to fixed-length windows for long sections.
type Markdown struct {
	fixed *FixedLength
}

// NewMarkdown creates a heading-aware splitter
func NewMarkdown(chunkLength, overlap int) *Markdown {
	return &Markdown{fixed: NewFixedLength(chunkLength, overlap)}
}

// Split implements Splitter
func (m *Markdown) Split(text string) []string {
	var chunks []string

	headings := headingRegex.FindAllStringIndex(text, -1)
	bounds := make([]int, 0, len(headings)+2)
	bounds = append(bounds, 0)
	for _, h := range headings {
		if h[0] > 0 {
			bounds = append(bounds, h[0])
		}
	}
	bounds = append(bounds, len(text))

	for i := 0; i+1 < len(bounds); i++ {
		section := CleanText(text[bounds[i]:bounds[i+1]])
		if section == "" {
			continue
		}
		if len([]rune(section)) <= m.fixed.chunkLength {
			chunks = append(chunks, section)
			continue
		}
		chunks = append(chunks, m.fixed.windows(section)...)
	}

	return chunks
}
