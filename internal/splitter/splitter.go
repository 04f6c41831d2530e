// Package splitter cuts text into overlapping chunks of bounded length,
// preferring paragraph, line and word boundaries over hard character cuts.
package splitter

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// DefaultSeparators are tried in order: paragraphs, lines, words, characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Config holds splitter configuration. Sizes are measured in runes.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string // DefaultSeparators when empty
}

// Splitter splits text recursively on a list of separators.
type Splitter struct {
	size       int
	overlap    int
	separators []string
}

// New creates a splitter. The overlap must be smaller than the chunk size.
func New(config Config) (*Splitter, error) {
	if config.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", config.ChunkSize)
	}
	if config.ChunkOverlap < 0 {
		return nil, fmt.Errorf("chunk overlap must not be negative, got %d", config.ChunkOverlap)
	}
	if config.ChunkOverlap >= config.ChunkSize {
		return nil, fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", config.ChunkOverlap, config.ChunkSize)
	}

	separators := config.Separators
	if len(separators) == 0 {
		separators = DefaultSeparators
	}

	return &Splitter{
		size:       config.ChunkSize,
		overlap:    config.ChunkOverlap,
		separators: separators,
	}, nil
}

// Split returns the chunks of text in order. Whitespace-only text yields none.
func (s *Splitter) Split(text string) []string {
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	var chunks []string

	separator := separators[len(separators)-1]
	var remaining []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			remaining = separators[i+1:]
			break
		}
	}

	var good []string
	for _, piece := range splitKeepingSeparator(text, separator) {
		if length(piece) < s.size {
			good = append(good, piece)
			continue
		}

		if len(good) > 0 {
			chunks = append(chunks, s.merge(good)...)
			good = nil
		}
		if len(remaining) == 0 {
			chunks = append(chunks, piece)
		} else {
			chunks = append(chunks, s.split(piece, remaining)...)
		}
	}
	if len(good) > 0 {
		chunks = append(chunks, s.merge(good)...)
	}

	return chunks
}

// merge joins small pieces into chunks no longer than the chunk size, carrying
// up to overlap runes of trailing pieces into the next chunk.
func (s *Splitter) merge(pieces []string) []string {
	var chunks []string
	var current []string
	total := 0

	for _, piece := range pieces {
		n := length(piece)
		if total+n > s.size {
			if total > s.size {
				slog.Debug("chunk longer than configured size", "length", total, "size", s.size)
			}
			if len(current) > 0 {
				if chunk, ok := join(current); ok {
					chunks = append(chunks, chunk)
				}
				for total > s.overlap || (total+n > s.size && total > 0) {
					total -= length(current[0])
					current = current[1:]
				}
			}
		}
		current = append(current, piece)
		total += n
	}

	if chunk, ok := join(current); ok {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// splitKeepingSeparator splits text on sep and re-attaches sep to the start of
// every piece but the first. An empty sep splits into runes.
func splitKeepingSeparator(text, sep string) []string {
	var pieces []string
	if sep == "" {
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}

	parts := strings.Split(text, sep)
	for i, part := range parts {
		if i > 0 {
			part = sep + part
		}
		if part != "" {
			pieces = append(pieces, part)
		}
	}
	return pieces
}

func join(pieces []string) (string, bool) {
	text := strings.TrimSpace(strings.Join(pieces, ""))
	return text, text != ""
}

func length(s string) int {
	return utf8.RuneCountInString(s)
}
