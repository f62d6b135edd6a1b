// Package chunker splits document text into overlapping chunks for embedding.
package chunker

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultChunkSize is the maximum chunk length in characters.
	DefaultChunkSize = 1000
	// DefaultOverlap is how many trailing characters of a chunk are carried into the next one.
	DefaultOverlap = 150
)

// DefaultSeparators lists split boundaries from coarsest to finest.
// The empty separator cuts between characters and always matches.
var DefaultSeparators = []string{"\n\n", "\n", ".", "!", "?", ",", " ", ""}

// Splitter is a recursive character text splitter. Safe for concurrent use.
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithChunkSize sets the maximum chunk length in characters. Non-positive values are ignored.
func WithChunkSize(n int) Option {
	return func(s *Splitter) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithOverlap sets the overlap in characters. Negative values are ignored.
func WithOverlap(n int) Option {
	return func(s *Splitter) {
		if n >= 0 {
			s.overlap = n
		}
	}
}

// WithSeparators replaces the separator list. The empty separator is appended
// when missing so splitting always terminates.
func WithSeparators(seps ...string) Option {
	return func(s *Splitter) {
		if len(seps) == 0 {
			return
		}
		out := append([]string(nil), seps...)
		if out[len(out)-1] != "" {
			out = append(out, "")
		}
		s.separators = out
	}
}

// New creates a Splitter. Overlap is clamped below the chunk size.
func New(opts ...Option) *Splitter {
	s := &Splitter{
		chunkSize:  DefaultChunkSize,
		overlap:    DefaultOverlap,
		separators: DefaultSeparators,
	}
	for _, o := range opts {
		o(s)
	}
	if s.overlap >= s.chunkSize {
		s.overlap = s.chunkSize - 1
	}
	return s
}

// ChunkSize returns the configured maximum chunk length.
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// Overlap returns the configured overlap.
func (s *Splitter) Overlap() int { return s.overlap }

// Split cuts text into chunks of at most ChunkSize characters, preferring the
// coarsest separator present. Chunks are trimmed; empty ones are dropped.
// Whitespace-only text yields nil.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	sep := ""
	var finer []string
	for i, candidate := range separators {
		if candidate == "" || strings.Contains(text, candidate) {
			sep = candidate
			finer = separators[i+1:]
			break
		}
	}

	var chunks, pending []string
	for _, piece := range cut(text, sep) {
		if runeLen(piece) < s.chunkSize {
			pending = append(pending, piece)
			continue
		}
		if len(pending) > 0 {
			chunks = append(chunks, s.merge(pending)...)
			pending = nil
		}
		if len(finer) == 0 {
			// single rune with chunk size 1
			if t := strings.TrimSpace(piece); t != "" {
				chunks = append(chunks, t)
			}
			continue
		}
		chunks = append(chunks, s.split(piece, finer)...)
	}
	if len(pending) > 0 {
		chunks = append(chunks, s.merge(pending)...)
	}
	return chunks
}

// merge greedily packs pieces into chunks up to chunkSize, starting each new
// chunk with the trailing pieces of the previous one that fit into overlap.
func (s *Splitter) merge(pieces []string) []string {
	var (
		chunks  []string
		window  []string
		lengths []int
		total   int
	)

	for _, p := range pieces {
		n := runeLen(p)
		if total+n > s.chunkSize && len(window) > 0 {
			if c := strings.TrimSpace(strings.Join(window, "")); c != "" {
				chunks = append(chunks, c)
			}
			// Сдвигаем окно, пока хвост не влезет в overlap и новый кусок не влезет в чанк.
			for len(window) > 0 && (total > s.overlap || total+n > s.chunkSize) {
				total -= lengths[0]
				window = window[1:]
				lengths = lengths[1:]
			}
		}
		window = append(window, p)
		lengths = append(lengths, n)
		total += n
	}

	if c := strings.TrimSpace(strings.Join(window, "")); c != "" {
		chunks = append(chunks, c)
	}
	return chunks
}

// cut splits text on sep keeping sep attached to the end of each piece,
// so concatenating the pieces restores text exactly. An empty sep cuts per rune.
func cut(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for i, w := 0, 0; i < len(text); i += w {
			_, w = utf8.DecodeRuneInString(text[i:])
			out = append(out, text[i:i+w])
		}
		return out
	}
	parts := strings.SplitAfter(text, sep)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
