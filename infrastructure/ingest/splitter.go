package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ahrav/go-ragqa/internal/domain"
)

// Default splitting parameters. Sizes are measured in characters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// DefaultSeparators are tried in order: paragraphs, lines, words,
// sentences and table cells.
var DefaultSeparators = []string{"\n\n", "\n", " ", ".", "|"}

var (
	ErrInvalidChunkSize = errors.New("chunk size must be positive")
	ErrInvalidOverlap   = errors.New("chunk overlap must be non-negative and smaller than chunk size")
)

// chunkNamespace seeds name-based chunk IDs so re-indexing a file yields
// the same IDs.
var chunkNamespace = uuid.MustParse("0b8f3a4e-5c2d-4f7a-9e61-d2c4b7a8e913")

// RecursiveSplitter splits text on the first separator that occurs in it,
// recursing into pieces that are still too long with the remaining
// separators, then merges neighbouring pieces back up to the chunk size
// with the configured overlap. A separator stays attached to the start of
// the piece that follows it.
type RecursiveSplitter struct {
	size       int
	overlap    int
	separators []string
}

// NewRecursiveSplitter validates the parameters. A nil separators slice
// selects DefaultSeparators.
func NewRecursiveSplitter(size, overlap int, separators []string) (*RecursiveSplitter, error) {
	if size <= 0 {
		return nil, ErrInvalidChunkSize
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d, size %d", ErrInvalidOverlap, overlap, size)
	}
	if separators == nil {
		separators = DefaultSeparators
	}
	return &RecursiveSplitter{size: size, overlap: overlap, separators: separators}, nil
}

// SplitText returns the chunks of text. Every chunk is whitespace-trimmed
// and non-empty.
func (s *RecursiveSplitter) SplitText(text string) []string {
	return s.split(text, s.separators)
}

// SplitDocuments splits each document and returns chunks carrying the
// document's source and page. IDs derive from source, page and position.
func (s *RecursiveSplitter) SplitDocuments(docs []domain.Document) []domain.Chunk {
	var chunks []domain.Chunk
	for _, doc := range docs {
		for i, text := range s.SplitText(doc.Content) {
			chunks = append(chunks, domain.Chunk{
				ID:      ChunkID(doc.Source, doc.Page, i),
				Source:  doc.Source,
				Page:    doc.Page,
				Content: text,
			})
		}
	}
	return chunks
}

// ChunkID returns the stable UUID for the index-th chunk of a page.
func ChunkID(source string, page, index int) string {
	name := source + "\x00" + strconv.Itoa(page) + "\x00" + strconv.Itoa(index)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}

func (s *RecursiveSplitter) split(text string, separators []string) []string {
	separator := ""
	var rest []string
	if len(separators) > 0 {
		separator = separators[len(separators)-1]
	}
	for i, sep := range separators {
		if sep == "" {
			separator = ""
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var (
		final []string
		good  []string
	)
	for _, piece := range splitKeepingSeparator(text, separator) {
		if runeLen(piece) < s.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			if trimmed := strings.TrimSpace(piece); trimmed != "" {
				final = append(final, trimmed)
			}
		} else {
			final = append(final, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good)...)
	}
	return final
}

// merge packs pieces into chunks no longer than size where possible. When
// a chunk is emitted, pieces are dropped from the front until at most
// overlap characters remain and the next piece fits.
func (s *RecursiveSplitter) merge(pieces []string) []string {
	var (
		docs    []string
		current []string
		total   int
	)
	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n > s.size && len(current) > 0 {
			if doc := joinTrimmed(current); doc != "" {
				docs = append(docs, doc)
			}
			for total > s.overlap || (total+n > s.size && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n
	}
	if doc := joinTrimmed(current); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitKeepingSeparator splits text on sep and prefixes every piece after
// the first with the separator. Empty pieces are dropped. An empty sep
// splits into characters.
func splitKeepingSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, len(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}

	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	if parts[0] != "" {
		out = append(out, parts[0])
	}
	for _, p := range parts[1:] {
		out = append(out, sep+p)
	}
	return out
}

func joinTrimmed(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
