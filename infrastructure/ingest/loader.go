// Package ingest reads source documents from disk, splits them into
// overlapping chunks and watches the document directory for changes.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ahrav/go-ragqa/internal/domain"
)

// DefaultPatterns select plain text and Markdown files at any depth.
var DefaultPatterns = []string{"**/*.txt", "**/*.md"}

// pageBreak separates pages inside one text file, as emitted by common
// PDF-to-text tools.
const pageBreak = "\f"

// ErrNoDocuments is returned by Load when no file matches.
var ErrNoDocuments = errors.New("no documents found")

// Loader reads the documents under a directory.
type Loader struct {
	dir       string
	patterns  []string
	lowercase bool
}

// NewLoader creates a loader for dir. Nil patterns select DefaultPatterns.
// Invalid patterns are rejected up front.
func NewLoader(dir string, patterns []string, lowercase bool) (*Loader, error) {
	if patterns == nil {
		patterns = DefaultPatterns
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid pattern %q", p)
		}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	return &Loader{dir: abs, patterns: patterns, lowercase: lowercase}, nil
}

// Dir returns the absolute document directory.
func (l *Loader) Dir() string { return l.dir }

// Files returns the matching files in lexical order.
func (l *Loader) Files(ctx context.Context) ([]string, error) {
	fsys := os.DirFS(l.dir)
	seen := make(map[string]struct{})
	var files []string

	for _, pattern := range l.patterns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pattern, err)
		}
		for _, m := range matches {
			path := filepath.Join(l.dir, filepath.FromSlash(m))
			if _, dup := seen[path]; !dup {
				seen[path] = struct{}{}
				files = append(files, path)
			}
		}
	}

	slices.Sort(files)
	return files, nil
}

// Matches reports whether path lies under the directory and matches one of
// the patterns.
func (l *Loader) Matches(path string) bool {
	rel, err := filepath.Rel(l.dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, p := range l.patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// Load reads every matching file.
func (l *Loader) Load(ctx context.Context) ([]domain.Document, error) {
	files, err := l.Files(ctx)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s (patterns %v)", ErrNoDocuments, l.dir, l.patterns)
	}

	var docs []domain.Document
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fileDocs, err := l.LoadFile(path)
		if err != nil {
			return nil, err
		}
		docs = append(docs, fileDocs...)
	}
	return docs, nil
}

// LoadFile reads one file and returns one document per page. Pages are
// numbered from zero.
func (l *Loader) LoadFile(path string) ([]domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	text := string(data)
	if l.lowercase {
		text = cases.Lower(language.Und).String(text)
	}

	pages := strings.Split(text, pageBreak)
	docs := make([]domain.Document, 0, len(pages))
	for i, page := range pages {
		docs = append(docs, domain.Document{Source: path, Page: i, Content: page})
	}
	return docs, nil
}
