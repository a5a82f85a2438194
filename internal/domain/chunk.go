package domain

import "path/filepath"

// Document is one page of source text before splitting.
type Document struct {
	// Source is the path of the file the text was read from.
	Source string
	// Page is the zero-based page index inside Source.
	Page    int
	Content string
}

// Chunk is a piece of a Document that is embedded and indexed on its own.
type Chunk struct {
	ID      string
	Source  string
	Page    int
	Content string
	// Embedding is populated by the indexer before the chunk is stored.
	Embedding []float32
}

// RetrievedChunk is a Chunk returned by a similarity search.
type RetrievedChunk struct {
	Chunk
	// Score is the cosine similarity between the query and the chunk.
	Score float64
}

// SourceName returns the base name of the chunk's source file, which is
// how sources are shown to users.
func (c Chunk) SourceName() string {
	if c.Source == "" {
		return ""
	}
	return filepath.Base(c.Source)
}

// ScoredChunk pairs a retrieved chunk with its binary relevance judgment.
type ScoredChunk struct {
	Content  string
	Source   string
	Page     int
	Relevant int
}

// SourceNames returns the base names of the chunk sources in retrieval
// order. Duplicates are kept so the list lines up with the chunks.
func SourceNames(chunks []RetrievedChunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.SourceName()
	}
	return out
}
