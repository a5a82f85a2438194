package units

import (
	"github.com/ahrav/go-ragqa/infrastructure/vectorstore"
	"github.com/ahrav/go-ragqa/internal/ports"
	"github.com/ahrav/go-ragqa/internal/testutils"
)

func portsEmbedder(e *testutils.StubEmbedder) ports.Embedder {
	if e == nil {
		return nil
	}
	return e
}

func portsStore(s *vectorstore.MemoryStore) ports.VectorStore {
	if s == nil {
		return nil
	}
	return s
}
