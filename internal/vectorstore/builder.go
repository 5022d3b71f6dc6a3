package vectorstore

import "fmt"

// Backend names accepted by NewBuilder.
const (
	BackendChromem    = "chromem"
	BackendBruteForce = "bruteforce"
	BackendQdrant     = "qdrant"
)

// NewBuilder returns the Builder for backend. store is only used by the qdrant backend.
func NewBuilder(backend string, store VectorStore, collectionPrefix string) (Builder, error) {
	switch backend {
	case BackendChromem:
		return NewChromemBuilder(), nil
	case BackendBruteForce:
		return NewBruteForceBuilder(), nil
	case BackendQdrant:
		if store == nil {
			return nil, fmt.Errorf("qdrant backend requires a vector store")
		}
		return NewQdrantBuilder(store, collectionPrefix), nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", backend)
	}
}
