package vectorstore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

func TestGRPCAddress(t *testing.T) {
	tests := []struct {
		name     string
		urlStr   string
		wantErr  bool
		wantHost string
		wantPort int
	}{
		{name: "default http port", urlStr: "http://localhost:6333", wantHost: "localhost", wantPort: 6334},
		{name: "custom port", urlStr: "http://qdrant:9000", wantHost: "qdrant", wantPort: 9001},
		{name: "no port", urlStr: "http://localhost", wantHost: "localhost", wantPort: 6334},
		{name: "no hostname", urlStr: "http://:6333", wantHost: "localhost", wantPort: 6334},
		{name: "invalid URL", urlStr: "://invalid", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, err := grpcAddress(tt.urlStr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("grpcAddress() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if host != tt.wantHost {
				t.Errorf("host = %v, want %v", host, tt.wantHost)
			}
			if port != tt.wantPort {
				t.Errorf("port = %v, want %v", port, tt.wantPort)
			}
		})
	}
}

func TestNewQdrantStore_InvalidURL(t *testing.T) {
	if _, err := NewQdrantStore("://invalid"); err == nil {
		t.Error("NewQdrantStore() with invalid URL should return error")
	}
}

func TestQdrantStore_Upsert_EmptyPoints(t *testing.T) {
	store := &QdrantStore{}
	if err := store.Upsert(context.Background(), "c", nil); err != nil {
		t.Errorf("Upsert() with no points should return early, got: %v", err)
	}
}

func TestQdrantStore_Search_InvalidK(t *testing.T) {
	store := &QdrantStore{}
	for _, k := range []int{0, -1} {
		if _, err := store.Search(context.Background(), "c", []float32{1, 2}, k); err == nil {
			t.Errorf("Search(k=%d) should return error", k)
		}
	}
}

func TestConvertPayloadToMap(t *testing.T) {
	if got := convertPayloadToMap(nil); got == nil || len(got) != 0 {
		t.Errorf("convertPayloadToMap(nil) = %v, want empty map", got)
	}

	payload := qdrant.NewValueMap(map[string]any{
		"position": 3,
		"label":    "intro",
		"ratio":    0.5,
		"ok":       true,
	})
	got := convertPayloadToMap(payload)
	if got["position"] != int64(3) {
		t.Errorf("position = %#v, want int64(3)", got["position"])
	}
	if got["label"] != "intro" {
		t.Errorf("label = %#v", got["label"])
	}
	if got["ratio"] != 0.5 {
		t.Errorf("ratio = %#v", got["ratio"])
	}
	if got["ok"] != true {
		t.Errorf("ok = %#v", got["ok"])
	}
}

func TestQdrantBuilder_CollectionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	b := NewQdrantBuilder(store, "pdfchat")

	chunks := testChunks(600)
	vectors := testVectors(600, 8, 11)

	idx, err := b.Build(ctx, chunks, vectors)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if len(store.collections) != 1 {
		t.Fatalf("expected one collection, got %d", len(store.collections))
	}
	var name string
	for n, points := range store.collections {
		name = n
		if len(points) != 600 {
			t.Errorf("collection holds %d points, want 600", len(points))
		}
	}
	if !strings.HasPrefix(name, "pdfchat_") {
		t.Errorf("collection name %q lacks prefix", name)
	}

	other, err := b.Build(ctx, chunks[:2], vectors[:2])
	if err != nil {
		t.Fatalf("second Build() error = %v", err)
	}
	if len(store.collections) != 2 {
		t.Errorf("each index should get its own collection, got %d", len(store.collections))
	}

	if err := idx.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, ok := store.collections[name]; ok {
		t.Error("Close() should drop the collection")
	}

	hits, err := other.Search(ctx, vectors[1], 1)
	if err != nil {
		t.Fatalf("Search() on remaining index error = %v", err)
	}
	if hits[0].Chunk.Index != 1 {
		t.Errorf("top hit = %d, want 1", hits[0].Chunk.Index)
	}
}

type failingStore struct {
	*memoryStore
	upsertErr error
	searchErr error
}

func (s *failingStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	return s.memoryStore.Upsert(ctx, collection, points)
}

func (s *failingStore) Search(ctx context.Context, collection string, query []float32, k int) ([]SearchResult, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.memoryStore.Search(ctx, collection, query, k)
}

func TestQdrantIndex_SearchError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection refused")
	store := &failingStore{memoryStore: newMemoryStore()}

	idx, err := NewQdrantBuilder(store, "p").Build(ctx, testChunks(3), testVectors(3, 4, 1))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	store.searchErr = boom
	if _, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 2); !errors.Is(err, boom) {
		t.Errorf("Search() error = %v, want %v", err, boom)
	}
}

// blockingStore holds the first Search call until release is closed.
type blockingStore struct {
	*memoryStore
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (s *blockingStore) Search(ctx context.Context, collection string, query []float32, k int) ([]SearchResult, error) {
	s.once.Do(func() {
		close(s.started)
		<-s.release
	})
	s.mu.Lock()
	_, ok := s.collections[collection]
	s.mu.Unlock()
	if !ok {
		return nil, errors.New("collection not found")
	}
	return s.memoryStore.Search(ctx, collection, query, k)
}

func (s *blockingStore) hasCollection(collection string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.collections[collection]
	return ok
}

func TestQdrantIndex_CloseWaitsForInFlightSearch(t *testing.T) {
	ctx := context.Background()
	store := &blockingStore{
		memoryStore: newMemoryStore(),
		started:     make(chan struct{}),
		release:     make(chan struct{}),
	}

	chunks := testChunks(20)
	vectors := testVectors(20, 4, 3)
	idx, err := NewQdrantBuilder(store, "p").Build(ctx, chunks, vectors)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	collection := idx.(*qdrantIndex).collection

	reference, err := NewBruteForceBuilder().Build(ctx, chunks, vectors)
	if err != nil {
		t.Fatalf("Build(bruteforce) error = %v", err)
	}
	query := vectors[7]
	want, err := reference.Search(ctx, query, 3)
	if err != nil {
		t.Fatalf("reference Search() error = %v", err)
	}

	type searchResult struct {
		hits []Hit
		err  error
	}
	searchDone := make(chan searchResult, 1)
	go func() {
		hits, err := idx.Search(ctx, query, 3)
		searchDone <- searchResult{hits: hits, err: err}
	}()
	<-store.started

	closeDone := make(chan error, 1)
	go func() {
		closeDone <- idx.Close(ctx)
	}()

	select {
	case err := <-closeDone:
		t.Fatalf("Close() returned during a search: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	if !store.hasCollection(collection) {
		t.Fatal("collection dropped while a search was running")
	}

	close(store.release)
	got := <-searchDone
	if got.err != nil {
		t.Fatalf("in-flight Search() error = %v", got.err)
	}
	if err := <-closeDone; err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if store.hasCollection(collection) {
		t.Error("Close() should drop the collection")
	}

	after, err := idx.Search(ctx, query, 3)
	if err != nil {
		t.Fatalf("Search() after Close() error = %v", err)
	}
	for _, hits := range [][]Hit{got.hits, after} {
		if len(hits) != len(want) {
			t.Fatalf("got %d hits, want %d", len(hits), len(want))
		}
		for i := range want {
			if hits[i].Chunk.Index != want[i].Chunk.Index || hits[i].Score != want[i].Score {
				t.Errorf("hit %d = (%d, %v), want (%d, %v)", i, hits[i].Chunk.Index, hits[i].Score, want[i].Chunk.Index, want[i].Score)
			}
		}
	}

	if err := idx.Close(ctx); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
