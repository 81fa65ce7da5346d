package index

import (
	"context"
	"sort"
	"sync"

	"github.com/neuralnotes/neuralnotes/meeting"
)

// Scored is a chunk with its similarity to a query vector.
type Scored struct {
	Chunk meeting.Chunk
	Score float64
}

// VectorStore holds chunk embeddings per meeting. ReplaceChunkSet is atomic:
// a reader never observes a mix of two chunk sets for one meeting.
type VectorStore interface {
	// ReplaceChunkSet swaps the meeting's chunk set wholesale.
	ReplaceChunkSet(ctx context.Context, meetingID string, chunks []meeting.Chunk) error
	// Search returns the top-k chunks of one meeting ranked by cosine
	// similarity to the query vector, best first.
	Search(ctx context.Context, meetingID string, vector []float32, k int) ([]Scored, error)
	// Count returns the number of chunks stored for a meeting.
	Count(ctx context.Context, meetingID string) (int, error)
}

// MemoryStore is an in-process VectorStore.
type MemoryStore struct {
	mu     sync.RWMutex
	chunks map[string][]meeting.Chunk
}

// NewMemoryStore creates an empty in-memory vector store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chunks: make(map[string][]meeting.Chunk)}
}

// ReplaceChunkSet swaps the meeting's chunk set under the write lock.
func (s *MemoryStore) ReplaceChunkSet(_ context.Context, meetingID string, chunks []meeting.Chunk) error {
	cp := make([]meeting.Chunk, len(chunks))
	copy(cp, chunks)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[meetingID] = cp
	return nil
}

// Search scans the meeting's chunks and returns the k best matches.
func (s *MemoryStore) Search(_ context.Context, meetingID string, vector []float32, k int) ([]Scored, error) {
	s.mu.RLock()
	chunks := s.chunks[meetingID]
	s.mu.RUnlock()

	scored := make([]Scored, 0, len(chunks))
	for _, c := range chunks {
		scored = append(scored, Scored{Chunk: c, Score: CosineSimilarity(vector, c.Embedding)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// Count returns the number of chunks stored for a meeting.
func (s *MemoryStore) Count(_ context.Context, meetingID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks[meetingID]), nil
}
