package index

import (
	"context"

	"github.com/neuralnotes/neuralnotes/embedding"
	"github.com/neuralnotes/neuralnotes/errors"
	"github.com/neuralnotes/neuralnotes/logger"
	"github.com/neuralnotes/neuralnotes/meeting"
)

// Indexer chunks merged transcripts, embeds them, and writes the chunk set.
type Indexer struct {
	embedder embedding.Provider
	store    VectorStore
	cfg      ChunkerConfig
	log      *logger.Logger
}

// NewIndexer creates an Indexer.
func NewIndexer(embedder embedding.Provider, store VectorStore, cfg ChunkerConfig, log *logger.Logger) *Indexer {
	cfg.ApplyDefaults()
	return &Indexer{embedder: embedder, store: store, cfg: cfg, log: log.WithComponent("index")}
}

// IndexTranscript builds, embeds, and stores the chunk set for one Job. The
// new set atomically supersedes any chunk set from a previous Job of the
// same meeting.
func (ix *Indexer) IndexTranscript(ctx context.Context, meetingID, jobID string, transcript *meeting.Transcript) ([]meeting.Chunk, error) {
	if transcript == nil || len(transcript.Segments) == 0 {
		return nil, errors.Consistency("index: missing merged transcript artifact")
	}

	chunks := BuildChunks(meetingID, jobID, transcript.Segments, ix.cfg)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	result, err := ix.embedder.Embed(ctx, embedding.Request{Texts: texts})
	if err != nil {
		return nil, err
	}
	if len(result.Vectors) != len(chunks) {
		return nil, errors.Consistency("index: embedding count does not match chunk count")
	}
	for i := range chunks {
		chunks[i].Embedding = result.Vectors[i]
	}

	if err := ix.store.ReplaceChunkSet(ctx, meetingID, chunks); err != nil {
		return nil, err
	}

	ix.log.Debug("indexed transcript", logger.Fields(
		logger.FieldMeetingID, meetingID,
		"chunks", len(chunks),
	))
	return chunks, nil
}
