// Package query answers free-form questions about one meeting by retrieving
// relevant transcript chunks and conditioning a language-model response on
// them.
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/neuralnotes/neuralnotes/embedding"
	"github.com/neuralnotes/neuralnotes/errors"
	"github.com/neuralnotes/neuralnotes/index"
	"github.com/neuralnotes/neuralnotes/llm"
	"github.com/neuralnotes/neuralnotes/logger"
	"github.com/neuralnotes/neuralnotes/meeting"
)

const answerSystemPrompt = `You answer questions about one meeting using only the provided transcript
excerpts. If the excerpts do not contain the answer, say so plainly. Cite
nothing outside the excerpts.`

const answerUserPrompt = `Transcript excerpts:

%s

Question: %s`

// Config holds the retrieval policy.
type Config struct {
	// TopK is how many chunks to retrieve.
	TopK int `mapstructure:"top_k"`
	// Threshold is the minimum best-chunk similarity. Below it the engine
	// returns answerable=false without calling the language model.
	Threshold float64 `mapstructure:"threshold"`
	// Temperature for the answer call.
	Temperature float64 `mapstructure:"temperature"`
}

// ApplyDefaults fills zero fields with the standard policy.
func (c *Config) ApplyDefaults() {
	if c.TopK <= 0 {
		c.TopK = 5
	}
	if c.Threshold <= 0 {
		c.Threshold = 0.35
	}
	if c.Temperature == 0 {
		c.Temperature = 0.2
	}
}

// Engine is the RAG query engine.
type Engine struct {
	embedder embedding.Provider
	llm      llm.Provider
	store    index.VectorStore
	cfg      Config
	log      *logger.Logger
}

// NewEngine creates a query engine. The embedder must be the same capability
// used for indexing.
func NewEngine(embedder embedding.Provider, llmProvider llm.Provider, store index.VectorStore, cfg Config, log *logger.Logger) *Engine {
	cfg.ApplyDefaults()
	return &Engine{
		embedder: embedder,
		llm:      llmProvider,
		store:    store,
		cfg:      cfg,
		log:      log.WithComponent("query"),
	}
}

// Ask answers one question about one meeting. The similarity threshold is a
// hard gate: if the best retrieved chunk scores below it, no language-model
// call is made and the result is answerable=false with no citations.
func (e *Engine) Ask(ctx context.Context, meetingID, question string) (*meeting.QueryResult, error) {
	if meetingID == "" {
		return nil, errors.MissingField("meeting_id")
	}
	if strings.TrimSpace(question) == "" {
		return nil, errors.MissingField("question")
	}

	embedded, err := e.embedder.Embed(ctx, embedding.Request{Texts: []string{question}})
	if err != nil {
		return nil, err
	}
	if len(embedded.Vectors) != 1 {
		return nil, errors.Consistency("query: embedder returned wrong vector count")
	}

	scored, err := e.store.Search(ctx, meetingID, embedded.Vectors[0], e.cfg.TopK)
	if err != nil {
		return nil, err
	}

	if len(scored) == 0 || scored[0].Score < e.cfg.Threshold {
		best := 0.0
		if len(scored) > 0 {
			best = scored[0].Score
		}
		e.log.Debug("question below similarity threshold", logger.Fields(
			logger.FieldMeetingID, meetingID,
			"best_score", best,
		))
		return &meeting.QueryResult{Answerable: false, Citations: []meeting.Citation{}}, nil
	}

	// Reject any chunk that slipped in from another meeting.
	for _, s := range scored {
		if s.Chunk.MeetingID != meetingID {
			return nil, errors.Validation("query spans multiple meetings")
		}
	}

	spans := mergeAdjacent(scored)
	contextText := renderSpans(spans)

	resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: answerSystemPrompt,
		Messages: []llm.Message{{
			Role:    "user",
			Content: fmt.Sprintf(answerUserPrompt, contextText, question),
		}},
		Temperature: e.cfg.Temperature,
	})
	if err != nil {
		return nil, err
	}

	citations := make([]meeting.Citation, len(spans))
	for i, sp := range spans {
		citations[i] = meeting.Citation{Start: sp.Start, End: sp.End, Speaker: sp.Speaker}
	}

	return &meeting.QueryResult{
		Answer:     strings.TrimSpace(resp.Content),
		Citations:  citations,
		Answerable: true,
	}, nil
}

// span is a contiguous run of retrieved chunks.
type span struct {
	Text    string
	Start   float64
	End     float64
	Speaker string
}

// mergeAdjacent merges retrieved chunks with consecutive sequence indices
// into contiguous spans, ordered by position in the transcript.
func mergeAdjacent(scored []index.Scored) []span {
	chunks := make([]meeting.Chunk, len(scored))
	for i, s := range scored {
		chunks[i] = s.Chunk
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Seq < chunks[j].Seq })

	var spans []span
	for i := 0; i < len(chunks); {
		j := i
		for j+1 < len(chunks) && chunks[j+1].Seq == chunks[j].Seq+1 {
			j++
		}
		texts := make([]string, 0, j-i+1)
		for k := i; k <= j; k++ {
			texts = append(texts, chunks[k].Text)
		}
		spans = append(spans, span{
			Text:    strings.Join(texts, "\n"),
			Start:   chunks[i].Start,
			End:     chunks[j].End,
			Speaker: spanSpeaker(chunks[i : j+1]),
		})
		i = j + 1
	}
	return spans
}

// spanSpeaker picks the dominant speaker of a merged span, weighting each
// chunk's speaker by the chunk's covered time. Ties go to the
// lexicographically smaller identifier.
func spanSpeaker(chunks []meeting.Chunk) string {
	totals := make(map[string]float64)
	for _, c := range chunks {
		if c.Speaker == "" {
			continue
		}
		totals[c.Speaker] += c.End - c.Start
	}
	best := ""
	bestTotal := -1.0
	for speaker, total := range totals {
		if total > bestTotal || (total == bestTotal && speaker < best) {
			best = speaker
			bestTotal = total
		}
	}
	return best
}

func renderSpans(spans []span) string {
	var b strings.Builder
	for i, sp := range spans {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		fmt.Fprintf(&b, "[%.1fs - %.1fs]\n%s", sp.Start, sp.End, sp.Text)
	}
	return b.String()
}
