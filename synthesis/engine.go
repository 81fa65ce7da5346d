// Package synthesis turns a merged transcript into a structured Summary via
// the language-model capability, using map-reduce summarization for
// transcripts that exceed the direct-context budget.
package synthesis

import (
	"context"
	"fmt"
	"strings"

	"github.com/neuralnotes/neuralnotes/errors"
	"github.com/neuralnotes/neuralnotes/llm"
	"github.com/neuralnotes/neuralnotes/logger"
	"github.com/neuralnotes/neuralnotes/meeting"
)

// Config holds the synthesis policy.
type Config struct {
	// DirectBudget is the rendered-transcript size (chars) under which the
	// whole transcript is submitted in one call.
	DirectBudget int `mapstructure:"direct_budget"`
	// WindowSize is the target window size (chars) for map-reduce.
	WindowSize int `mapstructure:"window_size"`
	// DedupThreshold is the token-Jaccard similarity above which two action
	// items from different windows collapse into one.
	DedupThreshold float64 `mapstructure:"dedup_threshold"`
	// Temperature for extraction calls. Low by default for stable output.
	Temperature float64 `mapstructure:"temperature"`
}

// ApplyDefaults fills zero fields with the standard policy.
func (c *Config) ApplyDefaults() {
	if c.DirectBudget <= 0 {
		c.DirectBudget = 12000
	}
	if c.WindowSize <= 0 {
		c.WindowSize = 6000
	}
	if c.DedupThreshold <= 0 {
		c.DedupThreshold = 0.6
	}
	if c.Temperature == 0 {
		c.Temperature = 0.1
	}
}

// Engine produces Summaries. Transient errors from the LLM backend are
// never retried here; they propagate to the orchestrator. The one exception
// is a malformed payload, which gets a single repair call before the stage
// fails permanently.
type Engine struct {
	llm llm.Provider
	cfg Config
	log *logger.Logger
}

// NewEngine creates a synthesis engine.
func NewEngine(p llm.Provider, cfg Config, log *logger.Logger) *Engine {
	cfg.ApplyDefaults()
	return &Engine{llm: p, cfg: cfg, log: log.WithComponent("synthesis")}
}

// Synthesize extracts topics, decisions, and action items from the merged
// transcript. Ordering follows transcript chronological order of first
// mention.
func (e *Engine) Synthesize(ctx context.Context, meetingID, jobID string, transcript *meeting.Transcript) (*meeting.Summary, error) {
	if transcript == nil || len(transcript.Segments) == 0 {
		return nil, errors.Consistency("synthesize: missing merged transcript artifact")
	}

	rendered := renderTranscript(transcript.Segments)
	if len(rendered) <= e.cfg.DirectBudget {
		return e.direct(ctx, meetingID, jobID, rendered)
	}
	return e.mapReduce(ctx, meetingID, jobID, transcript.Segments)
}

// direct submits the whole transcript in one extraction call.
func (e *Engine) direct(ctx context.Context, meetingID, jobID, rendered string) (*meeting.Summary, error) {
	payload, err := e.extract(ctx, extractSystemPrompt, fmt.Sprintf(extractUserPrompt, rendered))
	if err != nil {
		return nil, err
	}
	return &meeting.Summary{
		MeetingID:   meetingID,
		JobID:       jobID,
		Topics:      payload.Topics,
		Decisions:   dedupeStrings(payload.Decisions),
		ActionItems: payload.ActionItems,
	}, nil
}

// mapReduce splits the transcript into ordered non-overlapping windows,
// summarizes each independently, then merges. Decisions and action items are
// merged programmatically so nothing a window produced can be lost; only the
// topic list goes through a reduce call.
func (e *Engine) mapReduce(ctx context.Context, meetingID, jobID string, segments []meeting.TranscriptSegment) (*meeting.Summary, error) {
	windows := splitWindows(segments, e.cfg.WindowSize)
	e.log.Debug("map-reduce synthesis", logger.Fields("windows", len(windows)))

	summaries := make([]windowSummary, len(windows))
	for i, w := range windows {
		payload, err := e.extract(ctx, windowSystemPrompt, fmt.Sprintf(extractUserPrompt, renderTranscript(w)))
		if err != nil {
			return nil, err
		}
		summaries[i] = windowSummary{index: i, payload: *payload}
	}

	items := mergeActionItems(summaries, e.cfg.DedupThreshold)
	decisions := mergeDecisions(summaries)

	topics, err := e.reduceTopics(ctx, summaries)
	if err != nil {
		return nil, err
	}

	return &meeting.Summary{
		MeetingID:   meetingID,
		JobID:       jobID,
		Topics:      topics,
		Decisions:   decisions,
		ActionItems: items,
	}, nil
}

// reduceTopics merges per-window topic lists with one reduce call. A single
// window skips the call entirely.
func (e *Engine) reduceTopics(ctx context.Context, summaries []windowSummary) ([]string, error) {
	if len(summaries) == 1 {
		return summaries[0].payload.Topics, nil
	}

	var b strings.Builder
	for _, s := range summaries {
		fmt.Fprintf(&b, "window %d: %s\n", s.index+1, strings.Join(s.payload.Topics, "; "))
	}

	resp, err := e.llm.CompleteStructured(ctx, llm.CompletionRequest{
		SystemPrompt: reduceTopicsSystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: fmt.Sprintf(reduceTopicsUserPrompt, b.String())}},
		Temperature:  e.cfg.Temperature,
	}, nil)
	if err != nil {
		return nil, err
	}

	topics, perr := parseTopics(resp.Content)
	if perr == nil {
		return topics, nil
	}
	repaired, err := e.repair(ctx, resp.Content)
	if err != nil {
		return nil, err
	}
	return parseTopics(repaired)
}

// extract runs one structured extraction call and parses its payload. A
// malformed payload gets exactly one repair call.
func (e *Engine) extract(ctx context.Context, system, user string) (*summaryPayload, error) {
	resp, err := e.llm.CompleteStructured(ctx, llm.CompletionRequest{
		SystemPrompt: system,
		Messages:     []llm.Message{{Role: "user", Content: user}},
		Temperature:  e.cfg.Temperature,
	}, nil)
	if err != nil {
		return nil, err
	}

	payload, perr := parsePayload(resp.Content)
	if perr == nil {
		return payload, nil
	}
	repaired, err := e.repair(ctx, resp.Content)
	if err != nil {
		return nil, err
	}
	return parsePayload(repaired)
}

// repair asks the model once to rewrite a malformed payload as valid JSON.
func (e *Engine) repair(ctx context.Context, malformed string) (string, error) {
	e.log.Warn("repairing malformed extraction payload", logger.Fields(
		"content_len", len(malformed),
	))
	resp, err := e.llm.CompleteStructured(ctx, llm.CompletionRequest{
		SystemPrompt: repairSystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: fmt.Sprintf(repairUserPrompt, malformed)}},
		Temperature:  e.cfg.Temperature,
	}, nil)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// renderTranscript formats segments as one line per utterance.
func renderTranscript(segments []meeting.TranscriptSegment) string {
	var b strings.Builder
	for _, s := range segments {
		fmt.Fprintf(&b, "[%.1f-%.1f] %s: %s\n", s.Start, s.End, s.Speaker, s.Text)
	}
	return b.String()
}

// splitWindows groups segments into ordered, non-overlapping windows of
// roughly windowSize rendered characters. A window always holds at least one
// segment, so a single oversized segment cannot stall the split.
func splitWindows(segments []meeting.TranscriptSegment, windowSize int) [][]meeting.TranscriptSegment {
	var windows [][]meeting.TranscriptSegment
	var current []meeting.TranscriptSegment
	size := 0

	for _, s := range segments {
		lineLen := len(s.Text) + len(s.Speaker) + 20
		if size+lineLen > windowSize && len(current) > 0 {
			windows = append(windows, current)
			current = nil
			size = 0
		}
		current = append(current, s)
		size += lineLen
	}
	if len(current) > 0 {
		windows = append(windows, current)
	}
	return windows
}
