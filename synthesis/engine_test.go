package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/neuralnotes/neuralnotes/llm"
	"github.com/neuralnotes/neuralnotes/logger"
	"github.com/neuralnotes/neuralnotes/meeting"
	"github.com/neuralnotes/neuralnotes/util"
)

// scriptedLLM returns canned responses in order, one per call.
type scriptedLLM struct {
	responses []string
	calls     int
	prompts   []string
}

func (s *scriptedLLM) Name() string                     { return "scripted" }
func (s *scriptedLLM) IsAvailable(context.Context) bool { return true }

func (s *scriptedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return s.CompleteStructured(ctx, req, nil)
}

func (s *scriptedLLM) CompleteStructured(_ context.Context, req llm.CompletionRequest, _ any) (*llm.CompletionResponse, error) {
	if s.calls >= len(s.responses) {
		return nil, fmt.Errorf("scripted responses exhausted after %d calls", s.calls)
	}
	resp := s.responses[s.calls]
	s.calls++
	for _, m := range req.Messages {
		s.prompts = append(s.prompts, m.Content)
	}
	return &llm.CompletionResponse{Content: resp, Model: "scripted"}, nil
}

func payloadJSON(t *testing.T, p summaryPayload) string {
	t.Helper()
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func longTranscript(n int) *meeting.Transcript {
	tr := &meeting.Transcript{}
	for i := 0; i < n; i++ {
		tr.Segments = append(tr.Segments, meeting.TranscriptSegment{
			Start:   float64(i),
			End:     float64(i + 1),
			Speaker: "spk_a",
			Text:    "we talked about a number of things in considerable detail here",
		})
	}
	return tr
}

func TestSynthesizeDirectPath(t *testing.T) {
	fake := &scriptedLLM{responses: []string{payloadJSON(t, summaryPayload{
		Topics:      []string{"budget"},
		Decisions:   []string{"ship friday", "Ship Friday"},
		ActionItems: []meeting.ActionItem{{Task: "send report"}},
	})}}
	e := NewEngine(fake, Config{}, logger.Nop())

	tr := &meeting.Transcript{Segments: []meeting.TranscriptSegment{
		{Start: 0, End: 5, Speaker: "spk_a", Text: "short meeting"},
	}}
	sum, err := e.Synthesize(context.Background(), "mtg_1", "job_1", tr)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if fake.calls != 1 {
		t.Errorf("calls = %d, want 1 (direct path)", fake.calls)
	}
	if len(sum.Decisions) != 1 {
		t.Errorf("duplicate decision not collapsed: %v", sum.Decisions)
	}
	if sum.MeetingID != "mtg_1" || sum.JobID != "job_1" {
		t.Error("summary not tagged with meeting/job")
	}
}

func TestSynthesizeMapReduceSupersetProperty(t *testing.T) {
	window1 := summaryPayload{
		Topics:      []string{"budget"},
		Decisions:   []string{"cut travel spend"},
		ActionItems: []meeting.ActionItem{{Task: "send the budget report"}},
	}
	window2 := summaryPayload{
		Topics:    []string{"hiring"},
		Decisions: []string{"open two roles"},
		ActionItems: []meeting.ActionItem{
			{Task: "send budget report", Assignee: "ada", DueDate: "friday"},
			{Task: "book conference room"},
		},
	}
	fake := &scriptedLLM{responses: []string{
		payloadJSON(t, window1),
		payloadJSON(t, window2),
		`{"topics": ["budget", "hiring"]}`,
	}}
	// Tiny budgets force exactly two windows plus the reduce call.
	e := NewEngine(fake, Config{DirectBudget: 200, WindowSize: 450}, logger.Nop())

	if got := len(splitWindows(longTranscript(10).Segments, 450)); got != 2 {
		t.Fatalf("fixture splits into %d windows, scripted responses expect 2", got)
	}

	sum, err := e.Synthesize(context.Background(), "mtg_1", "job_1", longTranscript(10))
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if fake.calls != 3 {
		t.Fatalf("calls = %d, want 2 windows + 1 reduce", fake.calls)
	}

	// Superset: every window item must match some final item above threshold.
	for _, win := range []summaryPayload{window1, window2} {
		for _, item := range win.ActionItems {
			found := false
			for _, got := range sum.ActionItems {
				if util.JaccardSimilarity(got.Task, item.Task) >= 0.6 {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("window item %q lost in reduce", item.Task)
			}
		}
	}

	// The near-duplicate pair collapsed, keeping the specific fields.
	if len(sum.ActionItems) != 2 {
		t.Fatalf("action items = %d, want 2: %v", len(sum.ActionItems), sum.ActionItems)
	}
	first := sum.ActionItems[0]
	if first.Assignee != "ada" || first.DueDate != "friday" {
		t.Errorf("merged item lost specific fields: %+v", first)
	}
	// First mention (window 1) comes first.
	if !strings.Contains(first.Task, "budget") {
		t.Errorf("chronological order broken: %+v", sum.ActionItems)
	}

	if len(sum.Decisions) != 2 || sum.Decisions[0] != "cut travel spend" {
		t.Errorf("decisions = %v", sum.Decisions)
	}
	if len(sum.Topics) != 2 {
		t.Errorf("topics = %v", sum.Topics)
	}
}

func TestSynthesizeRepairsMalformedPayload(t *testing.T) {
	fake := &scriptedLLM{responses: []string{
		"not json at all",
		payloadJSON(t, summaryPayload{Topics: []string{"budget"}}),
	}}
	e := NewEngine(fake, Config{}, logger.Nop())

	tr := &meeting.Transcript{Segments: []meeting.TranscriptSegment{
		{Start: 0, End: 1, Speaker: "spk_a", Text: "hi"},
	}}
	sum, err := e.Synthesize(context.Background(), "m", "j", tr)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if fake.calls != 2 {
		t.Errorf("calls = %d, want extraction + one repair", fake.calls)
	}
	if len(sum.Topics) != 1 {
		t.Errorf("topics = %v", sum.Topics)
	}
}

func TestSynthesizeMalformedResponse(t *testing.T) {
	fake := &scriptedLLM{responses: []string{"not json at all", "still not json"}}
	e := NewEngine(fake, Config{}, logger.Nop())

	tr := &meeting.Transcript{Segments: []meeting.TranscriptSegment{
		{Start: 0, End: 1, Speaker: "spk_a", Text: "hi"},
	}}
	if _, err := e.Synthesize(context.Background(), "m", "j", tr); err == nil {
		t.Fatal("expected malformed-response error after the repair call")
	}
	if fake.calls != 2 {
		t.Errorf("calls = %d, want extraction + one repair, no further retries", fake.calls)
	}
}

func TestSynthesizeEmptyTranscript(t *testing.T) {
	e := NewEngine(&scriptedLLM{}, Config{}, logger.Nop())
	if _, err := e.Synthesize(context.Background(), "m", "j", &meeting.Transcript{}); err == nil {
		t.Fatal("expected consistency error")
	}
}

func TestParsePayloadStripsFence(t *testing.T) {
	p, err := parsePayload("```json\n{\"topics\":[\"a\"],\"decisions\":[],\"action_items\":[]}\n```")
	if err != nil {
		t.Fatalf("parsePayload: %v", err)
	}
	if len(p.Topics) != 1 {
		t.Errorf("topics = %v", p.Topics)
	}
}

func TestSplitWindowsKeepsOrderAndCoverage(t *testing.T) {
	tr := longTranscript(20)
	windows := splitWindows(tr.Segments, 300)
	if len(windows) < 2 {
		t.Fatalf("expected multiple windows, got %d", len(windows))
	}
	total := 0
	last := -1.0
	for _, w := range windows {
		total += len(w)
		for _, s := range w {
			if s.Start <= last {
				t.Fatal("windows out of order or overlapping")
			}
			last = s.Start
		}
	}
	if total != len(tr.Segments) {
		t.Errorf("coverage: %d of %d segments", total, len(tr.Segments))
	}
}
