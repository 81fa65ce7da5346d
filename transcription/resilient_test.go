package transcription

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/neuralnotes/neuralnotes/meeting"
	"github.com/neuralnotes/neuralnotes/provider"
	"github.com/neuralnotes/neuralnotes/resilience"
)

type slowASR struct {
	mu       sync.Mutex
	inflight int
	peak     int
}

func (s *slowASR) Name() string                     { return "slow" }
func (s *slowASR) IsAvailable(context.Context) bool { return true }

func (s *slowASR) Transcribe(context.Context, Request) (*meeting.Transcript, error) {
	s.mu.Lock()
	s.inflight++
	if s.inflight > s.peak {
		s.peak = s.inflight
	}
	s.mu.Unlock()
	time.Sleep(10 * time.Millisecond)
	s.mu.Lock()
	s.inflight--
	s.mu.Unlock()
	return &meeting.Transcript{}, nil
}

func TestWithResilienceEmptyConfigPassthrough(t *testing.T) {
	inner := &slowASR{}
	if got := WithResilience(inner, provider.ResilienceConfig{}); got != Provider(inner) {
		t.Error("empty config should return the backend unchanged")
	}
}

func TestWithResilienceBoundsConcurrency(t *testing.T) {
	inner := &slowASR{}
	wrapped := WithResilience(inner, provider.ResilienceConfig{
		Bulkhead: &resilience.BulkheadConfig{Name: "slow", MaxConcurrent: 2, MaxWait: 5 * time.Second},
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := wrapped.Transcribe(context.Background(), Request{}); err != nil {
				t.Errorf("Transcribe: %v", err)
			}
		}()
	}
	wg.Wait()

	inner.mu.Lock()
	peak := inner.peak
	inner.mu.Unlock()
	if peak > 2 {
		t.Errorf("peak concurrent calls = %d, ceiling is 2", peak)
	}
}
