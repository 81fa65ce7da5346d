// Package notify delivers completion notifications when a meeting finishes
// processing. Delivery is best-effort: a failed notification is logged and
// never fails the job that produced it.
package notify

import (
	"context"
	"time"

	"github.com/neuralnotes/neuralnotes/logger"
	"github.com/neuralnotes/neuralnotes/meeting"
)

// Completion is the payload emitted when a meeting reaches COMPLETED.
type Completion struct {
	MeetingID   string           `json:"meeting_id"`
	JobID       string           `json:"job_id"`
	Summary     *meeting.Summary `json:"summary,omitempty"`
	Recipients  []string         `json:"recipients,omitempty"`
	CompletedAt time.Time        `json:"completed_at"`
}

// Notifier is the outbound notification boundary.
type Notifier interface {
	// NotifyCompletion emits the completion payload. Errors are reported
	// for logging but callers must not fail the job on them.
	NotifyCompletion(ctx context.Context, c Completion) error
}

// LogNotifier writes completions to the structured log. It is the default
// sink when no broker is configured.
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier creates a logging sink.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log.WithComponent("notify")}
}

// NotifyCompletion logs the completion payload.
func (n *LogNotifier) NotifyCompletion(_ context.Context, c Completion) error {
	fields := logger.Fields(
		logger.FieldMeetingID, c.MeetingID,
		logger.FieldJobID, c.JobID,
		"recipients", len(c.Recipients),
	)
	if c.Summary != nil {
		fields["topics"] = len(c.Summary.Topics)
		fields["action_items"] = len(c.Summary.ActionItems)
	}
	n.log.Info("meeting processing completed", fields)
	return nil
}

var _ Notifier = (*LogNotifier)(nil)
