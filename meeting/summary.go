package meeting

// ActionItem is a single follow-up extracted from the transcript.
// Assignee and DueDate are optional free-form strings from the model.
type ActionItem struct {
	Task     string `json:"task"`
	Assignee string `json:"assignee,omitempty"`
	DueDate  string `json:"due_date,omitempty"`
}

// Specificity counts how many optional fields are populated. The dedup pass
// keeps the most specific duplicate.
func (a ActionItem) Specificity() int {
	n := 0
	if a.Assignee != "" {
		n++
	}
	if a.DueDate != "" {
		n++
	}
	return n
}

// Summary is the structured synthesis output for one completed Job.
// Immutable once written; a reprocessed Meeting supersedes it wholesale.
type Summary struct {
	MeetingID string `json:"meeting_id"`
	JobID     string `json:"job_id"`

	// Topics, Decisions, and ActionItems preserve transcript chronological
	// order of first mention.
	Topics      []string     `json:"topics"`
	Decisions   []string     `json:"decisions"`
	ActionItems []ActionItem `json:"action_items"`
}
