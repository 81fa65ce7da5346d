package synthesis

import (
	"encoding/json"
	"strings"

	"github.com/neuralnotes/neuralnotes/errors"
	"github.com/neuralnotes/neuralnotes/meeting"
)

// summaryPayload is the JSON shape the extraction prompts request.
type summaryPayload struct {
	Topics      []string             `json:"topics"`
	Decisions   []string             `json:"decisions"`
	ActionItems []meeting.ActionItem `json:"action_items"`
}

// parsePayload decodes an extraction response. Models occasionally wrap JSON
// in a code fence even in JSON mode; strip it before giving up.
func parsePayload(content string) (*summaryPayload, error) {
	var payload summaryPayload
	if err := json.Unmarshal([]byte(stripFence(content)), &payload); err != nil {
		return nil, errors.MalformedResponse("llm", err).WithDetail("content", truncateForDetail(content))
	}
	return &payload, nil
}

// parseTopics decodes a reduce response: {"topics": [...]}.
func parseTopics(content string) ([]string, error) {
	var payload struct {
		Topics []string `json:"topics"`
	}
	if err := json.Unmarshal([]byte(stripFence(content)), &payload); err != nil {
		return nil, errors.MalformedResponse("llm", err).WithDetail("content", truncateForDetail(content))
	}
	return payload.Topics, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func truncateForDetail(s string) string {
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
