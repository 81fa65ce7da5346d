package synthesis

import (
	"github.com/neuralnotes/neuralnotes/meeting"
	"github.com/neuralnotes/neuralnotes/util"
)

// windowSummary is one window's extraction output, tagged with its position
// in the meeting so merged output can follow chronological order.
type windowSummary struct {
	index   int
	payload summaryPayload
}

// mergeActionItems merges per-window action items. Items whose normalized
// task text exceeds the similarity threshold collapse into one; the survivor
// keeps the earliest first mention and the most specific assignee/due-date
// pairing found among its duplicates.
func mergeActionItems(summaries []windowSummary, threshold float64) []meeting.ActionItem {
	var merged []meeting.ActionItem

	for _, ws := range summaries {
		for _, item := range ws.payload.ActionItems {
			if item.Task == "" {
				continue
			}
			matched := false
			for i := range merged {
				if util.JaccardSimilarity(merged[i].Task, item.Task) >= threshold {
					merged[i] = mostSpecific(merged[i], item)
					matched = true
					break
				}
			}
			if !matched {
				merged = append(merged, item)
			}
		}
	}
	return merged
}

// mostSpecific keeps the duplicate pair with more optional fields populated,
// then fills any remaining gaps from the other. The existing item's task
// text (first mention) wins ties.
func mostSpecific(existing, candidate meeting.ActionItem) meeting.ActionItem {
	keep, other := existing, candidate
	if candidate.Specificity() > existing.Specificity() {
		keep, other = candidate, existing
		keep.Task = existing.Task
	}
	keep.Assignee = util.Coalesce(keep.Assignee, other.Assignee)
	keep.DueDate = util.Coalesce(keep.DueDate, other.DueDate)
	return keep
}

// mergeDecisions concatenates window decisions in chronological order,
// dropping exact normalized duplicates.
func mergeDecisions(summaries []windowSummary) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, ws := range summaries {
		for _, d := range ws.payload.Decisions {
			key := util.NormalizeText(d)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, d)
		}
	}
	return out
}

// dedupeStrings drops exact normalized duplicates, keeping first occurrence.
func dedupeStrings(in []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, s := range in {
		key := util.NormalizeText(s)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
