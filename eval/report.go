package eval

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FormatMarkdown renders a replay report as a markdown summary.
func FormatMarkdown(r Report) string {
	var b strings.Builder
	b.WriteString("# Scorer Replay Report\n\n")
	fmt.Fprintf(&b, "- Cases: %d\n", r.Total)
	fmt.Fprintf(&b, "- Mismatches: %d\n", r.Mismatches)
	fmt.Fprintf(&b, "- Latency p50/p95: %dms / %dms\n", r.LatencyP50Ms, r.LatencyP95Ms)
	fmt.Fprintf(&b, "- Duration: %s\n\n", r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond))

	ids := make([]string, 0, len(r.PerScorer))
	for id := range r.PerScorer {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	b.WriteString("| Scorer | Scored | Skipped | Passed | Pass rate | Avg score |\n")
	b.WriteString("|---|---:|---:|---:|---:|---:|\n")
	for _, id := range ids {
		m := r.PerScorer[id]
		fmt.Fprintf(&b, "| %s | %d | %d | %d | %.1f%% | %.1f |\n", id, m.Scored, m.Skipped, m.Passed, m.PassRate, m.AvgScore)
	}

	var failing []CaseResult
	for _, c := range r.Results {
		if len(c.Mismatches) > 0 || c.Error != "" {
			failing = append(failing, c)
		}
	}
	if len(failing) == 0 {
		return b.String()
	}
	b.WriteString("\n## Mismatches\n\n")
	for _, c := range failing {
		if c.Error != "" {
			fmt.Fprintf(&b, "- `%s`: error: %s\n", c.CaseID, c.Error)
			continue
		}
		fmt.Fprintf(&b, "- `%s`: %s\n", c.CaseID, strings.Join(c.Mismatches, "; "))
	}
	return b.String()
}
