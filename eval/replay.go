package eval

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// Case is one recorded turn in a replay dataset. Expect optionally pins
// the pass verdict per scorer id.
type Case struct {
	ID      string          `json:"id"`
	Payload Payload         `json:"payload"`
	Tags    []string        `json:"tags,omitempty"`
	Expect  map[string]bool `json:"expect,omitempty"`
}

type ReplayOptions struct {
	MaxCases int
	Workers  int
	Timeout  time.Duration
}

type Report struct {
	StartedAt    time.Time                `json:"startedAt"`
	CompletedAt  time.Time                `json:"completedAt"`
	Total        int                      `json:"total"`
	Mismatches   int                      `json:"mismatches"`
	LatencyP50Ms int64                    `json:"latencyP50Ms"`
	LatencyP95Ms int64                    `json:"latencyP95Ms"`
	PerScorer    map[string]ScorerMetrics `json:"perScorer"`
	Results      []CaseResult             `json:"results"`
}

type ScorerMetrics struct {
	Scored   int     `json:"scored"`
	Skipped  int     `json:"skipped"`
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	PassRate float64 `json:"passRate"`
	AvgScore float64 `json:"avgScore"`
}

type CaseResult struct {
	CaseID     string   `json:"caseId"`
	Tags       []string `json:"tags,omitempty"`
	Scores     []Scored `json:"scores"`
	Mismatches []string `json:"mismatches,omitempty"`
	Error      string   `json:"error,omitempty"`
	LatencyMs  int64    `json:"latencyMs"`
}

// LoadJSONL reads one Case per line. Blank lines are ignored and missing
// ids are filled from the line number.
func LoadJSONL(path string) ([]Case, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	var cases []Case
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var c Case
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("dataset line %d: %w", line, err)
		}
		if c.ID == "" {
			c.ID = fmt.Sprintf("case-%d", line)
		}
		cases = append(cases, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return cases, nil
}

// Replay scores recorded cases offline. Sampling is ignored and nothing is
// recorded; the report aggregates results per scorer.
func (p *Pipeline) Replay(ctx context.Context, cases []Case, opts ReplayOptions) (Report, error) {
	if len(cases) == 0 {
		return Report{}, errors.New("at least one case is required")
	}
	if opts.MaxCases > 0 && opts.MaxCases < len(cases) {
		cases = cases[:opts.MaxCases]
	}
	runCtx := ctx
	cancel := func() {}
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
	}
	defer cancel()

	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers(len(cases))
	}
	workers = min(workers, len(cases))

	report := Report{
		StartedAt: time.Now().UTC(),
		PerScorer: map[string]ScorerMetrics{},
	}

	results := make([]CaseResult, len(cases))
	type job struct {
		idx int
		c   Case
	}
	jobs := make(chan job)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				results[j.idx] = p.replayCase(runCtx, j.c)
			}
		}()
	}
dispatchLoop:
	for idx, c := range cases {
		select {
		case <-runCtx.Done():
			for i := idx; i < len(cases); i++ {
				results[i] = CaseResult{CaseID: cases[i].ID, Tags: cases[i].Tags, Error: runCtx.Err().Error()}
			}
			break dispatchLoop
		case jobs <- job{idx: idx, c: c}:
		}
	}
	close(jobs)
	wg.Wait()

	sums := map[string]float64{}
	latencies := make([]int64, 0, len(results))
	for _, res := range results {
		report.Total++
		report.Results = append(report.Results, res)
		latencies = append(latencies, res.LatencyMs)
		if len(res.Mismatches) > 0 {
			report.Mismatches++
		}
		for _, s := range res.Scores {
			m := report.PerScorer[s.ScorerID]
			switch {
			case s.Skipped():
				m.Skipped++
			case s.Passed:
				m.Scored++
				m.Passed++
				sums[s.ScorerID] += s.Score
			default:
				m.Scored++
				m.Failed++
				sums[s.ScorerID] += s.Score
			}
			report.PerScorer[s.ScorerID] = m
		}
	}
	for id, m := range report.PerScorer {
		m.PassRate = ratio(m.Passed, m.Scored)
		if m.Scored > 0 {
			m.AvgScore = sums[id] / float64(m.Scored)
		}
		report.PerScorer[id] = m
	}
	report.LatencyP50Ms = percentile(latencies, 50)
	report.LatencyP95Ms = percentile(latencies, 95)
	report.CompletedAt = time.Now().UTC()
	return report, nil
}

func (p *Pipeline) replayCase(ctx context.Context, c Case) CaseResult {
	started := time.Now()
	res := CaseResult{CaseID: c.ID, Tags: append([]string(nil), c.Tags...)}
	if err := ctx.Err(); err != nil {
		res.Error = err.Error()
		return res
	}
	res.Scores = p.score(ctx, Normalize(c.Payload))
	res.LatencyMs = time.Since(started).Milliseconds()

	for _, s := range res.Scores {
		want, ok := c.Expect[s.ScorerID]
		if !ok {
			continue
		}
		if s.Skipped() {
			res.Mismatches = append(res.Mismatches, s.ScorerID+": skipped")
			continue
		}
		if s.Passed != want {
			res.Mismatches = append(res.Mismatches, fmt.Sprintf("%s: passed=%v want %v (score %.0f)", s.ScorerID, s.Passed, want, s.Score))
		}
	}
	return res
}

func defaultWorkers(total int) int {
	if total <= 1 {
		return 1
	}
	cpu := min(max(runtime.NumCPU(), 2), 8)
	return min(cpu, total)
}

func ratio(numerator, denominator int) float64 {
	if denominator == 0 {
		return 0
	}
	return (float64(numerator) / float64(denominator)) * 100
}

func percentile(values []int64, p int) int64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]int64(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	idx := int((float64(p) / 100) * float64(len(sorted)-1))
	return sorted[idx]
}
