package eval

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const dataset = `{"id":"email-ok","tags":["email"],"payload":{"output":"Sent.","metadata":{"toolCalls":[{"name":"send_email","args":{"to":"a@b.com","subject":"s","body":"b"}}]}},"expect":{"gmail-action":true}}

{"payload":{"output":"Sent.","metadata":{"toolCalls":[{"name":"send_email","args":{"to":"a@b.com"}}]}},"expect":{"gmail-action":true,"math-reasoning":true}}
`

func writeDataset(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cases.jsonl")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadJSONL(t *testing.T) {
	cases, err := LoadJSONL(writeDataset(t, dataset))
	if err != nil {
		t.Fatal(err)
	}
	if len(cases) != 2 {
		t.Fatalf("expected 2 cases, got %d", len(cases))
	}
	if cases[0].ID != "email-ok" || cases[1].ID != "case-3" {
		t.Fatalf("unexpected ids %q, %q", cases[0].ID, cases[1].ID)
	}

	if _, err := LoadJSONL(writeDataset(t, "{not json}\n")); err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Fatalf("expected line-numbered parse error, got %v", err)
	}
}

func TestReplay(t *testing.T) {
	cases, err := LoadJSONL(writeDataset(t, dataset))
	if err != nil {
		t.Fatal(err)
	}
	rec := &memoryRecorder{}
	p := NewPipeline([]Scorer{EmailScorer{}, MathScorer{}}, WithSamplingRate(0), WithRecorder(rec))

	report, err := p.Replay(context.Background(), cases, ReplayOptions{Workers: 2})
	if err != nil {
		t.Fatal(err)
	}
	if report.Total != 2 || report.Mismatches != 1 {
		t.Fatalf("unexpected totals: %+v", report)
	}
	email := report.PerScorer[EmailScorerID]
	if email.Scored != 2 || email.Passed != 1 || email.Failed != 1 || email.PassRate != 50 || email.AvgScore != 70 {
		t.Fatalf("unexpected email metrics: %+v", email)
	}
	if m := report.PerScorer[MathScorerID]; m.Skipped != 2 || m.Scored != 0 {
		t.Fatalf("unexpected math metrics: %+v", m)
	}

	second := report.Results[1]
	if len(second.Mismatches) != 2 {
		t.Fatalf("expected verdict and skip mismatches, got %v", second.Mismatches)
	}
	if len(rec.scorerIDs()) != 0 {
		t.Fatal("replay must not record results")
	}
}

func TestReplay_EmptyAndMaxCases(t *testing.T) {
	p := NewPipeline(DefaultScorers())
	if _, err := p.Replay(context.Background(), nil, ReplayOptions{}); err == nil {
		t.Fatal("expected error for empty dataset")
	}
	cases := []Case{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	report, err := p.Replay(context.Background(), cases, ReplayOptions{MaxCases: 2})
	if err != nil {
		t.Fatal(err)
	}
	if report.Total != 2 {
		t.Fatalf("expected 2 cases, got %d", report.Total)
	}
}

func TestFormatMarkdown(t *testing.T) {
	cases, err := LoadJSONL(writeDataset(t, dataset))
	if err != nil {
		t.Fatal(err)
	}
	report, err := NewPipeline([]Scorer{EmailScorer{}}).Replay(context.Background(), cases, ReplayOptions{})
	if err != nil {
		t.Fatal(err)
	}
	md := FormatMarkdown(report)
	for _, want := range []string{"| gmail-action | 2 | 0 | 1 | 50.0% | 70.0 |", "## Mismatches", "`case-3`"} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
}
