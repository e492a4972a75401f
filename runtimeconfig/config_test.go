package runtimeconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "agent.yaml", `
eval:
  samplingRate: 0.25
  scorers:
    - gmail-action
    - " math-reasoning "
    - ""
tools: ["calculate", "github_issues"]
guardrails:
  - sanitize
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Eval.SamplingRate == nil || *cfg.Eval.SamplingRate != 0.25 {
		t.Fatalf("unexpected sampling rate: %v", cfg.Eval.SamplingRate)
	}
	if !cfg.Eval.IsEnabled() {
		t.Fatal("eval should default to enabled")
	}
	if diff := cmp.Diff([]string{"gmail-action", "math-reasoning"}, cfg.Eval.Scorers); diff != "" {
		t.Fatalf("scorers mismatch (-want +got):\n%s", diff)
	}
	if len(cfg.Tools) != 2 || len(cfg.Guardrails) != 1 {
		t.Fatalf("unexpected tools/guardrails: %#v %#v", cfg.Tools, cfg.Guardrails)
	}
}

func TestLoad_JSONAndDisabled(t *testing.T) {
	path := writeConfig(t, "agent.json", `{"eval":{"enabled":false}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Eval.IsEnabled() {
		t.Fatal("expected eval disabled")
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(" "); err == nil {
		t.Fatal("expected error for empty path")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	path := writeConfig(t, "bad.yaml", "eval:\n  samplingRate: 2\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "samplingRate") {
		t.Fatalf("expected sampling rate error, got %v", err)
	}
}
