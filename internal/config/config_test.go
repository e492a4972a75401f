package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"PORT", "BASE_URL", "RENDER_EXTERNAL_URL", "AGENT_STORE_BACKEND", "EVAL_SAMPLING_RATE", "DATABASE_URL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "5000" {
		t.Fatalf("expected default port 5000, got %q", cfg.Port)
	}
	if cfg.BaseURL != "http://localhost:5000" {
		t.Fatalf("unexpected base url %q", cfg.BaseURL)
	}
	if cfg.Store.Backend != "sqlite" {
		t.Fatalf("expected sqlite backend, got %q", cfg.Store.Backend)
	}
	if cfg.Eval.SamplingRate != 1 {
		t.Fatalf("expected sampling rate 1, got %v", cfg.Eval.SamplingRate)
	}
	if cfg.GitHub.HandshakeTimeout != 30*time.Second {
		t.Fatalf("unexpected handshake timeout %v", cfg.GitHub.HandshakeTimeout)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Chdir(t.TempDir())
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"sampling above one", map[string]string{"EVAL_SAMPLING_RATE": "1.5"}, "EVAL_SAMPLING_RATE"},
		{"unknown backend", map[string]string{"AGENT_STORE_BACKEND": "mongo"}, "AGENT_STORE_BACKEND"},
		{"postgres without dsn", map[string]string{"AGENT_STORE_BACKEND": "postgres", "DATABASE_URL": ""}, "DATABASE_URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("EVAL_SAMPLING_RATE", "")
			t.Setenv("AGENT_STORE_BACKEND", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}

func TestResolveBaseURL(t *testing.T) {
	tests := []struct {
		explicit, platform, port, want string
	}{
		{"https://app.example.com/", "", "5000", "https://app.example.com"},
		{"", "https://svc.onrender.com", "5000", "https://svc.onrender.com"},
		{"", "", "8080", "http://localhost:8080"},
		{"", "", "", "http://localhost:5000"},
	}
	for _, tt := range tests {
		if got := ResolveBaseURL(tt.explicit, tt.platform, tt.port); got != tt.want {
			t.Errorf("ResolveBaseURL(%q, %q, %q) = %q, want %q", tt.explicit, tt.platform, tt.port, got, tt.want)
		}
	}
}

func TestParseBoolString(t *testing.T) {
	if !ParseBoolString("yes", false) {
		t.Fatal("expected yes to parse true")
	}
	if ParseBoolString("off", true) {
		t.Fatal("expected off to parse false")
	}
	if !ParseBoolString("maybe", true) {
		t.Fatal("expected fallback for unknown value")
	}
}
