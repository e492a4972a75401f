package guardrail

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxLength blocks text exceeding a character limit.
type MaxLength struct {
	Limit int
}

func (g *MaxLength) Name() string { return "max_length" }

func (g *MaxLength) Evaluate(_ context.Context, in Input) (Outcome, error) {
	if g.Limit <= 0 || utf8.RuneCountInString(in.Text) <= g.Limit {
		return Pass(), nil
	}
	return Block(string(in.Direction) + " exceeds maximum length"), nil
}

// PromptInjection detects common prompt injection attempts.
type PromptInjection struct{}

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+instructions`),
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?above\s+instructions`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?previous`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(your\s+)?instructions`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an)\s+`),
	regexp.MustCompile(`(?i)new\s+instructions?\s*:`),
	regexp.MustCompile(`(?i)system\s*:\s*you\s+are`),
	regexp.MustCompile(`(?i)override\s+(all\s+)?safety`),
	regexp.MustCompile(`(?i)bypass\s+(all\s+)?restrictions`),
	regexp.MustCompile(`(?i)jailbreak`),
}

func (*PromptInjection) Name() string { return "prompt_injection" }

func (*PromptInjection) Evaluate(_ context.Context, in Input) (Outcome, error) {
	for _, pat := range injectionPatterns {
		if pat.MatchString(in.Text) {
			out := Block("potential prompt injection detected")
			out.Metadata = map[string]any{"pattern": pat.String()}
			return out, nil
		}
	}
	return Pass(), nil
}

// ContentFilter blocks text containing prohibited phrases.
type ContentFilter struct {
	// CustomPatterns adds extra phrases beyond the defaults.
	CustomPatterns []string
}

var defaultContentPatterns = []string{
	"kill yourself", "kys",
	"how to make a bomb", "how to make explosives",
	"how to phish",
	"child exploitation", "csam",
}

func (g *ContentFilter) Name() string { return "content_filter" }

func (g *ContentFilter) Evaluate(_ context.Context, in Input) (Outcome, error) {
	lower := strings.ToLower(in.Text)
	patterns := append(append([]string(nil), defaultContentPatterns...), g.CustomPatterns...)
	for _, pat := range patterns {
		if pat != "" && strings.Contains(lower, strings.ToLower(pat)) {
			return Block("prohibited content detected"), nil
		}
	}
	return Pass(), nil
}

// Sanitize replaces contact details with placeholders before the text
// reaches the model.
type Sanitize struct{}

var (
	sanitizeEmail = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	sanitizePhone = regexp.MustCompile(`\b\d{10,}\b`)
	sanitizeURL   = regexp.MustCompile(`https?://\S+`)
)

func (Sanitize) Name() string { return "sanitize" }

func (Sanitize) Evaluate(_ context.Context, in Input) (Outcome, error) {
	text := sanitizeURL.ReplaceAllString(in.Text, "[url]")
	text = sanitizeEmail.ReplaceAllString(text, "[email]")
	text = sanitizePhone.ReplaceAllString(text, "[phone]")
	if text == in.Text {
		return Pass(), nil
	}
	out := Modify(text, "sensitive information was removed")
	out.Metadata = map[string]any{"reason": "privacy_protection"}
	return out, nil
}

// SecretGuard redacts credentials that leak into text.
type SecretGuard struct {
	Patterns []*regexp.Regexp
}

var defaultSecretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(AKIA|ABIA|ACCA|ASIA)[0-9A-Z]{16}`),
	regexp.MustCompile(`(ghp|gho|ghu|ghs|ghr)_[A-Za-z0-9_]{36,255}`),
	regexp.MustCompile(`-----BEGIN\s+(RSA|DSA|EC|OPENSSH|PGP|ENCRYPTED)?\s*PRIVATE KEY-----`),
	regexp.MustCompile(`eyJ[A-Za-z0-9\-_]+\.eyJ[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-_.]{20,}`),
}

func (g *SecretGuard) Name() string { return "secret_guard" }

func (g *SecretGuard) Evaluate(_ context.Context, in Input) (Outcome, error) {
	patterns := g.Patterns
	if len(patterns) == 0 {
		patterns = defaultSecretPatterns
	}
	redacted := in.Text
	for _, p := range patterns {
		redacted = p.ReplaceAllString(redacted, "[SECRET_REDACTED]")
	}
	if redacted == in.Text {
		return Pass(), nil
	}
	return Modify(redacted, "secrets detected and redacted"), nil
}
