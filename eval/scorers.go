package eval

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/PipeOpsHQ/agent-backend/types"
)

// Scorer ids as they appear in persisted results.
const (
	EmailScorerID     = "gmail-action"
	GitHubScorerID    = "github-action"
	ReasoningScorerID = "logical-reasoning"
	MathScorerID      = "math-reasoning"
)

const delegateTool = "delegate_task"

// delegationScore is the partial credit for routing a turn to the right
// sub-agent. The downstream call is not visible from the delegation alone.
const delegationScore = 70

// matchCalls keeps calls named in allow, plus delegate_task calls whose
// target list mentions keyword.
func matchCalls(calls []types.ToolCall, allow []string, keyword string) []types.ToolCall {
	var out []types.ToolCall
	for _, c := range calls {
		switch {
		case contains(allow, c.Name):
			out = append(out, c)
		case c.Name == delegateTool && delegatesTo(c, keyword):
			out = append(out, c)
		}
	}
	return out
}

func delegatesTo(c types.ToolCall, keyword string) bool {
	args, ok := c.ArgsMap()
	if !ok {
		return false
	}
	targets := firstPresent(args["targetAgents"], args["targets"])
	switch t := targets.(type) {
	case []any:
		for _, item := range t {
			if strings.Contains(fmt.Sprint(item), keyword) {
				return true
			}
		}
		return false
	case nil:
		return false
	default:
		return strings.Contains(fmt.Sprint(t), keyword)
	}
}

func contains(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}

func nonEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	case float64:
		return x != 0
	case []any:
		return len(x) > 0
	default:
		return true
	}
}

func parseFailed(c types.ToolCall) Result {
	return Result{Score: 0, Passed: false, Metadata: map[string]any{"error": "json_parse_failed", "args": c.Args}}
}

// EmailScorer grades outbound email calls on recipient, subject and body.
type EmailScorer struct{}

var emailTools = []string{"send_email", "email-sub-agent"}

func (EmailScorer) ID() string { return EmailScorerID }

func (EmailScorer) Score(_ context.Context, n Normalized) (Result, error) {
	calls := matchCalls(n.ToolCalls, emailTools, "email")
	if len(calls) == 0 {
		return Skip("no_email_tool_called"), nil
	}
	call := calls[0]
	if call.Name == delegateTool {
		return Result{
			Score:    delegationScore,
			Passed:   true,
			Metadata: map[string]any{"tool": delegateTool, "target": "email-sub-agent"},
		}, nil
	}
	params, ok := call.ArgsMap()
	if !ok {
		return parseFailed(call), nil
	}

	checks := map[string]any{
		"hasTo":      nonEmpty(params["to"]),
		"hasSubject": nonEmpty(params["subject"]),
		"hasBody":    nonEmpty(params["body"]),
	}
	score := 0.0
	if checks["hasTo"] == true {
		score += 40
	}
	if checks["hasSubject"] == true {
		score += 30
	}
	if checks["hasBody"] == true {
		score += 30
	}
	return Result{
		Score:    score,
		Passed:   score == 100,
		Metadata: map[string]any{"tool": call.Name, "checks": checks},
	}, nil
}

// GitHubScorer grades issue tool calls on repository targeting and, for
// updates, on naming the issue and a change to apply.
type GitHubScorer struct{}

var githubTools = []string{"github_issues", "github_update_issue", "github-sub-agent"}

var repoRef = regexp.MustCompile(`([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+)`)

func (GitHubScorer) ID() string { return GitHubScorerID }

func (GitHubScorer) Score(_ context.Context, n Normalized) (Result, error) {
	calls := matchCalls(n.ToolCalls, githubTools, "github")
	if len(calls) == 0 {
		return Skip("no_github_tool_called"), nil
	}
	call := calls[0]
	if call.Name == delegateTool {
		return Result{
			Score:    delegationScore,
			Passed:   true,
			Metadata: map[string]any{"tool": delegateTool, "target": "github-sub-agent"},
		}, nil
	}
	args, ok := call.ArgsMap()
	if !ok {
		return parseFailed(call), nil
	}
	params := make(map[string]any, len(args)+2)
	for k, v := range args {
		params[k] = v
	}
	if !nonEmpty(params["owner"]) || !nonEmpty(params["repo"]) {
		if owner, repo, ok := repositoryHint(params); ok {
			if !nonEmpty(params["owner"]) {
				params["owner"] = owner
			}
			if !nonEmpty(params["repo"]) {
				params["repo"] = repo
			}
		}
	}

	score := 0.0
	if nonEmpty(params["owner"]) && nonEmpty(params["repo"]) {
		score += 50
	}
	if call.Name == "github_update_issue" {
		if nonEmpty(params["issueNumber"]) || nonEmpty(params["issue_number"]) {
			score += 30
		}
		if nonEmpty(params["state"]) || nonEmpty(params["title"]) || nonEmpty(params["body"]) {
			score += 20
		}
	} else {
		score += 50
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return Result{
		Score:    score,
		Passed:   score >= 80,
		Metadata: map[string]any{"tool": call.Name, "params": keys},
	}, nil
}

func repositoryHint(params map[string]any) (string, string, bool) {
	var candidates []any
	candidates = append(candidates, params["repository"])
	if ctx, ok := params["context"].(map[string]any); ok {
		candidates = append(candidates, ctx["repository"])
	}
	candidates = append(candidates, params["task"])
	for _, c := range candidates {
		s, ok := c.(string)
		if !ok {
			continue
		}
		if m := repoRef.FindStringSubmatch(s); m != nil {
			return m[1], m[2], true
		}
	}
	return "", "", false
}

// ReasoningScorer rewards grounded answers: tool use, or text with causal
// connectives, explicit structure and some substance.
type ReasoningScorer struct{}

var (
	causalWords   = regexp.MustCompile(`(?i)\b(because|therefore|thus|since|hence|as a result)\b`)
	listStructure = regexp.MustCompile(`(?im)^\s*(\d+[.)]|[-*])\s+|\bstep\b`)
)

func (ReasoningScorer) ID() string { return ReasoningScorerID }

func (ReasoningScorer) Score(_ context.Context, n Normalized) (Result, error) {
	text := n.TextOrEmpty()
	meta := map[string]any{"length": len(text), "toolUsed": len(n.ToolCalls) > 0}

	var score float64
	if len(n.ToolCalls) > 0 {
		score = 60
		if len(text) > 50 {
			score += 20
		}
	} else {
		if causalWords.MatchString(text) {
			score += 40
			meta["causal"] = true
		}
		if listStructure.MatchString(text) {
			score += 30
			meta["structured"] = true
		}
		switch {
		case len(text) >= 80:
			score += 20
		case len(text) >= 30:
			score += 10
		}
	}
	score = clamp(score)
	return Result{Score: score, Passed: score >= 60, Metadata: meta}, nil
}

// MathScorer grades arithmetic answers. Turns without math in the user's
// request are skipped.
type MathScorer struct{}

var (
	mathKeywords = regexp.MustCompile(`(?i)\b(calculate|calculation|compute|solve|equation|sum|multiply|multiplied|divide|divided|add|subtract|minus|plus|percent|percentage|math|average|product|square root)\b`)
	mathPattern  = regexp.MustCompile(`\d+\s*[-+*/^x×÷=]\s*\d+`)
	mathTools    = []string{"calculate", "calculator"}
)

// IsMathRelevant reports whether text asks for a calculation.
func IsMathRelevant(text string) bool {
	return mathKeywords.MatchString(text) || mathPattern.MatchString(text)
}

func (MathScorer) ID() string { return MathScorerID }

func (MathScorer) Score(_ context.Context, n Normalized) (Result, error) {
	if strings.TrimSpace(n.UserText) == "" {
		return Skip("no_user_text"), nil
	}
	if !IsMathRelevant(n.UserText) {
		return Skip("not_math_related"), nil
	}

	steps := CountSteps(n.TextOrEmpty())
	bonus := float64(min(steps, 3)) * 10
	usedTool := n.UsedTool(mathTools...)

	var (
		score float64
		mode  string
	)
	switch {
	case usedTool:
		score, mode = 70+bonus, "tool_verified"
	case n.RequiresTool:
		score, mode = 20+bonus, "tool_required_not_used"
	default:
		score, mode = 50+bonus, "knowledge_only"
	}
	score = clamp(score)
	return Result{
		Score:  score,
		Passed: score >= 60,
		Metadata: map[string]any{
			"mode":         mode,
			"steps":        steps,
			"usedTool":     usedTool,
			"requiresTool": n.RequiresTool,
		},
	}, nil
}

// DefaultScorers returns every built-in scorer.
func DefaultScorers() []Scorer {
	return []Scorer{EmailScorer{}, GitHubScorer{}, ReasoningScorer{}, MathScorer{}}
}

// ScorersByID returns the default scorers named in ids, in the given order.
// An empty list selects every default scorer.
func ScorersByID(ids []string) ([]Scorer, error) {
	all := DefaultScorers()
	if len(ids) == 0 {
		return all, nil
	}
	byID := make(map[string]Scorer, len(all))
	for _, s := range all {
		byID[s.ID()] = s
	}
	out := make([]Scorer, 0, len(ids))
	for _, id := range ids {
		s, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown scorer %q", id)
		}
		out = append(out, s)
	}
	return out, nil
}
