package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PipeOpsHQ/agent-backend/connection"
	"github.com/PipeOpsHQ/agent-backend/credential"
	"github.com/PipeOpsHQ/agent-backend/integrations/github"
)

// RemoteCaller invokes an operation on the shared remote tool session.
type RemoteCaller interface {
	CallTool(ctx context.Context, id credential.Identity, name string, args map[string]any) (connection.CallResult, error)
}

// IssueService is the REST surface used for operations the remote server
// does not expose.
type IssueService interface {
	UpdateIssue(ctx context.Context, token, owner, repo string, number int, update github.IssueUpdate) (github.Issue, error)
	CreateIssue(ctx context.Context, token, owner, repo string, in github.NewIssue) (github.Issue, error)
	ListComments(ctx context.Context, token, owner, repo string, number int) ([]github.Comment, error)
	DeleteComment(ctx context.Context, token, owner, repo string, commentID int64) error
}

// GitHubTools builds the GitHub tool set. Every call acts as the owner of
// the target repository; the session identity comes from ctx.
type GitHubTools struct {
	Remote  RemoteCaller
	API     IssueService
	Tokens  connection.TokenResolver
	AuthURL credential.AuthURLFunc
}

// flexInt accepts a JSON number or a numeric string.
type flexInt int64

func (n *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return fmt.Errorf("expected an integer, got %s", b)
		}
		v = int64(f)
	}
	*n = flexInt(v)
	return nil
}

type repoArgs struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

func (a repoArgs) validate() error {
	if strings.TrimSpace(a.Owner) == "" || strings.TrimSpace(a.Repo) == "" {
		return fmt.Errorf("owner and repo are required")
	}
	return nil
}

type issueArgs struct {
	repoArgs
	IssueNumber  flexInt `json:"issueNumber"`
	IssueNumber2 flexInt `json:"issue_number"`
	State        string  `json:"state"`
	Title        string  `json:"title"`
	Body         string  `json:"body"`
}

func (a issueArgs) number() int {
	if a.IssueNumber != 0 {
		return int(a.IssueNumber)
	}
	return int(a.IssueNumber2)
}

type createIssueArgs struct {
	repoArgs
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Assignees []string `json:"assignees"`
	Labels    []string `json:"labels"`
}

type commentArgs struct {
	repoArgs
	CommentID  flexInt `json:"commentId"`
	CommentID2 flexInt `json:"comment_id"`
}

func (a commentArgs) id() int64 {
	if a.CommentID != 0 {
		return int64(a.CommentID)
	}
	return int64(a.CommentID2)
}

func (g *GitHubTools) Tools() []Tool {
	return []Tool{
		g.issuesTool(),
		g.updateIssueTool(),
		g.createIssueTool(),
		g.addCommentTool(),
		g.listCommentsTool(),
		g.deleteCommentTool(),
		g.authURLTool(),
	}
}

// identity returns the caller's identity with owner as the target.
func identity(ctx context.Context, owner string) credential.Identity {
	id := IdentityFrom(ctx)
	id.TargetOwner = strings.TrimSpace(owner)
	return id
}

// withAuthCheck turns a missing credential into a readable result carrying
// the authorization link, so the agent can relay it to the user.
func withAuthCheck(fn func() (any, error)) (any, error) {
	out, err := fn()
	var missing *credential.MissingError
	if errors.As(err, &missing) {
		return missing.Error(), nil
	}
	return out, err
}

func decode(args json.RawMessage, v any) error {
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func (g *GitHubTools) remote(ctx context.Context, owner, name string, args map[string]any) (any, error) {
	if g.Remote == nil {
		return nil, fmt.Errorf("github tools: remote session not configured")
	}
	return withAuthCheck(func() (any, error) {
		res, err := g.Remote.CallTool(ctx, identity(ctx, owner), name, args)
		if err != nil {
			return nil, err
		}
		if res.IsError {
			return nil, fmt.Errorf("github %s: %s", name, res.Text)
		}
		return res.Text, nil
	})
}

func (g *GitHubTools) rest(ctx context.Context, owner string, fn func(token string) (any, error)) (any, error) {
	if g.API == nil || g.Tokens == nil {
		return nil, fmt.Errorf("github tools: REST client not configured")
	}
	return withAuthCheck(func() (any, error) {
		token, err := g.Tokens.Resolve(ctx, identity(ctx, owner))
		if err != nil {
			return nil, err
		}
		return fn(token)
	})
}

var (
	ownerProp  = stringProp("Repository owner (user or organization).")
	repoProp   = stringProp("Repository name.")
	numberProp = map[string]any{"type": []string{"integer", "string"}, "description": "Issue number."}
)

func (g *GitHubTools) issuesTool() Tool {
	return NewFuncTool(
		"github_issues",
		"Fetch GitHub issues from a repository, or a single issue when issueNumber is set.",
		objectSchema([]string{"owner", "repo"}, map[string]any{
			"owner":       ownerProp,
			"repo":        repoProp,
			"issueNumber": numberProp,
			"state":       map[string]any{"type": "string", "enum": []string{"open", "closed", "all"}},
		}),
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var in issueArgs
			if err := decode(args, &in); err != nil {
				return nil, err
			}
			if err := in.validate(); err != nil {
				return nil, err
			}
			if n := in.number(); n > 0 {
				return g.remote(ctx, in.Owner, "get_issue", map[string]any{
					"owner": in.Owner, "repo": in.Repo, "issue_number": n,
				})
			}
			params := map[string]any{"owner": in.Owner, "repo": in.Repo}
			if in.State != "" {
				params["state"] = in.State
			}
			return g.remote(ctx, in.Owner, "list_issues", params)
		},
	)
}

func (g *GitHubTools) updateIssueTool() Tool {
	return NewFuncTool(
		"github_update_issue",
		"Update an existing GitHub issue (status, title, body).",
		objectSchema([]string{"owner", "repo", "issueNumber"}, map[string]any{
			"owner":       ownerProp,
			"repo":        repoProp,
			"issueNumber": numberProp,
			"state":       map[string]any{"type": "string", "enum": []string{"open", "closed"}},
			"title":       stringProp("New title."),
			"body":        stringProp("New body."),
		}),
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var in issueArgs
			if err := decode(args, &in); err != nil {
				return nil, err
			}
			if err := in.validate(); err != nil {
				return nil, err
			}
			n := in.number()
			if n <= 0 {
				return nil, fmt.Errorf("missing issueNumber")
			}
			return g.rest(ctx, in.Owner, func(token string) (any, error) {
				return g.API.UpdateIssue(ctx, token, in.Owner, in.Repo, n, github.IssueUpdate{
					State: in.State, Title: in.Title, Body: in.Body,
				})
			})
		},
	)
}

func (g *GitHubTools) createIssueTool() Tool {
	return NewFuncTool(
		"github_create_issue",
		"Create a new issue in a GitHub repository.",
		objectSchema([]string{"owner", "repo", "title"}, map[string]any{
			"owner":     ownerProp,
			"repo":      repoProp,
			"title":     stringProp("Issue title."),
			"body":      stringProp("Issue body."),
			"assignees": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"labels":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		}),
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var in createIssueArgs
			if err := decode(args, &in); err != nil {
				return nil, err
			}
			if err := in.validate(); err != nil {
				return nil, err
			}
			return g.rest(ctx, in.Owner, func(token string) (any, error) {
				return g.API.CreateIssue(ctx, token, in.Owner, in.Repo, github.NewIssue{
					Title: in.Title, Body: in.Body, Assignees: in.Assignees, Labels: in.Labels,
				})
			})
		},
	)
}

func (g *GitHubTools) addCommentTool() Tool {
	return NewFuncTool(
		"github_add_comment",
		"Add a comment to an existing GitHub issue.",
		objectSchema([]string{"owner", "repo", "issueNumber", "body"}, map[string]any{
			"owner":       ownerProp,
			"repo":        repoProp,
			"issueNumber": numberProp,
			"body":        stringProp("Comment text."),
		}),
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var in issueArgs
			if err := decode(args, &in); err != nil {
				return nil, err
			}
			if err := in.validate(); err != nil {
				return nil, err
			}
			n := in.number()
			if n <= 0 {
				return nil, fmt.Errorf("missing issueNumber")
			}
			if strings.TrimSpace(in.Body) == "" {
				return nil, fmt.Errorf("comment body is required")
			}
			return g.remote(ctx, in.Owner, "add_issue_comment", map[string]any{
				"owner": in.Owner, "repo": in.Repo, "issue_number": n, "body": in.Body,
			})
		},
	)
}

func (g *GitHubTools) listCommentsTool() Tool {
	return NewFuncTool(
		"github_list_comments",
		"List comments on a GitHub issue.",
		objectSchema([]string{"owner", "repo", "issueNumber"}, map[string]any{
			"owner":       ownerProp,
			"repo":        repoProp,
			"issueNumber": numberProp,
		}),
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var in issueArgs
			if err := decode(args, &in); err != nil {
				return nil, err
			}
			if err := in.validate(); err != nil {
				return nil, err
			}
			n := in.number()
			if n <= 0 {
				return nil, fmt.Errorf("missing issueNumber")
			}
			return g.rest(ctx, in.Owner, func(token string) (any, error) {
				return g.API.ListComments(ctx, token, in.Owner, in.Repo, n)
			})
		},
	)
}

func (g *GitHubTools) deleteCommentTool() Tool {
	return NewFuncTool(
		"github_delete_comment",
		"Delete a comment by its integer id. Obtain the id from github_list_comments first.",
		objectSchema([]string{"owner", "repo", "commentId"}, map[string]any{
			"owner":     ownerProp,
			"repo":      repoProp,
			"commentId": map[string]any{"type": []string{"integer", "string"}, "description": "Comment id."},
		}),
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var in commentArgs
			if err := decode(args, &in); err != nil {
				return nil, err
			}
			if err := in.validate(); err != nil {
				return nil, err
			}
			id := in.id()
			if id <= 0 {
				return nil, fmt.Errorf("missing commentId")
			}
			return g.rest(ctx, in.Owner, func(token string) (any, error) {
				if err := g.API.DeleteComment(ctx, token, in.Owner, in.Repo, id); err != nil {
					return nil, err
				}
				return map[string]any{"deleted": true, "commentId": id}, nil
			})
		},
	)
}

func (g *GitHubTools) authURLTool() Tool {
	return NewFuncTool(
		"github_auth_url",
		"Get the GitHub authorization URL. Optionally name the GitHub user (e.g. the repo owner) to authorize as.",
		objectSchema(nil, map[string]any{
			"username": stringProp("GitHub username to authorize."),
		}),
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var in struct {
				Username string `json:"username"`
			}
			if err := decode(args, &in); err != nil {
				return nil, err
			}
			if g.AuthURL == nil {
				return nil, fmt.Errorf("github authorization is not configured")
			}
			target := strings.TrimSpace(in.Username)
			if target == "" {
				target = IdentityFrom(ctx).SessionUserID
			}
			return g.AuthURL(target), nil
		},
	)
}
