package github

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

type User struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
}

type Issue struct {
	Number  int       `json:"number"`
	Title   string    `json:"title"`
	Body    string    `json:"body,omitempty"`
	State   string    `json:"state"`
	HTMLURL string    `json:"html_url"`
	User    User      `json:"user"`
	Updated time.Time `json:"updated_at"`
}

type Comment struct {
	ID      int64     `json:"id"`
	Body    string    `json:"body"`
	User    User      `json:"user"`
	HTMLURL string    `json:"html_url"`
	Created time.Time `json:"created_at"`
}

// IssueUpdate holds the mutable fields of an issue. Empty fields are left
// unchanged.
type IssueUpdate struct {
	State string `json:"state,omitempty"`
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

func (u IssueUpdate) IsEmpty() bool {
	return u.State == "" && u.Title == "" && u.Body == ""
}

type NewIssue struct {
	Title     string   `json:"title"`
	Body      string   `json:"body,omitempty"`
	Assignees []string `json:"assignees,omitempty"`
	Labels    []string `json:"labels,omitempty"`
}

// CurrentUser returns the account the token belongs to.
func (c *Client) CurrentUser(ctx context.Context, token string) (User, error) {
	var u User
	if err := c.do(ctx, token, http.MethodGet, "/user", nil, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

func (c *Client) UpdateIssue(ctx context.Context, token, owner, repo string, number int, update IssueUpdate) (Issue, error) {
	if update.IsEmpty() {
		return Issue{}, fmt.Errorf("github: nothing to update on issue #%d", number)
	}
	var issue Issue
	path := fmt.Sprintf("%s/issues/%d", repoPath(owner, repo), number)
	if err := c.do(ctx, token, http.MethodPatch, path, update, &issue); err != nil {
		return Issue{}, err
	}
	return issue, nil
}

func (c *Client) CreateIssue(ctx context.Context, token, owner, repo string, in NewIssue) (Issue, error) {
	if in.Title == "" {
		return Issue{}, fmt.Errorf("github: issue title is required")
	}
	var issue Issue
	if err := c.do(ctx, token, http.MethodPost, repoPath(owner, repo)+"/issues", in, &issue); err != nil {
		return Issue{}, err
	}
	return issue, nil
}

func (c *Client) ListComments(ctx context.Context, token, owner, repo string, number int) ([]Comment, error) {
	var comments []Comment
	path := fmt.Sprintf("%s/issues/%d/comments?per_page=100", repoPath(owner, repo), number)
	if err := c.do(ctx, token, http.MethodGet, path, nil, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

func (c *Client) DeleteComment(ctx context.Context, token, owner, repo string, commentID int64) error {
	path := fmt.Sprintf("%s/issues/comments/%d", repoPath(owner, repo), commentID)
	return c.do(ctx, token, http.MethodDelete, path, nil, nil)
}
