package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestUpdateIssueSendsBearerAndPatch(t *testing.T) {
	var gotAuth, gotMethod, gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotMethod = r.Method
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"number":7,"title":"t","state":"closed"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	issue, err := c.UpdateIssue(context.Background(), "tok", "octo", "hello", 7, IssueUpdate{State: "closed"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotMethod != http.MethodPatch || gotPath != "/repos/octo/hello/issues/7" {
		t.Fatalf("unexpected request %s %s", gotMethod, gotPath)
	}
	if gotBody["state"] != "closed" {
		t.Fatalf("unexpected body %v", gotBody)
	}
	if _, ok := gotBody["title"]; ok {
		t.Fatal("empty fields must be omitted")
	}
	if issue.Number != 7 || issue.State != "closed" {
		t.Fatalf("unexpected issue %+v", issue)
	}
}

func TestNon2xxCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found","documentation_url":"https://docs"}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL).DeleteComment(context.Background(), "tok", "octo", "hello", 99)
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	apiErr := err.(*APIError)
	if apiErr.Message != "Not Found" || !strings.Contains(apiErr.Body, "documentation_url") {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestNonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("bad credentials"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).CurrentUser(context.Background(), "tok")
	if !IsUnauthorized(err) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if !strings.Contains(err.Error(), "bad credentials") {
		t.Fatalf("error should carry body: %v", err)
	}
}

func TestRequiresToken(t *testing.T) {
	if _, err := NewClient("").ListComments(context.Background(), "", "o", "r", 1); err == nil {
		t.Fatal("expected error without token")
	}
}

func TestUpdateIssueRejectsEmptyUpdate(t *testing.T) {
	if _, err := NewClient("").UpdateIssue(context.Background(), "tok", "o", "r", 1, IssueUpdate{}); err == nil {
		t.Fatal("expected error for empty update")
	}
}
