// Package codehost implements a small GitHub REST client covering the
// four operations the pipeline needs: branch creation, pull request
// creation, commenting, and status checks.
package codehost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PRStatus is the aggregate state of a pull request's checks.
type PRStatus string

const (
	StatusPending PRStatus = "pending"
	StatusGreen   PRStatus = "green"
	StatusRed     PRStatus = "red"
)

// Client is the subset of GitHub operations the pipeline drives.
type Client interface {
	CreateBranch(ctx context.Context, repo, branch, fromRef string) error
	CreatePullRequest(ctx context.Context, repo, branch, title, body string) (prNumber int, err error)
	CommentPullRequest(ctx context.Context, repo string, prNumber int, body string) error
	CheckPRStatus(ctx context.Context, repo string, prNumber int) (PRStatus, error)
}

// GitHubClient is the production Client. Each call makes a single HTTP
// request: do does not retry on network or HTTP errors, unlike the role
// dispatcher. No third-party GitHub SDK is wired here: none
// appears anywhere in the reference pack, so a direct REST client over
// net/http is the grounded choice (see DESIGN.md).
type GitHubClient struct {
	token      string
	httpClient *http.Client
	baseURL    string
}

// NewGitHubClient builds a client authenticated with token.
func NewGitHubClient(token string) *GitHubClient {
	return &GitHubClient{
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://api.github.com",
	}
}

func (c *GitHubClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("codehost: encoding request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("codehost: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("codehost: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("codehost: reading response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("codehost: %s %s returned %d: %s", method, path, resp.StatusCode, string(raw))
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("codehost: decoding response: %w", err)
		}
	}
	return nil
}

// CreateBranch creates branch in repo, pointed at fromRef.
func (c *GitHubClient) CreateBranch(ctx context.Context, repo, branch, fromRef string) error {
	var ref struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/git/ref/heads/%s", repo, fromRef), nil, &ref); err != nil {
		return err
	}
	payload := map[string]string{
		"ref": "refs/heads/" + branch,
		"sha": ref.Object.SHA,
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/git/refs", repo), payload, nil)
}

// CreatePullRequest opens a PR from branch into main and returns its
// number. The base branch is always main; the repository's default
// branch is not looked up.
func (c *GitHubClient) CreatePullRequest(ctx context.Context, repo, branch, title, body string) (int, error) {
	payload := map[string]string{
		"title": title,
		"head":  branch,
		"base":  "main",
		"body":  body,
	}
	var pr struct {
		Number int `json:"number"`
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/pulls", repo), payload, &pr); err != nil {
		return 0, err
	}
	return pr.Number, nil
}

// CommentPullRequest posts an issue comment on a pull request.
func (c *GitHubClient) CommentPullRequest(ctx context.Context, repo string, prNumber int, body string) error {
	payload := map[string]string{"body": body}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/issues/%d/comments", repo, prNumber), payload, nil)
}

// CheckPRStatus aggregates a PR's combined commit status into a single
// PRStatus value.
func (c *GitHubClient) CheckPRStatus(ctx context.Context, repo string, prNumber int) (PRStatus, error) {
	var pr struct {
		Head struct {
			SHA string `json:"sha"`
		} `json:"head"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/pulls/%d", repo, prNumber), nil, &pr); err != nil {
		return "", err
	}

	var combined struct {
		State string `json:"state"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/commits/%s/status", repo, pr.Head.SHA), nil, &combined); err != nil {
		return "", err
	}

	switch combined.State {
	case "success":
		return StatusGreen, nil
	case "failure", "error":
		return StatusRed, nil
	default:
		return StatusPending, nil
	}
}
