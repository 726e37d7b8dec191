package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wallofshame/gitranker/internal/errors"
	"github.com/wallofshame/gitranker/internal/resilience"
)

// RESTClient issues authenticated GitHub REST calls with the single
// write-capable admin token. All judge-pipeline writes (forks, refs, PRs,
// comments) go through here.
type RESTClient struct {
	base       string
	token      string
	httpClient *http.Client
	retry      resilience.RetryConfig
}

// NewRESTClient creates a REST client for the given API base URL.
func NewRESTClient(base, token string) *RESTClient {
	return &RESTClient{
		base:  strings.TrimRight(base, "/"),
		token: token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry: resilience.DefaultRetryConfig(),
	}
}

// Repo is the subset of the repository payload the pipeline reads.
type Repo struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Fork          bool   `json:"fork"`
	DefaultBranch string `json:"default_branch"`
}

// PullRequest is the subset of the PR payload the pipeline reads.
type PullRequest struct {
	Number int    `json:"number"`
	State  string `json:"state"`
	Title  string `json:"title"`
}

// Comment is an issue comment on a pull request.
type Comment struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
	User struct {
		Login string `json:"login"`
	} `json:"user"`
	CreatedAt time.Time `json:"created_at"`
}

type commitEntry struct {
	SHA string `json:"sha"`
}

// do executes one REST call through the shared retry layer. path may be
// absolute (pagination links) or API-relative.
func (c *RESTClient) do(ctx context.Context, method, path string, params url.Values, payload interface{}) (*http.Response, error) {
	target := path
	if strings.HasPrefix(path, "/") {
		target = c.base + path
	}
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var bodyBytes []byte
	if payload != nil {
		var err error
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	return resilience.RetryHTTP(ctx, c.retry, func() (*http.Response, error) {
		var body io.Reader
		if bodyBytes != nil {
			body = bytes.NewReader(bodyBytes)
		}

		req, err := http.NewRequestWithContext(ctx, method, target, body)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("User-Agent", "Wall-of-Shame-Judge")
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, errors.NewTransientError("github request failed", err)
		}
		return resp, nil
	})
}

// readAndClose decodes the body into target and closes it. Used instead of
// defer in paginated loops to avoid leaking connections.
func readAndClose(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// readErrorAndClose turns a non-2xx response into an error, closing the body.
func readErrorAndClose(resp *http.Response) error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return errors.NewNotFoundError("resource")
	}
	return errors.NewExternalAPIError("github",
		fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 200)))
}

// AuthenticatedUser returns the login of the admin token's account.
func (c *RESTClient) AuthenticatedUser(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, "GET", "/user", nil, nil)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", readErrorAndClose(resp)
	}

	var user struct {
		Login string `json:"login"`
	}
	if err := readAndClose(resp, &user); err != nil {
		return "", fmt.Errorf("failed to decode user: %w", err)
	}
	return user.Login, nil
}

// GetRepo fetches a repository by full name ("owner/repo").
func (c *RESTClient) GetRepo(ctx context.Context, fullName string) (*Repo, error) {
	resp, err := c.do(ctx, "GET", "/repos/"+fullName, nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, readErrorAndClose(resp)
	}

	var repo Repo
	if err := readAndClose(resp, &repo); err != nil {
		return nil, fmt.Errorf("failed to decode repo: %w", err)
	}
	return &repo, nil
}

// CreateFork forks owner/repo into the authenticated account. GitHub answers
// 202 while the fork is created asynchronously; both 200 and 202 succeed.
func (c *RESTClient) CreateFork(ctx context.Context, owner, repo string) (*Repo, error) {
	resp, err := c.do(ctx, "POST", fmt.Sprintf("/repos/%s/%s/forks", owner, repo), nil, struct{}{})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, readErrorAndClose(resp)
	}

	var fork Repo
	if err := readAndClose(resp, &fork); err != nil {
		return nil, fmt.Errorf("failed to decode fork: %w", err)
	}
	return &fork, nil
}

// OldestCommitSHA walks the commit-list pagination of a branch to its last
// page and returns the root commit's SHA. The baseline branch is anchored
// there because GitHub refuses PRs between unrelated histories — a branch at
// the repo's own root commit shares history with the tip while still
// diffing the whole codebase as additions.
func (c *RESTClient) OldestCommitSHA(ctx context.Context, fullName, branch string) (string, error) {
	params := url.Values{}
	params.Set("sha", branch)
	params.Set("per_page", "1")

	resp, err := c.do(ctx, "GET", fmt.Sprintf("/repos/%s/commits", fullName), params, nil)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", readErrorAndClose(resp)
	}

	lastURL := parseLinkRel(resp.Header.Get("Link"), "last")

	var commits []commitEntry
	if err := readAndClose(resp, &commits); err != nil {
		return "", fmt.Errorf("failed to decode commits: %w", err)
	}

	if lastURL != "" {
		resp, err = c.do(ctx, "GET", lastURL, nil, nil)
		if err != nil {
			return "", err
		}
		if resp.StatusCode != http.StatusOK {
			return "", readErrorAndClose(resp)
		}
		if err := readAndClose(resp, &commits); err != nil {
			return "", fmt.Errorf("failed to decode commits: %w", err)
		}
	}

	if len(commits) == 0 {
		return "", errors.NewNotFoundError("commits")
	}
	return commits[len(commits)-1].SHA, nil
}

// EnsureRef creates branch at sha, force-updating it if the ref already
// exists (GitHub answers 422 for a duplicate ref).
func (c *RESTClient) EnsureRef(ctx context.Context, fullName, branch, sha string) error {
	resp, err := c.do(ctx, "POST", fmt.Sprintf("/repos/%s/git/refs", fullName), nil, map[string]string{
		"ref": "refs/heads/" + branch,
		"sha": sha,
	})
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnprocessableEntity {
		resp.Body.Close()
		resp, err = c.do(ctx, "PATCH", fmt.Sprintf("/repos/%s/git/refs/heads/%s", fullName, branch), nil, map[string]interface{}{
			"sha":   sha,
			"force": true,
		})
		if err != nil {
			return err
		}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return readErrorAndClose(resp)
	}
	resp.Body.Close()
	return nil
}

// ListOpenPRs lists open PRs from head into base on the given repository.
func (c *RESTClient) ListOpenPRs(ctx context.Context, fullName, head, base string) ([]PullRequest, error) {
	params := url.Values{}
	params.Set("head", head)
	params.Set("base", base)
	params.Set("state", "open")

	resp, err := c.do(ctx, "GET", fmt.Sprintf("/repos/%s/pulls", fullName), params, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, readErrorAndClose(resp)
	}

	var prs []PullRequest
	if err := readAndClose(resp, &prs); err != nil {
		return nil, fmt.Errorf("failed to decode pulls: %w", err)
	}
	return prs, nil
}

// CreatePR opens a pull request and returns its number.
func (c *RESTClient) CreatePR(ctx context.Context, fullName, title, head, base, body string) (int, error) {
	resp, err := c.do(ctx, "POST", fmt.Sprintf("/repos/%s/pulls", fullName), nil, map[string]string{
		"title": title,
		"head":  head,
		"base":  base,
		"body":  body,
	})
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return 0, readErrorAndClose(resp)
	}

	var pr PullRequest
	if err := readAndClose(resp, &pr); err != nil {
		return 0, fmt.Errorf("failed to decode pull: %w", err)
	}
	return pr.Number, nil
}

// CreateComment posts an issue comment on a pull request.
func (c *RESTClient) CreateComment(ctx context.Context, fullName string, number int, body string) error {
	resp, err := c.do(ctx, "POST", fmt.Sprintf("/repos/%s/issues/%d/comments", fullName, number), nil, map[string]string{
		"body": body,
	})
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return readErrorAndClose(resp)
	}
	resp.Body.Close()
	return nil
}

// ListCommentsSince lists issue comments created at or after since.
func (c *RESTClient) ListCommentsSince(ctx context.Context, fullName string, number int, since time.Time) ([]Comment, error) {
	params := url.Values{}
	params.Set("since", since.UTC().Format(time.RFC3339))

	resp, err := c.do(ctx, "GET", fmt.Sprintf("/repos/%s/issues/%d/comments", fullName, number), params, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, readErrorAndClose(resp)
	}

	var comments []Comment
	if err := readAndClose(resp, &comments); err != nil {
		return nil, fmt.Errorf("failed to decode comments: %w", err)
	}
	return comments, nil
}

// parseLinkRel extracts the URL for the given rel from a GitHub Link header.
// Format: <https://api.github.com/...?page=2>; rel="next", <...>; rel="last"
func parseLinkRel(header, rel string) string {
	if header == "" {
		return ""
	}
	needle := fmt.Sprintf(`rel="%s"`, rel)
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if strings.Contains(part, needle) {
			start := strings.Index(part, "<")
			end := strings.Index(part, ">")
			if start >= 0 && end > start {
				return part[start+1 : end]
			}
		}
	}
	return ""
}
