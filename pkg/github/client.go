// Package github is a minimal client for the GitHub-style REST API used by
// the scan pipeline: recursive tree fetch, content fetch, and rate-limit
// query. Callers are expected to gate every call through the rate-limit
// governor; the client itself only classifies failures.
package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	scanerrors "github.com/codepulse/codepulse/internal/errors"
)

const defaultBaseURL = "https://api.github.com"

// ClientConfig holds configuration for the API client.
type ClientConfig struct {
	// Token is the optional bearer token. Empty means unauthenticated.
	Token string
	// BaseURL overrides the API endpoint (tests, GitHub Enterprise).
	BaseURL string
	// Timeout applies per call. Defaults to 30s.
	Timeout time.Duration
}

// Client is a GitHub REST API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// NewClient creates a client. With a token configured, requests carry a
// bearer header via an oauth2 transport.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	var rt http.RoundTripper = newTransport()
	if cfg.Token != "" {
		rt = &oauth2.Transport{
			Base:   rt,
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}),
		}
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: rt,
			Timeout:   timeout,
		},
		token: cfg.Token,
	}
}

// Authenticated reports whether the client carries a token.
func (c *Client) Authenticated() bool {
	return c.token != ""
}

// GetTree fetches the recursive tree at ref, returning only blob entries.
// A 404 on "main" retries "master"; a second 404 looks up the repository's
// default branch and retries once with that.
func (c *Client) GetTree(ctx context.Context, owner, repo, ref string) ([]TreeEntry, error) {
	entries, err := c.fetchTree(ctx, owner, repo, ref)
	if err == nil || !scanerrors.IsNotFound(err) {
		return entries, err
	}

	if ref == "main" {
		log.Debug().Str("repo", owner+"/"+repo).Msg("Branch main not found, trying master")
		entries, err = c.fetchTree(ctx, owner, repo, "master")
		if err == nil || !scanerrors.IsNotFound(err) {
			return entries, err
		}
	}

	defaultBranch, dbErr := c.GetDefaultBranch(ctx, owner, repo)
	if dbErr != nil {
		return nil, err
	}
	if defaultBranch == ref || defaultBranch == "" {
		return nil, err
	}
	log.Debug().Str("repo", owner+"/"+repo).Str("branch", defaultBranch).Msg("Falling back to default branch")
	return c.fetchTree(ctx, owner, repo, defaultBranch)
}

func (c *Client) fetchTree(ctx context.Context, owner, repo, ref string) ([]TreeEntry, error) {
	path := fmt.Sprintf("/repos/%s/%s/git/trees/%s?recursive=1",
		url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(ref))

	var tr treeResponse
	if err := c.getJSON(ctx, "get_tree", owner+"/"+repo, path, &tr); err != nil {
		return nil, err
	}
	if tr.Truncated {
		log.Warn().Str("repo", owner+"/"+repo).Str("ref", ref).Msg("Tree response truncated by the API")
	}

	blobs := make([]TreeEntry, 0, len(tr.Tree))
	for _, e := range tr.Tree {
		if e.IsBlob() {
			blobs = append(blobs, e)
		}
	}
	return blobs, nil
}

// GetBlob fetches a file's content at ref and returns it as UTF-8 text.
// Binary or undecodable content yields empty text, never an error.
func (c *Client) GetBlob(ctx context.Context, owner, repo, ref, filePath string) (string, error) {
	apiPath := fmt.Sprintf("/repos/%s/%s/contents/%s?ref=%s",
		url.PathEscape(owner), url.PathEscape(repo), escapePath(filePath), url.QueryEscape(ref))

	var cr contentResponse
	if err := c.getJSON(ctx, "get_blob", owner+"/"+repo, apiPath, &cr); err != nil {
		return "", err
	}

	if cr.Encoding != "base64" {
		return cr.Content, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(cr.Content, "\n", ""))
	if err != nil {
		log.Debug().Str("path", filePath).Msg("Blob content not decodable, treating as binary")
		return "", nil
	}
	if !utf8.Valid(raw) {
		return "", nil
	}
	return string(raw), nil
}

// GetBlobStream fetches raw file content as a stream. Used for files above
// the streaming threshold so the body is never materialized whole. The
// caller must close the reader.
func (c *Client) GetBlobStream(ctx context.Context, owner, repo, ref, filePath string) (io.ReadCloser, error) {
	apiPath := fmt.Sprintf("/repos/%s/%s/contents/%s?ref=%s",
		url.PathEscape(owner), url.PathEscape(repo), escapePath(filePath), url.QueryEscape(ref))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiPath, nil)
	if err != nil {
		return nil, scanerrors.New(scanerrors.ErrorTypeFatal, "get_blob_stream", owner+"/"+repo, err)
	}
	req.Header.Set("Accept", "application/vnd.github.raw")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			return nil, scanerrors.WrapTimeout("get_blob_stream", owner+"/"+repo, err)
		}
		return nil, scanerrors.New(scanerrors.ErrorTypeTransient, "get_blob_stream", owner+"/"+repo, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		return nil, c.classify("get_blob_stream", owner+"/"+repo, resp, body)
	}
	return resp.Body, nil
}

// GetDefaultBranch looks up the repository's default branch.
func (c *Client) GetDefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	path := fmt.Sprintf("/repos/%s/%s", url.PathEscape(owner), url.PathEscape(repo))
	var rr repoResponse
	if err := c.getJSON(ctx, "get_repository", owner+"/"+repo, path, &rr); err != nil {
		return "", err
	}
	return rr.DefaultBranch, nil
}

// GetRateLimit queries the core rate-limit state.
func (c *Client) GetRateLimit(ctx context.Context) (RateLimit, error) {
	var rl rateLimitResponse
	if err := c.getJSON(ctx, "get_rate_limit", "", "/rate_limit", &rl); err != nil {
		return RateLimit{}, err
	}
	return RateLimit{
		Remaining: rl.Resources.Core.Remaining,
		ResetAt:   time.Unix(rl.Resources.Core.Reset, 0),
	}, nil
}

func (c *Client) getJSON(ctx context.Context, op, repo, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return scanerrors.New(scanerrors.ErrorTypeFatal, op, repo, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			return scanerrors.WrapTimeout(op, repo, err)
		}
		return scanerrors.New(scanerrors.ErrorTypeTransient, op, repo, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return scanerrors.New(scanerrors.ErrorTypeTransient, op, repo, err)
	}

	if resp.StatusCode != http.StatusOK {
		return c.classify(op, repo, resp, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return scanerrors.New(scanerrors.ErrorTypeFatal, op, repo,
			fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

// classify maps an HTTP failure to the closed error taxonomy. A 403 is a
// quota error only when the rate-limit headers or body say so; otherwise it
// is an access failure.
func (c *Client) classify(op, repo string, resp *http.Response, body []byte) error {
	remaining := resp.Header.Get("X-RateLimit-Remaining")
	apiErr := fmt.Errorf("api error: status %d", resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return scanerrors.WrapForge(scanerrors.ErrorTypeNotFound, op, repo, apiErr, resp.StatusCode)
	case resp.StatusCode == http.StatusForbidden:
		if remaining == "0" || strings.Contains(strings.ToLower(string(body)), "rate limit") {
			return scanerrors.WrapForge(scanerrors.ErrorTypeQuota, op, repo, apiErr, resp.StatusCode)
		}
		return scanerrors.WrapForge(scanerrors.ErrorTypeAccess, op, repo, apiErr, resp.StatusCode)
	case resp.StatusCode == http.StatusUnauthorized:
		return scanerrors.WrapForge(scanerrors.ErrorTypeAccess, op, repo, apiErr, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return scanerrors.WrapForge(scanerrors.ErrorTypeTransient, op, repo, apiErr, resp.StatusCode)
	default:
		return scanerrors.WrapForge(scanerrors.ErrorTypeFatal, op, repo, apiErr, resp.StatusCode)
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// escapePath escapes each path segment while keeping separators.
func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
