// Concrete RemoteAPI implementation over the wiki's REST surface: a
// functional-options constructor and a rate.Limiter token acquired before
// every call. Credential values are never logged.
package remote

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

	"golang.org/x/time/rate"
)

// Client is the concrete net/http-backed RemoteAPI.
type Client struct {
	baseURL   string
	user      string
	token     string
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// ClientOption configures a Client at construction time.
type ClientOption func(*Client)

// WithRateLimit sets the steady per-second request pacer (distinct from
// RetryShell's escalating backoff, see internal/retry).
func WithRateLimit(requestsPerSecond float64) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
}

// WithHTTPClient overrides the underlying *http.Client, for tests.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// New constructs a Client against baseURL, authenticating with user/token.
func New(baseURL, user, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   baseURL,
		user:      user,
		token:     token,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(5), 1),
		userAgent: "confluence-sync/1",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) wait(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

// classify turns a transport-level failure or HTTP status into the
// package's error taxonomy.
func classify(endpoint string, resp *http.Response, err error) error {
	if err != nil {
		return &NetworkError{Endpoint: endpoint, Cause: err.Error()}
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthFailure{Endpoint: endpoint}
	case http.StatusNotFound:
		return &PageNotFound{}
	case http.StatusConflict:
		return &VersionConflict{}
	case http.StatusTooManyRequests:
		hint := 0
		if h := resp.Header.Get("Retry-After"); h != "" {
			fmt.Sscanf(h, "%d", &hint)
		}
		return &RateLimit{RetryHintSeconds: hint}
	default:
		return &NetworkError{Endpoint: endpoint, Cause: resp.Status}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, nil, err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.user, c.token)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, &NetworkError{Endpoint: path, Cause: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, fmt.Errorf("read response body: %w", err)
	}
	if classErr := classify(path, resp, nil); classErr != nil {
		return resp, data, classErr
	}
	return resp, data, nil
}

type wirePage struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Format   string `json:"format"`
	Version  int    `json:"version"`
	ParentID string `json:"parentId"`
	LastMod  int64  `json:"lastModified"`
}

// GetPage fetches a page by id in the requested format.
func (c *Client) GetPage(ctx context.Context, id string, format PageFormat) (*Page, error) {
	formatParam := "storage"
	if format == FormatRich {
		formatParam = "rich"
	}
	_, data, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/rest/api/content/%s?format=%s", id, formatParam), nil)
	if err != nil {
		if _, ok := err.(*PageNotFound); ok {
			return nil, &PageNotFound{PageID: id}
		}
		return nil, err
	}
	var w wirePage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode page %s: %w", id, err)
	}
	return &Page{
		PageID: w.ID, Title: w.Title, Body: w.Body, Format: format,
		Version: w.Version, ParentID: w.ParentID, LastMod: w.LastMod,
	}, nil
}

type wireSearchResult struct {
	Results []struct {
		ID      string `json:"id"`
		Title   string `json:"title"`
		Version struct {
			When int64 `json:"when"`
		} `json:"version"`
		Ancestors []struct {
			ID string `json:"id"`
		} `json:"ancestors"`
		Space struct {
			Key string `json:"key"`
		} `json:"space"`
	} `json:"results"`
	Links struct {
		Next string `json:"next"`
	} `json:"_links"`
}

// SearchByQuery runs one CQL-style query, internally paginating until the
// remote signals no further pages; callers consume the full stream.
func (c *Client) SearchByQuery(ctx context.Context, query string, expandFields []string, pageSize int) ([]PageSummary, error) {
	var all []PageSummary
	params := url.Values{}
	params.Set("cql", query)
	params.Set("limit", fmt.Sprintf("%d", pageSize))
	if len(expandFields) > 0 {
		params.Set("expand", strings.Join(expandFields, ","))
	}
	path := "/rest/api/content/search?" + params.Encode()
	for path != "" {
		_, data, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		var w wireSearchResult
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode search results: %w", err)
		}
		for _, r := range w.Results {
			chain := make([]string, len(r.Ancestors))
			for i, a := range r.Ancestors {
				chain[i] = a.ID
			}
			all = append(all, PageSummary{
				PageID:        r.ID,
				Title:         r.Title,
				LastModified:  r.Version.When,
				AncestorChain: chain,
				SpaceKey:      r.Space.Key,
			})
		}
		path = w.Links.Next
	}
	return all, nil
}

// CreatePage creates a new page under parentID.
func (c *Client) CreatePage(ctx context.Context, space, title, body, parentID string) (*PageRef, error) {
	req := map[string]any{"space": space, "title": title, "body": body, "parentId": parentID}
	_, data, err := c.do(ctx, http.MethodPost, "/rest/api/content", req)
	if err != nil {
		return nil, err
	}
	var w wirePage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode created page: %w", err)
	}
	return &PageRef{PageID: w.ID, Version: w.Version}, nil
}

// UpdatePage overwrites title/body, subject to optimistic-concurrency
// version checking (VersionConflict on mismatch).
func (c *Client) UpdatePage(ctx context.Context, id, title, body string, version int) (*PageRef, error) {
	req := map[string]any{"title": title, "body": body, "version": version + 1}
	_, data, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/rest/api/content/%s", id), req)
	if err != nil {
		if vc, ok := err.(*VersionConflict); ok {
			vc.PageID, vc.Expected = id, version
			return nil, vc
		}
		return nil, err
	}
	var w wirePage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode updated page: %w", err)
	}
	return &PageRef{PageID: w.ID, Version: w.Version}, nil
}

// UpdateParent reparents a page.
func (c *Client) UpdateParent(ctx context.Context, id, newParentID string, version int) (*PageRef, error) {
	req := map[string]any{"parentId": newParentID, "version": version + 1}
	_, data, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/rest/api/content/%s/move", id), req)
	if err != nil {
		if vc, ok := err.(*VersionConflict); ok {
			vc.PageID, vc.Expected = id, version
			return nil, vc
		}
		return nil, err
	}
	var w wirePage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode moved page: %w", err)
	}
	return &PageRef{PageID: w.ID, Version: w.Version}, nil
}

// DeletePage deletes (trashes) a page by id.
func (c *Client) DeletePage(ctx context.Context, id string) error {
	_, _, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/rest/api/content/%s", id), nil)
	if err != nil {
		if _, ok := err.(*PageNotFound); ok {
			return nil // already gone: delete is idempotent
		}
		return err
	}
	return nil
}
