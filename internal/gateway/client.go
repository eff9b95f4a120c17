package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jdores/selfserve-egressip/internal/pkg/httpretry"
	"github.com/jdores/selfserve-egressip/internal/pkg/logger"
	"github.com/jdores/selfserve-egressip/internal/pkg/metrics"
)

// notFoundMarker is how the API reports removal of an item that is not on
// the list. It comes back as HTTP 400.
const notFoundMarker = "not found in list"

// Client talks to the Zero Trust Gateway lists API.
type Client struct {
	baseURL    string
	accountID  string
	apiToken   string
	maxPages   int
	httpClient httpretry.HTTPDoer
	metrics    *metrics.Metrics
}

// NewClient creates a lists API client.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &Client{
		baseURL:   baseURL,
		accountID: cfg.AccountID,
		apiToken:  cfg.APIToken,
		maxPages:  maxPages,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: timeout,
		}, cfg.MaxRetries),
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// SetMetrics attaches request counters.
func (c *Client) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

func (c *Client) listURL(listID string) string {
	return fmt.Sprintf("%s/accounts/%s/gateway/lists/%s", c.baseURL, url.PathEscape(c.accountID), url.PathEscape(listID))
}

// doRequest performs an authenticated request and returns status and body.
// Transport failures are returned as errors; HTTP status is left to callers.
func (c *Client) doRequest(ctx context.Context, op, method, reqURL string, body interface{}) (int, []byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveUpstream(op, 0, time.Since(start))
		return 0, nil, fmt.Errorf("gateway %s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	c.metrics.ObserveUpstream(op, resp.StatusCode, time.Since(start))
	logger.Debug("gateway response", "op", op, "method", method, "path", req.URL.Path,
		"status", resp.StatusCode, "body", truncate(respBody, 500))

	return resp.StatusCode, respBody, nil
}

// AddToList appends email to the list. Any non-2xx is an *UpstreamError.
func (c *Client) AddToList(ctx context.Context, listID, email string) error {
	status, body, err := c.doRequest(ctx, "add", http.MethodPatch, c.listURL(listID),
		appendRequest{Append: []ListItem{{Value: email}}})
	if err != nil {
		return err
	}
	if !isSuccess(status) {
		return &UpstreamError{Op: "add", ListID: listID, StatusCode: status, Body: string(body)}
	}
	return nil
}

// RemoveFromList removes email from the list. A 400 whose body says the item
// is not on the list counts as success: the address is already absent.
func (c *Client) RemoveFromList(ctx context.Context, listID, email string) error {
	status, body, err := c.doRequest(ctx, "remove", http.MethodPatch, c.listURL(listID),
		removeRequest{Remove: []string{email}})
	if err != nil {
		return err
	}
	if isSuccess(status) {
		return nil
	}
	if status == http.StatusBadRequest && strings.Contains(string(body), notFoundMarker) {
		logger.Debug("gateway remove: item not in list, treating as no-op", "list_id", listID, "email", email)
		return nil
	}
	return &UpstreamError{Op: "remove", ListID: listID, StatusCode: status, Body: string(body)}
}

// ListItems returns every value on the list, fetching pages 1..total_pages
// strictly in order. A missing total_pages means one page. The first failing
// page aborts the call and discards what was read.
func (c *Client) ListItems(ctx context.Context, listID string) ([]string, error) {
	emails := []string{}
	for page := 1; ; page++ {
		if page > c.maxPages {
			return nil, fmt.Errorf("list %s: %w (%d)", listID, ErrPageLimit, c.maxPages)
		}

		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		reqURL := c.listURL(listID) + "/items?" + params.Encode()

		status, body, err := c.doRequest(ctx, "list", http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		if !isSuccess(status) {
			return nil, &UpstreamError{Op: "list", ListID: listID, StatusCode: status, Body: string(body)}
		}

		var response ListItemsResponse
		if err := json.Unmarshal(body, &response); err != nil {
			return nil, fmt.Errorf("failed to parse list %s page %d: %w", listID, page, err)
		}
		for _, item := range response.Result {
			emails = append(emails, item.Value)
		}

		if page >= totalPages(response.ResultInfo) {
			return emails, nil
		}
	}
}

func totalPages(info *ResultInfo) int {
	if info == nil || info.TotalPages == nil || *info.TotalPages < 1 {
		return 1
	}
	return *info.TotalPages
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
