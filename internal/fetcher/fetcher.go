package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/pogonboskrupa/sumarija-sub000/internal/models"
)

// Session carries the credential and selection context needed to build
// request locators. It is passed explicitly so the caching layer stays free
// of module-level user state.
type Session struct {
	Username string
	Password string
	Year     int
}

// Client talks to the remote spreadsheet API. Every logical operation is a
// GET with a `path` query parameter selecting the report plus auxiliary
// parameters; the reply is JSON carrying either the payload or an
// {"error": ...} shape.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a client for the given API base URL.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Locator builds the full request URL for a report path under the given
// session. Extra parameters (entity IDs and the like) are merged in.
func (c *Client) Locator(sess Session, path string, extra url.Values) string {
	params := url.Values{}
	params.Set("path", path)
	params.Set("username", sess.Username)
	params.Set("password", sess.Password)
	if sess.Year != 0 {
		params.Set("year", strconv.Itoa(sess.Year))
	}
	for key, vals := range extra {
		for _, v := range vals {
			params.Add(key, v)
		}
	}
	return c.baseURL + "?" + params.Encode()
}

// Fetch performs the network call for a locator and returns the raw JSON
// payload. An undecodable body counts as a network failure; a decodable
// {"error": ...} body is returned as *models.UpstreamError so callers can
// propagate it without caching it.
func (c *Client) Fetch(ctx context.Context, locator string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("response is not valid JSON")
	}

	if msg, ok := upstreamErrorMessage(body); ok {
		return body, &models.UpstreamError{Message: msg}
	}

	return body, nil
}

// upstreamErrorMessage detects the API's valid-but-negative error shape.
func upstreamErrorMessage(body []byte) (string, bool) {
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", false
	}
	return envelope.Error, envelope.Error != ""
}
