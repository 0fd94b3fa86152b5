// Package api is the REST client for the AI Office service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adamavenir/aioffice/internal/apperr"
	"github.com/adamavenir/aioffice/internal/metrics"
)

type errorPayload struct {
	Detail  json.RawMessage `json:"detail"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// Client talks to the AI Office REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient constructs a client for baseURL.
func NewClient(baseURL, token string) (*Client, error) {
	normalized, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: normalized,
		token:   token,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Token returns the bearer token, if any.
func (c *Client) Token() string { return c.token }

// NormalizeBaseURL trims the base URL and ensures it has a scheme.
func NormalizeBaseURL(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("server url cannot be empty")
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("server url must include scheme and host (http://host:port)")
	}
	return strings.TrimRight(value, "/"), nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, reqBody any, respBody any) error {
	var body io.Reader
	contentType := ""
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return apperr.Validation(opName(method, path), err.Error())
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, query, body, contentType, respBody)
}

// upload posts a single-file multipart form.
func (c *Client) upload(ctx context.Context, path, field, filename string, r io.Reader, fields map[string]string, respBody any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return apperr.Validation(opName(http.MethodPost, path), err.Error())
		}
	}
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		return apperr.Validation(opName(http.MethodPost, path), err.Error())
	}
	if _, err := io.Copy(part, r); err != nil {
		return apperr.Validation(opName(http.MethodPost, path), fmt.Sprintf("read %s: %v", filename, err))
	}
	if err := w.Close(); err != nil {
		return apperr.Validation(opName(http.MethodPost, path), err.Error())
	}
	return c.do(ctx, http.MethodPost, path, nil, &buf, w.FormDataContentType(), respBody)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, respBody any) error {
	op := opName(method, path)
	endpoint, err := c.buildURL(path, query)
	if err != nil {
		return apperr.Validation(op, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return apperr.Validation(op, err.Error())
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordRequest(ctx, method, 0, time.Since(start))
		return apperr.Network(op, err)
	}
	defer resp.Body.Close()
	metrics.RecordRequest(ctx, method, resp.StatusCode, time.Since(start))

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Network(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.Server(op, resp.StatusCode, errorDetail(respData))
	}

	if respBody == nil || len(bytes.TrimSpace(respData)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respData, respBody); err != nil {
		return apperr.Server(op, resp.StatusCode, fmt.Sprintf("decode response: %v", err))
	}
	return nil
}

// errorDetail extracts the server-provided detail from an error body.
func errorDetail(data []byte) string {
	var payload errorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		text := strings.TrimSpace(string(data))
		if strings.HasPrefix(text, "<") {
			return ""
		}
		return text
	}
	if len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			return s
		}
		// FastAPI validation errors arrive as a list of {msg}.
		var items []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(payload.Detail, &items); err == nil {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				if it.Msg != "" {
					msgs = append(msgs, it.Msg)
				}
			}
			return strings.Join(msgs, "; ")
		}
		return string(payload.Detail)
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}

func (c *Client) buildURL(path string, query url.Values) (string, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	endpoint := base.ResolveReference(ref)
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}
	return endpoint.String(), nil
}

func opName(method, path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return method + " " + path
}

func seg(s string) string { return url.PathEscape(s) }

func limitQuery(limit int) url.Values {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	return q
}
