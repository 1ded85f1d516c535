package budget

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// RESTStore talks to a path-addressed JSON document service over HTTP:
// GET {base}/{path}.json reads a document, PATCH {base}/{path}.json merges
// fields into it. Every request carries a bounded timeout so a slow remote
// can delay, but never wedge, the poll loop.
type RESTStore struct {
	base   string
	token  string
	client *http.Client
	logger *slog.Logger
}

// NewRESTStore creates a store client for the given base URL. A zero timeout
// defaults to 10 seconds.
func NewRESTStore(baseURL, authToken string, timeout time.Duration, logger *slog.Logger) *RESTStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RESTStore{
		base:   strings.TrimRight(baseURL, "/"),
		token:  authToken,
		client: &http.Client{Timeout: timeout},
		logger: logger.With("component", "budget.RESTStore"),
	}
}

func (s *RESTStore) url(path string) string {
	return s.base + "/" + strings.Trim(path, "/") + ".json"
}

func (s *RESTStore) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	return s.client.Do(req)
}

// Get fetches the document at path. A 404, or a JSON null body, maps to
// ErrNotFound.
func (s *RESTStore) Get(ctx context.Context, path string) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url(path), nil)
	if err != nil {
		return nil, fmt.Errorf("build get request for %s: %w", path, err)
	}

	resp, err := s.do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("get %s: remote returned %d", path, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("get %s: read body: %w", path, err)
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("get %s: decode body: %w", path, err)
	}
	if doc == nil {
		return nil, ErrNotFound
	}
	return doc, nil
}

// Update merges fields into the document at path.
func (s *RESTStore) Update(ctx context.Context, path string, fields map[string]any) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode update for %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, s.url(path), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build update request for %s: %w", path, err)
	}

	resp, err := s.do(req)
	if err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("update %s: remote returned %d", path, resp.StatusCode)
	}
	return nil
}
