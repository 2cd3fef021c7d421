// Package client talks to a running ekaya-analyst server over HTTP.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-analyst/pkg/models"
)

// maxFrameSize bounds one SSE line. Complete frames carry the capped table rows.
const maxFrameSize = 16 << 20

// ErrNoTerminalEvent is returned when a stream closes before a complete or
// error frame arrived.
var ErrNoTerminalEvent = errors.New("stream ended without a terminal event")

// Client calls the analyst HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the server at baseURL. A nil httpClient uses one
// without a timeout, since analysis streams are bounded server side.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// Analyze posts the question and calls onEvent for every frame in order. It
// returns the terminal event, which is also passed to onEvent.
func (c *Client) Analyze(ctx context.Context, q models.Question, onEvent func(models.StreamEvent)) (models.StreamEvent, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("encode question: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post analyze: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	return ReadStream(resp.Body, onEvent)
}

// ReadStream parses SSE frames from r until the terminal event.
func ReadStream(r io.Reader, onEvent func(models.StreamEvent)) (models.StreamEvent, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			if payload, ok := strings.CutPrefix(line, "data:"); ok {
				if data.Len() > 0 {
					data.WriteByte('\n')
				}
				data.WriteString(strings.TrimPrefix(payload, " "))
			}
			continue
		}
		if data.Len() == 0 {
			continue
		}

		event, err := models.ParseStreamEvent([]byte(data.String()))
		data.Reset()
		if err != nil {
			return nil, err
		}
		if onEvent != nil {
			onEvent(event)
		}
		if event.Terminal() {
			return event, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	return nil, ErrNoTerminalEvent
}

// Stats returns per-table row counts.
func (c *Client) Stats(ctx context.Context) (map[string]int64, error) {
	var stats map[string]int64
	if err := c.getJSON(ctx, "/api/stats", &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// Dataset is one entry of the datasets-info response.
type Dataset struct {
	Name          string   `json:"name" yaml:"name"`
	Rows          int64    `json:"rows" yaml:"rows"`
	Columns       int      `json:"columns" yaml:"columns"`
	SampleColumns []string `json:"sample_columns" yaml:"sample_columns"`
}

// DatasetsInfo mirrors GET /api/datasets-info.
type DatasetsInfo struct {
	Datasets  []Dataset `json:"datasets" yaml:"datasets"`
	TotalRows int64     `json:"totalRows" yaml:"total_rows"`
	Status    string    `json:"status" yaml:"status"`
	Backend   string    `json:"backend" yaml:"backend"`
}

// Datasets returns the loaded tables.
func (c *Client) Datasets(ctx context.Context) (*DatasetsInfo, error) {
	var info DatasetsInfo
	if err := c.getJSON(ctx, "/api/datasets-info", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s: %s", e.Status, e.Code, e.Message)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&body); err == nil {
		apiErr.Code = body.Error
		apiErr.Message = body.Message
	}
	return apiErr
}
