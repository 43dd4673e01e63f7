package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmelnik/lumen/pkg/logger"
)

// ErrUpstream wraps an error record explicitly sent by the server.
var ErrUpstream = errors.New("upstream error")

// Client talks to the generation API routes
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new client for the given base URL
func NewClient(baseURL string) *Client {
	return NewClientWithTimeout(baseURL, 5*time.Minute)
}

// NewClientWithTimeout creates a new client with a custom request timeout
func NewClientWithTimeout(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Stream opens a streaming generation request against path and returns a
// channel of decoded events. The channel is closed when the stream ends for
// any reason; cancellation of ctx aborts the underlying request.
func (c *Client) Stream(ctx context.Context, path, prompt string) (<-chan Event, error) {
	reqBody, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}

	events := make(chan Event, 100) // Buffered for bursty streams
	go c.readStream(ctx, resp.Body, events)

	return events, nil
}

// readStream decodes the newline-delimited JSON body into events. The
// scanner buffers a trailing partial line across network chunks, so only
// complete lines are ever parsed.
func (c *Client) readStream(ctx context.Context, body io.ReadCloser, events chan<- Event) {
	defer close(events)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			events <- Event{Kind: EventError, Err: ctx.Err()}
			return
		default:
		}

		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			// A malformed line is not fatal to the stream.
			logger.Warn("skipping malformed stream line: %v", err)
			continue
		}

		switch {
		case rec.Error != nil:
			events <- Event{Kind: EventError, Err: fmt.Errorf("%w: %s", ErrUpstream, *rec.Error)}
			return
		case rec.Done:
			events <- Event{Kind: EventDone}
			return
		case rec.GroundingMetadata != nil:
			events <- Event{Kind: EventGrounding, Grounding: rec.GroundingMetadata}
		case rec.Delta != nil:
			events <- Event{Kind: EventDelta, Delta: *rec.Delta}
		default:
			logger.Warn("skipping stream line with no recognized field")
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		events <- Event{Kind: EventError, Err: fmt.Errorf("stream read failed: %w", err)}
	}
}

// statusError derives a best-effort error from a non-2xx response.
func statusError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
	if err != nil || len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	var errorResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &errorResp) == nil && errorResp.Error != "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, errorResp.Error)
	}

	return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(bytes.TrimSpace(body)))
}

// doJSON posts a JSON payload and decodes a JSON response into out.
func (c *Client) doJSON(ctx context.Context, path string, payload, out any) error {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
