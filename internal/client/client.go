// Package client talks to a running EEG stress API.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"eeg-stress-api/internal/api"
	"eeg-stress-api/internal/common"
	"eeg-stress-api/internal/events"
	"eeg-stress-api/internal/storage"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Detail     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Detail)
}

type Client struct {
	base string
	rest *resty.Client
}

func New(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(2 * time.Minute)
	}
	return &Client{base: strings.TrimRight(base, "/"), rest: r}
}

// Analyze uploads one recording under the default "file" field.
func (c *Client) Analyze(ctx context.Context, fileName string, content io.Reader) (*api.AnalyzeResponse, error) {
	var out api.AnalyzeResponse
	var apiErr api.ErrorResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetFileReader(common.DefaultUploadFields[0], fileName, content).
		SetResult(&out).
		SetError(&apiErr).
		Post(c.base + "/analyze")
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", fileName, err)
	}
	if resp.IsError() {
		return nil, newAPIError(resp, apiErr)
	}
	return &out, nil
}

// AnalyzeFile uploads the file at path.
func (c *Client) AnalyzeFile(ctx context.Context, path string) (*api.AnalyzeResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return c.Analyze(ctx, filepath.Base(path), f)
}

// Health returns the health body. A 503 still decodes; callers inspect Status.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var out api.HealthResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&out).
		Get(c.base + "/health")
	if err != nil {
		return nil, fmt.Errorf("health: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusServiceUnavailable {
		return nil, &APIError{StatusCode: resp.StatusCode(), Detail: resp.String()}
	}
	return &out, nil
}

// History lists recent analyses, newest first.
func (c *Client) History(ctx context.Context, limit int) ([]storage.AnalysisRecord, error) {
	req := c.rest.R().SetContext(ctx)
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}

	var out api.HistoryResponse
	var apiErr api.ErrorResponse
	resp, err := req.SetResult(&out).SetError(&apiErr).Get(c.base + "/analyses")
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	if resp.IsError() {
		return nil, newAPIError(resp, apiErr)
	}
	return out.Analyses, nil
}

// Get fetches one analysis record. Unknown IDs return storage.ErrNotFound.
func (c *Client) Get(ctx context.Context, id string) (*storage.AnalysisRecord, error) {
	var out storage.AnalysisRecord
	var apiErr api.ErrorResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&out).
		SetError(&apiErr).
		Get(c.base + "/analyses/{id}")
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	if resp.IsError() {
		return nil, newAPIError(resp, apiErr)
	}
	return &out, nil
}

func newAPIError(resp *resty.Response, body api.ErrorResponse) *APIError {
	e := &APIError{StatusCode: resp.StatusCode(), Detail: body.Detail, Message: body.Message}
	if e.Detail == "" {
		e.Detail = strings.TrimSpace(resp.String())
	}
	return e
}

// StreamURL is the WebSocket address of the live event feed.
func (c *Client) StreamURL() string {
	u := c.base
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/analyses/stream"
}

// Watch streams live events into fn until ctx is done, the server closes the
// stream or fn returns an error.
func (c *Client) Watch(ctx context.Context, fn func(events.Event) error) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.StreamURL(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	// Unblock ReadJSON when the caller gives up.
	stop := context.AfterFunc(ctx, func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		var ev events.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Msg("event stream closed by server")
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return fmt.Errorf("stream closed: %d %s", closeErr.Code, closeErr.Text)
			}
			return fmt.Errorf("read message failed: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}
