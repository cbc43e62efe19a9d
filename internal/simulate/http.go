package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/anchordrift/internal/adapters/repository"
	"github.com/okian/anchordrift/internal/domain/model"
	"github.com/okian/anchordrift/internal/domain/types"
	"github.com/okian/anchordrift/pkg/logger"
)

const (
	maxRetries    = 8
	retryBackoff  = 25 * time.Millisecond
	pollInterval  = 20 * time.Millisecond
	streamDrainMS = 200
)

// ErrUnexpectedStatus is returned when the service answers with a status the
// simulator does not handle.
var ErrUnexpectedStatus = errors.New("unexpected status")

// HTTPClient wraps http.Client with the service base URL.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var e types.ErrorResponse
		_ = json.Unmarshal(data, &e)
		return resp.StatusCode, fmt.Errorf("%w: %s %s: %d %s %s",
			ErrUnexpectedStatus, method, path, resp.StatusCode, e.Code, e.Message)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// post retries while the service reports backpressure.
func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	for attempt := 1; ; attempt++ {
		status, err := c.do(ctx, http.MethodPost, path, body, out)
		if status != http.StatusTooManyRequests || attempt >= maxRetries {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
}

// RunRemote creates a session on a running service, posts the walk in frame
// order and collects the decisions the service took.
func RunRemote(ctx context.Context, cfg *Config, frames []Frame) (*Report, error) {
	log := logger.Get().Named("simulate")
	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	if _, err := client.do(ctx, http.MethodGet, "/healthz", nil, nil); err != nil {
		return nil, fmt.Errorf("service not healthy: %w", err)
	}

	var info repository.Info
	if err := client.post(ctx, "/sessions", types.CreateSessionRequest{SessionID: cfg.SessionID}, &info); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	sessionPath := "/sessions/" + url.PathEscape(info.ID)
	log.Info(ctx, "session created", logger.String("session_id", info.ID))

	var (
		streamed atomic.Int64
		watch    *websocket.Conn
		watchErr = make(chan error, 1)
	)
	if cfg.Watch {
		conn, err := dialStream(ctx, cfg.BaseURL, sessionPath+"/stream")
		if err != nil {
			return nil, fmt.Errorf("failed to open decision stream: %w", err)
		}
		watch = conn
		go func() {
			watchErr <- readStream(conn, &streamed)
		}()
	}

	start := time.Now()
	report := newReport("remote", frames)
	report.SessionID = info.ID

	// AR poses between two fixes go out as one batch so ordering against
	// the next fix holds.
	batch := make([]types.ARPoseRequest, 0, cfg.IndoorEvery)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		var ack types.BatchAck
		if err := client.post(ctx, sessionPath+"/ar-poses", batch, &ack); err != nil {
			return fmt.Errorf("failed to post ar poses: %w", err)
		}
		batch = batch[:0]
		return nil
	}
	for i := range frames {
		f := &frames[i]
		batch = append(batch, f.AR)
		if f.Indoor == nil {
			continue
		}
		if err := flush(); err != nil {
			return nil, err
		}
		var ack types.Ack
		if err := client.post(ctx, sessionPath+"/indoor-fixes", f.Indoor, &ack); err != nil {
			return nil, fmt.Errorf("failed to post indoor fix %s: %w", f.Indoor.ID, err)
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	if err := waitForDecisions(ctx, client, sessionPath, uint64(report.IndoorFixes), cfg.Timeout); err != nil {
		return nil, err
	}
	if err := collectDecisions(ctx, client, sessionPath, frames, report); err != nil {
		return nil, err
	}
	report.Duration = time.Since(start)

	if watch != nil {
		// Give in-flight stream frames a moment before hanging up.
		deadline := time.Now().Add(streamDrainMS * time.Millisecond)
		for streamed.Load() < int64(len(report.Steps)) && time.Now().Before(deadline) {
			time.Sleep(pollInterval)
		}
		_ = watch.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = watch.Close()
		<-watchErr
		report.Streamed = int(streamed.Load())
	}
	return report, nil
}

func waitForDecisions(ctx context.Context, client *HTTPClient, sessionPath string, want uint64, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		var info repository.Info
		if _, err := client.do(ctx, http.MethodGet, sessionPath, nil, &info); err != nil {
			return fmt.Errorf("failed to read session: %w", err)
		}
		if info.Decisions >= want {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for decisions: have %d, want %d", info.Decisions, want)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

type decisionsResponse struct {
	SessionID string           `json:"session_id"`
	Decisions []model.Decision `json:"decisions"`
}

// collectDecisions reads the decision history. When the service runs without
// a journal only the last decision is available.
func collectDecisions(ctx context.Context, client *HTTPClient, sessionPath string, frames []Frame, report *Report) error {
	index := make(map[string]int, report.IndoorFixes)
	for i := range frames {
		if frames[i].Indoor != nil {
			index[frames[i].Indoor.ID] = frames[i].Index
		}
	}

	var resp decisionsResponse
	path := sessionPath + "/decisions?limit=" + strconv.Itoa(report.IndoorFixes)
	status, err := client.do(ctx, http.MethodGet, path, nil, &resp)
	if status == http.StatusNotImplemented {
		var info repository.Info
		if _, err := client.do(ctx, http.MethodGet, sessionPath, nil, &info); err != nil {
			return fmt.Errorf("failed to read session: %w", err)
		}
		if info.Last != nil {
			resp.Decisions = []model.Decision{*info.Last}
		}
	} else if err != nil {
		return fmt.Errorf("failed to read decisions: %w", err)
	}

	// History is newest first.
	for i := len(resp.Decisions) - 1; i >= 0; i-- {
		d := resp.Decisions[i]
		report.add(Step{Frame: index[d.EventID], EventID: d.EventID, Evaluation: d.Evaluation})
	}
	return nil
}

func dialStream(ctx context.Context, baseURL, path string) (*websocket.Conn, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + path)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

func readStream(conn *websocket.Conn, n *atomic.Int64) error {
	for {
		var d model.Decision
		if err := conn.ReadJSON(&d); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		n.Add(1)
	}
}
