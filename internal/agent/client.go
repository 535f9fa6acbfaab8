package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// Stream events are JSON objects, one per SSE data line. Agent responses
// can carry long text parts, so give the scanner generous headroom.
const maxStreamEventSize = 1 << 20

var (
	errEngineLookup   = errors.New("agent engine lookup failed")
	errEmptySessionID = errors.New("create_session returned no session id")
)

// Client talks to a deployed Agent Engine over its REST surface. Session
// management and queries are class-method invocations on the engine:
// create_session and delete_session via :query, stream_query via
// :streamQuery with SSE framing.
type Client struct {
	httpClient *http.Client
	baseURL    string
	engine     string
	logger     *slog.Logger
}

// ClientConfig holds construction parameters for Client.
type ClientConfig struct {
	ProjectID string
	Location  string
	AgentID   string

	// BaseURL overrides the regional endpoint, for tests.
	BaseURL string
	// HTTPClient overrides the ADC-authenticated client, for tests.
	HTTPClient *http.Client
	// LookupTimeout bounds the startup engine lookup. Defaults to 10s.
	LookupTimeout time.Duration
}

// NewClient builds a Client and verifies the configured engine exists, so
// bad configuration fails at startup instead of on the first message.
func NewClient(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1", cfg.Location)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		ts, err := google.DefaultTokenSource(ctx, cloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("resolve application default credentials: %w", err)
		}
		httpClient = oauth2.NewClient(ctx, ts)
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		engine:     engineName(cfg.ProjectID, cfg.Location, cfg.AgentID),
		logger:     logger,
	}

	timeout := cfg.LookupTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	lookupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.lookupEngine(lookupCtx); err != nil {
		return nil, fmt.Errorf("agent engine %s: %w", c.engine, err)
	}

	logger.Info("Connected to agent engine", "engine", c.engine)
	return c, nil
}

// engineName accepts either a bare reasoning-engine ID or a full resource
// name, matching what the Python SDK allows.
func engineName(projectID, location, agentID string) string {
	if strings.HasPrefix(agentID, "projects/") {
		return agentID
	}
	return fmt.Sprintf("projects/%s/locations/%s/reasoningEngines/%s", projectID, location, agentID)
}

// EngineName returns the fully qualified engine resource name.
func (c *Client) EngineName() string {
	return c.engine
}

func (c *Client) lookupEngine(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+c.engine, nil)
	if err != nil {
		return fmt.Errorf("build lookup request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errEngineLookup, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s", errEngineLookup, readAPIError(resp))
	}
	return nil
}

// CreateSession requests a new session scoped to userID.
func (c *Client) CreateSession(ctx context.Context, userID string) (string, error) {
	out, err := c.query(ctx, "create_session", map[string]any{
		"user_id": userID,
	})
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(out, &sess); err != nil {
		return "", fmt.Errorf("decode create_session output: %w", err)
	}
	if sess.ID == "" {
		return "", errEmptySessionID
	}
	return sess.ID, nil
}

// DeleteSession tears down a remote session.
func (c *Client) DeleteSession(ctx context.Context, userID, sessionID string) error {
	_, err := c.query(ctx, "delete_session", map[string]any{
		"user_id":    userID,
		"session_id": sessionID,
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// StreamQuery sends the user's message within an existing session. The
// returned sequence is lazy: the request is issued when iteration starts,
// and stopping early cancels the read.
func (c *Client) StreamQuery(ctx context.Context, userID, sessionID, message string) iter.Seq2[StreamEvent, error] {
	return func(yield func(StreamEvent, error) bool) {
		body, err := json.Marshal(queryRequest{
			ClassMethod: "stream_query",
			Input: map[string]any{
				"user_id":    userID,
				"session_id": sessionID,
				"message":    message,
			},
		})
		if err != nil {
			yield(StreamEvent{}, fmt.Errorf("encode stream_query request: %w", err))
			return
		}

		url := c.baseURL + "/" + c.engine + ":streamQuery?alt=sse"
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			yield(StreamEvent{}, fmt.Errorf("build stream_query request: %w", err))
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			yield(StreamEvent{}, fmt.Errorf("stream query: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			yield(StreamEvent{}, fmt.Errorf("stream query: %s", readAPIError(resp)))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxStreamEventSize)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if line == "" {
				continue
			}

			var ev StreamEvent
			if err := json.Unmarshal([]byte(line), &ev); err != nil {
				yield(StreamEvent{}, fmt.Errorf("decode stream event: %w", err))
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(StreamEvent{}, fmt.Errorf("read stream: %w", err))
		}
	}
}

// query invokes a non-streaming class method on the engine and returns the
// raw "output" field of the response.
func (c *Client) query(ctx context.Context, classMethod string, input map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(queryRequest{ClassMethod: classMethod, Input: input})
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", classMethod, err)
	}

	url := c.baseURL + "/" + c.engine + ":query"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", classMethod, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", classMethod, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %s", classMethod, readAPIError(resp))
	}

	var qr queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", classMethod, err)
	}
	return qr.Output, nil
}

type queryRequest struct {
	ClassMethod string         `json:"classMethod"`
	Input       map[string]any `json:"input"`
}

type queryResponse struct {
	Output json.RawMessage `json:"output"`
}

// readAPIError extracts a short error description from a non-200 response.
func readAPIError(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	msg := strings.TrimSpace(string(b))
	if msg == "" {
		return resp.Status
	}
	return resp.Status + ": " + msg
}
