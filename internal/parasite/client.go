// Package parasite implements the agent side of the proposal protocol: an
// agent registers with a coordinator, sends infections (proposals) to other
// agents and reports decisions on the infections it received.
package parasite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/parasite-protocol/agent/internal/domain"
)

const (
	registerPath  = "/register-agent"
	infectionPath = "/inject-infection"
	respondPath   = "/respond-to-infection"

	// APIKeyHeader carries the session credential when attachment is on.
	APIKeyHeader    = "X-API-Key"
	applicationJSON = "application/json"

	// FailureMarker prefixes every diagnostic line about a failed call.
	FailureMarker = "✗ request failed"
)

const (
	DefaultGoal           = "Build autonomous AI agent"
	DefaultRequestTimeout = 10 * time.Second
)

// Options configures a Client. AgentID and APIURL are required.
type Options struct {
	AgentID string
	APIURL  string
	Goal    string

	// RequestTimeout bounds every call, including retries.
	RequestTimeout time.Duration

	// MaxRetries is the retry budget of the transport. Zero means a single
	// attempt per call.
	MaxRetries int

	// AttachCredential sends the session credential in the X-API-Key header
	// on infection and decision calls once the agent is registered.
	AttachCredential bool
}

// Client talks to the coordinator on behalf of one agent.
type Client struct {
	identity         domain.AgentIdentity
	baseURL          string
	timeout          time.Duration
	attachCredential bool

	mu     sync.RWMutex
	apiKey string

	http   *http.Client
	logger *slog.Logger
}

// NewClient validates opts and builds a Client. It does not contact the
// coordinator.
func NewClient(opts Options, logger *slog.Logger) (*Client, error) {
	agentID := strings.TrimSpace(opts.AgentID)
	if agentID == "" {
		return nil, domain.ErrConfig{Field: "agent id", Err: errors.New("must not be empty")}
	}

	baseURL, err := normalizeBaseURL(opts.APIURL)
	if err != nil {
		return nil, domain.ErrConfig{Field: "api url", Err: err}
	}

	if opts.MaxRetries < 0 {
		return nil, domain.ErrConfig{Field: "max retries", Err: fmt.Errorf("must not be negative, got %d", opts.MaxRetries)}
	}

	goal := opts.Goal
	if strings.TrimSpace(goal) == "" {
		goal = DefaultGoal
	}

	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	if logger == nil {
		logger = slog.Default()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.MaxRetries
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil // suppress default logging
	// Hand the last response back so status and body can be reported.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		identity:         domain.AgentIdentity{AgentID: agentID, Goal: goal},
		baseURL:          baseURL,
		timeout:          timeout,
		attachCredential: opts.AttachCredential,
		http:             retryClient.StandardClient(),
		logger:           logger.With("agent_id", agentID),
	}, nil
}

func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("missing host")
	}
	if u.RawQuery != "" || u.Fragment != "" || strings.ContainsAny(raw, "?#") {
		return "", errors.New("must not carry a query or fragment")
	}
	return strings.TrimRight(raw, "/"), nil
}

// Identity returns the agent identity the client was built with.
func (c *Client) Identity() domain.AgentIdentity {
	return c.identity
}

// Credential returns the session credential issued at registration.
func (c *Client) Credential() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey, c.apiKey != ""
}

// Register announces the agent to the coordinator and keeps the returned
// credential for the lifetime of the client.
func (c *Client) Register(ctx context.Context) Result {
	res := c.call(ctx, "register", registerPath, c.identity, false)
	if !res.OK() {
		return res
	}

	if key := res.APIKey(); key != "" {
		c.mu.Lock()
		c.apiKey = key
		c.mu.Unlock()
	} else {
		c.logger.Warn("registration response carried no api key")
	}

	c.logger.Info("parasite agent registered", "goal", c.identity.Goal)
	return res
}

// SendInfection proposes a change to the target agent.
func (c *Client) SendInfection(ctx context.Context, targetID, suggestion, reasoning string) Result {
	req := domain.InfectionRequest{
		AttackerID: c.identity.AgentID,
		TargetID:   targetID,
		Suggestion: suggestion,
		Reasoning:  reasoning,
	}

	res := c.call(ctx, "send infection", infectionPath, req, true)
	if res.OK() {
		c.logger.Info("infection sent", "target_id", targetID, "infection_id", res.InfectionID())
	}
	return res
}

// Respond reports the decision taken on an infection. Details are merged
// into the top level of the request body.
func (c *Client) Respond(ctx context.Context, infectionID string, decision domain.Decision, details map[string]any) Result {
	body := domain.NewRespondBody(infectionID, decision, details)

	res := c.call(ctx, "respond", respondPath, body, true)
	if res.OK() {
		c.logger.Info("decision reported", "infection_id", infectionID, "decision", string(decision))
	}
	return res
}

// --- internal ---

func (c *Client) call(ctx context.Context, op, path string, payload any, authenticated bool) Result {
	status, body, err := c.doRequest(ctx, http.MethodPost, path, payload, authenticated)
	if err != nil {
		return c.fail(op, http.MethodPost, path, status, body, err)
	}
	if status < 200 || status >= 300 {
		return c.fail(op, http.MethodPost, path, status, body, nil)
	}
	return newResult(op, status, body)
}

func (c *Client) fail(op, method, path string, status int, body []byte, cause error) Result {
	reqErr := &domain.RequestError{
		Op:         op,
		Method:     method,
		Path:       path,
		StatusCode: status,
		Body:       strings.TrimSpace(string(body)),
		Err:        cause,
	}
	if status != 0 && cause == nil {
		reqErr.Err = fmt.Errorf("unexpected status %d", status)
	}
	var local localError
	reqErr.Local = errors.As(cause, &local)

	c.logger.Error(FailureMarker,
		"op", op,
		"path", path,
		"status", status,
		"err", reqErr.Error(),
	)
	return Result{Op: op, StatusCode: status, Raw: body, Err: reqErr}
}

// localError marks a failure that happened before anything was sent.
type localError struct {
	err error
}

func (e localError) Error() string { return e.err.Error() }
func (e localError) Unwrap() error { return e.err }

func (c *Client) doRequest(ctx context.Context, method, path string, payload any, authenticated bool) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, localError{fmt.Errorf("marshal request: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, nil, localError{fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", applicationJSON)
	req.Header.Set("Accept", applicationJSON)

	if authenticated && c.attachCredential {
		if key, ok := c.Credential(); ok {
			req.Header.Set(APIKeyHeader, key)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
