// Package backend implements the HTTP adapters for the assessment API:
// module catalog, attempt status, module sessions and abandon cleanup.
package backend

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

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abhisek/cogtest/internal/assessment"
)

const (
	defaultTimeout = 15 * time.Second

	// maxBody caps how much of a response body is read.
	maxBody = 1 << 20
)

// Client talks to the assessment backend.
type Client struct {
	baseURL  string
	prefix   string
	token    string
	language string
	client   *http.Client
	log      *zap.Logger
	newID    func() string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client = &http.Client{Timeout: d}
		}
	}
}

// WithToken sends token as a bearer credential.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithPrefix sets the path prefix of every endpoint, e.g. "/api/research".
func WithPrefix(prefix string) Option {
	return func(c *Client) { c.prefix = "/" + strings.Trim(prefix, "/") }
}

// WithLanguage sets the Accept-Language header.
func WithLanguage(lang string) Option {
	return func(c *Client) { c.language = lang }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient creates a Client for baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		prefix:  "/api",
		client:  &http.Client{Timeout: defaultTimeout},
		log:     zap.NewNop(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Modules fetches the module catalog, ordered by OrderIndex.
func (c *Client) Modules(ctx context.Context) (assessment.Catalog, error) {
	var mods []assessment.Module
	if err := c.do(ctx, "modules", http.MethodGet, "/modules", nil, nil, modulesSchema, &mods); err != nil {
		return nil, err
	}
	return assessment.NewCatalog(mods), nil
}

// AttemptStatus fetches the user's attempt counters.
func (c *Client) AttemptStatus(ctx context.Context, userID string) (assessment.AttemptStatus, error) {
	var st assessment.AttemptStatus
	q := url.Values{"userId": {userID}}
	if err := c.do(ctx, "attempt status", http.MethodGet, "/attempt-status", q, nil, attemptStatusSchema, &st); err != nil {
		return assessment.AttemptStatus{}, err
	}
	return st, nil
}

// StartSession starts or resumes a session for moduleID. The returned
// Session carries the backend's module when it sent one; callers should
// prefer their own catalog entry.
func (c *Client) StartSession(ctx context.Context, moduleID int, req assessment.StartRequest) (assessment.Session, error) {
	var sess assessment.Session
	path := fmt.Sprintf("/modules/%d/session/start", moduleID)
	if err := c.do(ctx, "start session", http.MethodPost, path, nil, req, sessionSchema, &sess); err != nil {
		return assessment.Session{}, err
	}
	if sess.Module.ID == 0 {
		sess.Module.ID = moduleID
	}
	if sess.LanguageCode == "" {
		sess.LanguageCode = req.LanguageCode
	}
	return sess, nil
}

// Submit sends a module's answers.
func (c *Client) Submit(ctx context.Context, moduleID int, sessionID string, payload json.RawMessage) (assessment.SubmitResult, error) {
	var res assessment.SubmitResult
	path := fmt.Sprintf("/modules/%d/session/%s/submit", moduleID, url.PathEscape(sessionID))
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if err := c.do(ctx, "submit", http.MethodPost, path, nil, payload, submitSchema, &res); err != nil {
		return assessment.SubmitResult{}, err
	}
	return res, nil
}

// AbandonInProgress discards every in-progress session of userID.
func (c *Client) AbandonInProgress(ctx context.Context, userID string) error {
	body := map[string]string{"userId": userID}
	return c.do(ctx, "abandon", http.MethodPost, "/sessions/abandon-in-progress", nil, body, nil, nil)
}

// do sends one request and decodes a validated response into out. Failures
// are classified as *RequestError, *NetworkError, *ServerError or
// *MalformedResponseError.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any, schema *Schema, out any) error {
	u := c.baseURL + c.prefix + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		var data []byte
		switch b := body.(type) {
		case json.RawMessage:
			data = b
		default:
			var err error
			data, err = json.Marshal(body)
			if err != nil {
				return &RequestError{Op: op, Err: fmt.Errorf("marshal body: %w", err)}
			}
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}
	reqID := c.newID()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.language != "" {
		req.Header.Set("Accept-Language", c.language)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Debug("backend request failed",
			zap.String("op", op), zap.String("request_id", reqID), zap.Error(err))
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}

	c.log.Debug("backend request",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", c.prefix+path),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", reqID),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ServerError{
			Op:         op,
			Status:     resp.StatusCode,
			Message:    errorMessage(data),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	if out == nil {
		return nil
	}

	if err := validate(schema, data); err != nil {
		return &MalformedResponseError{Op: op, Content: data, Err: err}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &MalformedResponseError{Op: op, Content: data, Err: err}
	}
	return nil
}

// errorMessage extracts a human-readable message from an error body.
func errorMessage(data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }
