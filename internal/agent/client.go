// Package agent forwards chat messages to the external advisory agent service.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	chatPath = "/agent/chat"

	defaultErrorMessage = "agent service error"
	baseBackoff         = 200 * time.Millisecond
	maxBackoff          = 5 * time.Second
)

// ErrUnavailable is returned when no response was received from the agent service.
var ErrUnavailable = errors.New("agent service unavailable")

// StatusError is a non-2xx answer from the agent service.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("agent service returned %d: %s", e.Status, e.Message)
}

// ChatRequest is the payload posted to the agent service.
type ChatRequest struct {
	SessionID string   `json:"sessionId"`
	UserID    string   `json:"userId"`
	Data      ChatData `json:"data"`
}

type ChatData struct {
	Message               string          `json:"message"`
	InitialPreferenceData json.RawMessage `json:"initialPreferenceData,omitempty"`
}

// ChatResponse carries the upstream status and the relayed payload.
type ChatResponse struct {
	Status int
	Data   json.RawMessage
}

// Client talks to the agent service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    int
	logger     logrus.FieldLogger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithTimeout bounds each attempt. Zero means no timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithRetries sets how many extra attempts follow a transport failure.
func WithRetries(retries int) ClientOption {
	return func(c *Client) {
		if retries > 0 {
			c.retries = retries
		}
	}
}

func WithLogger(logger logrus.FieldLogger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chat posts the request and relays the answer. Non-2xx answers come back as *StatusError,
// transport failures wrap ErrUnavailable.
func (c *Client) Chat(ctx context.Context, chat ChatRequest) (*ChatResponse, error) {
	payload, err := json.Marshal(chat)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			wait := backoff(attempt)
			c.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"wait":    wait,
				"error":   lastErr,
			}).Warn("retrying agent request")
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
			case <-time.After(wait):
			}
		}

		resp, err := c.do(ctx, payload)
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, payload []byte) (*ChatResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create agent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Status:  resp.StatusCode,
			Message: errorMessage(body),
		}
	}

	return &ChatResponse{
		Status: resp.StatusCode,
		Data:   relayedData(body),
	}, nil
}

type upstreamBody struct {
	Message json.RawMessage `json:"message"`
}

// relayedData picks the upstream "message" field when present, otherwise the whole body.
func relayedData(body []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return json.RawMessage("null")
	}
	if !json.Valid(trimmed) {
		raw, _ := json.Marshal(string(trimmed))
		return raw
	}

	var parsed upstreamBody
	if err := json.Unmarshal(trimmed, &parsed); err == nil && len(parsed.Message) > 0 && string(parsed.Message) != "null" {
		return parsed.Message
	}
	return json.RawMessage(trimmed)
}

// errorMessage relays the upstream "message" field. Non-string values are relayed as raw JSON.
func errorMessage(body []byte) string {
	var parsed upstreamBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return defaultErrorMessage
	}
	raw := bytes.TrimSpace(parsed.Message)
	if len(raw) == 0 || string(raw) == "null" {
		return defaultErrorMessage
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if text == "" {
			return defaultErrorMessage
		}
		return text
	}
	return string(raw)
}

// backoff doubles per attempt; the wait is jittered over the upper half.
func backoff(attempt int) time.Duration {
	ceiling := baseBackoff << (attempt - 1)
	if ceiling <= 0 || ceiling > maxBackoff {
		ceiling = maxBackoff
	}
	return ceiling/2 + rand.N(ceiling/2+1)
}
