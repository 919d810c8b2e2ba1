package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	http "github.com/bogdanfinn/fhttp"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	apierrors "github.com/diogo/aceorbit/internal/errors"
	"github.com/diogo/aceorbit/internal/models"
)

type chatRequest struct {
	Message string `json:"message"`
}

func newRequestID() string {
	return uuid.NewString()
}

// Chat posts message to /chat and returns the reply text. A missing reply
// is returned as "". Failures are *errors.APIError (non-2xx),
// *errors.ParseError (unparsable 2xx body), *errors.TimeoutError or
// *errors.NetworkError.
func (c *Client) Chat(ctx context.Context, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("message cannot be empty")
	}

	payload, err := json.Marshal(chatRequest{Message: message})
	if err != nil {
		return "", fmt.Errorf("failed to build payload: %w", err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	requestID := c.newID()
	logger := c.logger.With(zap.String("request_id", requestID), zap.String("endpoint", models.EndpointChat))
	start := time.Now()

	body, status, err := c.do(ctx, http.MethodPost, models.EndpointChat, payload, requestID)
	if err != nil {
		logger.Warn("chat request failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return "", err
	}

	if !gjson.ValidBytes(body) {
		err := apierrors.NewParseError("invalid JSON in chat response", status)
		logger.Warn("chat response malformed", zap.Int("status", status), zap.Int("bytes", len(body)))
		return "", err
	}

	reply := extractString(gjson.GetBytes(body, PathReply))
	logger.Debug("chat reply received",
		zap.Int("status", status),
		zap.Int("reply_len", len(reply)),
		zap.String("source", gjson.GetBytes(body, PathSource).String()),
		zap.Duration("elapsed", time.Since(start)))

	return reply, nil
}

// Health checks the backend's /health endpoint
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	body, status, err := c.do(ctx, http.MethodGet, models.EndpointHealth, nil, c.newID())
	if err != nil {
		return err
	}
	if !gjson.ValidBytes(body) {
		return apierrors.NewParseError("invalid JSON in health response", status)
	}
	if s := gjson.GetBytes(body, PathStatus).String(); s != "ok" {
		return apierrors.NewAPIError(status, models.EndpointHealth, fmt.Sprintf("unexpected status %q", s))
	}
	return nil
}

// do sends a request and returns the body of a 2xx response
func (c *Client) do(ctx context.Context, method, path string, payload []byte, requestID string) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range models.DefaultHeaders() {
		req.Header.Set(key, value)
	}
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, 0, apierrors.NewTimeoutError(path)
		}
		return nil, 0, apierrors.NewNetworkError(strings.TrimPrefix(path, "/"), c.endpoint(path), err)
	}
	defer func() {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, resp.StatusCode, apierrors.NewAPIError(resp.StatusCode, path, errorDetail(errorBody))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSuccessBody))
	if err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, resp.StatusCode, apierrors.NewTimeoutError(path)
		}
		return nil, resp.StatusCode, apierrors.NewNetworkError("read response", c.endpoint(path), err)
	}

	return body, resp.StatusCode, nil
}

// errorDetail pulls the human-readable detail out of an error body. It
// returns "" when the body is not JSON or has no usable detail.
func errorDetail(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}

	detail := gjson.GetBytes(body, PathDetail)
	switch {
	case detail.Type == gjson.String:
		return strings.TrimSpace(detail.Str)
	case detail.IsArray():
		var msgs []string
		for _, m := range gjson.GetBytes(body, PathDetailMsgs).Array() {
			if s := strings.TrimSpace(m.String()); s != "" {
				msgs = append(msgs, s)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

// extractString returns r as text, "" when absent or null
func extractString(r gjson.Result) string {
	switch r.Type {
	case gjson.Null:
		return ""
	case gjson.String:
		return r.Str
	case gjson.False:
		return ""
	}
	return r.String()
}
