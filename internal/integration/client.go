// Package integration contains the HTTP clients for the stage collaborators:
// the email finder, the personalizer, the draft composer and the sender.
package integration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/outreach/internal/config"
	"github.com/timmy/outreach/internal/logger"
	"github.com/timmy/outreach/internal/service"
)

const maxErrorBody = 256

// Client is a JSON client for one collaborator.
type Client struct {
	name   string
	client *resty.Client
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewClient creates a client for the collaborator name.
// Parameters:
//   - name: collaborator name used in logs.
//   - cfg: endpoint, credentials and retry settings.
//
// Returns:
//   - *Client: initialized client.
func NewClient(name string, cfg *config.IntegrationConfig) *Client {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	client.SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client.SetTimeout(timeout)

	// Retry transport failures, throttling and upstream errors.
	client.SetRetryCount(cfg.RetryCount)
	client.SetRetryWaitTime(200 * time.Millisecond)
	client.SetRetryMaxWaitTime(5 * time.Second)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}
		return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
	})

	return &Client{name: name, client: client}
}

// Post sends body to path and decodes a 2xx response into result.
// Non-2xx responses and transport failures are returned as
// *service.ExecutionError.
func (c *Client) Post(ctx context.Context, path string, body, result interface{}) error {
	start := time.Now()
	var apiErr errorBody
	req := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetError(&apiErr)
	if result != nil {
		req.SetResult(result)
	}
	resp, err := req.Post(path)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &service.ExecutionError{
			Kind:    service.ExecKindTransport,
			Message: fmt.Sprintf("%s request failed: %v", c.name, err),
		}
	}

	logger.CtxDebug(ctx, "[%s] POST %s: status=%d, duration=%s", c.name, path, resp.StatusCode(), time.Since(start))

	if resp.IsSuccess() {
		return nil
	}
	return classify(c.name, resp.StatusCode(), apiErr, resp.Body())
}

func classify(name string, status int, apiErr errorBody, raw []byte) *service.ExecutionError {
	detail := apiErr.Error
	if detail == "" {
		detail = apiErr.Message
	}
	if detail == "" {
		detail = strings.TrimSpace(string(raw))
		if len(detail) > maxErrorBody {
			detail = detail[:maxErrorBody]
		}
	}
	msg := fmt.Sprintf("%s returned HTTP %d", name, status)
	if detail != "" {
		msg += ": " + detail
	}

	kind := service.ExecKindRejected
	switch {
	case status == http.StatusTooManyRequests:
		kind = service.ExecKindRateLimited
	case status >= 500:
		kind = service.ExecKindUpstream
	}
	return &service.ExecutionError{Kind: kind, Message: msg}
}
