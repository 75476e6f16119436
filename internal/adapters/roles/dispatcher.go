// Package roles implements the HTTP client that dispatches work to an
// external role (product, backend, frontend, qa, security, docs) and
// gets back a structured JSON result.
package roles

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flowforge/orchestrator/internal/pkg/ctxutil"
	"github.com/flowforge/orchestrator/internal/pkg/httpx"
)

// Dispatcher calls a named role with structured input and returns its
// structured output. Handlers depend on this interface rather than the
// concrete HTTP client so tests can fake role behavior.
type Dispatcher interface {
	Call(ctx context.Context, role string, input map[string]any) (map[string]any, error)
}

// HTTPDispatcher is the production Dispatcher: it POSTs {role, input}
// to endpoint and expects a JSON object back, retrying on transient
// failures the same way the teacher's generative-output client does.
type HTTPDispatcher struct {
	endpoint   string
	httpClient *http.Client
	maxRetries int
}

// NewHTTPDispatcher builds a dispatcher against endpoint (LLM_ENDPOINT).
func NewHTTPDispatcher(endpoint string) *HTTPDispatcher {
	return &HTTPDispatcher{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		maxRetries: 3,
	}
}

type dispatchRequest struct {
	Role  string         `json:"role"`
	Input map[string]any `json:"input"`
}

// Call posts the role invocation and decodes the JSON response body as
// the structured output. Retries on retryable network/HTTP errors with
// jittered exponential backoff, mirroring httpx's retry idiom.
func (d *HTTPDispatcher) Call(ctx context.Context, role string, input map[string]any) (map[string]any, error) {
	ctx = ctxutil.Default(ctx)
	body, err := json.Marshal(dispatchRequest{Role: role, Input: input})
	if err != nil {
		return nil, fmt.Errorf("roles: encoding request: %w", err)
	}

	var lastErr error
	backoff := time.Second
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(httpx.JitterSleep(backoff))
			backoff *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("roles: building request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if httpx.IsRetryableError(err) {
				continue
			}
			return nil, fmt.Errorf("roles: dispatching role %q: %w", role, err)
		}

		out, retryAfter, callErr := decodeResponse(resp)
		if callErr == nil {
			return out, nil
		}
		lastErr = callErr
		if retryAfter > 0 {
			backoff = retryAfter
		}
		if !httpx.IsRetryableHTTPStatus(resp.StatusCode) {
			return nil, callErr
		}
	}
	return nil, fmt.Errorf("roles: role %q exhausted retries: %w", role, lastErr)
}

func decodeResponse(resp *http.Response) (map[string]any, time.Duration, error) {
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("roles: reading response: %w", err)
	}
	if resp.StatusCode >= 300 {
		retryAfter := httpx.RetryAfterDuration(resp, time.Second, 30*time.Second)
		return nil, retryAfter, fmt.Errorf("roles: dispatcher returned status %d: %s", resp.StatusCode, string(raw))
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, 0, fmt.Errorf("roles: decoding response: %w", err)
	}
	return out, 0, nil
}
