package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flowforge/orchestrator/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error     APIError `json:"error"`
	TraceID   string   `json:"trace_id,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

// RespondError writes a uniform error envelope. If err wraps an
// *apierr.Error, its status and code take precedence over the ones
// passed in, so a handler can defer to a lower layer's classification.
func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}

	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		if apiErr.Status != 0 {
			status = apiErr.Status
		}
		if apiErr.Code != "" {
			code = apiErr.Code
		}
	}

	traceID := c.GetString("trace_id")
	requestID := c.GetString("request_id")
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
		TraceID:   traceID,
		RequestID: requestID,
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
