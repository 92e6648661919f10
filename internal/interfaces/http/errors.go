package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/docflow/internal/domain/workflow"
)

// Response represents the standard JSON envelope
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody carries a stable error code and a human readable message
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// retryAfterSeconds is advertised on 503 responses
const retryAfterSeconds = "1"

var statusByCode = map[workflow.Code]int{
	workflow.CodeInvalidTransition:      http.StatusConflict,
	workflow.CodeConcurrentModification: http.StatusConflict,
	workflow.CodeDuplicateStepOrder:     http.StatusConflict,
	workflow.CodeUnauthorized:           http.StatusForbidden,
	workflow.CodeNotFound:               http.StatusNotFound,
	workflow.CodeValidationFailed:       http.StatusUnprocessableEntity,
	workflow.CodeNoRouteConfigured:      http.StatusUnprocessableEntity,
	workflow.CodeAmbiguousApprover:      http.StatusUnprocessableEntity,
	workflow.CodeNoApprover:             http.StatusUnprocessableEntity,
	workflow.CodeDependencyUnavailable:  http.StatusServiceUnavailable,
}

// StatusFor maps an error to its HTTP status
func StatusFor(err error) int {
	if status, ok := statusByCode[workflow.CodeOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

// respondError writes the envelope for err. Internal errors are logged and
// returned without detail.
func (h *Handlers) respondError(c *gin.Context, err error) {
	code := workflow.CodeOf(err)
	status := StatusFor(err)
	message := err.Error()

	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", retryAfterSeconds)
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			"error", err,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"request_id", requestIDFrom(c))
		message = "internal error"
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, Response{
		Success: false,
		Error:   &ErrorBody{Code: string(code), Message: message},
	})
}

// abortWith writes a transport-level error that has no workflow kind
func abortWith(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Response{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: message},
	})
}

// badRequest reports malformed input as a validation failure
func (h *Handlers) badRequest(c *gin.Context, err error) {
	h.respondError(c, workflow.Validation("invalid request: %v", err))
}
