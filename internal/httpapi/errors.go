package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/runoshun/capsule/internal/domain"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeValidation         = "VALIDATION"
	CodeNotFound           = "NOT_FOUND"
	CodeCycle              = "CYCLE"
	CodeSelfReference      = "SELF_REFERENCE"
	CodeDepth              = "DEPTH"
	CodeCrossTaskComment   = "CROSS_TASK_COMMENT"
	CodeCompletionRejected = "COMPLETION_REJECTED"
	CodeConflict           = "CONFLICT"
	CodeNotInitialized     = "NOT_INITIALIZED"
	CodeInternal           = "INTERNAL"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Field     string `json:"field,omitempty"`
	Path      []int  `json:"path,omitempty"` // Existing blocker chain of a cycle
	Retryable bool   `json:"retryable,omitempty"`
}

// rejectionResponse is the body of a refused completion.
type rejectionResponse struct {
	Error    string                `json:"error,omitempty"`
	Code     string                `json:"code,omitempty"`
	Subtasks []domain.BlockingItem `json:"subtasks,omitempty"`
	Blockers []domain.BlockingItem `json:"blockers,omitempty"`
	Success  bool                  `json:"success"`
}

// classify maps an error to its HTTP status and code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrCompletionRejected):
		return http.StatusConflict, CodeCompletionRejected
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, CodeConflict
	case domain.IsValidation(err):
		return http.StatusBadRequest, CodeValidation
	case domain.IsNotFound(err):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, domain.ErrCycle):
		return http.StatusUnprocessableEntity, CodeCycle
	case errors.Is(err, domain.ErrSelfReference):
		return http.StatusUnprocessableEntity, CodeSelfReference
	case errors.Is(err, domain.ErrDepth):
		return http.StatusUnprocessableEntity, CodeDepth
	case errors.Is(err, domain.ErrCrossTaskComment):
		return http.StatusUnprocessableEntity, CodeCrossTaskComment
	case errors.Is(err, domain.ErrNotInitialized):
		return http.StatusServiceUnavailable, CodeNotInitialized
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// writeError responds with the mapped status and a structured body.
// Internal errors are logged and their text is not exposed.
func writeError(c *gin.Context, err error) {
	status, code := classify(err)

	var rejected *domain.CompletionRejectedError
	if errors.As(err, &rejected) {
		c.JSON(status, rejectionResponse{
			Error:    err.Error(),
			Code:     code,
			Subtasks: rejected.Result.Subtasks,
			Blockers: rejected.Result.Blockers,
		})
		return
	}

	resp := ErrorResponse{Error: err.Error(), Code: code}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	var cycle *domain.CycleError
	if errors.As(err, &cycle) {
		resp.Path = cycle.Path
	}
	switch status {
	case http.StatusConflict:
		resp.Retryable = true
	case http.StatusInternalServerError:
		logger(c).Error("request failed", "error", err)
		resp.Error = "internal error"
	}
	c.JSON(status, resp)
}

// badRequest responds to an unreadable request.
func badRequest(c *gin.Context, msg string, err error) {
	logger(c).Warn(msg, "error", err)
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg + ": " + err.Error(), Code: CodeInvalidRequest})
}
