// Package response writes the appgen API envelope. Every endpoint answers
// with a data field on success and an error field on failure; errors carry
// the request ID so a client report can be matched to the server log.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/agentstation/appgen/pkg/errors"
)

// RequestIDHeader carries the request ID. The logging middleware sets it on
// the response before any handler runs.
const RequestIDHeader = "X-Request-ID"

// Error codes.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeConflict           = "CONFLICT"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// Response is the envelope of every API answer.
type Response struct {
	Data  any    `json:"data"`
	Error *Error `json:"error"`
}

// Error describes a failed request.
type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Success wraps data in an envelope.
func Success(data any) Response {
	return Response{Data: data}
}

// Fail builds an error envelope.
func Fail(code, message, details string) Response {
	return Response{Error: &Error{Code: code, Message: message, Details: details}}
}

// JSON writes resp with the given status. Error envelopes pick up the
// request ID from the response headers.
func JSON(w http.ResponseWriter, status int, resp Response) {
	if resp.Error != nil && resp.Error.RequestID == "" {
		if id := w.Header().Get(RequestIDHeader); id != "" {
			e := *resp.Error
			e.RequestID = id
			resp.Error = &e
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is out; an encoding failure cannot be reported.
	_ = json.NewEncoder(w).Encode(resp)
}

// OK writes data with 200.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Success(data))
}

// Created writes data with 201.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, Success(data))
}

// Accepted writes data with 202, for work handed to a background run.
func Accepted(w http.ResponseWriter, data any) {
	JSON(w, http.StatusAccepted, Success(data))
}

func BadRequest(w http.ResponseWriter, message, details string) {
	JSON(w, http.StatusBadRequest, Fail(CodeBadRequest, message, details))
}

func Unauthorized(w http.ResponseWriter, message, details string) {
	JSON(w, http.StatusUnauthorized, Fail(CodeUnauthorized, message, details))
}

func NotFound(w http.ResponseWriter, message, details string) {
	JSON(w, http.StatusNotFound, Fail(CodeNotFound, message, details))
}

func Conflict(w http.ResponseWriter, message, details string) {
	JSON(w, http.StatusConflict, Fail(CodeConflict, message, details))
}

// MethodNotAllowed writes 405 naming the rejected method.
func MethodNotAllowed(w http.ResponseWriter, method string) {
	JSON(w, http.StatusMethodNotAllowed, Fail(CodeMethodNotAllowed, "Method not allowed",
		"Method "+method+" is not supported for this endpoint"))
}

func RateLimited(w http.ResponseWriter, details string) {
	JSON(w, http.StatusTooManyRequests, Fail(CodeRateLimited, "Rate limit exceeded", details))
}

// InternalError writes 500. The cause stays in the server log.
func InternalError(w http.ResponseWriter, _ error) {
	JSON(w, http.StatusInternalServerError, Fail(CodeInternal, "Internal server error", "An unexpected error occurred"))
}

func ServiceUnavailable(w http.ResponseWriter, details string) {
	JSON(w, http.StatusServiceUnavailable, Fail(CodeServiceUnavailable, "Service unavailable", details))
}

// ErrorFromType maps err onto a status through its sentinel, so wrapped
// errors answer the same as bare ones.
func ErrorFromType(w http.ResponseWriter, err error) {
	switch {
	case errors.IsNotFound(err):
		NotFound(w, err.Error(), "")
	case errors.IsValidationError(err):
		BadRequest(w, err.Error(), "")
	case errors.IsAlreadyExists(err):
		Conflict(w, err.Error(), "")
	case errors.IsUnavailable(err):
		ServiceUnavailable(w, err.Error())
	default:
		InternalError(w, err)
	}
}
