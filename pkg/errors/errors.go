// Package errors provides custom error types for the appgen service.
// These errors let transport layers map failures to responses and let
// background workers decide whether a failure still needs to be reported.
package errors

import (
	"errors"
	"fmt"
)

// Aliases for the standard library helpers so callers need one import.
var (
	New = errors.New
	Is  = errors.Is
	As  = errors.As
)

// Common sentinel errors for the appgen service
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that a resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailable indicates that a component cannot accept work right now
	ErrUnavailable = errors.New("unavailable")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrCanceled indicates that an operation was canceled
	ErrCanceled = errors.New("operation canceled")

	// ErrClosed indicates use of a connection or component after it was closed
	ErrClosed = errors.New("closed")
)

// NotFoundError represents an error when a resource is not found
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// ConflictError reports an operation rejected because the resource is busy,
// such as a second run for a project that already has one in flight.
type ConflictError struct {
	Resource string
	ID       string
	Message  string
}

// Error implements the error interface
func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Resource, e.ID, e.Message)
}

// Is implements errors.Is support
func (e *ConflictError) Is(target error) bool {
	return target == ErrAlreadyExists
}

// NewConflictError creates a new ConflictError
func NewConflictError(resource, id, message string) *ConflictError {
	return &ConflictError{Resource: resource, ID: id, Message: message}
}

// SchedulingError is returned when a run could not be handed to a worker.
// It is always surfaced synchronously to the caller that asked for the run.
type SchedulingError struct {
	ProjectID string
	Reason    string
	Err       error
}

// Error implements the error interface
func (e *SchedulingError) Error() string {
	return fmt.Sprintf("cannot schedule run for project %s: %s", e.ProjectID, e.Reason)
}

// Unwrap implements errors.Unwrap
func (e *SchedulingError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *SchedulingError) Is(target error) bool {
	return target == ErrUnavailable
}

// NewSchedulingError creates a new SchedulingError
func NewSchedulingError(projectID, reason string, err error) *SchedulingError {
	return &SchedulingError{ProjectID: projectID, Reason: reason, Err: err}
}

// RunError describes a failure that happened while a pipeline was executing.
// Reported is set when the orchestrator already published the failure
// through its error hook, so supervisors must not publish it again.
type RunError struct {
	ProjectID string
	Node      string
	Reported  bool
	Err       error
}

// Error implements the error interface
func (e *RunError) Error() string {
	if e.Node != "" {
		return fmt.Sprintf("run of project %s failed at node %s: %v", e.ProjectID, e.Node, e.Err)
	}
	return fmt.Sprintf("run of project %s failed: %v", e.ProjectID, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *RunError) Unwrap() error {
	return e.Err
}

// NewRunError creates a new RunError
func NewRunError(projectID, node string, reported bool, err error) *RunError {
	return &RunError{ProjectID: projectID, Node: node, Reported: reported, Err: err}
}

// DeliveryError represents a failed send to one subscriber connection
type DeliveryError struct {
	ConnectionID string
	ProjectID    string
	Err          error
}

// Error implements the error interface
func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to connection %s (project %s) failed: %v", e.ConnectionID, e.ProjectID, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// NewDeliveryError creates a new DeliveryError
func NewDeliveryError(connectionID, projectID string, err error) *DeliveryError {
	return &DeliveryError{ConnectionID: connectionID, ProjectID: projectID, Err: err}
}

// APIError is a non-success answer from the appgen API, as seen by a client.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

// Error implements the error interface
func (e *APIError) Error() string {
	msg := fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
	if e.Code != "" {
		msg = fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	if e.RequestID != "" {
		msg += " [request " + e.RequestID + "]"
	}
	return msg
}

// Is maps the HTTP status back onto the sentinel the server started from.
func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case 400:
		return target == ErrInvalidInput
	case 404:
		return target == ErrNotFound
	case 409:
		return target == ErrAlreadyExists
	case 503:
		return target == ErrUnavailable
	}
	return false
}

// ConfigError represents a configuration error
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// ParseError represents an error when parsing data formats
type ParseError struct {
	Format  string // "json", "yaml"
	File    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("parse error in %s file %s: %s", e.Format, e.File, e.Message)
	}
	return fmt.Sprintf("%s parse error: %s", e.Format, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError
func NewParseError(format, file string, message string, err error) *ParseError {
	return &ParseError{
		Format:  format,
		File:    file,
		Message: message,
		Err:     err,
	}
}

// IOError represents an error during I/O operations
type IOError struct {
	Operation string // "read", "write", "create", "open"
	Path      string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("IO error during %s of %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("IO error during %s: %s", e.Operation, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *IOError) Unwrap() error {
	return e.Err
}

// NewIOError creates a new IOError
func NewIOError(operation, path string, err error) *IOError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &IOError{
		Operation: operation,
		Path:      path,
		Message:   message,
		Err:       err,
	}
}

// ResourceError represents an error during resource operations
type ResourceError struct {
	Operation string // "create", "update", "load", "open"
	Resource  string // "project", "store", "pipeline"
	ID        string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ResourceError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("failed to %s %s %s: %s", e.Operation, e.Resource, e.ID, e.Message)
	}
	return fmt.Sprintf("failed to %s %s: %s", e.Operation, e.Resource, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ResourceError) Unwrap() error {
	return e.Err
}

// NewResourceError creates a new ResourceError
func NewResourceError(operation, resource, id string, err error) *ResourceError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ResourceError{
		Operation: operation,
		Resource:  resource,
		ID:        id,
		Message:   message,
		Err:       err,
	}
}

// ProcessError represents an error from an external process or command
type ProcessError struct {
	Operation string // What operation was being performed
	Command   string // The command that was executed
	Output    string // Stdout/stderr output from the process
	ExitCode  int    // Exit code if available
	Err       error  // Underlying error
}

// Error implements the error interface
func (e *ProcessError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("process error during %s (command: %s, exit %d): %v", e.Operation, e.Command, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("process error during %s (command: %s): %v", e.Operation, e.Command, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *ProcessError) Unwrap() error {
	return e.Err
}

// NewProcessError creates a new ProcessError
func NewProcessError(operation, command, output string, exitCode int, err error) *ProcessError {
	return &ProcessError{
		Operation: operation,
		Command:   command,
		Output:    output,
		ExitCode:  exitCode,
		Err:       err,
	}
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists or conflict error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsUnavailable checks if an error means the component could not accept work
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsCanceled checks if an error is a cancellation error
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// IsTimeout checks if an error is a timeout error
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsReported reports whether err carries a RunError that was already
// published by the orchestrator.
func IsReported(err error) bool {
	var runErr *RunError
	return errors.As(err, &runErr) && runErr.Reported
}

// Helper wrapping functions for common patterns

// WrapValidation wraps an error as a ValidationError
func WrapValidation(field string, err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Field: field, Message: err.Error()}
}

// WrapIO wraps an error as an IOError
func WrapIO(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	return NewIOError(operation, path, err)
}

// WrapResource wraps an error as a ResourceError
func WrapResource(operation, resource, id string, err error) error {
	if err == nil {
		return nil
	}
	return NewResourceError(operation, resource, id, err)
}

// WrapParse wraps an error as a ParseError
func WrapParse(format, file string, err error) error {
	if err == nil {
		return nil
	}
	return NewParseError(format, file, err.Error(), err)
}
