// Package emoji provides symbol constants for CLI output.
// These symbols give project and run states a consistent look across commands.
package emoji

// Symbol constants for CLI output.
const (
	// Success marks a completed project or a successful operation.
	Success = "✓"

	// Error marks a failed project or operation.
	Error = "✗"

	// Stop marks a cancelled run or a shutdown.
	Stop = "■"

	// Warning represents warnings or non-critical issues.
	Warning = "!"

	// Running marks a project whose pipeline is executing.
	Running = "▶"

	// Pending marks a project that has never run.
	Pending = "○"

	// Unknown represents unrecognized states.
	Unknown = "?"

	// Info represents informational messages.
	Info = "i"
)

// ForStatus returns the symbol for a project status. Unknown statuses get
// Unknown.
func ForStatus(status string) string {
	switch status {
	case "completed":
		return Success
	case "failed":
		return Error
	case "cancelled":
		return Stop
	case "running":
		return Running
	case "created":
		return Pending
	default:
		return Unknown
	}
}
