// Package constants provides shared constants used throughout the appgen codebase.
// This includes timeouts, limits, file permissions, and other values that
// should be consistent across the service and the CLI.
package constants

import "time"

// Timeout constants define various timeout durations used in the application
const (
	// DefaultTimeout is the standard timeout for general operations
	DefaultTimeout = 10 * time.Second

	// ShutdownTimeout bounds graceful shutdown of the HTTP server and runs
	ShutdownTimeout = 30 * time.Second

	// StageTimeout is the default timeout for one pipeline stage
	StageTimeout = 30 * time.Minute

	// StoreOpenTimeout is how long to wait for the bbolt file lock
	StoreOpenTimeout = 2 * time.Second
)

// Subscription transport constants
const (
	// WriteWait is the time allowed to write a message to a subscriber
	WriteWait = 10 * time.Second

	// PongWait is the time allowed to read the next pong from a subscriber
	PongWait = 60 * time.Second

	// PingPeriod is how often pings are sent. Must be less than PongWait.
	PingPeriod = (PongWait * 9) / 10

	// MaxMessageSize is the largest inbound control message accepted
	MaxMessageSize = 4096

	// SocketBufferSize is the websocket read and write buffer size
	SocketBufferSize = 1024
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644

	// SecureDirPermissions is for directories holding the project database (rwx------)
	SecureDirPermissions = 0700

	// SecureFilePermissions is for the project database (rw-------)
	SecureFilePermissions = 0600
)

// Limit constants define various limits and capacities
const (
	// MaxConcurrentRuns is the default number of pipeline runs executing at once
	MaxConcurrentRuns = 8

	// OutputBufferSize is the maximum stage output kept as an artifact, in bytes
	OutputBufferSize = 30000

	// MaxRequirementsSize is the largest requirements upload accepted, in bytes
	MaxRequirementsSize = 1 << 20

	// MaxProjectNameLength is the maximum allowed length for project names
	MaxProjectNameLength = 256
)

// Cache constants
const (
	// CacheTTL is the default time-to-live for cached reads
	CacheTTL = 5 * time.Second

	// CacheCleanupInterval is how often to clean expired cache entries
	CacheCleanupInterval = time.Minute
)

// Default values
const (
	// DefaultHost is the default bind address of the API server
	DefaultHost = "localhost"

	// DefaultPort is the default API server port
	DefaultPort = 8000

	// DefaultPathPrefix is the default prefix of the REST API
	DefaultPathPrefix = "/api/v1"

	// DefaultServerURL is where CLI client commands look for the server
	DefaultServerURL = "http://localhost:8000"
)

// Path constants
const (
	// DefaultDataPath is the default directory for appgen state
	DefaultDataPath = "~/.appgen"

	// DefaultStorePath is the default bbolt database file
	DefaultStorePath = "~/.appgen/projects.db"

	// DefaultWorkspacePath is the default root for per-project workspaces
	DefaultWorkspacePath = "~/.appgen/workspaces"
)
