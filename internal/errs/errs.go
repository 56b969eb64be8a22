// Package errs defines common error variables used across the application.
package errs

import "errors"

var (
	// ErrServiceClosed indicates that the queue is shut down and cannot accept new tasks.
	ErrServiceClosed = errors.New("service is closed")
	// ErrShutdownTimeout indicates that the worker did not exit within the shutdown timeout.
	ErrShutdownTimeout = errors.New("shutdown timed out")
)

// Validation errors.
var (
	// ErrEmptyURL indicates that the URL field is empty.
	ErrEmptyURL = errors.New("url is empty")
	// ErrEmptyDestination indicates that the destination path is empty.
	ErrEmptyDestination = errors.New("destination is empty")
	// ErrInvalidURL indicates that the URL is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid url")
)

// Task and registry errors.
var (
	// ErrTaskNil indicates that the task is nil.
	ErrTaskNil = errors.New("task is nil")
	// ErrTaskNotFound indicates that the task is not found in the registry.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskExists indicates that a task with the same id is already registered.
	ErrTaskExists = errors.New("task already exists")
	// ErrNoRunningTask indicates that no task currently holds the running slot.
	ErrNoRunningTask = errors.New("no running task")
	// ErrCancelled is the cancellation signal raised at cooperative checkpoints.
	ErrCancelled = errors.New("cancelled")
)

// Metadata and link fetch errors.
var (
	// ErrFetchInProgress indicates that a single-flight fetch is already running.
	ErrFetchInProgress = errors.New("fetch already in progress")
	// ErrEmptyPlaylist indicates that a playlist source returned no usable entries.
	ErrEmptyPlaylist = errors.New("playlist is empty")
	// ErrNoInfo indicates that the engine returned no information for a URL.
	ErrNoInfo = errors.New("no information returned")
	// ErrNoLinks indicates that the engine returned no direct links.
	ErrNoLinks = errors.New("no links returned")
)

// Engine and toolchain errors.
var (
	// ErrEngine indicates a failure reported by the extraction engine itself.
	ErrEngine = errors.New("engine error")
	// ErrMoveFailed indicates that a finished artifact could not be moved to its destination.
	ErrMoveFailed = errors.New("move failed")
	// ErrBinaryNotFound indicates that the required binary was not found.
	ErrBinaryNotFound = errors.New("binary not found")
	// ErrUnsupportedPlatform indicates that the current platform has no download URL configured.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	// ErrUnsupportedArchive indicates that an archive format cannot be extracted.
	ErrUnsupportedArchive = errors.New("unsupported archive format")
)
