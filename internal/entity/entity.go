// Package entity defines the core entities used in the application.
package entity

import (
	"log/slog"
	"time"

	"spiderfetch/internal/cancel"
)

// TaskStatus represents the status of a download task.
type TaskStatus string

const (
	// TaskStatusPending indicates that the task waits in the FIFO.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning indicates that the worker popped the task and is about to execute it.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusDownloading indicates that the engine is transferring bytes.
	TaskStatusDownloading TaskStatus = "downloading"
	// TaskStatusProcessing indicates that a postprocessing stage or the final move is in progress.
	TaskStatusProcessing TaskStatus = "processing"
	// TaskStatusCompleted indicates that the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusError indicates that the task has encountered an error.
	TaskStatusError TaskStatus = "error"
	// TaskStatusCancelling indicates that cancellation was requested for an executing task.
	TaskStatusCancelling TaskStatus = "cancelling"
	// TaskStatusCancelled indicates that the task was cancelled by the user.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusError, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// IsActive reports whether the task is executing.
func (s TaskStatus) IsActive() bool {
	switch s {
	case TaskStatusRunning, TaskStatusDownloading, TaskStatusProcessing:
		return true
	default:
		return false
	}
}

// TaskRequest holds the immutable inputs of a task.
type TaskRequest struct {
	URL           string `json:"url"`
	Destination   string `json:"destination"`
	Format        string `json:"format"`
	IsPlaylist    bool   `json:"isPlaylist"`
	PlaylistItems string `json:"playlistItems,omitempty"`
	SelectedCount int    `json:"selectedCount"`
	TotalCount    int    `json:"totalCount"`
	Title         string `json:"title"`
}

// Task represents one download unit tracked by the queue.
type Task struct {
	TaskRequest

	ID       string     `json:"id"`
	Status   TaskStatus `json:"status"`
	Progress float64    `json:"progress"`
	Message  string     `json:"message,omitempty"`
	Error    string     `json:"error,omitempty"`

	// Token is created at enqueue time and owned by this task only.
	Token *cancel.Token `json:"-"`

	CreatedAt  time.Time `json:"createdAt"`
	StartedAt  time.Time `json:"startedAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (t Task) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", t.ID),
		slog.String("url", t.URL),
		slog.String("title", t.Title),
		slog.String("status", string(t.Status)),
		slog.Float64("progress", t.Progress),
		slog.Bool("playlist", t.IsPlaylist),
		slog.String("playlist_items", t.PlaylistItems),
		slog.String("error", t.Error),
	)
}

// MediaInfo is the metadata returned by an info fetch.
// Field tags follow the engine's JSON output so it can be decoded directly.
type MediaInfo struct {
	ID            string        `json:"id"`
	Type          string        `json:"_type"`
	Title         string        `json:"title"`
	Extractor     string        `json:"extractor"`
	ExtractorKey  string        `json:"extractor_key"`
	WebpageURL    string        `json:"webpage_url"`
	Uploader      string        `json:"uploader"`
	Channel       string        `json:"channel"`
	Thumbnail     string        `json:"thumbnail"`
	Duration      float64       `json:"duration"`
	PlaylistCount int           `json:"playlist_count"`
	Entries       []*MediaEntry `json:"entries,omitempty"`
}

// IsPlaylist reports whether the info describes a playlist-like source.
func (m *MediaInfo) IsPlaylist() bool {
	return m != nil && (m.Type == "playlist" || m.Entries != nil)
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (m MediaInfo) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", m.ID),
		slog.String("type", m.Type),
		slog.String("title", m.Title),
		slog.String("extractor_key", m.ExtractorKey),
		slog.Int("entries", len(m.Entries)),
	)
}

// MediaEntry is one playlist entry of a MediaInfo.
type MediaEntry struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	PlaylistIndex int     `json:"playlist_index"`
	Duration      float64 `json:"duration"`
	Thumbnail     string  `json:"thumbnail"`
}
