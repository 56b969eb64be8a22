// Package response writes the JSON envelope of the control API.
package response

import (
	"encoding/json"
	"net/http"
	"time"

	"spiderfetch/internal/entity"
	"spiderfetch/internal/notify"
)

type Response struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Data    any    `json:"data"`
}

func WriteJSON(w http.ResponseWriter, status int, message string, data any, err error) {
	var errorMsg string
	if err != nil {
		errorMsg = err.Error()
	}

	r := Response{
		Message: message,
		Data:    data,
		Error:   errorMsg,
	}

	bytes, err := json.Marshal(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(bytes)
}

func OK(w http.ResponseWriter, message string, res any, err error) {
	WriteJSON(w, http.StatusOK, message, res, err)
}

func Accepted(w http.ResponseWriter, message string, res any, err error) {
	WriteJSON(w, http.StatusAccepted, message, res, err)
}

func BadRequest(w http.ResponseWriter, message string, err error) {
	WriteJSON(w, http.StatusBadRequest, message, nil, err)
}

func NotFound(w http.ResponseWriter, message string, err error) {
	WriteJSON(w, http.StatusNotFound, message, nil, err)
}

func Conflict(w http.ResponseWriter, message string, err error) {
	WriteJSON(w, http.StatusConflict, message, nil, err)
}

func UnprocessableEntity(w http.ResponseWriter, message string, err error) {
	WriteJSON(w, http.StatusUnprocessableEntity, message, nil, err)
}

func ServiceUnavailable(w http.ResponseWriter, message string, err error) {
	WriteJSON(w, http.StatusServiceUnavailable, message, nil, err)
}

func InternalServerError(w http.ResponseWriter, message string, res any, err error) {
	WriteJSON(w, http.StatusInternalServerError, message, res, err)
}

// Task is the JSON view of a task.
type Task struct {
	entity.Task

	// Duration is set once the task has finished.
	Duration string `json:"duration,omitempty"`
}

// NewTask builds the view of t.
func NewTask(t entity.Task) Task {
	out := Task{Task: t}
	if !t.StartedAt.IsZero() && t.FinishedAt.After(t.StartedAt) {
		out.Duration = t.FinishedAt.Sub(t.StartedAt).Round(time.Millisecond).String()
	}

	return out
}

// Event is the JSON view of a notify.Event sent on the event stream.
type Event struct {
	Kind     notify.Kind       `json:"kind"`
	Source   notify.Source     `json:"source"`
	TaskID   string            `json:"taskId,omitempty"`
	Tag      notify.Tag        `json:"tag,omitempty"`
	Message  string            `json:"message,omitempty"`
	Progress float64           `json:"progress"`
	Status   entity.TaskStatus `json:"status,omitempty"`
	Info     *entity.MediaInfo `json:"info,omitempty"`
	Links    []string          `json:"links,omitempty"`
	Error    string            `json:"error,omitempty"`
	Time     time.Time         `json:"time"`
}

// NewEvent builds the view of e.
func NewEvent(e notify.Event) Event {
	out := Event{
		Kind:     e.Kind,
		Source:   e.Source,
		TaskID:   e.TaskID,
		Tag:      e.Tag,
		Message:  e.Message,
		Progress: e.Progress,
		Status:   e.Status,
		Info:     e.Info,
		Links:    e.Links,
		Time:     e.Time,
	}

	if e.Err != nil {
		out.Error = e.Err.Error()
	}

	return out
}
