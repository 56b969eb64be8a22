package httprouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"spiderfetch/internal/consts"
	"spiderfetch/internal/errs"
	"spiderfetch/internal/infrastructure/delivery/http/request"
	"spiderfetch/internal/infrastructure/delivery/http/response"
	"spiderfetch/internal/notify"
)

func (r *Router) AddTask(w http.ResponseWriter, req *http.Request) {
	log := r.log.With(slog.String("handler", "AddTask"))
	ctx := req.Context()

	var in request.AddTask
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		log.ErrorContext(ctx, consts.RespInvalidRequestBody, slog.Any("error", err))
		response.BadRequest(w, consts.RespInvalidRequestBody, err)

		return
	}

	if err := in.Validate(r.defaults); err != nil {
		log.ErrorContext(ctx, consts.RespUnprocessableEntity, slog.Any("error", err))
		response.UnprocessableEntity(w, consts.RespUnprocessableEntity, err)

		return
	}

	id, err := r.queue.AddTask(in.TaskRequest())

	switch {
	case errors.Is(err, errs.ErrServiceClosed):
		response.ServiceUnavailable(w, consts.RespServiceClosed, err)
	case errors.Is(err, errs.ErrEmptyURL), errors.Is(err, errs.ErrEmptyDestination):
		response.UnprocessableEntity(w, consts.RespUnprocessableEntity, err)
	case err != nil:
		log.ErrorContext(ctx, consts.RespTaskEnqueueFail, slog.Any("error", err))
		response.InternalServerError(w, consts.RespTaskEnqueueFail, nil, err)
	default:
		log.InfoContext(ctx, consts.RespTaskEnqueued, slog.String("task_id", id), slog.String("url", in.URL))
		response.Accepted(w, consts.RespTaskEnqueued, map[string]string{"id": id}, nil)
	}
}

func (r *Router) GetTasks(w http.ResponseWriter, _ *http.Request) {
	tasks := r.queue.Tasks()

	out := make([]response.Task, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, response.NewTask(task))
	}

	response.OK(w, consts.RespTasksRetrieved, map[string]any{
		"queueSize": r.queue.QueueSize(),
		"tasks":     out,
	}, nil)
}

func (r *Router) GetTask(w http.ResponseWriter, req *http.Request) {
	task, ok := r.queue.Task(req.PathValue("id"))
	if !ok {
		response.NotFound(w, consts.RespTaskNotFound, errs.ErrTaskNotFound)

		return
	}

	response.OK(w, consts.RespTaskRetrieved, response.NewTask(task), nil)
}

func (r *Router) CancelTask(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")

	status, err := r.queue.CancelTask(id)
	if errors.Is(err, errs.ErrTaskNotFound) {
		response.NotFound(w, consts.RespTaskNotFound, err)

		return
	}

	if err != nil {
		r.log.ErrorContext(req.Context(), "cancel task failed", slog.String("task_id", id), slog.Any("error", err))
		response.InternalServerError(w, consts.RespTaskCancel, nil, err)

		return
	}

	response.OK(w, consts.RespTaskCancel, map[string]any{"id": id, "status": status}, nil)
}

func (r *Router) PruneTasks(w http.ResponseWriter, req *http.Request) {
	var in request.Prune

	if err := json.NewDecoder(req.Body).Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, consts.RespInvalidRequestBody, err)

		return
	}

	ids := in.IDs
	if len(ids) == 0 {
		ids = r.queue.FinishedIDs()
	}

	pruned := r.queue.Prune(ids...)

	response.OK(w, consts.RespTasksPruned, map[string]any{"pruned": pruned}, nil)
}

func (r *Router) StartInfoFetch(w http.ResponseWriter, req *http.Request) {
	r.startFetch(w, req, func(ctx context.Context, in request.Fetch) error {
		return r.queue.StartInfoFetch(ctx, in.URL)
	})
}

func (r *Router) StartLinkFetch(w http.ResponseWriter, req *http.Request) {
	r.startFetch(w, req, func(ctx context.Context, in request.Fetch) error {
		return r.queue.StartLinkFetch(ctx, in.URL, in.Format)
	})
}

// startFetch decodes the body and starts a fetch that outlives the request.
// Results are delivered on the event stream.
func (r *Router) startFetch(w http.ResponseWriter, req *http.Request, start func(context.Context, request.Fetch) error) {
	var in request.Fetch
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		response.BadRequest(w, consts.RespInvalidRequestBody, err)

		return
	}

	if err := in.Validate(); err != nil {
		response.UnprocessableEntity(w, consts.RespUnprocessableEntity, err)

		return
	}

	err := start(context.WithoutCancel(req.Context()), in)

	switch {
	case errors.Is(err, errs.ErrFetchInProgress):
		response.Conflict(w, consts.RespFetchBusy, err)
	case errors.Is(err, errs.ErrServiceClosed):
		response.ServiceUnavailable(w, consts.RespServiceClosed, err)
	case errors.Is(err, errs.ErrEmptyURL):
		response.UnprocessableEntity(w, consts.RespUnprocessableEntity, err)
	case err != nil:
		response.InternalServerError(w, consts.RespFetchFail, nil, err)
	default:
		response.Accepted(w, consts.RespFetchStarted, map[string]string{"url": in.URL}, nil)
	}
}

func (r *Router) CancelInfoFetch(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, consts.RespFetchCancel, map[string]bool{"cancelled": r.queue.CancelFetchInfo()}, nil)
}

func (r *Router) CancelLinkFetch(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, consts.RespFetchCancel, map[string]bool{"cancelled": r.queue.CancelLinkFetch()}, nil)
}

// Events streams queue events as server-sent events until the client goes away.
// A client that falls behind loses events instead of stalling delivery to others.
func (r *Router) Events(w http.ResponseWriter, req *http.Request) {
	log := r.log.With(slog.String("handler", "Events"))
	ctx := req.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		response.InternalServerError(w, consts.RespStreamUnsupported, nil, nil)

		return
	}

	events := make(chan notify.Event, consts.EventStreamBuffer)

	unsubscribe := r.events.Subscribe(func(e notify.Event) {
		select {
		case events <- e:
		default:
			log.DebugContext(ctx, "event stream client lagging, event dropped")
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			data, err := json.Marshal(response.NewEvent(e))
			if err != nil {
				log.ErrorContext(ctx, "marshal event", slog.Any("error", err))

				continue
			}

			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, data); err != nil {
				return
			}

			flusher.Flush()
		}
	}
}
