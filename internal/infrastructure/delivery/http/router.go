// Package httprouter is the JSON control API of the queue: tasks, fetches, the event stream and metrics.
package httprouter

import (
	"log/slog"
	"net/http"
	"slices"

	"spiderfetch/internal/infrastructure/delivery/http/middleware"
	"spiderfetch/internal/infrastructure/delivery/http/request"
	"spiderfetch/internal/notify"
	"spiderfetch/internal/service"
)

// Subscriber delivers queue events. *notify.Dispatcher implements it.
type Subscriber interface {
	Subscribe(h notify.Handler) (unsubscribe func())
}

type Router struct {
	*http.ServeMux

	log         *slog.Logger
	globalChain []func(http.Handler) http.Handler
	routeChain  []func(http.Handler) http.Handler
	isSubRouter bool

	queue    service.Queue
	events   Subscriber
	metrics  http.Handler
	defaults request.Defaults
}

// New builds the router. metrics may be nil, which leaves /metrics unrouted.
func New(log *slog.Logger, queue service.Queue, events Subscriber, metrics http.Handler, defaults request.Defaults) *Router {
	r := &Router{
		ServeMux: http.NewServeMux(),
		log:      log.With(slog.String("package", "httprouter")),
		queue:    queue,
		events:   events,
		metrics:  metrics,
		defaults: defaults,
	}

	r.SetGlobalMiddlewares()
	r.SetRoutes()

	return r
}

func (r *Router) Use(middleware ...func(http.Handler) http.Handler) {
	if r.isSubRouter {
		r.routeChain = append(r.routeChain, middleware...)
	} else {
		r.globalChain = append(r.globalChain, middleware...)
	}
}

func (r *Router) Group(fn func(r *Router)) {
	subRouter := &Router{
		isSubRouter: true,
		routeChain:  slices.Clone(r.routeChain),
		ServeMux:    r.ServeMux,
	}

	fn(subRouter)
}

func (r *Router) HandleFunc(pattern string, h http.HandlerFunc) {
	r.Handle(pattern, h)
}

func (r *Router) Handle(pattern string, h http.Handler) {
	for _, middleware := range slices.Backward(r.routeChain) {
		h = middleware(h)
	}

	r.ServeMux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var h http.Handler = r.ServeMux

	for _, middleware := range slices.Backward(r.globalChain) {
		h = middleware(h)
	}

	h.ServeHTTP(w, req)
}

func (r *Router) SetGlobalMiddlewares() {
	r.Use(
		middleware.Recoverer,
		middleware.RequestID,
		middleware.Logger,
	)
}

func (r *Router) SetRoutes() {
	r.SetRoutesHealthcheck()
	r.SetRoutesTasks()
	r.SetRoutesFetch()

	r.HandleFunc("GET /v1/events", r.Events)

	if r.metrics != nil {
		r.Handle("GET /metrics", r.metrics)
	}
}

func (r *Router) SetRoutesHealthcheck() {
	r.HandleFunc("GET /v1/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func (r *Router) SetRoutesTasks() {
	taskRouter := &Router{
		ServeMux: http.NewServeMux(),
	}
	taskRouter.HandleFunc("POST /{$}", r.AddTask)
	taskRouter.HandleFunc("GET /{$}", r.GetTasks)
	taskRouter.HandleFunc("POST /prune", r.PruneTasks)
	taskRouter.HandleFunc("GET /{id}", r.GetTask)
	taskRouter.HandleFunc("DELETE /{id}", r.CancelTask)

	r.Handle("/v1/tasks/", http.StripPrefix("/v1/tasks", taskRouter))
}

func (r *Router) SetRoutesFetch() {
	fetchRouter := &Router{
		ServeMux: http.NewServeMux(),
	}
	fetchRouter.HandleFunc("POST /info", r.StartInfoFetch)
	fetchRouter.HandleFunc("DELETE /info", r.CancelInfoFetch)
	fetchRouter.HandleFunc("POST /links", r.StartLinkFetch)
	fetchRouter.HandleFunc("DELETE /links", r.CancelLinkFetch)

	r.Handle("/v1/fetch/", http.StripPrefix("/v1/fetch", fetchRouter))
}
