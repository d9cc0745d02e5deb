package main

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"todo-api/api"
	"todo-api/cache"
	"todo-api/metrics"
)

// TodoStore is the storage the handlers need; *store.Store implements it.
type TodoStore interface {
	CreateUser(ctx context.Context, username string) (api.User, error)
	CreateTodo(ctx context.Context, title string, completed bool, userID int) (api.Todo, error)
	GetTodo(ctx context.Context, id int) (api.Todo, error)
	UpdateTodo(ctx context.Context, id int, title *string, completed *bool) (api.Todo, error)
	DeleteTodo(ctx context.Context, id int) error
	ListTodos(ctx context.Context, userID *int) ([]api.Todo, error)
	Ping(ctx context.Context) error
}

type ServerOptions struct {
	Store   TodoStore
	Cache   cache.TodoCache
	Metrics *metrics.Metrics
	Log     logrus.FieldLogger
	// Timeout bounds each request's storage work. Zero disables it.
	Timeout time.Duration
}

type Server struct {
	store   TodoStore
	cache   cache.TodoCache
	metrics *metrics.Metrics
	log     logrus.FieldLogger
	timeout time.Duration

	router  *httprouter.Router
	handler http.Handler
}

func NewServer(opts ServerOptions) *Server {
	s := &Server{
		store:   opts.Store,
		cache:   opts.Cache,
		metrics: opts.Metrics,
		log:     opts.Log,
		timeout: opts.Timeout,
		router:  httprouter.New(),
	}
	if s.cache == nil {
		s.cache = cache.Nop{}
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}

	s.routes()
	s.handler = requestID(accessLog(s.log, recovery(s.log, s.router)))
	return s
}

func (s *Server) routes() {
	s.handle(http.MethodPost, "/users", s.createUser)

	s.handle(http.MethodGet, "/todos", s.listTodos)
	s.handle(http.MethodPost, "/todos", s.createTodo)
	s.handle(http.MethodGet, "/todos/:id", s.getTodo)
	s.handle(http.MethodPut, "/todos/:id", s.updateTodo)
	s.handle(http.MethodDelete, "/todos/:id", s.deleteTodo)

	s.handle(http.MethodGet, "/health", s.health)
	s.handle(http.MethodGet, "/ready", s.ready)
	if s.metrics != nil {
		s.router.Handler(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	s.router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	s.router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
}

// handle registers h under route, bounding it by the request timeout and
// recording its outcome against the route pattern. A panic is counted as a 500
// and passed on to the recovery middleware.
func (s *Server) handle(method, route string, h httprouter.Handle) {
	s.router.Handle(method, route, func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		if s.timeout > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
			defer cancel()
			r = r.WithContext(ctx)
		}

		defer func() {
			rv := recover()
			status := rec.code()
			if rv != nil && rec.status == 0 {
				status = http.StatusInternalServerError
			}
			if s.metrics != nil {
				s.metrics.ObserveRequest(method, route, status, time.Since(start))
			}
			if rv != nil {
				panic(rv)
			}
		}()

		h(rec, r, p)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "UP"})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.WithError(err).Warn("readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "DOWN"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "UP"})
}
