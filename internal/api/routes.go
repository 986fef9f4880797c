// Package api exposes the tracker engine over HTTP as JSON.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pders01/ntrack/internal/classify"
	"github.com/pders01/ntrack/internal/config"
	"github.com/pders01/ntrack/internal/debuglog"
	"github.com/pders01/ntrack/internal/engine"
	"github.com/pders01/ntrack/internal/fetch"
	"github.com/pders01/ntrack/internal/search"
	"github.com/pders01/ntrack/internal/tracker"
)

// Engine is the part of *engine.Manager the API serves.
type Engine interface {
	AddTracker(ctx context.Context, req engine.AddRequest) (*tracker.Tracker, error)
	EditTracker(ctx context.Context, id string, req engine.EditRequest) (*tracker.Tracker, error)
	DeleteTracker(ctx context.Context, id string) error
	UpdateTracker(ctx context.Context, id string) (engine.Outcome, error)
	List() []*tracker.Tracker
	Get(id string) (*tracker.Tracker, error)
	Classify(ctx context.Context, raw string) (*classify.Result, error)
	DescribeJSON(ctx context.Context, rawURL string) ([]fetch.KeyInfo, error)
	Search(query string, limit int) ([]*search.Result, error)
}

// Batcher runs a refresh batch without overlapping scheduled ones.
// *scheduler.Scheduler implements it.
type Batcher interface {
	RunOnce(ctx context.Context) (engine.BatchReport, error)
}

const (
	apiBasePath      = "/api"
	trackersBasePath = "/trackers"
	paramID          = "id"
)

func NewRouter(eng Engine, batches Batcher, cfg config.ServerConfig) http.Handler {
	h := &handler{eng: eng, batches: batches, now: time.Now}

	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Route(apiBasePath, func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(timeout))
			r.Route(trackersBasePath, func(r chi.Router) {
				r.Get("/", MakeHandler(h.handleListTrackers))
				r.Post("/", MakeHandler(h.handleCreateTracker))
				r.Route("/{"+paramID+"}", func(r chi.Router) {
					r.Get("/", MakeHandler(h.handleGetTracker))
					r.Patch("/", MakeHandler(h.handleEditTracker))
					r.Delete("/", MakeHandler(h.handleDeleteTracker))
					r.Post("/refresh", MakeHandler(h.handleRefreshTracker))
				})
			})
			r.Get("/classify", MakeHandler(h.handleClassify))
			r.Get("/json-keys", MakeHandler(h.handleJSONKeys))
			r.Get("/search", MakeHandler(h.handleSearch))
		})

		// A full batch can outlast the request timeout. It stops on its own
		// when the client goes away.
		r.Post("/refresh", MakeHandler(h.handleRefreshAll))
	})

	r.With(middleware.Timeout(timeout)).Get("/healthz", MakeHandler(h.handleHealthCheck))
	return r
}

// NewServer returns an http.Server for handler configured from cfg.
func NewServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout + 5*time.Second,
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		debuglog.WithFields(map[string]interface{}{
			"request_id": middleware.GetReqID(r.Context()),
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
		}).Debugf("%s %s in %s", r.Method, r.URL.RequestURI(), time.Since(started))
	})
}
