package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cadentj/interp-workbench/internal/handlers"
	"github.com/cadentj/interp-workbench/internal/metrics"
)

type Server struct {
	httpAddr      string
	lensHandler   *handlers.LensHandler
	modelsHandler *handlers.ModelsHandler
	jobsHandler   *handlers.JobsHandler
	origins       []string
}

func NewServer(httpAddr string, lensHandler *handlers.LensHandler, modelsHandler *handlers.ModelsHandler, jobsHandler *handlers.JobsHandler, allowedOrigins []string) *Server {
	return &Server{
		httpAddr:      httpAddr,
		lensHandler:   lensHandler,
		modelsHandler: modelsHandler,
		jobsHandler:   jobsHandler,
		origins:       allowedOrigins,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.origins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			ExposedHeaders:   []string{"*"},
			AllowCredentials: true,
			MaxAge:           3600,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.lensHandler.RegisterRoutes(r)
	s.modelsHandler.RegisterRoutes(r)
	s.jobsHandler.RegisterRoutes(r)

	preg := prometheus.NewRegistry()
	metrics.Register(preg)
	preg.MustRegister(collectors.NewGoCollector())
	r.Handle("/metrics", promhttp.HandlerFor(preg, promhttp.HandlerOpts{}))

	return r
}

func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.httpAddr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	slog.Info("HTTP server starting",
		"addr", s.httpAddr,
		"endpoints", []string{"/lens/targeted", "/lens/line", "/lens/grid", "/lens/listen/{jobID}", "/models", "/jobs", "/healthz", "/metrics"})

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
