package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/auction-docs/internal/model"
	"github.com/sells-group/auction-docs/internal/monitoring"
	"github.com/sells-group/auction-docs/internal/store"
)

const statusLookbackHours = 24

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API that triggers and inspects scrapes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initScrapeEnv(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(newServer(ctx, env.Pipeline, env.Store, env.Archive)),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// runner performs a full scrape.
type runner interface {
	Run(ctx context.Context, trigger string) (*model.RunResult, error)
}

// server holds the dependencies of the HTTP handlers. Only one scrape runs
// at a time.
type server struct {
	ctx       context.Context
	runner    runner
	store     store.Store
	docs      monitoring.DocumentLister
	collector *monitoring.Collector
	running   atomic.Bool
	now       func() time.Time
}

// newServer creates a server. Scrapes triggered over HTTP run under ctx, not
// the request context, so a disconnecting client does not abort them.
func newServer(ctx context.Context, r runner, st store.Store, docs monitoring.DocumentLister) *server {
	return &server{
		ctx:       ctx,
		runner:    r,
		store:     st,
		docs:      docs,
		collector: monitoring.NewCollector(st, docs),
		now:       time.Now,
	}
}

func newRouter(s *server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleIndex)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/status", s.handleStatus)
	r.Post("/scraping/vip", s.handleScrape)
	r.Get("/documents", s.handleDocuments)
	r.Get("/pdfs", s.handleDocuments)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Get("/{id}", s.handleGetRun)
	})
	return r
}

func (s *server) timestamp() string {
	return s.now().Format(time.RFC3339)
}

func (s *server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "auction document harvester",
		"endpoints": map[string]string{
			"scraping_vip": "/scraping/vip",
			"status":       "/status",
			"documents":    "/documents",
			"runs":         "/runs",
		},
	})
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":    "online",
		"message":   "service running",
		"timestamp": s.timestamp(),
		"scraping":  s.running.Load(),
	}
	snap, err := s.collector.Collect(r.Context(), statusLookbackHours)
	if err != nil {
		zap.L().Warn("status: collect metrics", zap.Error(err))
	} else {
		body["metrics"] = snap
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *server) handleScrape(w http.ResponseWriter, _ *http.Request) {
	if !s.running.CompareAndSwap(false, true) {
		writeJSON(w, http.StatusConflict, s.errorBody("a scrape is already running"))
		return
	}
	defer s.running.Store(false)

	zap.L().Info("scrape triggered over http")
	result, err := s.runner.Run(s.ctx, "http")
	if err != nil {
		zap.L().Error("http scrape failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, s.errorBody("scrape failed: "+err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "success",
		"message":     "scrape complete",
		"timestamp":   s.timestamp(),
		"run_id":      result.RunID,
		"total":       len(result.Documents),
		"documents":   result.Paths(),
		"failures":    len(result.Failures),
		"interrupted": result.Interrupted,
		"stats":       result.Stats,
	})
}

func (s *server) handleDocuments(w http.ResponseWriter, _ *http.Request) {
	files, err := s.docs.List()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, s.errorBody("list documents: "+err.Error()))
		return
	}
	if len(files) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "empty",
			"message":   "no documents found",
			"total":     0,
			"documents": []model.StoredFile{},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"total":     len(files),
		"documents": files,
	})
}

func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{Status: model.RunStatus(r.URL.Query().Get("status"))}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, s.errorBody("invalid limit"))
			return
		}
		filter.Limit = n
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, s.errorBody("list runs: "+err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": len(runs), "runs": runs})
}

func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, s.errorBody("run not found"))
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, s.errorBody("get run: "+err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *server) errorBody(msg string) map[string]string {
	return map[string]string{
		"status":    "error",
		"message":   msg,
		"timestamp": s.timestamp(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}
