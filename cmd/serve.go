package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/readmit-dqi/internal/model"
	"github.com/sells-group/readmit-dqi/internal/monitoring"
	"github.com/sells-group/readmit-dqi/internal/pipeline"
	"github.com/sells-group/readmit-dqi/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for launching and inspecting runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		api := newAPI(ctx, env.Store, env.Pipeline, cfg.Monitoring.LookbackWindowHours)
		defer api.Wait()

		checker := monitoring.NewChecker(monitoring.NewCollector(env.Store), env.Alerter, cfg.Monitoring)
		go checker.Run(ctx)

		return startServer(ctx, api.Router(cfg.Server.AllowedOrigins), resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// resolvePort prefers the flag value over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves h on port until ctx is canceled, then shuts down.
func startServer(ctx context.Context, h http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

// runExecutor runs the phases of an already created run.
type runExecutor interface {
	Execute(ctx context.Context, run *model.Run) (*pipeline.Result, error)
}

// runAPI serves the run history and launches runs in the background.
type runAPI struct {
	ctx       context.Context
	store     store.Store
	exec      runExecutor
	collector *monitoring.Collector
	lookback  int
	wg        sync.WaitGroup
}

// newAPI creates the handlers. Background runs stop when ctx is canceled.
// lookbackHours is the default metrics window.
func newAPI(ctx context.Context, st store.Store, exec runExecutor, lookbackHours int) *runAPI {
	if lookbackHours <= 0 {
		lookbackHours = 24
	}
	return &runAPI{
		ctx:       ctx,
		store:     st,
		exec:      exec,
		collector: monitoring.NewCollector(st),
		lookback:  lookbackHours,
	}
}

// Wait blocks until every launched run has returned.
func (a *runAPI) Wait() { a.wg.Wait() }

// Router builds the chi router with CORS for origins.
func (a *runAPI) Router(origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSONStatus(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/runs", a.listRuns)
		r.Post("/runs", a.createRun)
		r.Get("/runs/{id}", a.getRun)
		r.Get("/metrics", a.metrics)
	})
	return r
}

func (a *runAPI) listRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{
		Status: model.RunStatus(q.Get("status")),
		Source: q.Get("source"),
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	runs, err := a.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSONStatus(w, http.StatusOK, runs)
}

func (a *runAPI) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := a.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		zap.L().Error("api: get run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	writeJSONStatus(w, http.StatusOK, run)
}

func (a *runAPI) createRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source string `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Source == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}

	run, err := a.store.CreateRun(r.Context(), req.Source)
	if err != nil {
		zap.L().Error("api: create run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create run")
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		result, err := a.exec.Execute(a.ctx, run)
		if err != nil {
			zap.L().Error("api: run failed", zap.String("run_id", run.ID), zap.String("source", run.Source), zap.Error(err))
			return
		}
		zap.L().Info("api: run complete",
			zap.String("run_id", run.ID),
			zap.Float64("dqi", result.Audit.DQI.Score),
		)
	}()

	writeJSONStatus(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"run_id": run.ID,
		"source": run.Source,
	})
}

func (a *runAPI) metrics(w http.ResponseWriter, r *http.Request) {
	lookback := a.lookback
	if v := r.URL.Query().Get("lookback_hours"); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil || h <= 0 {
			writeError(w, http.StatusBadRequest, "lookback_hours must be a positive integer")
			return
		}
		lookback = h
	}

	snap, err := a.collector.Collect(r.Context(), lookback)
	if err != nil {
		zap.L().Error("api: collect metrics", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to collect metrics")
		return
	}
	writeJSONStatus(w, http.StatusOK, snap)
}

// requestLogger logs each request with zap.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSONStatus(w, status, map[string]string{"error": msg})
}
