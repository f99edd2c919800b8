package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"path"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/terralens/forestmap/internal/analysis"
	"github.com/terralens/forestmap/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for uploads and analysis runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/v1/uploads", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Name string `json:"name"`
			}
			if req.Body != nil {
				_ = json.NewDecoder(req.Body).Decode(&body)
			}

			url, key, err := env.Objects.PresignedUpload(req.Context(), body.Name)
			if err != nil {
				zap.L().Error("presign upload failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "presign failed"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{
				"upload_url":     url,
				"descriptor_key": key,
			})
		})

		r.Post("/v1/analyze", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				DescriptorKey string `json:"descriptor_key"`
				StartDate     string `json:"start_date"`
				EndDate       string `json:"end_date"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.DescriptorKey == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "descriptor_key is required"})
				return
			}

			run, outcome, err := executeRun(req.Context(), env, body.DescriptorKey, body.StartDate, body.EndDate)
			if err != nil {
				status := statusForRunError(err)
				zap.L().Error("analysis run failed",
					zap.String("descriptor_key", body.DescriptorKey),
					zap.Int("status", status),
					zap.Error(err))
				resp := map[string]string{"error": err.Error()}
				if run != nil {
					resp["run_id"] = run.ID
				}
				writeJSON(w, status, resp)
				return
			}

			mapURL, err := env.Objects.PresignedDownload(req.Context(), outcome.MapKey, path.Base(outcome.MapKey))
			if err != nil {
				zap.L().Error("presign map download failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "presign failed"})
				return
			}

			writeJSON(w, http.StatusOK, map[string]any{
				"run_id":  run.ID,
				"outcome": outcome,
				"map_url": mapURL,
			})
		})

		r.Get("/v1/runs", func(w http.ResponseWriter, req *http.Request) {
			runs, err := env.Store.ListRuns(req.Context(), runFilterFromQuery(req.URL.Query()))
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list runs failed"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
		})

		r.Get("/v1/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
			run, err := env.Store.GetRun(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
				return
			}
			writeJSON(w, http.StatusOK, run)
		})

		r.Get("/v1/runs/{id}/artifacts", func(w http.ResponseWriter, req *http.Request) {
			run, err := env.Store.GetRun(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
				return
			}
			if run.Result == nil {
				writeJSON(w, http.StatusConflict, map[string]string{"error": "run has no artifacts"})
				return
			}

			mapURL, err := env.Objects.PresignedDownload(req.Context(), run.Result.MapKey, path.Base(run.Result.MapKey))
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "presign failed"})
				return
			}
			statsURL, err := env.Objects.PresignedDownload(req.Context(), run.Result.StatsKey, path.Base(run.Result.StatsKey))
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "presign failed"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{
				"map_url":   mapURL,
				"stats_url": statsURL,
			})
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// runFilterFromQuery reads the list-runs query parameters. Bad or
// negative numbers fall back to the store defaults.
func runFilterFromQuery(q url.Values) store.RunFilter {
	filter := store.RunFilter{Status: store.RunStatus(q.Get("status"))}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		filter.Limit = n
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n > 0 {
		filter.Offset = n
	}
	return filter
}

// statusForRunError maps pipeline failures onto HTTP statuses: bad input
// is the caller's fault, missing or cloudy imagery is unprocessable, a
// flaky provider is a bad gateway, anything else is internal.
func statusForRunError(err error) int {
	switch {
	case errors.Is(err, analysis.ErrMalformedInput):
		return http.StatusBadRequest
	case errors.Is(err, analysis.ErrNoImagery),
		errors.Is(err, analysis.ErrTooCloudy),
		errors.Is(err, analysis.ErrNoTilesMerged):
		return http.StatusUnprocessableEntity
	case errors.Is(err, analysis.ErrProviderUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
