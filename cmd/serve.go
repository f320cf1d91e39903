package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for acquisition runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/api/runs", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Query         string   `json:"query"`
				Phrasings     []string `json:"phrasings"`
				EntityType    string   `json:"entity_type"`
				MaxCandidates int      `json:"max_candidates"`
				BudgetSecs    int      `json:"budget_secs"`
				MaxConcurrent int      `json:"max_concurrent"`
				MinConfidence float64  `json:"min_confidence"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			if body.Query == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
				return
			}

			goal := model.Goal{
				Query:      body.Query,
				Phrasings:  body.Phrasings,
				EntityType: body.EntityType,
			}
			constraints := constraintsFromConfig()
			if body.MaxCandidates > 0 {
				constraints.MaxCandidates = body.MaxCandidates
			}
			if body.BudgetSecs > 0 {
				constraints.MaxWallClock = time.Duration(body.BudgetSecs) * time.Second
			}
			if body.MaxConcurrent > 0 {
				constraints.MaxConcurrent = body.MaxConcurrent
			}
			if body.MinConfidence > 0 {
				constraints.MinConfidence = body.MinConfidence
			}

			// Runs outlive the request; progress is polled via GET /api/runs.
			go func() {
				result, err := env.Orchestrator.Run(ctx, goal, constraints)
				if err != nil {
					zap.L().Error("api run failed",
						zap.String("query", goal.Query), zap.Error(err))
					return
				}
				zap.L().Info("api run complete",
					zap.String("query", goal.Query),
					zap.Int("entities", len(result.Entities)),
				)
			}()

			writeJSON(w, http.StatusAccepted, map[string]string{
				"status": "accepted",
				"query":  body.Query,
			})
		})

		r.Get("/api/runs", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			filter := store.RunFilter{
				Status: model.RunStatus(q.Get("status")),
				Limit:  intParam(q.Get("limit"), 50),
				Offset: intParam(q.Get("offset"), 0),
			}
			runs, err := env.Store.ListRuns(req.Context(), filter)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, runs)
		})

		r.Get("/api/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
			run, err := env.Store.GetRun(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
				return
			}
			writeJSON(w, http.StatusOK, run)
		})

		r.Get("/api/entities", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			minConf, _ := strconv.ParseFloat(q.Get("min_confidence"), 64)
			filter := store.EntityFilter{
				Subject:       q.Get("subject"),
				State:         model.VerificationState(q.Get("state")),
				MinConfidence: minConf,
				Limit:         intParam(q.Get("limit"), 100),
				Offset:        intParam(q.Get("offset"), 0),
			}
			entities, err := env.Store.QueryEntities(req.Context(), filter)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, entities)
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
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
