// Package httpapi exposes the engine over HTTP: query dispatch, model
// management and operational probes.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dlorp/synapse-engine-sub002/pkg/types"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes int64 = 1 << 20

// Service defines the methods required by the HTTP API layer. Satisfied by
// orchestrator.Engine.
type Service interface {
	ProcessQuery(ctx context.Context, req types.QueryRequest) (types.QueryResponse, error)
	ListModels() []types.Model
	Status() types.StatusResponse
	StartModel(modelID string) error
	StopModel(modelID string) error
	RestartModel(modelID string) error
	Ready() bool
}

// NewMux builds the router.
func NewMux(svc Service, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Post("/query", func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		start := time.Now()
		resp, err := svc.ProcessQuery(r.Context(), req)
		if err != nil {
			if r.Context().Err() != nil {
				// Client went away; nothing useful to write.
				return
			}
			status := statusFor(err)
			log.Info().
				Int("status", status).
				Dur("dur", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Err(err).
				Msg("query failed")
			writeJSONError(w, status, err.Error())
			return
		}
		log.Info().
			Str("model", resp.ModelID).
			Str("tier", string(resp.Tier)).
			Dur("dur", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("query served")
		writeJSON(w, http.StatusOK, resp)
	})

	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.ModelsResponse{Models: svc.ListModels()})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})

	r.Route("/models/{id}", func(r chi.Router) {
		r.Post("/start", modelAction(svc.StartModel))
		r.Post("/stop", modelAction(svc.StopModel))
		r.Post("/restart", modelAction(svc.RestartModel))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("no models ready"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// modelAction adapts a model lifecycle operation into a handler.
func modelAction(fn func(modelID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := fn(id); err != nil {
			writeJSONError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"model_id": id, "result": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are gone; nothing more we can do.
		return
	}
}
