package status

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/rpattn/retaildwh/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
)

// NewHandler builds the status API router. The API is read-only; loads run
// through the CLI, never over HTTP.
func NewHandler(service *Service) http.Handler {
	r := chi.NewRouter()
	r.Use(loggingMiddleware)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})
	r.Use(corsHandler.Handler)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", handleStatus(service))
		r.Get("/batches", handleBatches(service))
		r.Get("/batches/{batchID}", handleBatchDetail(service))
		r.Get("/quarantine", handleQuarantine(service))
	})

	return r
}

func handleStatus(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := service.Report(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func handleBatches(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		batches, err := service.RecentBatches(r.Context(), limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, batches)
	}
}

func handleBatchDetail(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detail, err := service.BatchDetail(r.Context(), chi.URLParam(r, "batchID"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	}
}

func handleQuarantine(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))
		filter := domain.QuarantineFilter{
			BatchID:  q.Get("batch_id"),
			RuleName: q.Get("rule"),
			Reason:   q.Get("reason"),
			Limit:    limit,
			Offset:   offset,
		}
		records, err := service.Quarantine(r.Context(), filter)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

// responseWriter captures HTTP status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		log.Printf("[HTTP] %s %s %d %s from %s", r.Method, r.URL.Path, rw.statusCode, duration, r.RemoteAddr)
	})
}
