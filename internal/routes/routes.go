package routes

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/MoldoAndr/hashbreaker/internal/config"
	"github.com/MoldoAndr/hashbreaker/internal/dispatcher"
	"github.com/MoldoAndr/hashbreaker/internal/handlers"
	"github.com/MoldoAndr/hashbreaker/internal/metrics"
	"github.com/MoldoAndr/hashbreaker/internal/store"
	"github.com/MoldoAndr/hashbreaker/pkg/debug"
)

// Setup configures all /v1 routes on a new router
func Setup(cfg *config.Config, st store.JobStore, producer dispatcher.Producer, m *metrics.Metrics) *mux.Router {
	debug.Info("Setting up /v1 API routes")

	r := mux.NewRouter()
	r.Use(loggingMiddleware)

	jobsHandler := handlers.NewJobsHandler(cfg, st, producer)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/jobs", jobsHandler.SubmitJob).Methods("POST")
	v1.HandleFunc("/jobs/{id}", jobsHandler.GetJobStatus).Methods("GET")
	v1.HandleFunc("/jobs/{id}/cancel", jobsHandler.CancelJob).Methods("POST")
	v1.HandleFunc("/health", jobsHandler.Health).Methods("GET")
	v1.Handle("/metrics", m.Handler()).Methods("GET")

	return r
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		debug.Debug("%s %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}
