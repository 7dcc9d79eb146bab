package server

import (
	"encoding/json"
	"net/http"

	"github.com/ariadne-io/ariadne/internal/collector/activity"
	"github.com/ariadne-io/ariadne/internal/storage"
	"github.com/ariadne-io/ariadne/pkg/trace"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func CreateRouter(
	store storage.SpanStore,
	bus activity.Bus[activity.IngestEvent],
	logger *zap.Logger,
) http.Handler {
	r := mux.NewRouter()

	r.Handle(trace.IngestPath, IngestHandler(store, bus, logger)).Methods("POST")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		if err != nil {
			logger.Error("Failed to encode health response", zap.Error(err))
		}
	}).Methods("GET")

	return r
}
