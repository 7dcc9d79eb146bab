// The demo frontend is the entry point of the three-service chain: it
// starts the trace for every inbound request and fans out to the backend
// through an instrumented HTTP client.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/ariadne-io/ariadne/pkg/trace"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

func initLogger() *logrus.Logger {
	log := logrus.New()
	log.Level = logrus.DebugLevel
	log.Formatter = &logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "severity",
			logrus.FieldKeyMsg:   "message",
		},
		TimestampFormat: time.RFC3339Nano,
	}
	log.Out = os.Stdout
	return log
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func fetchHandler(
	tracer *trace.Tracer,
	client *http.Client,
	logger *logrus.Logger,
	backendURL string,
	resource string,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.StartSpan(r.Context(), "fetch_"+resource+"_from_backend")
		defer span.End()
		_ = span.SetAttribute("backend.url", backendURL)
		_ = span.SetAttribute("operation", "get_"+resource)

		request, err := http.NewRequestWithContext(ctx, http.MethodGet, backendURL+"/"+resource, nil)
		if err != nil {
			httpError(w, err.Error(), http.StatusInternalServerError, logger)
			return
		}
		response, err := client.Do(request)
		if err != nil {
			logger.Errorf("Failed to reach backend: %v", err)
			_ = span.SetStatus(trace.StatusError)
			_ = span.SetAttribute("error.message", err.Error())
			httpError(w, "backend unavailable", http.StatusBadGateway, logger)
			return
		}
		defer response.Body.Close()
		_ = span.SetAttribute("response.status_code", response.StatusCode)

		var payload map[string]interface{}
		if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
			httpError(w, "invalid response from backend", http.StatusBadGateway, logger)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"source": "frontend",
			"data":   payload,
		})
	}
}

func httpError(w http.ResponseWriter, message string, statusCode int, logger *logrus.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		logger.Errorf("Failed to encode error message: %v", err)
	}
}

func main() {
	logger := initLogger()

	zapLogger, err := zap.NewProduction()
	if err != nil {
		logger.Fatalf("Failed to create tracing logger: %v", err)
	}
	defer zapLogger.Sync()

	tracer, shutdown, err := trace.NewPipeline(trace.Config{
		ServiceName:       envOr("SERVICE_NAME", "frontend"),
		CollectorEndpoint: envOr("COLLECTOR_ENDPOINT", "http://localhost:4318"),
		SamplingRatio:     1.0,
	}, zapLogger)
	if err != nil {
		logger.Fatalf("Failed to create tracing pipeline: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			logger.Errorf("Failed to flush spans on shutdown: %v", err)
		}
	}()

	backendURL := envOr("BACKEND_URL", "http://localhost:8180")
	client := &http.Client{
		Transport: &trace.Transport{Tracer: tracer},
		Timeout:   10 * time.Second,
	}

	r := mux.NewRouter()
	r.Use(trace.Middleware(tracer, zapLogger))
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "healthy",
			"service": "frontend",
		})
	}).Methods("GET")
	r.Handle("/api/users", fetchHandler(tracer, client, logger, backendURL, "users")).Methods("GET")
	r.Handle("/api/orders", fetchHandler(tracer, client, logger, backendURL, "orders")).Methods("GET")
	r.Handle("/api/products", fetchHandler(tracer, client, logger, backendURL, "products")).Methods("GET")

	addr := envOr("ADDR", ":8080")
	logger.Infof("Starting frontend at %s", addr)
	logger.Fatalf("Stopped listening! %v", http.ListenAndServe(addr, r))
}
