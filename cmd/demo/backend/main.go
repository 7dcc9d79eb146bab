// The demo backend sits between the frontend and the database-service. Its
// handlers wrap every downstream call in business-logic spans, so the demo
// traces show more than plain HTTP hops.
package main

import (
	"context"
	"encoding/json"
	"math/rand"
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

func simulateProcessing(ctx context.Context, tracer *trace.Tracer, operation string) {
	_, span := tracer.StartSpan(ctx, "process_"+operation)
	defer span.End()
	delay := time.Duration(rand.Intn(100)+50) * time.Millisecond
	_ = span.SetAttribute("operation", operation)
	_ = span.SetAttribute("simulated_delay_ms", delay.Milliseconds())
	time.Sleep(delay)
}

func validateData(ctx context.Context, tracer *trace.Tracer, dataType string) {
	_, span := tracer.StartSpan(ctx, "validate_data")
	defer span.End()
	_ = span.SetAttribute("data_type", dataType)
	time.Sleep(time.Duration(rand.Intn(40)+10) * time.Millisecond)
	_ = span.SetAttribute("validation_result", "success")
}

func proxyHandler(
	tracer *trace.Tracer,
	client *http.Client,
	logger *logrus.Logger,
	databaseURL string,
	resource string,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		simulateProcessing(ctx, tracer, resource)

		request, err := http.NewRequestWithContext(ctx, http.MethodGet, databaseURL+"/db/"+resource, nil)
		if err != nil {
			httpError(w, err.Error(), http.StatusInternalServerError, logger)
			return
		}
		response, err := client.Do(request)
		if err != nil {
			logger.Errorf("Failed to reach database-service: %v", err)
			httpError(w, "database-service unavailable", http.StatusBadGateway, logger)
			return
		}
		defer response.Body.Close()

		var payload map[string]interface{}
		if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
			httpError(w, "invalid response from database-service", http.StatusBadGateway, logger)
			return
		}
		validateData(ctx, tracer, resource)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"source": "backend",
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
		ServiceName:       envOr("SERVICE_NAME", "backend"),
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

	databaseURL := envOr("DATABASE_SERVICE_URL", "http://localhost:8082")
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
			"service": "backend",
		})
	}).Methods("GET")
	r.Handle("/users", proxyHandler(tracer, client, logger, databaseURL, "users")).Methods("GET")
	r.Handle("/orders", proxyHandler(tracer, client, logger, databaseURL, "orders")).Methods("GET")
	r.Handle("/products", proxyHandler(tracer, client, logger, databaseURL, "products")).Methods("GET")

	addr := envOr("ADDR", ":8180")
	logger.Infof("Starting backend at %s", addr)
	logger.Fatalf("Stopped listening! %v", http.ListenAndServe(addr, r))
}
