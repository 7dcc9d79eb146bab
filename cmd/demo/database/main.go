// The demo database-service serves fixture data and fakes the latency of a
// real database, so its traces show connection-pool and query child spans
// under every request.
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
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

type user struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type order struct {
	ID     int             `json:"id"`
	UserID int             `json:"user_id"`
	Total  decimal.Decimal `json:"total"`
	Status string          `json:"status"`
	Items  int             `json:"items"`
}

type product struct {
	ID       int             `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	Category string          `json:"category"`
}

var users = []user{
	{ID: 1, Name: "Alice Johnson", Email: "alice@example.com", Role: "admin"},
	{ID: 2, Name: "Bob Smith", Email: "bob@example.com", Role: "user"},
	{ID: 3, Name: "Charlie Brown", Email: "charlie@example.com", Role: "user"},
	{ID: 4, Name: "Diana Prince", Email: "diana@example.com", Role: "moderator"},
	{ID: 5, Name: "Eve Wilson", Email: "eve@example.com", Role: "user"},
}

var orders = []order{
	{ID: 101, UserID: 1, Total: decimal.NewFromFloat(99.99), Status: "completed", Items: 3},
	{ID: 102, UserID: 2, Total: decimal.NewFromFloat(149.50), Status: "pending", Items: 5},
	{ID: 103, UserID: 1, Total: decimal.NewFromFloat(29.99), Status: "shipped", Items: 1},
	{ID: 104, UserID: 3, Total: decimal.NewFromFloat(299.00), Status: "completed", Items: 2},
	{ID: 105, UserID: 4, Total: decimal.NewFromFloat(75.00), Status: "processing", Items: 4},
}

var products = []product{
	{ID: 1001, Name: "Laptop", Price: decimal.NewFromFloat(999.99), Stock: 50, Category: "electronics"},
	{ID: 1002, Name: "Headphones", Price: decimal.NewFromFloat(149.99), Stock: 200, Category: "electronics"},
	{ID: 1003, Name: "Coffee Mug", Price: decimal.NewFromFloat(12.99), Stock: 500, Category: "home"},
	{ID: 1004, Name: "Notebook", Price: decimal.NewFromFloat(5.99), Stock: 1000, Category: "office"},
	{ID: 1005, Name: "Backpack", Price: decimal.NewFromFloat(79.99), Stock: 75, Category: "accessories"},
}

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

func acquireConnection(ctx context.Context, tracer *trace.Tracer) {
	_, span := tracer.StartSpan(ctx, "connection_pool_acquire")
	defer span.End()
	_ = span.SetAttribute("db.pool.active_connections", rand.Intn(11)+5)
	_ = span.SetAttribute("db.pool.max_connections", 20)
	time.Sleep(time.Duration(rand.Intn(40)+10) * time.Millisecond)
}

func runQuery(ctx context.Context, tracer *trace.Tracer, table string) {
	_, span := tracer.StartSpan(ctx, "db_query")
	defer span.End()
	_ = span.SetAttribute("db.system", "postgresql")
	_ = span.SetAttribute("db.operation", "SELECT")
	_ = span.SetAttribute("db.table", table)
	_ = span.SetAttribute("db.statement", "SELECT * FROM "+table)
	time.Sleep(time.Duration(rand.Intn(200)+100) * time.Millisecond)
}

func tableHandler(tracer *trace.Tracer, table string, rows interface{}, rowCount int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.StartSpan(r.Context(), "fetch_"+table)
		defer span.End()
		_ = span.SetAttribute("table", table)

		acquireConnection(ctx, tracer)
		runQuery(ctx, tracer, table)
		_ = span.SetAttribute("rows_returned", rowCount)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"source": "database-service",
			"table":  table,
			table:    rows,
		})
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
		ServiceName:       envOr("SERVICE_NAME", "database-service"),
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

	r := mux.NewRouter()
	r.Use(trace.Middleware(tracer, zapLogger))
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":   "healthy",
			"service":  "database-service",
			"database": "connected",
		})
	}).Methods("GET")
	r.Handle("/db/users", tableHandler(tracer, "users", users, len(users))).Methods("GET")
	r.Handle("/db/orders", tableHandler(tracer, "orders", orders, len(orders))).Methods("GET")
	r.Handle("/db/products", tableHandler(tracer, "products", products, len(products))).Methods("GET")

	addr := envOr("ADDR", ":8082")
	logger.Infof("Starting database-service at %s", addr)
	logger.Fatalf("Stopped listening! %v", http.ListenAndServe(addr, r))
}
