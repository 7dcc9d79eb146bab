package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariadne-io/ariadne/internal/collector/activity"
	"github.com/ariadne-io/ariadne/internal/collector/otlp"
	collectorServer "github.com/ariadne-io/ariadne/internal/collector/server"
	queryCache "github.com/ariadne-io/ariadne/internal/query/cache"
	queryRouter "github.com/ariadne-io/ariadne/internal/query/router"
	queryService "github.com/ariadne-io/ariadne/internal/query/service"
	"github.com/ariadne-io/ariadne/internal/storage"
	"github.com/ariadne-io/ariadne/internal/storage/elastic"
	"github.com/ariadne-io/ariadne/internal/storage/memory"
	"github.com/asaskevich/EventBus"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/kelseyhightower/envconfig"
	protoTrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	_ "google.golang.org/grpc/encoding/gzip"
)

type config struct {
	StoreBackend     string        `envconfig:"STORE_BACKEND" default:"memory"`
	ElasticsearchURL string        `envconfig:"ELASTICSEARCH_URL" default:"http://localhost:9200"`
	GRPCAddr         string        `envconfig:"GRPC_ADDR" default:":4317"`
	HTTPAddr         string        `envconfig:"HTTP_ADDR" default:":4318"`
	QueryAddr        string        `envconfig:"QUERY_ADDR" default:":8081"`
	TraceIdleWindow  time.Duration `envconfig:"TRACE_IDLE_WINDOW" default:"30s"`
	CacheTTL         time.Duration `envconfig:"CACHE_TTL" default:"1m"`
	CacheMaxEntries  int64         `envconfig:"CACHE_MAX_ENTRIES" default:"4096"`
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		logger.Fatal("Failed to read collector configuration", zap.Error(err))
	}

	store := createStore(cfg, logger)

	rawBus := EventBus.New()
	bus := activity.NewBus[activity.IngestEvent](rawBus, logger)
	tracker, err := activity.NewTracker(bus, logger)
	if err != nil {
		logger.Fatal("Failed to create activity tracker", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	grpcServer := grpc.NewServer()
	traceServiceServer := otlp.NewTraceServiceServerImpl(store, bus, logger)
	protoTrace.RegisterTraceServiceServer(grpcServer, traceServiceServer)

	listener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("Failed to listen for OTLP traffic", zap.Error(err))
	}
	go func() {
		logger.Info("OTLP gRPC receiver started", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(listener); err != nil {
			logger.Error("OTLP gRPC receiver stopped", zap.Error(err))
		}
	}()

	ingestServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: collectorServer.CreateRouter(store, bus, logger),
	}
	go func() {
		logger.Info("HTTP ingestion endpoint started", zap.String("addr", cfg.HTTPAddr))
		if err := ingestServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP ingestion endpoint stopped", zap.Error(err))
		}
	}()

	// A memory store is only reachable from inside this process, so the
	// query API runs here as well. With Elasticsearch the standalone query
	// server reads the shared index instead.
	var queryServer *http.Server
	if cfg.StoreBackend == "memory" {
		queryServer = startEmbeddedQueryAPI(ctx, cfg, store, tracker, bus, logger)
	}

	<-ctx.Done()
	logger.Info("Shutting down collector")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	grpcServer.GracefulStop()
	if err := ingestServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down ingestion endpoint cleanly", zap.Error(err))
	}
	if queryServer != nil {
		if err := queryServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to shut down query API cleanly", zap.Error(err))
		}
	}
}

func createStore(cfg config, logger *zap.Logger) storage.SpanStore {
	switch cfg.StoreBackend {
	case "memory":
		logger.Info("Using in-memory span store")
		return memory.NewStore()
	case "elasticsearch":
		es, err := elasticsearch.NewClient(elasticsearch.Config{
			Addresses: []string{cfg.ElasticsearchURL},
		})
		if err != nil {
			logger.Fatal("Failed to create elasticsearch client", zap.Error(err))
		}
		bs := elastic.NewBootstrapper(es, logger)
		if err := bs.Bootstrap(); err != nil {
			logger.Fatal("Failed to bootstrap elasticsearch", zap.Error(err))
		}
		logger.Info("Using Elasticsearch span store", zap.String("url", cfg.ElasticsearchURL))
		return elastic.NewStore(elastic.NewClientImpl(es, elastic.Async), logger)
	default:
		logger.Fatal("Unknown store backend", zap.String("store_backend", cfg.StoreBackend))
		return nil
	}
}

func startEmbeddedQueryAPI(
	ctx context.Context,
	cfg config,
	store storage.SpanStore,
	tracker *activity.Tracker,
	bus activity.Bus[activity.IngestEvent],
	logger *zap.Logger,
) *http.Server {
	traceCache, err := queryCache.NewTraceCache[queryService.TraceView](cfg.CacheMaxEntries, cfg.CacheTTL)
	if err != nil {
		logger.Fatal("Failed to create trace cache", zap.Error(err))
	}
	err = bus.Subscribe(activity.TopicTraceIngested, func(event activity.IngestEvent) error {
		traceCache.Invalidate(event.TraceID)
		return nil
	}, false)
	if err != nil {
		logger.Fatal("Failed to subscribe cache invalidation", zap.Error(err))
	}

	qs := queryService.NewTraceQueryService(store, traceCache, tracker, cfg.TraceIdleWindow, logger)
	queryServer := &http.Server{
		Addr:    cfg.QueryAddr,
		Handler: queryRouter.CreateRouter(ctx, qs, logger),
	}
	go func() {
		logger.Info("Embedded query API started", zap.String("addr", cfg.QueryAddr))
		if err := queryServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Embedded query API stopped", zap.Error(err))
		}
	}()
	return queryServer
}
