package main

import (
	"context"
	"net/http"
	"time"

	"github.com/ariadne-io/ariadne/internal/query/cache"
	"github.com/ariadne-io/ariadne/internal/query/router"
	"github.com/ariadne-io/ariadne/internal/query/service"
	"github.com/ariadne-io/ariadne/internal/storage/elastic"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

type config struct {
	Addr             string        `envconfig:"ADDR" default:":8081"`
	ElasticsearchURL string        `envconfig:"ELASTICSEARCH_URL" default:"http://localhost:9200"`
	TraceIdleWindow  time.Duration `envconfig:"TRACE_IDLE_WINDOW" default:"30s"`
	CacheTTL         time.Duration `envconfig:"CACHE_TTL" default:"1m"`
	CacheMaxEntries  int64         `envconfig:"CACHE_MAX_ENTRIES" default:"4096"`
}

// The query server reads the span index the collector writes. It runs as its
// own process, so it sees no collector ingest activity; spans-received falls
// back to the stored span count and completeness to stored end times.
func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		logger.Fatal("Failed to read query server configuration", zap.Error(err))
	}

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

	store := elastic.NewStore(elastic.NewClientImpl(es, elastic.Async), logger)
	traceCache, err := cache.NewTraceCache[service.TraceView](cfg.CacheMaxEntries, cfg.CacheTTL)
	if err != nil {
		logger.Fatal("Failed to create trace cache", zap.Error(err))
	}
	qs := service.NewTraceQueryService(store, traceCache, nil, cfg.TraceIdleWindow, logger)

	r := router.CreateRouter(context.Background(), qs, logger)
	logger.Info("Starting query server", zap.String("addr", cfg.Addr))
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		logger.Fatal("Failed to serve", zap.Error(err))
	}
}
