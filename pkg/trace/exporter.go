package trace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Exporter delivers batches of finished spans to their destination. Each
// batch is independent; batches may arrive out of creation order.
type Exporter interface {
	// ExportSpans sends one batch and returns once it has been delivered or
	// given up on. Implementations retry transient transport failures
	// themselves; a returned error means the batch is lost.
	ExportSpans(ctx context.Context, spans []*Span) error
	Shutdown(ctx context.Context) error
}

var ErrExporterShutdown = errors.New("exporter already shut down")

const (
	DefaultExportTimeout    = 10 * time.Second
	DefaultExportMaxRetries = 3

	defaultRetryWaitMin = 250 * time.Millisecond
	defaultRetryWaitMax = 5 * time.Second
)

// HTTPExporterConfig tunes an HTTPExporter. Endpoint is the collector base
// URL; zero values elsewhere fall back to the package defaults.
type HTTPExporterConfig struct {
	Endpoint     string
	Timeout      time.Duration
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// HTTPExporter posts span batches as JSON to a collector's ingestion
// endpoint. Transient failures (connection errors, timeouts, 429 and 5xx
// responses) are retried with exponential backoff up to the retry budget;
// permanent rejections are returned immediately so the caller can drop the
// batch.
type HTTPExporter struct {
	ingestURL string
	client    *retryablehttp.Client
	logger    *zap.Logger
	stopped   atomic.Bool
}

func NewHTTPExporter(config HTTPExporterConfig, logger *zap.Logger) (*HTTPExporter, error) {
	parsed, err := url.Parse(config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid collector endpoint %q: %w", config.Endpoint, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" || parsed.Host == "" {
		return nil, fmt.Errorf("collector endpoint %q must be an http(s) URL", config.Endpoint)
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultExportTimeout
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = DefaultExportMaxRetries
	}
	if config.RetryWaitMin <= 0 {
		config.RetryWaitMin = defaultRetryWaitMin
	}
	if config.RetryWaitMax <= 0 {
		config.RetryWaitMax = defaultRetryWaitMax
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := retryablehttp.NewClient()
	client.RetryMax = config.MaxRetries
	client.RetryWaitMin = config.RetryWaitMin
	client.RetryWaitMax = config.RetryWaitMax
	client.HTTPClient.Timeout = config.Timeout
	client.Logger = nil

	return &HTTPExporter{
		ingestURL: strings.TrimSuffix(parsed.String(), "/") + IngestPath,
		client:    client,
		logger:    logger,
	}, nil
}

func (e *HTTPExporter) ExportSpans(ctx context.Context, spans []*Span) error {
	if e.stopped.Load() {
		return ErrExporterShutdown
	}
	if len(spans) == 0 {
		return nil
	}
	body, err := json.Marshal(NewBatchPayload(spans))
	if err != nil {
		return fmt.Errorf("failed to marshal span batch: %w", err)
	}
	request, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, e.ingestURL, body)
	if err != nil {
		return fmt.Errorf("failed to build ingest request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := e.client.Do(request)
	if err != nil {
		return fmt.Errorf("failed to deliver span batch: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return fmt.Errorf(
			"collector rejected span batch with status %d: %s",
			response.StatusCode,
			strings.TrimSpace(string(detail)),
		)
	}

	var ack IngestResponse
	if err := json.NewDecoder(response.Body).Decode(&ack); err != nil {
		return fmt.Errorf("failed to decode ingest acknowledgement: %w", err)
	}
	if ack.Rejected > 0 {
		e.logger.Warn(
			"collector rejected spans from batch",
			zap.Int("accepted", ack.Accepted),
			zap.Int("rejected", ack.Rejected),
		)
	}
	return nil
}

func (e *HTTPExporter) Shutdown(context.Context) error {
	if e.stopped.Swap(true) {
		return nil
	}
	e.client.HTTPClient.CloseIdleConnections()
	return nil
}

// LogExporter writes finished spans to the process log instead of a
// collector. It backs local development when no endpoint is configured.
type LogExporter struct {
	logger *zap.Logger
}

func NewLogExporter(logger *zap.Logger) *LogExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogExporter{logger: logger}
}

func (e *LogExporter) ExportSpans(_ context.Context, spans []*Span) error {
	for _, span := range spans {
		e.logger.Info(
			"span completed",
			zap.String("trace_id", span.SpanContext().TraceID.String()),
			zap.String("span_id", span.SpanContext().SpanID.String()),
			zap.String("service", span.ServiceName()),
			zap.String("operation", span.OperationName()),
			zap.Duration("duration", span.Duration()),
			zap.String("status", span.StatusCode().String()),
		)
	}
	return nil
}

func (e *LogExporter) Shutdown(context.Context) error {
	return nil
}
