package trace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

// Config is the full client pipeline configuration. Every field can be set
// from the environment; only the service name is required.
type Config struct {
	ServiceName        string        `envconfig:"SERVICE_NAME" required:"true"`
	CollectorEndpoint  string        `envconfig:"COLLECTOR_ENDPOINT" default:"http://localhost:4318"`
	BatchMaxSize       int           `envconfig:"BATCH_MAX_SIZE" default:"512"`
	BatchFlushInterval time.Duration `envconfig:"BATCH_FLUSH_INTERVAL" default:"5s"`
	QueueCapacity      int           `envconfig:"QUEUE_CAPACITY" default:"2048"`
	ExportTimeout      time.Duration `envconfig:"EXPORT_TIMEOUT" default:"10s"`
	ExportMaxRetries   int           `envconfig:"EXPORT_MAX_RETRIES" default:"3"`
	SamplingRatio      float64       `envconfig:"SAMPLING_RATIO" default:"1.0"`
}

// LoadConfig reads the pipeline configuration from the environment.
func LoadConfig() (Config, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return Config{}, fmt.Errorf("failed to read tracing configuration: %w", err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) Validate() error {
	if c.ServiceName == "" {
		return errors.New("SERVICE_NAME must not be empty")
	}
	if c.SamplingRatio < 0 || c.SamplingRatio > 1 {
		return fmt.Errorf("SAMPLING_RATIO %g is outside [0.0, 1.0]", c.SamplingRatio)
	}
	if c.BatchMaxSize < 0 || c.QueueCapacity < 0 {
		return errors.New("BATCH_MAX_SIZE and QUEUE_CAPACITY must not be negative")
	}
	return nil
}

// NewPipeline assembles the whole client side described by config: an HTTP
// exporter aimed at the collector (or a log exporter when no endpoint is
// set), a batch processor on top, and a tracer. The returned shutdown
// function drains the processor and must be called before the process exits.
func NewPipeline(config Config, logger *zap.Logger) (*Tracer, func(context.Context) error, error) {
	if err := config.Validate(); err != nil {
		return nil, nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var exporter Exporter
	if config.CollectorEndpoint == "" {
		exporter = NewLogExporter(logger)
	} else {
		httpExporter, err := NewHTTPExporter(HTTPExporterConfig{
			Endpoint:   config.CollectorEndpoint,
			Timeout:    config.ExportTimeout,
			MaxRetries: config.ExportMaxRetries,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to build span exporter: %w", err)
		}
		exporter = httpExporter
	}

	processor := NewBatchProcessor(exporter, BatchProcessorConfig{
		MaxBatchSize:  config.BatchMaxSize,
		FlushInterval: config.BatchFlushInterval,
		QueueCapacity: config.QueueCapacity,
	}, logger)

	tracer, err := NewTracer(TracerConfig{
		ServiceName: config.ServiceName,
		Processor:   processor,
		Sampler:     TraceIDRatio(config.SamplingRatio),
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return tracer, processor.Shutdown, nil
}
