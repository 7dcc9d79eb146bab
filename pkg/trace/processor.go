package trace

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Processor receives spans as they finish and owns their delivery to an
// exporter. OnEnd must never block the caller.
type Processor interface {
	OnEnd(span *Span)
	ForceFlush(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

const (
	DefaultBatchMaxSize  = 512
	DefaultFlushInterval = 5 * time.Second
	DefaultQueueCapacity = 2048
)

const (
	stateRunning int32 = iota
	stateShuttingDown
	stateStopped
)

var ErrProcessorStopped = errors.New("batch processor is not running")

// BatchProcessorConfig tunes a BatchProcessor. Zero fields fall back to the
// package defaults.
type BatchProcessorConfig struct {
	MaxBatchSize  int
	FlushInterval time.Duration
	QueueCapacity int
}

// BatchProcessor buffers finished spans in a bounded queue and flushes them
// to an exporter whenever a full batch accumulates or the flush interval
// elapses. When the queue is full new spans are dropped and counted, never
// blocking the request path that produced them. An export failure drops the
// batch; retrying transient transport errors is the exporter's job.
type BatchProcessor struct {
	exporter Exporter
	logger   *zap.Logger

	maxBatchSize  int
	flushInterval time.Duration

	queue        chan *Span
	dropped      atomic.Uint64
	state        atomic.Int32
	stop         chan struct{}
	done         chan struct{}
	flushRequest chan chan error
	stopOnce     sync.Once

	exportCtx    context.Context
	exportCancel context.CancelFunc
}

func NewBatchProcessor(exporter Exporter, config BatchProcessorConfig, logger *zap.Logger) *BatchProcessor {
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = DefaultBatchMaxSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = DefaultFlushInterval
	}
	if config.QueueCapacity <= 0 {
		config.QueueCapacity = DefaultQueueCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	exportCtx, exportCancel := context.WithCancel(context.Background())
	p := &BatchProcessor{
		exporter:      exporter,
		logger:        logger,
		maxBatchSize:  config.MaxBatchSize,
		flushInterval: config.FlushInterval,
		queue:         make(chan *Span, config.QueueCapacity),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
		flushRequest:  make(chan chan error),
		exportCtx:     exportCtx,
		exportCancel:  exportCancel,
	}
	go p.worker()
	return p
}

// OnEnd enqueues a finished span, or drops it when the queue is full or the
// processor is no longer running. Constant time, no blocking.
func (p *BatchProcessor) OnEnd(span *Span) {
	if p.state.Load() != stateRunning {
		p.dropped.Add(1)
		return
	}
	select {
	case p.queue <- span:
	default:
		p.dropped.Add(1)
	}
}

// Dropped reports how many spans have been discarded instead of queued.
func (p *BatchProcessor) Dropped() uint64 {
	return p.dropped.Load()
}

// ForceFlush exports everything currently buffered and returns the result of
// that export.
func (p *BatchProcessor) ForceFlush(ctx context.Context) error {
	if p.state.Load() != stateRunning {
		return ErrProcessorStopped
	}
	response := make(chan error, 1)
	select {
	case p.flushRequest <- response:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stop:
		return ErrProcessorStopped
	}
	select {
	case err := <-response:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting spans, attempts a final flush of the queue within
// the deadline of ctx, and discards whatever cannot be flushed in time. Only
// the first call does any work.
func (p *BatchProcessor) Shutdown(ctx context.Context) error {
	var err error
	p.stopOnce.Do(func() {
		p.state.Store(stateShuttingDown)
		close(p.stop)
		select {
		case <-p.done:
		case <-ctx.Done():
			p.exportCancel()
			<-p.done
			err = ctx.Err()
		}
		p.state.Store(stateStopped)
		if shutdownErr := p.exporter.Shutdown(ctx); shutdownErr != nil && err == nil {
			err = shutdownErr
		}
	})
	return err
}

func (p *BatchProcessor) worker() {
	defer close(p.done)
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()
	batch := make([]*Span, 0, p.maxBatchSize)
	for {
		select {
		case span := <-p.queue:
			batch = append(batch, span)
			if len(batch) >= p.maxBatchSize {
				p.export(batch)
				batch = batch[:0]
				ticker.Reset(p.flushInterval)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				p.export(batch)
				batch = batch[:0]
			}
		case response := <-p.flushRequest:
			batch = p.drainQueue(batch)
			var err error
			if len(batch) > 0 {
				err = p.export(batch)
				batch = batch[:0]
			}
			ticker.Reset(p.flushInterval)
			response <- err
		case <-p.stop:
			batch = p.drainQueue(batch)
			p.export(batch)
			return
		}
	}
}

// drainQueue moves everything currently buffered into batch, exporting any
// full batches it fills along the way.
func (p *BatchProcessor) drainQueue(batch []*Span) []*Span {
	for {
		select {
		case span := <-p.queue:
			batch = append(batch, span)
			if len(batch) >= p.maxBatchSize {
				p.export(batch)
				batch = batch[:0]
			}
		default:
			return batch
		}
	}
}

func (p *BatchProcessor) export(batch []*Span) error {
	if len(batch) == 0 {
		return nil
	}
	err := p.exporter.ExportSpans(p.exportCtx, batch)
	if err != nil {
		p.logger.Error(
			"failed to export span batch, dropping it",
			zap.Int("batch_size", len(batch)),
			zap.Error(err),
		)
	}
	return err
}
