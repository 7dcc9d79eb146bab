package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ariadne-io/ariadne/internal/collector"
	"github.com/ariadne-io/ariadne/internal/collector/activity"
	"github.com/ariadne-io/ariadne/internal/storage"
	"github.com/ariadne-io/ariadne/internal/storage/model"
	"github.com/ariadne-io/ariadne/pkg/trace"
	"go.uber.org/zap"
)

const (
	// maxPayloadBytes caps one ingestion request body.
	maxPayloadBytes = 8 << 20
	// maxSpanBytes caps a single serialized span within a batch.
	maxSpanBytes = 64 << 10
)

// IngestHandler accepts one span batch per request. Every span is validated
// on its own; the response reports per-span rejections and the valid spans
// are stored regardless. The handler is stateless beyond the store, so any
// collector replica can take any batch.
func IngestHandler(
	store storage.SpanStore,
	bus activity.Bus[activity.IngestEvent],
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batchesReceived.Inc()

		r.Body = http.MaxBytesReader(w, r.Body, maxPayloadBytes)
		var batch trace.BatchPayload
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				HttpError(w, "Batch payload too large", http.StatusRequestEntityTooLarge, logger)
				return
			}
			logger.Error("Error encountered when decoding batch payload", zap.Error(err))
			HttpError(w, "Invalid batch payload", http.StatusBadRequest, logger)
			return
		}

		defer func(Body io.ReadCloser) {
			err := Body.Close()
			if err != nil {
				logger.Error("Error encountered when closing request body", zap.Error(err))
			}
		}(r.Body)

		response := ingestBatch(r, store, bus, batch, logger)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.Error("Error encountered when encoding ingest response", zap.Error(err))
		}
	}
}

func ingestBatch(
	r *http.Request,
	store storage.SpanStore,
	bus activity.Bus[activity.IngestEvent],
	batch trace.BatchPayload,
	logger *zap.Logger,
) trace.IngestResponse {
	var response trace.IngestResponse
	valid := make([]model.Span, 0, len(batch.Spans))
	for _, payload := range batch.Spans {
		if reason, ok := checkPayload(payload); !ok {
			response.Rejections = append(response.Rejections, trace.RejectionPayload{
				SpanID: payload.SpanID,
				Reason: reason,
			})
			spansRejected.WithLabelValues(reason).Inc()
			continue
		}
		valid = append(valid, collector.FromPayload(payload))
	}

	if len(valid) > 0 {
		result, err := store.Append(r.Context(), valid)
		if err != nil {
			logger.Error("Failed to append span batch to store", zap.Error(err))
			for _, span := range valid {
				response.Rejections = append(response.Rejections, trace.RejectionPayload{
					SpanID: span.SpanID,
					Reason: trace.RejectionStoreWriteFailed,
				})
				spansRejected.WithLabelValues(trace.RejectionStoreWriteFailed).Inc()
			}
		} else {
			// A duplicate means an earlier delivery already stored the span,
			// so the retry is acknowledged as accepted.
			response.Accepted = result.Stored + result.Duplicates
			for _, failed := range result.Failed {
				response.Rejections = append(response.Rejections, trace.RejectionPayload{
					SpanID: failed.SpanID,
					Reason: trace.RejectionStoreWriteFailed,
				})
				spansRejected.WithLabelValues(trace.RejectionStoreWriteFailed).Inc()
			}
			publishIngestActivity(bus, valid, result, logger)
		}
	}

	response.Rejected = len(response.Rejections)
	spansAccepted.Add(float64(response.Accepted))
	return response
}

// checkPayload rejects spans the stored-form validator cannot see: a span so
// large it would strain the index. Everything else defers to the shared
// validator.
func checkPayload(payload trace.SpanPayload) (reason string, ok bool) {
	encoded, err := json.Marshal(payload)
	if err != nil || len(encoded) > maxSpanBytes {
		return trace.RejectionPayloadTooLarge, false
	}
	return collector.ValidateSpan(collector.FromPayload(payload))
}

func publishIngestActivity(
	bus activity.Bus[activity.IngestEvent],
	stored []model.Span,
	result storage.AppendResult,
	logger *zap.Logger,
) {
	if bus == nil {
		return
	}
	failed := make(map[string]bool, len(result.Failed))
	for _, span := range result.Failed {
		failed[span.TraceID+"-"+span.SpanID] = true
	}
	counts := make(map[string]int)
	for _, span := range stored {
		if failed[span.TraceID+"-"+span.SpanID] {
			continue
		}
		counts[span.TraceID]++
	}
	arrived := time.Now().UTC()
	for traceID, count := range counts {
		err := bus.Publish(activity.TopicTraceIngested, activity.IngestEvent{
			TraceID:   traceID,
			SpanCount: count,
			ArrivedAt: arrived,
		})
		if err != nil {
			logger.Error("Failed to publish ingest activity", zap.Error(err))
		}
	}
}
