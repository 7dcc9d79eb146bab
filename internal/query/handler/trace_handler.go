package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ariadne-io/ariadne/internal/query/service"
	"github.com/ariadne-io/ariadne/internal/storage"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// GetTraceHandler serves the assembled span tree of one trace. The result is
// whatever has arrived so far; callers read the complete flag rather than
// assuming finality.
func GetTraceHandler(
	ctx context.Context,
	qs service.TraceQueryService,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traceID := mux.Vars(r)["trace_id"]
		view, err := qs.GetTrace(ctx, traceID)
		if err != nil {
			if errors.Is(err, storage.ErrTraceNotFound) {
				HttpError(w, "Trace not found", http.StatusNotFound, logger)
				return
			}
			logger.Error("Error encountered when getting trace", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		err = json.NewEncoder(w).Encode(convertTraceViewToDTO(view))
		if err != nil {
			logger.Error("Error encountered when encoding response", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}
	}
}

// SearchHandler serves trace summaries matching the posted criteria, ordered
// by start time descending.
func SearchHandler(
	ctx context.Context,
	qs service.TraceQueryService,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var request SearchRequestDTO
		err := json.NewDecoder(r.Body).Decode(&request)
		if err != nil {
			logger.Error("Error encountered when decoding request body", zap.Error(err))
			HttpError(w, "Invalid request payload", http.StatusBadRequest, logger)
			return
		}

		defer func(Body io.ReadCloser) {
			err := Body.Close()
			if err != nil {
				logger.Error("Error encountered when closing request body", zap.Error(err))
			}
		}(r.Body)

		summaries, err := qs.Search(ctx, convertSearchRequestToParams(request))
		if err != nil {
			logger.Error("Error encountered when searching traces", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		err = json.NewEncoder(w).Encode(convertSummariesToDTO(summaries))
		if err != nil {
			logger.Error("Error encountered when encoding response", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}
	}
}
