package router

import (
	"context"
	"net/http"

	"github.com/ariadne-io/ariadne/internal/query/handler"
	"github.com/ariadne-io/ariadne/internal/query/service"
	"go.uber.org/zap"
)
import "github.com/gorilla/mux"

func CreateRouter(
	ctx context.Context,
	traceQueryService service.TraceQueryService,
	logger *zap.Logger,
) http.Handler {
	r := mux.NewRouter()

	r.Handle(
		"/api/traces/{trace_id}", handler.GetTraceHandler(
			ctx,
			traceQueryService,
			logger,
		),
	).Methods("GET")

	r.Handle(
		"/api/traces/search", handler.SearchHandler(
			ctx,
			traceQueryService,
			logger,
		),
	).Methods("POST")

	return r
}
