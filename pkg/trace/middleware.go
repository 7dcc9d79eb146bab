package trace

import (
	"net/http"

	"go.uber.org/zap"
)

// Middleware returns server middleware that continues the trace carried on
// each inbound request, or starts a new root when no valid carrier arrives.
// A malformed carrier never fails the request.
func Middleware(tracer *Tracer, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var opts []SpanOption
			remote, err := Extract(HeaderCarrier(r.Header))
			if err == nil {
				opts = append(opts, WithRemoteParent(remote))
			} else if r.Header.Get(TraceParentHeader) != "" {
				logger.Debug(
					"discarding malformed trace carrier",
					zap.String("header", r.Header.Get(TraceParentHeader)),
				)
			}

			ctx, span := tracer.StartSpan(r.Context(), r.Method+" "+r.URL.Path, opts...)
			_ = span.SetAttribute("http.method", r.Method)
			_ = span.SetAttribute("http.path", r.URL.Path)

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r.WithContext(ctx))

			_ = span.SetAttribute("http.status_code", recorder.status)
			if recorder.status >= http.StatusInternalServerError {
				_ = span.SetStatus(StatusError)
			}
			_ = span.End()
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Transport is an http.RoundTripper that starts a client span around each
// outbound request and injects the trace carrier into its headers. Wrap a
// service's HTTP client with it to continue traces downstream.
type Transport struct {
	Base   http.RoundTripper
	Tracer *Tracer
}

func (t *Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Tracer == nil {
		return base.RoundTrip(r)
	}

	ctx, span := t.Tracer.StartSpan(r.Context(), r.Method+" "+r.URL.Path)
	_ = span.SetAttribute("http.method", r.Method)
	_ = span.SetAttribute("http.url", r.URL.String())

	outbound := r.Clone(ctx)
	Inject(span.SpanContext(), HeaderCarrier(outbound.Header))

	response, err := base.RoundTrip(outbound)
	if err != nil {
		_ = span.SetStatus(StatusError)
		_ = span.End()
		return nil, err
	}
	_ = span.SetAttribute("http.status_code", response.StatusCode)
	if response.StatusCode >= http.StatusInternalServerError {
		_ = span.SetStatus(StatusError)
	}
	_ = span.End()
	return response, nil
}
