package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ariadne_collector_batches_received_total",
		Help: "Number of span batches received on the ingestion endpoint.",
	})
	spansAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ariadne_collector_spans_accepted_total",
		Help: "Number of spans accepted and written to the store.",
	})
	spansRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ariadne_collector_spans_rejected_total",
		Help: "Number of spans rejected at ingestion, by reason code.",
	}, []string{"reason"})
)
