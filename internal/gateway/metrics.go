package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bytesAuthorized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamgate_gateway_bytes_authorized_total",
		Help: "Bytes debited against user quota, by action.",
	}, []string{"action"})

	refusals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamgate_gateway_refusals_total",
		Help: "Refused gateway requests by reason.",
	}, []string{"reason"})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamgate_gateway_lookup_cache_hits_total",
		Help: "Content file lookups served from the in-memory cache.",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamgate_gateway_lookup_cache_misses_total",
		Help: "Content file lookups that went to the database.",
	})
)
