package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// TokenOperations counts login/logout/introspect/refresh outcomes.
	TokenOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_operations_total",
			Help: "Total number of token lifecycle operations",
		},
		[]string{"operation", "result"},
	)

	// CleanupDeletedTokens counts rows reclaimed by the cleanup passes.
	CleanupDeletedTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cleanup_deleted_tokens_total",
			Help: "Total number of token records deleted by cleanup",
		},
		[]string{"store"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(TokenOperations, CleanupDeletedTokens)
}
