// Package metrics exposes the service's Prometheus collectors. All
// collectors are registered on the default registry and served by the
// /metrics handler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fedgate_http_requests_total",
		Help: "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fedgate_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	LoginsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fedgate_logins_started_total",
		Help: "Authorization requests built and handed to the provider.",
	})

	LoginsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fedgate_logins_completed_total",
		Help: "Login callbacks by outcome.",
	}, []string{"outcome"})

	UsersProvisioned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fedgate_users_provisioned_total",
		Help: "Local accounts created for first-seen external identities.",
	})

	DiscoveryRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fedgate_provider_discovery_refreshes_total",
		Help: "Fetches of the provider discovery document.",
	})
)

// Outcome labels for LoginsCompleted.
const (
	OutcomeSuccess        = "success"
	OutcomeStateMismatch  = "state_mismatch"
	OutcomeProviderError  = "provider_error"
	OutcomeExchangeFailed = "exchange_failed"
	OutcomeInvalidToken   = "invalid_token"
	OutcomeLinkRejected   = "link_rejected"
	OutcomeInactiveUser   = "inactive_user"
)
