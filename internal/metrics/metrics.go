package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Planning metrics
	PlansComputed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rebalancer_plans_total",
			Help: "Total number of rebalance plans computed",
		},
		[]string{"status"},
	)

	PlanLegs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rebalancer_plan_legs",
		Help:    "Number of legs per computed plan",
		Buckets: []float64{0, 1, 2, 4, 8, 16, 32},
	})

	PlanWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rebalancer_plan_warnings_total",
			Help: "Tokens skipped while planning",
		},
		[]string{"kind"},
	)

	PlanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rebalancer_plan_duration_seconds",
		Help:    "Plan computation duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// Execution metrics
	LegsSettled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rebalancer_legs_total",
			Help: "Total number of rebalance legs issued",
		},
		[]string{"venue", "direction", "status"},
	)

	SettleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rebalancer_settle_duration_seconds",
			Help:    "Per-leg settlement duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"venue"},
	)

	OrchestratorTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rebalancer_state_transitions_total",
			Help: "Orchestrator state transitions",
		},
		[]string{"to"},
	)

	RejectedInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rebalancer_rejected_total",
			Help: "Rebalance invocations rejected before planning",
		},
		[]string{"reason"},
	)

	// Fee metrics
	FeeWithdrawals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rebalancer_fee_withdrawals_total",
		Help: "Total number of fee withdrawals",
	})

	// Oracle metrics
	OracleRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rebalancer_oracle_requests_total",
			Help: "Route oracle requests",
		},
		[]string{"kind", "status"},
	)

	// Keeper metrics
	KeeperRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rebalancer_keeper_runs_total",
			Help: "Scheduled rebalance attempts by outcome",
		},
		[]string{"result"},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rebalancer_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rebalancer_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
