package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UsageCacheLookups counts usage cache lookups by result (hit, miss, error).
	UsageCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "projectd_usage_cache_lookups_total",
			Help: "Total number of compute usage cache lookups",
		},
		[]string{"result"},
	)
	// CollaboratorRequests counts outbound calls per collaborator and outcome.
	CollaboratorRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "projectd_collaborator_requests_total",
			Help: "Total number of requests to external collaborators",
		},
		[]string{"collaborator", "operation", "status"},
	)
	// TasksTotal counts background tasks by name and outcome.
	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "projectd_tasks_total",
			Help: "Total number of background tasks",
		},
		[]string{"task", "status"},
	)
	// RequestTotal counts API requests by method, route and status.
	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "projectd_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
)
