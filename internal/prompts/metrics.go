package prompts

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	versionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompta_versions_created_total",
			Help: "Prompt versions created, by source",
		},
		[]string{"source"},
	)
	versionConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prompta_version_conflicts_total",
			Help: "Version number collisions that were retried",
		},
	)
)
