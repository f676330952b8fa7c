package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var authAttempts = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "prompta_auth_attempts_total",
		Help: "Authentication attempts by method and outcome",
	},
	[]string{"method", "success"},
)
