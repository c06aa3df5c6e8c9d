package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submissions counts accepted attendance submissions by status.
var Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "classattend_submissions_total",
	Help: "Accepted attendance submissions by status.",
}, []string{"status"})

// Rejections counts refused submissions by error kind.
var Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "classattend_rejections_total",
	Help: "Refused attendance submissions by error kind.",
}, []string{"kind"})

// SecurityEvents counts recorded security events by kind.
var SecurityEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "classattend_security_events_total",
	Help: "Security audit events by kind.",
}, []string{"kind"})

// SessionsCreated counts sessions opened by instructors.
var SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
	Name: "classattend_sessions_created_total",
	Help: "Sessions created.",
})
