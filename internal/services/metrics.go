// Package services – Prometheus instrumentation.
//
// Domain counters for the construction state machine. Label cardinality is
// bounded: fall reasons come from a fixed enum and crash indexes from the
// configured schedule.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	lettersAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tower_letters_accepted_total",
		Help: "Total letters accepted into towers.",
	})

	towersFallen = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tower_falls_total",
		Help: "Total tower falls by reason.",
	}, []string{"reason"})

	towersCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tower_completed_total",
		Help: "Total towers verified complete.",
	})

	towersCrashed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tower_crashes_total",
		Help: "Total deliberate crashes of rebuilt towers.",
	})
)

func init() {
	prometheus.MustRegister(lettersAccepted, towersFallen, towersCompleted, towersCrashed)
}
