package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_queued_total",
			Help: "Changes intercepted into the moderation queue",
		},
		[]string{"type", "spam"},
	)

	approvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_approved_total",
			Help: "Pending changes approved and applied",
		},
		[]string{"type"},
	)

	rejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_rejected_total",
			Help: "Pending changes rejected",
		},
		[]string{"mode"}, // single, batch, auto
	)

	mergedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "moderation_merged_total",
			Help: "Conflicted changes resolved by manual merge",
		},
	)

	conflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "moderation_conflicts_total",
			Help: "Approvals that hit an edit conflict",
		},
	)
)
