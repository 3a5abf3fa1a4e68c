package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kguard_login_attempts_total",
			Help: "Login attempts by step and outcome",
		},
		[]string{"step", "outcome"},
	)

	LockoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kguard_lockouts_total",
			Help: "Locks engaged by counter",
		},
		[]string{"counter"},
	)

	PasswordRehashTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kguard_password_rehash_total",
			Help: "Legacy hashes migrated to the current scheme, by source scheme and result",
		},
		[]string{"scheme", "result"},
	)

	PasswordResetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kguard_password_resets_total",
			Help: "Password reset requests and redemptions by outcome",
		},
		[]string{"stage", "outcome"},
	)

	AuditWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kguard_audit_write_failures_total",
			Help: "Audit events that could not be persisted",
		},
	)

	NotificationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kguard_notification_failures_total",
			Help: "Outbound notifications that failed to send",
		},
		[]string{"template"},
	)
)
