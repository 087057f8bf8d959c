// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the economy core.
var (
	// Mutation gate counters.
	MutationsExecutedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mutations_executed_total",
			Help: "Total mutations executed through the idempotency gate",
		},
		[]string{"scope", "status"},
	)

	MutationReplaysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mutation_replays_total",
			Help: "Total mutations answered from a stored response instead of re-executing",
		},
		[]string{"scope"},
	)

	IdempotencyConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idempotency_conflicts_total",
			Help: "Total idempotency conflicts (payload mismatch or in-progress key)",
		},
		[]string{"scope", "kind"},
	)

	AuditAppendFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_append_failures_total",
			Help: "Total audit ledger appends that failed after the mutation committed",
		},
	)

	// Progression counters.
	XPGrantedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "battlepass_xp_granted_total",
			Help: "Total XP granted to season progress",
		},
		[]string{"source"},
	)

	QuestCompletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "battlepass_quest_completions_total",
			Help: "Total quest bucket completions that awarded XP",
		},
		[]string{"kind"},
	)

	RewardClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "battlepass_reward_claims_total",
			Help: "Total tier reward claims granted",
		},
		[]string{"claim_type", "reward_type"},
	)

	TeamContributionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "battlepass_team_contributions_total",
			Help: "Total team XP contributions applied",
		},
		[]string{"capped"},
	)

	// Feature flag counters.
	FlagEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flag_evaluations_total",
			Help: "Total feature flag evaluations",
		},
		[]string{"flag", "result"},
	)

	FlagCacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flag_cache_lookups_total",
			Help: "Flag configuration cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	// Histograms.
	MutationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mutation_duration_seconds",
			Help:    "Time spent executing a mutation closure inside its transaction",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"scope"},
	)

	// Scheduler metrics.
	ReaperRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idempotency_reaper_runs_total",
			Help: "Total stale pending record sweeps",
		},
		[]string{"status"},
	)

	ReaperReclaimedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "idempotency_reaper_reclaimed_total",
			Help: "Total stale pending records marked retryable by the sweep",
		},
	)

	RollupRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_rollup_runs_total",
			Help: "Total daily analytics rollup executions",
		},
		[]string{"status"},
	)

	RollupDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analytics_rollup_duration_seconds",
			Help:    "Time taken to roll up one day of audit events",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)
)

// RecordMutationExecuted records a mutation outcome for a scope.
func RecordMutationExecuted(scope, status string) {
	MutationsExecutedTotal.WithLabelValues(scope, status).Inc()
}

// RecordMutationReplay records a replayed response.
func RecordMutationReplay(scope string) {
	MutationReplaysTotal.WithLabelValues(scope).Inc()
}

// RecordIdempotencyConflict records a payload mismatch or in-progress rejection.
func RecordIdempotencyConflict(scope, kind string) {
	IdempotencyConflictsTotal.WithLabelValues(scope, kind).Inc()
}

// RecordAuditAppendFailure records a post-commit audit append failure.
func RecordAuditAppendFailure() {
	AuditAppendFailuresTotal.Inc()
}

// RecordXPGranted records XP added to a user's season progress.
func RecordXPGranted(source string, amount int64) {
	XPGrantedTotal.WithLabelValues(source).Add(float64(amount))
}

// RecordQuestCompletion records a quest bucket crossing its threshold.
func RecordQuestCompletion(kind string) {
	QuestCompletionsTotal.WithLabelValues(kind).Inc()
}

// RecordRewardClaim records a granted tier reward.
func RecordRewardClaim(claimType, rewardType string) {
	RewardClaimsTotal.WithLabelValues(claimType, rewardType).Inc()
}

// RecordTeamContribution records an applied contribution; capped marks clamps.
func RecordTeamContribution(capped bool) {
	label := "false"
	if capped {
		label = "true"
	}
	TeamContributionsTotal.WithLabelValues(label).Inc()
}

// RecordFlagEvaluation records one flag evaluation result
// (enabled, disabled, unknown, or error).
func RecordFlagEvaluation(flag, result string) {
	FlagEvaluationsTotal.WithLabelValues(flag, result).Inc()
}

// RecordFlagCacheLookup records a cache hit, miss, or error.
func RecordFlagCacheLookup(outcome string) {
	FlagCacheLookupsTotal.WithLabelValues(outcome).Inc()
}

// ObserveMutationDuration observes closure execution time for a scope.
func ObserveMutationDuration(scope string, seconds float64) {
	MutationDurationSeconds.WithLabelValues(scope).Observe(seconds)
}

// RecordReaperRun records a stale-pending sweep execution.
func RecordReaperRun(status string) {
	ReaperRunsTotal.WithLabelValues(status).Inc()
}

// AddReaperReclaimed adds reclaimed record count from a sweep.
func AddReaperReclaimed(count int64) {
	ReaperReclaimedTotal.Add(float64(count))
}

// RecordRollupRun records an analytics rollup execution.
func RecordRollupRun(status string) {
	RollupRunsTotal.WithLabelValues(status).Inc()
}

// ObserveRollupDuration observes the duration of a rollup job.
func ObserveRollupDuration(seconds float64) {
	RollupDurationSeconds.Observe(seconds)
}
