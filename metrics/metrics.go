package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_events_ingested_total",
			Help: "Total number of events ingested",
		},
		[]string{"source"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_events_dropped_total",
			Help: "Total number of events dropped before correlation",
		},
		[]string{"reason"},
	)

	ParseUnmatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_parse_unmatched_total",
			Help: "Total number of log lines no pattern matched",
		},
	)

	AlertsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_alerts_generated_total",
			Help: "Total number of alerts generated",
		},
		[]string{"kind", "severity"},
	)

	RuleEvaluationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_rule_evaluation_errors_total",
			Help: "Total number of rule evaluations that failed and were treated as non-matches",
		},
		[]string{"rule_id"},
	)

	RulesLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "argus_rules_loaded",
			Help: "Number of rules in the active rule set",
		},
	)

	RulesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_rules_skipped_total",
			Help: "Total number of rule documents skipped during load",
		},
		[]string{"reason"},
	)

	WindowKeys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "argus_window_keys",
			Help: "Number of grouping keys held by the correlation window",
		},
	)

	WindowEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_window_evictions_total",
			Help: "Total number of window entries or keys evicted",
		},
		[]string{"reason"},
	)

	ModelTrainings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_model_trainings_total",
			Help: "Total number of outlier model fits",
		},
		[]string{"algorithm", "result"},
	)

	ModelTrainDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "argus_model_train_duration_seconds",
			Help:    "Time taken to fit the outlier model",
			Buckets: prometheus.DefBuckets,
		},
	)

	FeatureExtractionFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_feature_extraction_failures_total",
			Help: "Total number of events that fell back to the zero feature vector",
		},
	)

	DispatchResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_dispatch_results_total",
			Help: "Collaborator call outcomes",
		},
		[]string{"collaborator", "result"},
	)

	DispatchDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_dispatch_dropped_total",
			Help: "Total number of alerts dropped because the dispatch queue was full",
		},
	)

	EventProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "argus_event_processing_duration_seconds",
			Help:    "Time taken to correlate and score one event",
			Buckets: prometheus.DefBuckets,
		},
	)

	RedisErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_redis_errors_total",
			Help: "Total number of failed Redis operations",
		},
		[]string{"operation"},
	)

	CandidateRules = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_candidate_rules_total",
			Help: "Candidate rules by lifecycle transition",
		},
		[]string{"transition"},
	)

	LinesCollected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_lines_collected_total",
			Help: "Total number of raw log lines read",
		},
		[]string{"source"},
	)
)
