// Package metrics exposes Prometheus counters for the kathak daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	pluginInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kathak_plugin_invocations_total",
			Help: "Total number of plugin handler invocations by step",
		},
		[]string{"step"},
	)

	pluginFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kathak_plugin_failures_total",
			Help: "Total number of plugin invocations that ended in a protocol error",
		},
	)

	indexRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kathak_index_runs_total",
			Help: "Total number of index invocations by mode",
		},
		[]string{"mode"},
	)

	searches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kathak_searches_total",
			Help: "Total number of ranked searches served",
		},
	)

	historyRecords = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kathak_history_records_total",
			Help: "Total number of usage history records",
		},
	)

	sessionActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kathak_session_active",
			Help: "Whether a plugin session is currently active (0 or 1)",
		},
	)
)

// Register registers all kathak metrics with the given registry.
func Register(r prometheus.Registerer) {
	r.MustRegister(pluginInvocations, pluginFailures, indexRuns, searches, historyRecords, sessionActive)
}

// PluginInvocation counts one handler invocation for the given protocol step.
func PluginInvocation(step string) { pluginInvocations.WithLabelValues(step).Inc() }

// PluginFailure counts one invocation that produced a protocol error.
func PluginFailure() { pluginFailures.Inc() }

// IndexRun counts one indexing invocation for the given mode.
func IndexRun(mode string) { indexRuns.WithLabelValues(mode).Inc() }

// Search counts one ranked search.
func Search() { searches.Inc() }

// HistoryRecord counts one history mutation.
func HistoryRecord() { historyRecords.Inc() }

// SessionActive flips the active-session gauge.
func SessionActive(active bool) {
	if active {
		sessionActive.Set(1)
	} else {
		sessionActive.Set(0)
	}
}
