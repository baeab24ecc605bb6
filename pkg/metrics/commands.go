// Package metrics provides Prometheus metrics for the armada harness.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// Labels for metrics
	labelCommand   = "command"
	labelResult    = "result"
	labelCondition = "condition"

	// Result values
	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	// CommandsTotal counts armada CLI invocations by command and result.
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "armada_harness_commands_total",
			Help: "Total number of armada CLI calls by command and result",
		},
		[]string{labelCommand, labelResult},
	)

	// CommandDuration tracks armada CLI call durations.
	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "armada_harness_command_duration_seconds",
			Help:    "Duration of armada CLI calls in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 120, 600},
		},
		[]string{labelCommand},
	)

	// WaitPollsTotal counts status polls performed by wait loops.
	WaitPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "armada_harness_wait_polls_total",
			Help: "Total number of status polls by wait condition",
		},
		[]string{labelCondition},
	)

	// WaitDuration tracks how long wait conditions took to settle.
	WaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "armada_harness_wait_duration_seconds",
			Help:    "Time spent waiting on a condition in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		},
		[]string{labelCondition, labelResult},
	)

	// SoftDeadlineTotal counts operations refused because the run deadline passed.
	SoftDeadlineTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "armada_harness_soft_deadline_exceeded_total",
			Help: "Total number of operations refused after the soft deadline",
		},
	)
)

func init() {
	prometheus.MustRegister(
		CommandsTotal,
		CommandDuration,
		WaitPollsTotal,
		WaitDuration,
		SoftDeadlineTotal,
	)
}

// CommandTimer tracks armada CLI call timing.
type CommandTimer struct {
	command string
	start   time.Time
}

// NewCommandTimer creates a new timer for an armada CLI call.
func NewCommandTimer(command string) *CommandTimer {
	return &CommandTimer{
		command: command,
		start:   time.Now(),
	}
}

// RecordSuccess records a successful armada CLI call.
func (t *CommandTimer) RecordSuccess() {
	duration := time.Since(t.start).Seconds()
	CommandDuration.WithLabelValues(t.command).Observe(duration)
	CommandsTotal.WithLabelValues(t.command, ResultSuccess).Inc()
}

// RecordError records a failed armada CLI call.
func (t *CommandTimer) RecordError() {
	duration := time.Since(t.start).Seconds()
	CommandDuration.WithLabelValues(t.command).Observe(duration)
	CommandsTotal.WithLabelValues(t.command, ResultError).Inc()
}

// WaitTimer tracks a wait loop from first poll to its outcome.
type WaitTimer struct {
	condition string
	start     time.Time
}

// NewWaitTimer creates a new timer for a wait condition.
func NewWaitTimer(condition string) *WaitTimer {
	return &WaitTimer{
		condition: condition,
		start:     time.Now(),
	}
}

// RecordPoll counts one status poll for the condition.
func (t *WaitTimer) RecordPoll() {
	WaitPollsTotal.WithLabelValues(t.condition).Inc()
}

// RecordOutcome records the final result of the wait loop.
func (t *WaitTimer) RecordOutcome(result string) {
	duration := time.Since(t.start).Seconds()
	WaitDuration.WithLabelValues(t.condition, result).Observe(duration)
}
