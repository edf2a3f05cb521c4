// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	encoderSpawnTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "restream_encoder_spawn_total",
		Help: "Encoder process spawn attempts by result",
	}, []string{"result"}) // result=ok|exec_error|early_exit|throttled

	encoderExitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "restream_encoder_exit_total",
		Help: "Encoder process exits by reason",
	}, []string{"reason"}) // reason=clean|crash|terminated

	encoderRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "restream_encoder_processes_running",
		Help: "Encoder processes currently tracked by the supervisor",
	})

	encoderUptime = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "restream_encoder_uptime_seconds",
		Help:    "Lifetime of encoder processes",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10), // 1s to ~3d
	})

	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "restream_proc_terminate_total",
		Help: "Signals sent to process groups by signal and result",
	}, []string{"signal", "result"})

	procWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "restream_proc_wait_total",
		Help: "Process group terminations by outcome",
	}, []string{"result"})
)

// IncEncoderSpawn records a spawn attempt.
func IncEncoderSpawn(result string) {
	encoderSpawnTotal.WithLabelValues(result).Inc()
}

// IncEncoderExit records a process exit.
func IncEncoderExit(reason string) {
	encoderExitTotal.WithLabelValues(reason).Inc()
}

// SetEncoderRunning records the number of live handles.
func SetEncoderRunning(n int) {
	encoderRunning.Set(float64(n))
}

// ObserveEncoderUptime records how long a process ran.
func ObserveEncoderUptime(seconds float64) {
	encoderUptime.Observe(seconds)
}

// IncProcTerminate records a signal delivery attempt.
func IncProcTerminate(signal, result string) {
	procTerminateTotal.WithLabelValues(signal, result).Inc()
}

// IncProcWait records how a terminated process group ended.
func IncProcWait(result string) {
	procWaitTotal.WithLabelValues(result).Inc()
}
