package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"scene-rpc/message"
)

var (
	registerOnce sync.Once

	framesDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scenerpc",
			Subsystem: "dispatch",
			Name:      "frames_total",
			Help:      "Scene frames dispatched, by operation and outcome.",
		},
		[]string{"transport", "op", "outcome"},
	)
	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scenerpc",
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Time from frame receipt to encoded reply.",
			Buckets:   []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1, .25, 1},
		},
		[]string{"transport", "op"},
	)
	frameBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scenerpc",
			Subsystem: "dispatch",
			Name:      "bytes_total",
			Help:      "Scene frame bytes, by direction.",
		},
		[]string{"transport", "direction"},
	)
)

// RegisterMetrics adds the dispatch collectors to the default registry.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(framesDispatched, dispatchDuration, frameBytes)
	})
}

// Metrics records every dispatched frame in the dispatch collectors.
// Unresolved opcodes are counted under op "unknown".
func Metrics() Middleware {
	RegisterMetrics()
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Reply {
			start := time.Now()
			reply := next(ctx, req)

			op := reply.Op
			if op == "" {
				op = "unknown"
			}
			framesDispatched.WithLabelValues(req.Transport, op, reply.Outcome.String()).Inc()
			dispatchDuration.WithLabelValues(req.Transport, op).Observe(time.Since(start).Seconds())
			frameBytes.WithLabelValues(req.Transport, "in").Add(float64(len(req.Frame)))
			frameBytes.WithLabelValues(req.Transport, "out").Add(float64(len(reply.Frame)))
			return reply
		}
	}
}
