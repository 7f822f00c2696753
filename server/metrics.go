package server

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	connectionsOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "scenerpc",
			Subsystem: "server",
			Name:      "connections_open",
			Help:      "Controller connections currently open, by transport.",
		},
		[]string{"transport"},
	)
)

func registerMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(connectionsOpen)
	})
}
