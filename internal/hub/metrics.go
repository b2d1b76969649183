package hub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskboard_hub_connections",
		Help: "Open live channel connections.",
	})
	subscriptionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskboard_hub_subscriptions",
		Help: "Active board subscriptions across all connections.",
	})
	broadcastsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskboard_hub_broadcasts_total",
		Help: "Board update broadcasts sent.",
	})
	droppedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskboard_hub_dropped_clients_total",
		Help: "Clients disconnected because their send buffer was full.",
	})
	fanoutErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskboard_hub_fanout_errors_total",
		Help: "Redis fan-out failures by operation.",
	}, []string{"op"})
)
