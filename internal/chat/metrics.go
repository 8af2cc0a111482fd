package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ConnectedClients        prometheus.Gauge
	RegisteredClients       prometheus.Gauge
	MessagesTotal           *prometheus.CounterVec
	EventProcessingDuration *prometheus.HistogramVec
	DeliveriesTotal         *prometheus.CounterVec
	RejectedConnections     prometheus.Counter
}

// NewMetrics registers the chat collectors on reg. A nil reg yields
// collectors that are never exported, which is what most tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ConnectedClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "chat_connected_clients",
			Help: "Number of occupied registry slots",
		}),
		RegisteredClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "chat_registered_clients",
			Help: "Number of slots whose client has joined",
		}),
		MessagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Total frames processed by command type",
		}, []string{"type"}),
		EventProcessingDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chat_event_processing_seconds",
			Help:    "Time to process each command type",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		DeliveriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_deliveries_total",
			Help: "Outbound line deliveries by result",
		}, []string{"result"}),
		RejectedConnections: f.NewCounter(prometheus.CounterOpts{
			Name: "chat_rejected_connections_total",
			Help: "Connections closed because every slot was occupied",
		}),
	}
}
