// Package metrics exports connection lifecycle events as Prometheus
// metrics. The Observer plugs into a plugin.Broadcaster on either side.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/resock/resock-go/pkg/plugin"
	"github.com/resock/resock-go/pkg/wire"
)

func init() {
	// One metrics observer per broadcaster; a second would double count.
	plugin.DefaultCatalog.Tag((*Observer)(nil), plugin.Meta{Name: "prometheus", Singleton: true})
}

// Namespace prefixes every metric name.
const Namespace = "resock"

// Observer counts lifecycle events.
type Observer struct {
	events      *prometheus.CounterVec
	active      prometheus.Gauge
	reconnects  prometheus.Counter
	messageSize prometheus.Histogram
}

// NewObserver creates an observer and registers its collectors with reg.
func NewObserver(reg prometheus.Registerer) (*Observer, error) {
	o := &Observer{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "events_total",
			Help:      "Connection events by type and close code.",
		}, []string{"type", "code"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "connections_active",
			Help:      "Connections currently open.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Scheduled reconnect attempts.",
		}),
		messageSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "message_size_bytes",
			Help:      "Size of inbound data messages.",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
		}),
	}
	for _, c := range []prometheus.Collector{o.events, o.active, o.reconnects, o.messageSize} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Name implements plugin.Named.
func (o *Observer) Name() string { return "prometheus" }

// Observe implements plugin.Observer.
func (o *Observer) Observe(ev wire.Event) error {
	o.events.WithLabelValues(ev.Type.String(), strconv.Itoa(int(ev.Code))).Inc()

	switch ev.Type {
	case wire.EventNewConnection:
		o.active.Inc()
	case wire.EventClose:
		o.active.Dec()
	case wire.EventMessage:
		o.messageSize.Observe(float64(len(ev.Payload)))
	case wire.EventInfo:
		if ev.Code == wire.CodeReconnecting {
			o.reconnects.Inc()
		}
	}
	return nil
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
