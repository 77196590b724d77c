// Package metrics exposes client activity as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yourusername/tmichat/internal/circuitbreaker"
	"github.com/yourusername/tmichat/internal/errors"
	"github.com/yourusername/tmichat/internal/irc"
	"github.com/yourusername/tmichat/internal/protocol"
	"github.com/yourusername/tmichat/internal/ratelimit"
	"github.com/yourusername/tmichat/internal/sink"
)

const namespace = "tmichat"

// Collector holds the client's counters and gauges
type Collector struct {
	registry *prometheus.Registry

	MessagesSent      prometheus.Counter
	MessagesThrottled prometheus.Counter
	MessagesExpired   prometheus.Counter
	MessagesRejected  prometheus.Counter
	SendErrors        prometheus.Counter
	JoinsSent         prometheus.Counter
	JoinsCompleted    prometheus.Counter
	JoinsRefused      prometheus.Counter
	InboundMessages   *prometheus.CounterVec
	Connections       *prometheus.CounterVec
	ClientErrors      *prometheus.CounterVec
	Connected         prometheus.Gauge
	AllowedInPeriod   prometheus.Gauge
}

// New creates a collector registered on its own registry
func New() *Collector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Collector{
		registry: reg,

		MessagesSent:      f.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "messages_sent_total", Help: "Outbound chat messages written to the transport"}),
		MessagesThrottled: f.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "messages_throttled_total", Help: "Outbound messages held back by the rate limiter"}),
		MessagesExpired:   f.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "messages_expired_total", Help: "Queued messages dropped for exceeding the cache timeout"}),
		MessagesRejected:  f.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "messages_rejected_total", Help: "Outbound messages refused because the throttle queue was full"}),
		SendErrors:        f.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "send_errors_total", Help: "Outbound messages the transport failed to write"}),
		JoinsSent:         f.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "joins_sent_total", Help: "JOIN commands sent"}),
		JoinsCompleted:    f.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "joins_completed_total", Help: "Joins confirmed by the server"}),
		JoinsRefused:      f.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "joins_refused_total", Help: "Joins refused by the server"}),
		InboundMessages: f.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "inbound_messages_total", Help: "Parsed inbound messages by command"},
			[]string{"command"}),
		Connections: f.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "connections_total", Help: "Transport connections by kind"},
			[]string{"kind"}),
		ClientErrors: f.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "errors_total", Help: "Client errors by type"},
			[]string{"type"}),
		Connected:       f.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "connected", Help: "Transport connected=1 disconnected=0"}),
		AllowedInPeriod: f.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "sends_allowed_in_period", Help: "Sends the rate limiter admits per window, from the last throttle event"}),
	}
}

// Registry returns the registry the collector's metrics live on
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Attach subscribes the collector to client's engines and adds a gauge
// reporting the outbound queue length.
func (c *Collector) Attach(client *irc.Client) {
	queue := client.Queue()
	queue.OnSent(func(*ratelimit.OutboundMessage) { c.MessagesSent.Inc() })
	queue.OnExpired(func(*ratelimit.OutboundMessage) { c.MessagesExpired.Inc() })
	queue.OnSendError(func(*ratelimit.OutboundMessage, error) { c.SendErrors.Inc() })
	queue.OnRejected(func(*ratelimit.OutboundMessage, error) { c.MessagesRejected.Inc() })
	queue.OnThrottled(func(ev ratelimit.ThrottledEvent) {
		c.MessagesThrottled.Inc()
		c.AllowedInPeriod.Set(float64(ev.AllowedInPeriod))
	})

	channels := client.Channels()
	channels.OnJoinSent(func(string) { c.JoinsSent.Inc() })
	channels.OnJoinCompleted(func(*irc.JoinedChannel) { c.JoinsCompleted.Inc() })
	channels.OnJoinCanceled(func(string) { c.JoinsRefused.Inc() })

	client.OnAnyMessage(func(msg *protocol.Message) {
		c.InboundMessages.WithLabelValues(msg.Verb()).Inc()
	})
	client.OnConnected(func(first bool) {
		kind := "reconnect"
		if first {
			kind = "connect"
		}
		c.Connections.WithLabelValues(kind).Inc()
		c.Connected.Set(1)
	})
	client.OnDisconnected(func() { c.Connected.Set(0) })
	client.OnError(func(err error) { c.ClientErrors.WithLabelValues(errorType(err)).Inc() })

	promauto.With(c.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_size",
		Help:      "Outbound messages waiting in the throttle queue",
	}, func() float64 { return float64(queue.Size()) })
}

// AttachSink reports the Kafka publisher's counters and circuit state
func (c *Collector) AttachSink(p *sink.Publisher) {
	f := promauto.With(c.registry)
	f.NewCounterFunc(prometheus.CounterOpts{Namespace: namespace, Name: "sink_published_total", Help: "Inbound messages written to Kafka"},
		func() float64 { published, _, _ := p.Stats(); return float64(published) })
	f.NewCounterFunc(prometheus.CounterOpts{Namespace: namespace, Name: "sink_dropped_total", Help: "Inbound messages dropped because the Kafka buffer was full"},
		func() float64 { _, dropped, _ := p.Stats(); return float64(dropped) })
	f.NewCounterFunc(prometheus.CounterOpts{Namespace: namespace, Name: "sink_failed_total", Help: "Inbound messages that could not be written to Kafka"},
		func() float64 { _, _, failed := p.Stats(); return float64(failed) })
	f.NewGaugeFunc(prometheus.GaugeOpts{Namespace: namespace, Name: "sink_circuit_open", Help: "Kafka circuit breaker open=1 otherwise 0"},
		func() float64 {
			if p.BreakerState() == circuitbreaker.StateOpen {
				return 1
			}
			return 0
		})
}

// errorType labels err by its client error category
func errorType(err error) string {
	if ce, ok := errors.AsClientError(err); ok {
		return string(ce.Type)
	}
	return string(errors.ErrorTypeUnexpected)
}
