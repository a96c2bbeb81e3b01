// Package metrics exposes Prometheus counters for the relay server.
package metrics

import (
	"github.com/echorelay/backend/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const defaultNamespace = "echo_relay"

// Config configures the collector.
type Config struct {
	// Namespace is the metrics namespace (default: "echo_relay").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collector.
type Option func(*Config)

func WithNamespace(namespace string) Option {
	return func(c *Config) { c.Namespace = namespace }
}

func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) { c.ConstLabels = labels }
}

func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) { c.Registry = registry }
}

// Collector records session transitions and relay traffic. It implements
// session.Observer and relay.Stats.
type Collector struct {
	players          prometheus.Gauge
	playerEvents     *prometheus.CounterVec
	sessions         *prometheus.CounterVec
	connections      prometheus.Counter
	handshakeFailure prometheus.Counter
	relayErrors      prometheus.Counter
	relayedBytes     prometheus.Counter
}

// New registers the relay metrics and returns the collector.
func New(opts ...Option) *Collector {
	cfg := Config{
		Namespace: defaultNamespace,
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	factory := promauto.With(cfg.Registry)

	return &Collector{
		players: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Name:        "players",
			Help:        "Number of players currently connected to the session",
			ConstLabels: cfg.ConstLabels,
		}),
		playerEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "player_sessions_total",
			Help:        "Player joins and departures",
			ConstLabels: cfg.ConstLabels,
		}, []string{"event"}),
		sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "sessions_total",
			Help:        "Session lifecycle transitions by outcome",
			ConstLabels: cfg.ConstLabels,
		}, []string{"outcome"}),
		connections: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "connections_total",
			Help:        "Total accepted TCP connections, including failed handshakes",
			ConstLabels: cfg.ConstLabels,
		}),
		handshakeFailure: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "handshake_failures_total",
			Help:        "Connections dropped because the session token was missing or malformed",
			ConstLabels: cfg.ConstLabels,
		}),
		relayErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "relay_errors_total",
			Help:        "Connections that ended with a read or write error",
			ConstLabels: cfg.ConstLabels,
		}),
		relayedBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "relayed_bytes_total",
			Help:        "Bytes echoed back to players",
			ConstLabels: cfg.ConstLabels,
		}),
	}
}

// Observe implements session.Observer.
func (c *Collector) Observe(e session.Event) {
	switch e.Type {
	case session.EventPlayerJoined:
		c.playerEvents.WithLabelValues("joined").Inc()
	case session.EventPlayerLeft:
		c.playerEvents.WithLabelValues("left").Inc()
	case session.EventSessionBegin:
		c.sessions.WithLabelValues("begun").Inc()
	case session.EventSessionEnd:
		c.sessions.WithLabelValues("timed_out").Inc()
	case session.EventSessionShutdown:
		c.sessions.WithLabelValues("shutdown").Inc()
	}
	c.players.Set(float64(e.PlayerCount))
}

func (c *Collector) ConnectionOpened()  { c.connections.Inc() }
func (c *Collector) HandshakeFailed()   { c.handshakeFailure.Inc() }
func (c *Collector) BytesRelayed(n int) { c.relayedBytes.Add(float64(n)) }
func (c *Collector) RelayFailed()       { c.relayErrors.Inc() }
