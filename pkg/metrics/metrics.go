// Package metrics exposes Prometheus counters for Maestro's core
// activity. The collector listens on the event bus, so instrumented
// code never imports this package.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"maestro/pkg/bus"
)

// Collector records bus activity as Prometheus metrics.
type Collector struct {
	messagesTotal   *prometheus.CounterVec
	heartbeatsTotal *prometheus.CounterVec
	compactions     prometheus.Counter
	engineSwitches  prometheus.Counter
	highlightsTotal *prometheus.CounterVec
}

// NewCollector registers the metric families on reg. Pass
// prometheus.DefaultRegisterer in production.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		messagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maestro_messages_total",
				Help: "Total conversation messages by direction",
			},
			[]string{"direction"},
		),
		heartbeatsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maestro_heartbeats_total",
				Help: "Total heartbeats by mode",
			},
			[]string{"mode"},
		),
		compactions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "maestro_compactions_total",
				Help: "Total conversation compactions",
			},
		),
		engineSwitches: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "maestro_engine_switches_total",
				Help: "Total engine switches",
			},
		),
		highlightsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maestro_highlights_total",
				Help: "Total highlight jobs by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// Start subscribes the collector to the event bus.
func (c *Collector) Start() {
	bus.Subscribe(c.observe)
}

func (c *Collector) observe(ev bus.Event) {
	switch ev.Type {
	case bus.TypeMessage:
		// Only stored rows carry a role; sender echo events for the same
		// text would double-count the outbound side.
		role, ok := ev.Data["role"].(string)
		if !ok {
			return
		}
		direction := "inbound"
		if role == "assistant" {
			direction = "outbound"
		}
		c.messagesTotal.WithLabelValues(direction).Inc()
	case bus.TypeHeartbeat:
		mode, _ := ev.Data["mode"].(string)
		c.heartbeatsTotal.WithLabelValues(mode).Inc()
	case bus.TypeCompaction:
		c.compactions.Inc()
	case bus.TypeEngineSwitch:
		c.engineSwitches.Inc()
	case bus.TypeHighlightStart:
		c.highlightsTotal.WithLabelValues("started").Inc()
	case bus.TypeHighlightDone:
		c.highlightsTotal.WithLabelValues("complete").Inc()
	case bus.TypeHighlightFailed:
		c.highlightsTotal.WithLabelValues("failed").Inc()
	}
}
