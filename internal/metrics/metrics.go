// Package metrics exposes engine activity as prometheus collectors. A nil
// *Collectors is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "eraforge"

type Collectors struct {
	intentsTotal    *prometheus.CounterVec
	intentDuration  *prometheus.HistogramVec
	workerTicks     *prometheus.CounterVec
	workerBlocked   *prometheus.CounterVec
	workerProduced  *prometheus.CounterVec
	resources       *prometheus.GaugeVec
	workers         *prometheus.GaugeVec
	eraIndex        prometheus.Gauge
	feedingFactor   prometheus.Gauge
	historicalTotal *prometheus.CounterVec
	savesTotal      *prometheus.CounterVec
	sessions        prometheus.Gauge
	notifyDropped   prometheus.Counter
}

func New() *Collectors {
	return &Collectors{
		intentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "intents_total",
				Help:      "Player intents by name and outcome code",
			},
			[]string{"intent", "code"},
		),
		intentDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "intent_duration_seconds",
				Help:      "Intent handling duration distribution",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"intent"},
		),
		workerTicks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workers",
				Name:      "ticks_total",
				Help:      "Worker ticks by worker type",
			},
			[]string{"worker"},
		),
		workerBlocked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workers",
				Name:      "blocked_units_total",
				Help:      "Worker units that could not pay their consumption",
			},
			[]string{"worker"},
		),
		workerProduced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workers",
				Name:      "produced_total",
				Help:      "Resources produced by worker ticks",
			},
			[]string{"resource"},
		),
		resources: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "resource_quantity",
				Help:      "Current ledger quantity per resource",
			},
			[]string{"resource"},
		),
		workers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_count",
				Help:      "Hired units per worker type",
			},
			[]string{"worker"},
		),
		eraIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "era_index",
			Help:      "Position of the current era in the era order",
		}),
		feedingFactor: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feeding_factor",
			Help:      "Worker efficiency factor from the colony feeding state",
		}),
		historicalTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "historical_events_total",
				Help:      "Historical events applied",
			},
			[]string{"event"},
		),
		savesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "saves_total",
				Help:      "Save attempts by trigger and status",
			},
			[]string{"trigger", "status"},
		),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "sessions",
			Help:      "Connected gateway sessions",
		}),
		notifyDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "notifications_dropped_total",
			Help:      "Notifications dropped because a session queue was full",
		}),
	}
}

// Register registers every collector with reg.
func (c *Collectors) Register(reg prometheus.Registerer) error {
	if c == nil || reg == nil {
		return nil
	}
	for _, m := range []prometheus.Collector{
		c.intentsTotal,
		c.intentDuration,
		c.workerTicks,
		c.workerBlocked,
		c.workerProduced,
		c.resources,
		c.workers,
		c.eraIndex,
		c.feedingFactor,
		c.historicalTotal,
		c.savesTotal,
		c.sessions,
		c.notifyDropped,
	} {
		if err := reg.Register(m); err != nil {
			return err
		}
	}
	return nil
}

// RecordIntent counts one intent; code is empty on success.
func (c *Collectors) RecordIntent(intent, code string, seconds float64) {
	if c == nil {
		return
	}
	if code == "" {
		code = "ok"
	}
	c.intentsTotal.WithLabelValues(intent, code).Inc()
	c.intentDuration.WithLabelValues(intent).Observe(seconds)
}

func (c *Collectors) RecordTick(worker string, blocked int, produced map[string]float64, feedingFactor float64) {
	if c == nil {
		return
	}
	c.workerTicks.WithLabelValues(worker).Inc()
	if blocked > 0 {
		c.workerBlocked.WithLabelValues(worker).Add(float64(blocked))
	}
	for r, v := range produced {
		if v > 0 {
			c.workerProduced.WithLabelValues(r).Add(v)
		}
	}
	c.feedingFactor.Set(feedingFactor)
}

// ObserveState refreshes the ledger, roster and era gauges.
func (c *Collectors) ObserveState(resources map[string]float64, workers map[string]int, eraIndex int) {
	if c == nil {
		return
	}
	for r, v := range resources {
		c.resources.WithLabelValues(r).Set(v)
	}
	for w, n := range workers {
		c.workers.WithLabelValues(w).Set(float64(n))
	}
	c.eraIndex.Set(float64(eraIndex))
}

func (c *Collectors) RecordHistoricalEvent(id string) {
	if c == nil {
		return
	}
	c.historicalTotal.WithLabelValues(id).Inc()
}

func (c *Collectors) RecordSave(trigger string, err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.savesTotal.WithLabelValues(trigger, status).Inc()
}

func (c *Collectors) SessionOpened() {
	if c == nil {
		return
	}
	c.sessions.Inc()
}

func (c *Collectors) SessionClosed() {
	if c == nil {
		return
	}
	c.sessions.Dec()
}

func (c *Collectors) NotificationDropped() {
	if c == nil {
		return
	}
	c.notifyDropped.Inc()
}
