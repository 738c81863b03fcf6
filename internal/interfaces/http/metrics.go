package http

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus series the engine emits.
type Metrics struct {
	CycleDuration *prometheus.HistogramVec
	CyclesTotal   prometheus.Counter

	Candidates *prometheus.CounterVec
	Rejections *prometheus.CounterVec

	HuntsOpened    *prometheus.CounterVec
	HuntsClosed    *prometheus.CounterVec
	RealizedReturn *prometheus.HistogramVec

	OpenHunts       prometheus.Gauge
	DeployedCapital prometheus.Gauge
	SafetyMode      prometheus.Gauge

	Generation       prometheus.Gauge
	LearningVelocity prometheus.Gauge
	SuccessRate      prometheus.Gauge
}

// NewMetrics builds and registers the metric set on its own registry, so tests
// can construct as many as they like without double-registration panics.
func NewMetrics() (*Metrics, *prometheus.Registry) {
	m := &Metrics{
		CycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crypthunt_cycle_duration_seconds",
				Help:    "Duration of each hunt cycle phase in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
			},
			[]string{"phase"},
		),
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crypthunt_cycles_total",
			Help: "Total hunt cycles completed",
		}),
		Candidates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crypthunt_candidates_total",
				Help: "Scanner candidates emitted, by strategy",
			},
			[]string{"strategy"},
		),
		Rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crypthunt_rejections_total",
				Help: "Candidates rejected, by stage and reason",
			},
			[]string{"stage", "reason"},
		),
		HuntsOpened: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crypthunt_hunts_opened_total",
				Help: "Hunts opened, by strategy",
			},
			[]string{"strategy"},
		),
		HuntsClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crypthunt_hunts_closed_total",
				Help: "Hunts closed, by strategy and exit reason",
			},
			[]string{"strategy", "reason"},
		),
		RealizedReturn: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crypthunt_realized_return_pct",
				Help:    "Realized return per closed hunt, percent",
				Buckets: []float64{-10, -5, -2, -1, 0, 1, 2, 5, 10, 20},
			},
			[]string{"strategy"},
		),
		OpenHunts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crypthunt_open_hunts",
			Help: "Currently open hunts",
		}),
		DeployedCapital: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crypthunt_deployed_capital",
			Help: "Capital reserved by open hunts, quote units",
		}),
		SafetyMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crypthunt_safety_mode",
			Help: "1 while the consecutive-loss cooldown is active",
		}),
		Generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crypthunt_prior_generation",
			Help: "Current prior recalibration generation",
		}),
		LearningVelocity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crypthunt_learning_velocity",
			Help: "Change in average prediction error, recent span minus prior span",
		}),
		SuccessRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crypthunt_success_rate",
			Help: "All-time fraction of closed hunts with positive return",
		}),
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		m.CycleDuration,
		m.CyclesTotal,
		m.Candidates,
		m.Rejections,
		m.HuntsOpened,
		m.HuntsClosed,
		m.RealizedReturn,
		m.OpenHunts,
		m.DeployedCapital,
		m.SafetyMode,
		m.Generation,
		m.LearningVelocity,
		m.SuccessRate,
	)
	return m, registry
}
