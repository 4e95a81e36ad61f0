// Package metrics exposes session telemetry through Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the session publishes. It carries its
// own Prometheus registry so repeated construction in tests never
// collides with the default one.
type Registry struct {
	registry *prometheus.Registry

	CycleDuration *prometheus.HistogramVec

	PhaseTransitions *prometheus.CounterVec
	CurrentPhase     prometheus.Gauge

	Entries     *prometheus.CounterVec
	Exits       *prometheus.CounterVec
	Checkpoints prometheus.Counter

	DataErrors   *prometheus.CounterVec
	BrokerErrors *prometheus.CounterVec

	OpenPositions  prometheus.Gauge
	WatchedSymbols prometheus.Gauge
	AccountEquity  prometheus.Gauge
	SessionNetPnL  prometheus.Gauge
}

// NewRegistry creates and registers all session metrics.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		CycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nightfade_cycle_duration_seconds",
				Help:    "Duration of one poll cycle per phase",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"phase", "result"},
		),

		PhaseTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nightfade_phase_transitions_total",
				Help: "Total session phase transitions by from/to phase",
			},
			[]string{"from_phase", "to_phase"},
		),

		CurrentPhase: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nightfade_session_phase",
				Help: "Current phase (0=boot 1=anchor 2=monitor 3=entry 4=manage 5=exit 6=done)",
			},
		),

		Entries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nightfade_entries_total",
				Help: "Entry orders submitted by direction and trigger window",
			},
			[]string{"direction", "window"},
		),

		Exits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nightfade_exits_total",
				Help: "Exit orders submitted by reason",
			},
			[]string{"reason"},
		),

		Checkpoints: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "nightfade_checkpoints_total",
				Help: "Durable state checkpoints written",
			},
		),

		DataErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nightfade_data_errors_total",
				Help: "Market data fetch failures by operation",
			},
			[]string{"op"},
		),

		BrokerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nightfade_broker_errors_total",
				Help: "Brokerage call failures by operation",
			},
			[]string{"op"},
		),

		OpenPositions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nightfade_open_positions",
				Help: "Positions currently holding a concurrency slot",
			},
		),

		WatchedSymbols: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nightfade_watched_symbols",
				Help: "Watchlist symbols with a recorded anchor close",
			},
		),

		AccountEquity: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nightfade_account_equity_dollars",
				Help: "Account equity at the last account refresh",
			},
		),

		SessionNetPnL: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nightfade_session_net_pnl_dollars",
				Help: "Net P&L of trades closed this session",
			},
		),
	}

	r.registry.MustRegister(
		r.CycleDuration,
		r.PhaseTransitions,
		r.CurrentPhase,
		r.Entries,
		r.Exits,
		r.Checkpoints,
		r.DataErrors,
		r.BrokerErrors,
		r.OpenPositions,
		r.WatchedSymbols,
		r.AccountEquity,
		r.SessionNetPnL,
	)

	return r
}

// Handler serves this registry at /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordPhaseTransition counts the transition and moves the phase
// gauge.
func (r *Registry) RecordPhaseTransition(from, to string) {
	r.PhaseTransitions.WithLabelValues(from, to).Inc()
	r.CurrentPhase.Set(phaseValue(to))
}

// RecordEntry counts a submitted entry order.
func (r *Registry) RecordEntry(direction, window string) {
	r.Entries.WithLabelValues(direction, window).Inc()
}

// RecordExit counts a submitted exit order.
func (r *Registry) RecordExit(reason string) {
	r.Exits.WithLabelValues(reason).Inc()
}

// RecordCheckpoint counts a durable state write.
func (r *Registry) RecordCheckpoint() {
	r.Checkpoints.Inc()
}

// RecordDataError counts a failed market data operation.
func (r *Registry) RecordDataError(op string) {
	r.DataErrors.WithLabelValues(op).Inc()
}

// RecordBrokerError counts a failed brokerage call.
func (r *Registry) RecordBrokerError(op string) {
	r.BrokerErrors.WithLabelValues(op).Inc()
}

func phaseValue(phase string) float64 {
	switch phase {
	case "boot":
		return 0
	case "anchor":
		return 1
	case "monitor":
		return 2
	case "entry":
		return 3
	case "manage":
		return 4
	case "exit":
		return 5
	case "done":
		return 6
	default:
		return -1
	}
}
