// Package metrics exposes loop and ledger activity to Prometheus.
package metrics

import (
	"context"
	"net/http"

	"options-momentum-bot/internal/interfaces"
	"options-momentum-bot/internal/runner"
	"options-momentum-bot/internal/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bot's collectors on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	Ticks       *prometheus.CounterVec // leg
	FetchErrors *prometheus.CounterVec // leg
	Decisions   *prometheus.CounterVec // leg, action
	Rotations   *prometheus.CounterVec // leg, reason
	Fills       *prometheus.CounterVec // leg, side
	LastLTP     *prometheus.GaugeVec   // leg
	DayPnL      *prometheus.GaugeVec   // leg
	Charges     *prometheus.CounterVec // leg
	Failures    *prometheus.GaugeVec   // leg
	Long        *prometheus.GaugeVec   // leg, 1 while a position is open
	Enabled     *prometheus.GaugeVec   // leg
}

var (
	_ runner.Observer      = (*Metrics)(nil)
	_ interfaces.TradeSink = (*Metrics)(nil)
)

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		Ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_ticks_total",
			Help: "LTP observations processed",
		}, []string{"leg"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_fetch_errors_total",
			Help: "Failed LTP fetches",
		}, []string{"leg"}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_decisions_total",
			Help: "State machine decisions by action",
		}, []string{"leg", "action"}),
		Rotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_rotations_total",
			Help: "Instrument rotations by reason",
		}, []string{"leg", "reason"}),
		Fills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_fills_total",
			Help: "Recorded fills",
		}, []string{"leg", "side"}),
		LastLTP: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bot_last_ltp",
			Help: "Last observed LTP of the leg's instrument",
		}, []string{"leg"}),
		DayPnL: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bot_day_pnl",
			Help: "Cumulative net profit for the day",
		}, []string{"leg"}),
		Charges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_charges_total",
			Help: "Charges paid on closed trades",
		}, []string{"leg"}),
		Failures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bot_consecutive_fetch_failures",
			Help: "Current run of failed fetches",
		}, []string{"leg"}),
		Long: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bot_position_long",
			Help: "1 while the leg holds a position",
		}, []string{"leg"}),
		Enabled: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bot_leg_enabled",
			Help: "1 while the leg is enabled",
		}, []string{"leg"}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Ticks,
		m.FetchErrors,
		m.Decisions,
		m.Rotations,
		m.Fills,
		m.LastLTP,
		m.DayPnL,
		m.Charges,
		m.Failures,
		m.Long,
		m.Enabled,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Tick(leg types.Leg, tick types.Tick) {
	m.Ticks.WithLabelValues(string(leg)).Inc()
	m.LastLTP.WithLabelValues(string(leg)).Set(tick.LTP)
}

func (m *Metrics) FetchError(leg types.Leg) {
	m.FetchErrors.WithLabelValues(string(leg)).Inc()
}

func (m *Metrics) Decision(leg types.Leg, action string) {
	m.Decisions.WithLabelValues(string(leg), action).Inc()
}

func (m *Metrics) Rotation(leg types.Leg, reason string) {
	m.Rotations.WithLabelValues(string(leg), reason).Inc()
}

func (m *Metrics) Health(h runner.Health) {
	leg := string(h.Leg)
	m.Failures.WithLabelValues(leg).Set(float64(h.ConsecutiveFailures))
	m.Long.WithLabelValues(leg).Set(boolGauge(h.Position != "" && h.Position != "FLAT"))
	m.Enabled.WithLabelValues(leg).Set(boolGauge(h.Enabled))
}

// AppendTrade updates fill counters and the day PnL gauge.
func (m *Metrics) AppendTrade(_ context.Context, rec types.TradeRecord) error {
	leg := string(rec.Leg)
	m.Fills.WithLabelValues(leg, string(rec.Side)).Inc()
	if rec.DayPnL != nil {
		m.DayPnL.WithLabelValues(leg).Set(*rec.DayPnL)
	}
	if rec.Charges != nil {
		m.Charges.WithLabelValues(leg).Add(rec.Charges.Total)
	}
	return nil
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
