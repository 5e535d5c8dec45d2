package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pairtrade-backtester/internal/core/model"
	"pairtrade-backtester/internal/core/sim"
	"pairtrade-backtester/internal/oracle"
)

const namespace = "pairtrade"

// Metrics 回测与预言机指标
// 使用独立 Registry，同一进程可创建多份互不干扰
type Metrics struct {
	registry *prometheus.Registry

	Signals         *prometheus.CounterVec
	Trades          *prometheus.CounterVec
	WinPnL          prometheus.Counter
	Costs           prometheus.Counter
	OracleDecisions *prometheus.CounterVec
	OracleFailures  prometheus.Counter
	OracleLatency   prometheus.Histogram
	Equity          prometheus.Gauge
	Unrealized      prometheus.Gauge
	ZScore          prometheus.Gauge
	PositionOpen    prometheus.Gauge
	StepsTotal      prometheus.Counter
}

// NewMetrics 创建并注册全部指标
func NewMetrics() *Metrics {
	m := &Metrics{
		Signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signals_total",
				Help:      "Entry signals by direction and gate outcome",
			},
			[]string{"direction", "approved"},
		),
		Trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trades_total",
				Help:      "Closed trades by exit reason and result",
			},
			[]string{"exit_reason", "result"},
		),
		WinPnL: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "win_pnl_usd_total",
			Help:      "Cumulative net profit of winning trades in USD",
		}),
		Costs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "costs_usd_total",
			Help:      "Cumulative trading costs in USD",
		}),
		OracleDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "oracle_decisions_total",
				Help:      "Oracle decisions by outcome",
			},
			[]string{"decision"},
		),
		OracleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_failures_total",
			Help:      "Oracle calls that failed closed",
		}),
		OracleLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "oracle_latency_seconds",
			Help:      "Oracle call latency in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "equity_usd",
			Help:      "Equity at the latest processed step",
		}),
		Unrealized: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unrealized_pnl_usd",
			Help:      "Unrealized PnL of the open position",
		}),
		ZScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "z_score",
			Help:      "Z-score at the latest processed step",
		}),
		PositionOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "position_open",
			Help:      "1 when a pair position is open",
		}),
		StepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Processed time steps",
		}),
	}

	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(
		m.Signals, m.Trades, m.WinPnL, m.Costs,
		m.OracleDecisions, m.OracleFailures, m.OracleLatency,
		m.Equity, m.Unrealized, m.ZScore, m.PositionOpen, m.StepsTotal,
	)
	return m
}

// Registry 指标注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回挂载 /metrics 的 HTTP 处理器
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return mux
}

// RecordDecision 实现 oracle.Recorder
func (m *Metrics) RecordDecision(resp model.OracleResponse, elapsed time.Duration, failed bool) {
	m.OracleDecisions.WithLabelValues(string(resp.Decision)).Inc()
	m.OracleLatency.Observe(elapsed.Seconds())
	if failed {
		m.OracleFailures.Inc()
	}
}

// OnSignal 实现 sim.Observer
func (m *Metrics) OnSignal(ev model.SignalEvent) {
	approved := "false"
	if ev.Approved {
		approved = "true"
	}
	m.Signals.WithLabelValues(string(ev.Direction), approved).Inc()
}

// OnTrade 实现 sim.Observer
func (m *Metrics) OnTrade(tr model.TradeRecord) {
	result := "loss"
	if tr.Win {
		result = "win"
		m.WinPnL.Add(tr.NetPnL)
	}
	m.Trades.WithLabelValues(string(tr.ExitReason), result).Inc()
	m.Costs.Add(tr.TotalCost())
}

// OnStep 实现 sim.Observer
func (m *Metrics) OnStep(st sim.StepRecord) {
	m.StepsTotal.Inc()
	m.Equity.Set(st.Equity)
	m.Unrealized.Set(st.UnrealizedPnL)
	if st.ZScore.Valid {
		m.ZScore.Set(st.ZScore.Value)
	}
	if st.Status == model.StatusOpen {
		m.PositionOpen.Set(1)
	} else {
		m.PositionOpen.Set(0)
	}
}

var (
	_ sim.Observer    = (*Metrics)(nil)
	_ oracle.Recorder = (*Metrics)(nil)
)
