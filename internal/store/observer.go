package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pairtrade-backtester/internal/core/model"
	"pairtrade-backtester/internal/core/sim"
)

// Observer 将模拟事件写入 SQLite
// 写入失败只记录日志，不中断模拟
type Observer struct {
	store   *SQLiteStore
	timeout time.Duration
	logger  *zap.Logger
}

// NewObserver 创建持久化观察者
func NewObserver(s *SQLiteStore, logger *zap.Logger) *Observer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Observer{store: s, timeout: 5 * time.Second, logger: logger.Named("store")}
}

func (o *Observer) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), o.timeout)
}

// OnSignal 实现 sim.Observer
func (o *Observer) OnSignal(ev model.SignalEvent) {
	ctx, cancel := o.ctx()
	defer cancel()
	if err := o.store.SaveSignal(ctx, ev); err != nil {
		o.logger.Warn("保存信号失败", zap.Error(err), zap.String("id", ev.ID))
	}
}

// OnTrade 实现 sim.Observer
func (o *Observer) OnTrade(tr model.TradeRecord) {
	ctx, cancel := o.ctx()
	defer cancel()
	if err := o.store.SaveTrade(ctx, tr); err != nil {
		o.logger.Warn("保存交易失败", zap.Error(err), zap.String("id", tr.ID))
	}
}

// OnStep 实现 sim.Observer
func (o *Observer) OnStep(st sim.StepRecord) {
	ctx, cancel := o.ctx()
	defer cancel()
	m := MonitorRecord{
		TimestampMs: st.TimestampMs,
		ZScore:      st.ZScore,
		Ratio:       st.Ratio,
		PriceA:      st.PriceA,
		PriceB:      st.PriceB,
		Change24hA:  st.Change24hA,
		Change24hB:  st.Change24hB,
		Status:      st.Status,
		Equity:      st.Equity,
	}
	if err := o.store.SaveMonitor(ctx, m); err != nil {
		o.logger.Warn("保存监控日志失败", zap.Error(err), zap.Int64("ts_ms", st.TimestampMs))
	}
}

var _ sim.Observer = (*Observer)(nil)
