package jsonl

import (
	"path/filepath"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"pairtrade-backtester/internal/config"
	"pairtrade-backtester/internal/core/model"
	"pairtrade-backtester/internal/core/sim"
)

// 输出文件名
const (
	TradesFile  = "trades.jsonl"
	SignalsFile = "signals.jsonl"
	EquityFile  = "equity.jsonl"
)

// Sink 将模拟事件写入 trades / signals / equity 三个 JSONL 文件
// 未启用的文件对应写入器为 nil，回调直接跳过
type Sink struct {
	trades  *Writer
	signals *Writer
	equity  *Writer
	logger  *zap.Logger
}

// NewSink 按输出配置在 cfg.Dir 下创建写入器，已有文件被覆盖
func NewSink(cfg config.OutputConfig, logger *zap.Logger) (*Sink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sink{logger: logger.Named("jsonl")}

	open := func(enabled bool, name string) (*Writer, error) {
		if !enabled {
			return nil, nil
		}
		return NewWriter(filepath.Join(cfg.Dir, name), cfg.BufferSize, WithTruncate())
	}

	var err error
	if s.trades, err = open(cfg.TradesEnabled, TradesFile); err != nil {
		return nil, err
	}
	if s.signals, err = open(cfg.SignalsEnabled, SignalsFile); err != nil {
		return nil, multierr.Append(err, s.Close())
	}
	if s.equity, err = open(cfg.EquityEnabled, EquityFile); err != nil {
		return nil, multierr.Append(err, s.Close())
	}
	return s, nil
}

func (s *Sink) write(w *Writer, v any) {
	if w == nil {
		return
	}
	if err := w.Write(v); err != nil {
		s.logger.Warn("JSONL 写入失败", zap.Error(err), zap.String("path", w.Path()))
	}
}

// OnSignal 实现 sim.Observer
func (s *Sink) OnSignal(ev model.SignalEvent) { s.write(s.signals, ev) }

// OnTrade 实现 sim.Observer
func (s *Sink) OnTrade(tr model.TradeRecord) { s.write(s.trades, tr) }

// OnStep 实现 sim.Observer
func (s *Sink) OnStep(st sim.StepRecord) { s.write(s.equity, st) }

// Close 关闭全部写入器
func (s *Sink) Close() error {
	var err error
	for _, w := range []*Writer{s.trades, s.signals, s.equity} {
		if w != nil {
			err = multierr.Append(err, w.Close())
		}
	}
	return err
}

var _ sim.Observer = (*Sink)(nil)
