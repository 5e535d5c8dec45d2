// Package sim 实现配对交易的逐行模拟循环。
//
// 每行按时间升序处理：
// - 空仓：入场信号触发后询问预言机，批准则开仓
// - 持仓：止损优先于均值回归，退出从不询问预言机
// - 最后一行仍持仓时以 end_of_data 强制平仓，然后记录权益
//
// 模拟是单线程折叠，唯一的阻塞点是预言机调用（受 ctx 截止时间约束）。
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pairtrade-backtester/internal/config"
	"pairtrade-backtester/internal/core/ledger"
	"pairtrade-backtester/internal/core/model"
	"pairtrade-backtester/internal/core/signal"
	"pairtrade-backtester/internal/oracle"
	"pairtrade-backtester/internal/stats/rolling"
)

// ErrDataInsufficient 数据行数不超过窗口，无可交易行
var ErrDataInsufficient = errors.New("数据不足")

// Loop 模拟循环
// 配置在构造时固定；Run 每次使用新账本，可重复调用
type Loop struct {
	strategy      config.StrategyConfig
	ledgerCfg     config.LedgerConfig
	eval          *signal.Evaluator
	oracle        oracle.DecisionOracle
	minConfidence int
	news          NewsSource
	observers     Observers
	logger        *zap.Logger
}

// NewLoop 创建模拟循环
// 参数 o: 决策预言机（调用方负责用 oracle.Guard 包装不可靠实现）
// 参数 minConfidence: 入场所需置信度下限（严格大于）
func NewLoop(strategy config.StrategyConfig, ledgerCfg config.LedgerConfig, o oracle.DecisionOracle, minConfidence int, logger *zap.Logger, observers ...Observer) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if o == nil {
		o = oracle.PassOracle{Reason: "未配置预言机"}
	}
	return &Loop{
		strategy:      strategy,
		ledgerCfg:     ledgerCfg,
		eval:          signal.NewEvaluator(strategy),
		oracle:        o,
		minConfidence: minConfidence,
		observers:     Observers(observers),
		logger:        logger.Named("sim"),
	}
}

// WithNews 设置新闻来源，返回自身
func (l *Loop) WithNews(src NewsSource) *Loop {
	l.news = src
	return l
}

// Run 对齐序列回测
// 计算滚动统计与 24 小时涨跌幅后交给 RunRows
func (l *Loop) Run(ctx context.Context, series model.AlignedSeries) (*model.BacktestResult, error) {
	if len(series) <= l.strategy.Window {
		l.logger.Warn("数据不足，无法回测",
			zap.Int("rows", len(series)),
			zap.Int("window", l.strategy.Window))
		return nil, fmt.Errorf("%w: %d 行, 窗口 %d", ErrDataInsufficient, len(series), l.strategy.Window)
	}

	rows, err := rolling.Rows(series, l.strategy.Window)
	if err != nil {
		return nil, fmt.Errorf("计算滚动统计失败: %w", err)
	}

	feat := Features{
		Change24hA: rolling.PctChange(series.PricesA(), l.strategy.ChangeLookbackBars),
		Change24hB: rolling.PctChange(series.PricesB(), l.strategy.ChangeLookbackBars),
		News:       l.news,
	}
	return l.RunRows(ctx, rows, feat)
}

// RunRows 对已计算统计量的行执行模拟
func (l *Loop) RunRows(ctx context.Context, rows []model.StatRow, feat Features) (*model.BacktestResult, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: 0 行", ErrDataInsufficient)
	}

	led := ledger.New(l.ledgerCfg)
	res := &model.BacktestResult{
		InitialCapital: l.ledgerCfg.InitialCapital,
		EquityCurve:    make([]float64, 0, len(rows)),
		Timestamps:     make([]int64, 0, len(rows)),
		ZScores:        make([]model.NullFloat, 0, len(rows)),
	}

	var lastA, lastB float64
	lastIdx := len(rows) - 1
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("回测中断: %w", err)
		}
		if validPrice(row.PriceA) {
			lastA = row.PriceA
		}
		if validPrice(row.PriceB) {
			lastB = row.PriceB
		}

		// 最后一行照常评估入场，随后强制平仓
		extra := feat.at(i, row.TimestampMs)
		sig, trade := l.tick(ctx, led, row, lastA, lastB, extra)
		if sig != nil {
			res.Signals = append(res.Signals, *sig)
		}
		if trade != nil {
			res.Trades = append(res.Trades, *trade)
		}

		if i == lastIdx && led.HasPosition() {
			if tr := l.close(led, row, lastA, lastB, model.ExitEndOfData); tr != nil {
				res.Trades = append(res.Trades, *tr)
			}
		}

		eq := led.Equity(lastA, lastB)
		res.EquityCurve = append(res.EquityCurve, eq)
		res.Timestamps = append(res.Timestamps, row.TimestampMs)
		res.ZScores = append(res.ZScores, row.ZScore)
		l.observers.OnStep(StepRecord{
			TimestampMs:   row.TimestampMs,
			ZScore:        row.ZScore,
			Ratio:         row.Ratio,
			PriceA:        lastA,
			PriceB:        lastB,
			Change24hA:    extra.changeA,
			Change24hB:    extra.changeB,
			Equity:        eq,
			Balance:       led.Balance(),
			UnrealizedPnL: led.UnrealizedPnL(lastA, lastB),
			Status:        led.State().Status,
		})
	}

	res.FinalBalance = led.Balance()
	res.TotalTrades = len(res.Trades)
	for _, tr := range res.Trades {
		if tr.Win {
			res.WinningTrades++
		}
	}
	res.TotalCosts = led.TotalCosts()

	l.logger.Info("回测完成",
		zap.Int("rows", len(rows)),
		zap.Int("signals", len(res.Signals)),
		zap.Int("trades", res.TotalTrades),
		zap.Float64("final_equity", res.FinalEquity()))
	return res, nil
}

// StepInput 单次实时处理的输入
type StepInput struct {
	// Row 当前行（统计量已计算）
	Row model.StatRow
	// Change24hA A 腿 24 小时涨跌幅（%）
	Change24hA model.NullFloat
	// Change24hB B 腿 24 小时涨跌幅（%）
	Change24hB model.NullFloat
	// News 新闻标题
	News []string
}

// StepOutcome 单次实时处理的结果
type StepOutcome struct {
	// State 更新后的持仓状态，由宿主持久化
	State model.PositionState
	// Signal 入场信号事件（若有）
	Signal *model.SignalEvent
	// Trade 平仓交易（若有）
	Trade *model.TradeRecord
	// Equity 本步结束时的权益
	Equity float64
}

// Step 处理一个实时时间步
// 宿主在两次调用之间持久化 State；不做数据结束强制平仓
func (l *Loop) Step(ctx context.Context, state model.PositionState, in StepInput) (*StepOutcome, error) {
	led := ledger.New(l.ledgerCfg)
	if err := led.Restore(state); err != nil {
		return nil, fmt.Errorf("恢复持仓状态失败: %w", err)
	}
	if !validPrice(in.Row.PriceA) || !validPrice(in.Row.PriceB) {
		return nil, fmt.Errorf("%w: price_a=%v, price_b=%v", ledger.ErrInvalidPrice, in.Row.PriceA, in.Row.PriceB)
	}

	extra := rowExtra{changeA: in.Change24hA, changeB: in.Change24hB, news: in.News}
	sig, trade := l.tick(ctx, led, in.Row, in.Row.PriceA, in.Row.PriceB, extra)

	out := &StepOutcome{
		State:  led.State(),
		Signal: sig,
		Trade:  trade,
		Equity: led.Equity(in.Row.PriceA, in.Row.PriceB),
	}
	l.observers.OnStep(StepRecord{
		TimestampMs:   in.Row.TimestampMs,
		ZScore:        in.Row.ZScore,
		Ratio:         in.Row.Ratio,
		PriceA:        in.Row.PriceA,
		PriceB:        in.Row.PriceB,
		Change24hA:    in.Change24hA,
		Change24hB:    in.Change24hB,
		Equity:        out.Equity,
		Balance:       led.Balance(),
		UnrealizedPnL: led.UnrealizedPnL(in.Row.PriceA, in.Row.PriceB),
		Status:        out.State.Status,
	})
	return out, nil
}

// tick 处理一行的交易动作，入场与退出不会在同一行同时发生
func (l *Loop) tick(ctx context.Context, led *ledger.Ledger, row model.StatRow, priceA, priceB float64, extra rowExtra) (*model.SignalEvent, *model.TradeRecord) {
	if pos := led.Position(); pos != nil {
		reason, ok := l.eval.EvaluateOpen(row.ZScore, pos.Direction)
		if !ok {
			return nil, nil
		}
		return nil, l.close(led, row, priceA, priceB, reason)
	}

	fire, dir := l.eval.CheckEntry(row.ZScore)
	if !fire {
		return nil, nil
	}
	return l.enter(ctx, led, row, dir, priceA, priceB, extra), nil
}

func (l *Loop) enter(ctx context.Context, led *ledger.Ledger, row model.StatRow, dir model.Direction, priceA, priceB float64, extra rowExtra) *model.SignalEvent {
	req := model.OracleRequest{
		ZScore:     row.ZScore.Value,
		Ratio:      row.Ratio.Value,
		PriceA:     priceA,
		PriceB:     priceB,
		Change24hA: extra.changeA,
		Change24hB: extra.changeB,
		News:       extra.news,
	}
	resp := oracle.Sanitize(l.oracle.Decide(ctx, req))

	ev := model.SignalEvent{
		ID:          uuid.NewString(),
		TimestampMs: row.TimestampMs,
		Direction:   dir,
		ZScore:      row.ZScore.Value,
		Ratio:       row.Ratio.Value,
		PriceA:      priceA,
		PriceB:      priceB,
		Decision:    resp.Decision,
		Confidence:  resp.Confidence,
		Reason:      resp.Reason,
		NewsCount:   len(extra.news),
		Approved:    oracle.Approved(resp, l.minConfidence),
	}

	l.logger.Info("入场信号",
		zap.Int64("ts_ms", row.TimestampMs),
		zap.String("direction", string(dir)),
		zap.Float64("z_score", row.ZScore.Value),
		zap.String("decision", string(resp.Decision)),
		zap.Int("confidence", resp.Confidence),
		zap.Bool("approved", ev.Approved))

	if ev.Approved {
		pos, err := led.Open(dir, priceA, priceB, row.TimestampMs, row.ZScore.Value, row.Ratio.Value)
		if err != nil {
			ev.RefuseReason = err.Error()
			l.logger.Warn("开仓被拒绝", zap.Error(err), zap.Int64("ts_ms", row.TimestampMs))
		} else {
			ev.Opened = true
			l.logger.Info("开仓",
				zap.String("position_id", pos.ID),
				zap.String("direction", string(dir)),
				zap.Float64("notional", pos.Notional()),
				zap.Float64("entry_cost", pos.EntryCost))
		}
	}

	l.observers.OnSignal(ev)
	return &ev
}

func (l *Loop) close(led *ledger.Ledger, row model.StatRow, priceA, priceB float64, reason model.ExitReason) *model.TradeRecord {
	tr, err := led.Close(priceA, priceB, row.TimestampMs, row.ZScore, reason)
	if err != nil {
		l.logger.Warn("平仓失败", zap.Error(err), zap.Int64("ts_ms", row.TimestampMs))
		return nil
	}
	l.logger.Info("平仓",
		zap.String("position_id", tr.ID),
		zap.String("exit_reason", string(reason)),
		zap.Float64("net_pnl", tr.NetPnL),
		zap.Float64("duration_hours", tr.DurationHours))
	l.observers.OnTrade(*tr)
	return tr
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}
