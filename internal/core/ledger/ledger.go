// Package ledger 实现单一双腿配对仓位的资金账本。
// 重要：仅用于研究/回测，不进行真实下单。
//
// 资金模型：开仓时从余额中划出双腿名义价值与入场成本；
// 平仓时返还名义价值 + 毛盈亏 - 出场成本。
// 权益 = 余额 + 持仓估值（名义价值 + 未实现盈亏）。
package ledger

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"pairtrade-backtester/internal/config"
	"pairtrade-backtester/internal/core/model"
	"pairtrade-backtester/internal/util/timeutil"
)

var (
	// ErrPositionExists 已有持仓，违反单一持仓约束
	ErrPositionExists = errors.New("已有未平仓仓位")
	// ErrNoPosition 当前无持仓
	ErrNoPosition = errors.New("当前无持仓")
	// ErrInsufficientCapital 余额不足以覆盖名义价值与成本
	ErrInsufficientCapital = errors.New("余额不足")
	// ErrInvalidPrice 价格非法（非正或非有限值）
	ErrInvalidPrice = errors.New("价格无效")
	// ErrInvalidDirection 方向非法
	ErrInvalidDirection = errors.New("方向无效")
)

// Ledger 配对交易账本
// 非并发安全，由驱动它的模拟循环独占
type Ledger struct {
	// cfg 账本参数
	cfg config.LedgerConfig
	// balance 可用余额
	balance float64
	// pos 当前持仓（至多一个）
	pos *model.Position
	// totalCosts 累计交易成本
	totalCosts float64
	// newID 仓位 ID 生成器
	newID func() string
}

// Option 账本选项
type Option func(*Ledger)

// WithIDGenerator 指定仓位 ID 生成器
func WithIDGenerator(fn func() string) Option {
	return func(l *Ledger) {
		if fn != nil {
			l.newID = fn
		}
	}
}

// New 创建账本，余额为初始资金
// 参数 cfg: 账本参数
func New(cfg config.LedgerConfig, opts ...Option) *Ledger {
	l := &Ledger{
		cfg:     cfg,
		balance: cfg.InitialCapital,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Balance 当前可用余额
func (l *Ledger) Balance() float64 {
	return l.balance
}

// TotalCosts 累计交易成本（入场 + 出场）
func (l *Ledger) TotalCosts() float64 {
	return l.totalCosts
}

// HasPosition 是否持仓
func (l *Ledger) HasPosition() bool {
	return l.pos != nil
}

// Position 返回当前持仓副本，无持仓返回 nil
func (l *Ledger) Position() *model.Position {
	if l.pos == nil {
		return nil
	}
	p := *l.pos
	return &p
}

// Open 开仓
// 单腿名义价值 = 余额 × leg_fraction；入场成本 = 双腿名义价值 × cost_rate。
// 名义价值 + 成本超过余额时拒绝开仓，余额不变。
func (l *Ledger) Open(dir model.Direction, priceA, priceB float64, tsMs int64, z, ratio float64) (*model.Position, error) {
	if l.pos != nil {
		return nil, ErrPositionExists
	}
	if !dir.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDirection, dir)
	}
	if !validPrice(priceA) || !validPrice(priceB) {
		return nil, fmt.Errorf("%w: price_a=%v, price_b=%v", ErrInvalidPrice, priceA, priceB)
	}

	legNotional := l.balance * l.cfg.LegFraction
	total := 2 * legNotional
	cost := total * l.cfg.CostRate
	if legNotional <= 0 || total+cost > l.balance {
		return nil, fmt.Errorf("%w: 需要 %.4f, 可用 %.4f", ErrInsufficientCapital, total+cost, l.balance)
	}

	pos := &model.Position{
		ID:               l.newID(),
		Direction:        dir,
		AmountA:          legNotional / priceA,
		AmountB:          legNotional / priceB,
		EntryPriceA:      priceA,
		EntryPriceB:      priceB,
		NotionalA:        legNotional,
		NotionalB:        legNotional,
		EntryCost:        cost,
		EntryTimestampMs: tsMs,
		EntryZScore:      z,
		EntryRatio:       ratio,
	}

	l.balance -= total + cost
	l.totalCosts += cost
	l.pos = pos

	p := *pos
	return &p, nil
}

// Close 平仓并返回已实现交易记录
// 出场成本 = (amount_a × exit_a + amount_b × exit_b) × cost_rate
// 净盈亏 = 毛盈亏 - 入场成本 - 出场成本；净盈亏 > 0 计为盈利
func (l *Ledger) Close(priceA, priceB float64, tsMs int64, z model.NullFloat, reason model.ExitReason) (*model.TradeRecord, error) {
	if l.pos == nil {
		return nil, ErrNoPosition
	}
	if !validPrice(priceA) || !validPrice(priceB) {
		return nil, fmt.Errorf("%w: price_a=%v, price_b=%v", ErrInvalidPrice, priceA, priceB)
	}

	pos := l.pos
	pnlA, pnlB := pos.LegPnL(priceA, priceB)
	tradePnL := pnlA + pnlB
	exitCost := (pos.AmountA*priceA + pos.AmountB*priceB) * l.cfg.CostRate
	net := tradePnL - pos.EntryCost - exitCost

	rec := &model.TradeRecord{
		ID:               pos.ID,
		Direction:        pos.Direction,
		EntryTimestampMs: pos.EntryTimestampMs,
		ExitTimestampMs:  tsMs,
		EntryZScore:      pos.EntryZScore,
		ExitZScore:       z,
		EntryRatio:       pos.EntryRatio,
		AmountA:          pos.AmountA,
		AmountB:          pos.AmountB,
		EntryPriceA:      pos.EntryPriceA,
		EntryPriceB:      pos.EntryPriceB,
		ExitPriceA:       priceA,
		ExitPriceB:       priceB,
		NotionalA:        pos.NotionalA,
		NotionalB:        pos.NotionalB,
		PnLA:             pnlA,
		PnLB:             pnlB,
		TradePnL:         tradePnL,
		EntryCost:        pos.EntryCost,
		ExitCost:         exitCost,
		NetPnL:           net,
		DurationHours:    timeutil.HoursBetween(pos.EntryTimestampMs, tsMs),
		ExitReason:       reason,
		Win:              net > 0,
	}
	if n := pos.Notional(); n > 0 {
		rec.PnLPct = net / n * 100
	}

	l.balance += pos.Notional() + tradePnL - exitCost
	l.totalCosts += exitCost
	l.pos = nil

	return rec, nil
}

// MarkToMarket 持仓估值（名义价值 + 未实现盈亏），无持仓返回 0
func (l *Ledger) MarkToMarket(priceA, priceB float64) float64 {
	if l.pos == nil {
		return 0
	}
	pnlA, pnlB := l.pos.LegPnL(priceA, priceB)
	return l.pos.Notional() + pnlA + pnlB
}

// UnrealizedPnL 未实现盈亏，无持仓返回 0
func (l *Ledger) UnrealizedPnL(priceA, priceB float64) float64 {
	if l.pos == nil {
		return 0
	}
	pnlA, pnlB := l.pos.LegPnL(priceA, priceB)
	return pnlA + pnlB
}

// Equity 权益 = 余额 + 持仓估值
func (l *Ledger) Equity(priceA, priceB float64) float64 {
	return l.balance + l.MarkToMarket(priceA, priceB)
}

// State 导出持仓状态交接结构
func (l *Ledger) State() model.PositionState {
	if l.pos == nil {
		return model.NoPositionState(model.Some(l.balance))
	}
	return model.PositionState{
		Status:           model.StatusOpen,
		PositionID:       l.pos.ID,
		Direction:        l.pos.Direction,
		EntryZScore:      model.Some(l.pos.EntryZScore),
		EntryRatio:       model.Some(l.pos.EntryRatio),
		EntryPriceA:      model.Some(l.pos.EntryPriceA),
		EntryPriceB:      model.Some(l.pos.EntryPriceB),
		PositionSize:     l.pos.Notional(),
		EntryTimestampMs: l.pos.EntryTimestampMs,
		Balance:          model.Some(l.balance),
	}
}

// Restore 从持仓状态交接结构恢复账本
// position_size 在双腿间平均分配；Balance 无值时按初始资金扣除名义价值与入场成本推算
func (l *Ledger) Restore(state model.PositionState) error {
	switch state.Status {
	case model.StatusNoPosition, "":
		l.pos = nil
		l.balance = l.cfg.InitialCapital
		if state.Balance.Valid {
			l.balance = state.Balance.Value
		}
		return nil
	case model.StatusOpen:
	default:
		return fmt.Errorf("未知持仓状态: %s", state.Status)
	}

	if !state.Direction.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidDirection, state.Direction)
	}
	if !state.EntryPriceA.Valid || !state.EntryPriceB.Valid ||
		!validPrice(state.EntryPriceA.Value) || !validPrice(state.EntryPriceB.Value) {
		return fmt.Errorf("%w: 入场价缺失", ErrInvalidPrice)
	}
	if !(state.PositionSize > 0) || math.IsInf(state.PositionSize, 0) {
		return fmt.Errorf("仓位规模无效: %v", state.PositionSize)
	}

	legNotional := state.PositionSize / 2
	pos := &model.Position{
		ID:               state.PositionID,
		Direction:        state.Direction,
		AmountA:          legNotional / state.EntryPriceA.Value,
		AmountB:          legNotional / state.EntryPriceB.Value,
		EntryPriceA:      state.EntryPriceA.Value,
		EntryPriceB:      state.EntryPriceB.Value,
		NotionalA:        legNotional,
		NotionalB:        legNotional,
		EntryCost:        state.PositionSize * l.cfg.CostRate,
		EntryTimestampMs: state.EntryTimestampMs,
		EntryZScore:      state.EntryZScore.Value,
		EntryRatio:       state.EntryRatio.Value,
	}
	if pos.ID == "" {
		pos.ID = l.newID()
	}

	l.pos = pos
	l.balance = l.cfg.InitialCapital - pos.Notional() - pos.EntryCost
	if state.Balance.Valid {
		l.balance = state.Balance.Value
	}
	return nil
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}
