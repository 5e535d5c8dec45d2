package sim

import (
	"pairtrade-backtester/internal/core/model"
)

// StepRecord 单个时间步的权益快照
type StepRecord struct {
	// TimestampMs 时间戳（毫秒）
	TimestampMs int64 `json:"ts_ms"`
	// ZScore 当前 z-score
	ZScore model.NullFloat `json:"z_score"`
	// Ratio 当前比率
	Ratio model.NullFloat `json:"ratio"`
	// PriceA A 腿价格
	PriceA float64 `json:"price_a"`
	// PriceB B 腿价格
	PriceB float64 `json:"price_b"`
	// Change24hA A 腿 24 小时涨跌幅（%）
	Change24hA model.NullFloat `json:"change_24h_a"`
	// Change24hB B 腿 24 小时涨跌幅（%）
	Change24hB model.NullFloat `json:"change_24h_b"`
	// Equity 权益
	Equity float64 `json:"equity"`
	// Balance 可用余额
	Balance float64 `json:"balance"`
	// UnrealizedPnL 持仓未实现盈亏，空仓为 0
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	// Status 本步结束时的持仓状态
	Status model.PositionStatus `json:"status"`
}

// Observer 模拟事件观察者
// 回调在模拟循环中同步执行，实现方不得阻塞过久，也不得修改模拟状态
type Observer interface {
	OnSignal(ev model.SignalEvent)
	OnTrade(tr model.TradeRecord)
	OnStep(step StepRecord)
}

// Observers 按注册顺序扇出到多个观察者
type Observers []Observer

// OnSignal 实现 Observer
func (obs Observers) OnSignal(ev model.SignalEvent) {
	for _, o := range obs {
		o.OnSignal(ev)
	}
}

// OnTrade 实现 Observer
func (obs Observers) OnTrade(tr model.TradeRecord) {
	for _, o := range obs {
		o.OnTrade(tr)
	}
}

// OnStep 实现 Observer
func (obs Observers) OnStep(step StepRecord) {
	for _, o := range obs {
		o.OnStep(step)
	}
}

// NewsSource 按时间戳提供新闻标题
type NewsSource interface {
	Headlines(tsMs int64) []string
}

// Features 逐行附加的预言机输入
// 切片与统计行平行；缺失或越界按无值处理
type Features struct {
	// Change24hA A 腿 24 小时涨跌幅（%）
	Change24hA []model.NullFloat
	// Change24hB B 腿 24 小时涨跌幅（%）
	Change24hB []model.NullFloat
	// News 新闻来源（可选）
	News NewsSource
}

func (f Features) at(i int, tsMs int64) rowExtra {
	x := rowExtra{}
	if i >= 0 && i < len(f.Change24hA) {
		x.changeA = f.Change24hA[i]
	}
	if i >= 0 && i < len(f.Change24hB) {
		x.changeB = f.Change24hB[i]
	}
	if f.News != nil {
		x.news = f.News.Headlines(tsMs)
	}
	return x
}

type rowExtra struct {
	changeA model.NullFloat
	changeB model.NullFloat
	news    []string
}
