package model

// Direction 配对交易方向
type Direction string

const (
	// DirLongAShortB 做多 A、做空 B
	// 当 z < -entry 时触发（A 相对 B 偏便宜）
	DirLongAShortB Direction = "long_a_short_b"
	// DirShortALongB 做空 A、做多 B
	// 当 z > entry 时触发（A 相对 B 偏贵）
	DirShortALongB Direction = "short_a_long_b"
)

// Valid 判断方向是否为已知取值
func (d Direction) Valid() bool {
	return d == DirLongAShortB || d == DirShortALongB
}

// SignA A 腿方向系数：多头 1，空头 -1
func (d Direction) SignA() float64 {
	if d == DirLongAShortB {
		return 1
	}
	return -1
}

// SignB B 腿方向系数：多头 1，空头 -1
func (d Direction) SignB() float64 {
	return -d.SignA()
}

// Decision 决策预言机的判定结果
type Decision string

const (
	// DecisionEntry 允许入场
	DecisionEntry Decision = "ENTRY"
	// DecisionPass 放弃入场
	DecisionPass Decision = "PASS"
)

// OracleRequest 决策预言机请求特征
type OracleRequest struct {
	// ZScore 当前 z-score
	ZScore float64 `json:"z_score"`
	// Ratio 当前价格比率
	Ratio float64 `json:"ratio"`
	// PriceA A 腿价格
	PriceA float64 `json:"price_a"`
	// PriceB B 腿价格
	PriceB float64 `json:"price_b"`
	// Change24hA A 腿 24 小时涨跌幅（%），可空
	Change24hA NullFloat `json:"change_24h_a"`
	// Change24hB B 腿 24 小时涨跌幅（%），可空
	Change24hB NullFloat `json:"change_24h_b"`
	// News 最新新闻标题，可空
	News []string `json:"news,omitempty"`
}

// OracleResponse 决策预言机响应
type OracleResponse struct {
	// Decision 判定: ENTRY 或 PASS
	Decision Decision `json:"decision"`
	// Confidence 置信度 0-100
	Confidence int `json:"confidence"`
	// Reason 判定理由
	Reason string `json:"reason"`
}

// SignalEvent 入场信号事件
// 每次 check_entry 触发并询问预言机时生成一条
type SignalEvent struct {
	// ID 信号唯一标识
	ID string `json:"id"`
	// TimestampMs 信号时间戳（毫秒）
	TimestampMs int64 `json:"ts_ms"`
	// Direction 候选方向
	Direction Direction `json:"direction"`
	// ZScore 触发时 z-score
	ZScore float64 `json:"z_score"`
	// Ratio 触发时比率
	Ratio float64 `json:"ratio"`
	// PriceA A 腿价格
	PriceA float64 `json:"price_a"`
	// PriceB B 腿价格
	PriceB float64 `json:"price_b"`
	// Decision 预言机判定
	Decision Decision `json:"decision"`
	// Confidence 预言机置信度
	Confidence int `json:"confidence"`
	// Reason 预言机理由
	Reason string `json:"reason"`
	// NewsCount 注入的新闻条数
	NewsCount int `json:"news_count"`
	// Approved 是否通过预言机门控
	Approved bool `json:"approved"`
	// Opened 是否实际开仓
	Opened bool `json:"opened"`
	// RefuseReason 开仓被拒原因（若有）
	RefuseReason string `json:"refuse_reason,omitempty"`
}
