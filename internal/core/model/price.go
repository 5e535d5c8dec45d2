// Package model 定义回测器中使用的核心数据结构。
// 包含价格序列、可空数值、信号、仓位与回测结果等核心类型。
package model

import (
	"bytes"
	"encoding/json"
	"math"
)

// PricePoint 单一资产的单根 K 线价格
// 每个资产每根 K 线一条，不可变
type PricePoint struct {
	// TimestampMs K 线时间戳（毫秒）
	TimestampMs int64
	// Price 收盘价
	Price float64
}

// AlignedRow 已对齐的双腿价格行
// 由调用方按时间戳内连接后生成
type AlignedRow struct {
	// TimestampMs 时间戳（毫秒）
	TimestampMs int64 `json:"ts_ms"`
	// PriceA A 腿价格
	PriceA float64 `json:"price_a"`
	// PriceB B 腿价格
	PriceB float64 `json:"price_b"`
}

// AlignedSeries 已对齐的价格序列，时间戳严格递增
type AlignedSeries []AlignedRow

// PricesA 返回 A 腿价格切片
func (s AlignedSeries) PricesA() []float64 {
	out := make([]float64, len(s))
	for i, r := range s {
		out[i] = r.PriceA
	}
	return out
}

// PricesB 返回 B 腿价格切片
func (s AlignedSeries) PricesB() []float64 {
	out := make([]float64, len(s))
	for i, r := range s {
		out[i] = r.PriceB
	}
	return out
}

// IsStrictlyIncreasing 判断时间戳是否严格递增
func (s AlignedSeries) IsStrictlyIncreasing() bool {
	for i := 1; i < len(s); i++ {
		if s[i].TimestampMs <= s[i-1].TimestampMs {
			return false
		}
	}
	return true
}

// NullFloat 可空浮点数
// Valid=false 表示"无信号"，替代 NaN 的隐式传播
type NullFloat struct {
	// Value 数值，仅在 Valid=true 时有意义
	Value float64
	// Valid 是否有值
	Valid bool
}

// Some 构造有值的 NullFloat
// 非有限值（NaN/Inf）视为无值
func Some(v float64) NullFloat {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NullFloat{}
	}
	return NullFloat{Value: v, Valid: true}
}

// None 构造无值的 NullFloat
func None() NullFloat {
	return NullFloat{}
}

// Ptr 转换为指针形式，无值返回 nil
func (n NullFloat) Ptr() *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}

// FromPtr 从指针构造 NullFloat
func FromPtr(p *float64) NullFloat {
	if p == nil {
		return NullFloat{}
	}
	return Some(*p)
}

// MarshalJSON 无值编码为 null
func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// UnmarshalJSON null 解码为无值
func (n *NullFloat) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*n = NullFloat{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*n = Some(v)
	return nil
}

// StatRow 单个时间步的滚动统计
type StatRow struct {
	// TimestampMs 时间戳（毫秒）
	TimestampMs int64 `json:"ts_ms"`
	// PriceA A 腿价格
	PriceA float64 `json:"price_a"`
	// PriceB B 腿价格
	PriceB float64 `json:"price_b"`
	// Ratio 价格比率 A/B
	Ratio NullFloat `json:"ratio"`
	// Mean 比率滚动均值
	Mean NullFloat `json:"mean"`
	// Std 比率滚动标准差（样本标准差，N-1）
	Std NullFloat `json:"std"`
	// ZScore 比率 z-score，预热期及零方差时无值
	ZScore NullFloat `json:"z_score"`
}
