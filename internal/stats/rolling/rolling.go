// Package rolling 实现价格比率的滚动统计。
// ratio = A / B；均值与标准差基于尾部 window 个比率（样本标准差，N-1）；
// z = (ratio - mean) / std。
package rolling

import (
	"errors"
	"fmt"
	"math"

	"pairtrade-backtester/internal/core/model"
)

var (
	// ErrLengthMismatch 两条价格序列长度不一致
	ErrLengthMismatch = errors.New("价格序列长度不一致")
	// ErrInvalidWindow 窗口大小非法
	ErrInvalidWindow = errors.New("窗口大小必须为正数")
)

// Series 比率滚动统计结果，各切片与输入等长
type Series struct {
	// Window 窗口大小
	Window int
	// Ratio 价格比率
	Ratio []model.NullFloat
	// Mean 滚动均值，前 window-1 个无值
	Mean []model.NullFloat
	// Std 滚动样本标准差，前 window-1 个无值
	Std []model.NullFloat
	// ZScore z-score，前 window 个无值（预热期）
	ZScore []model.NullFloat
}

// Ratio 计算单个比率
// B 腿为 0、任一输入非有限值或结果非有限值时返回无值
func Ratio(priceA, priceB float64) model.NullFloat {
	if priceB == 0 || !finite(priceA) || !finite(priceB) {
		return model.None()
	}
	return model.Some(priceA / priceB)
}

// Compute 计算比率、滚动均值、滚动标准差与 z-score
// 参数 a, b: 已对齐的两条价格序列
// 参数 window: 窗口大小
// 纯函数，同一输入重复调用结果逐位一致
func Compute(a, b []float64, window int) (*Series, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("%w: len(a)=%d, len(b)=%d", ErrLengthMismatch, len(a), len(b))
	}
	if window < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWindow, window)
	}

	n := len(a)
	s := &Series{
		Window: window,
		Ratio:  make([]model.NullFloat, n),
		Mean:   make([]model.NullFloat, n),
		Std:    make([]model.NullFloat, n),
		ZScore: make([]model.NullFloat, n),
	}

	for i := 0; i < n; i++ {
		s.Ratio[i] = Ratio(a[i], b[i])
	}

	for i := window - 1; i < n; i++ {
		mean, std, ok := windowStats(s.Ratio[i-window+1 : i+1])
		if !ok {
			continue
		}
		s.Mean[i] = model.Some(mean)
		s.Std[i] = std
	}

	// 前 window 行为预热期，z 不参与任何交易决策
	for i := window; i < n; i++ {
		s.ZScore[i] = zScore(s.Ratio[i], s.Mean[i], s.Std[i])
	}

	return s, nil
}

// Rows 将对齐序列与滚动统计合并为逐行结构
func Rows(series model.AlignedSeries, window int) ([]model.StatRow, error) {
	st, err := Compute(series.PricesA(), series.PricesB(), window)
	if err != nil {
		return nil, err
	}
	rows := make([]model.StatRow, len(series))
	for i, r := range series {
		rows[i] = model.StatRow{
			TimestampMs: r.TimestampMs,
			PriceA:      r.PriceA,
			PriceB:      r.PriceB,
			Ratio:       st.Ratio[i],
			Mean:        st.Mean[i],
			Std:         st.Std[i],
			ZScore:      st.ZScore[i],
		}
	}
	return rows, nil
}

// PctChange 计算 lag 根之前到当前的涨跌幅（%）
// 前 lag 个、基准为 0 或非有限值时无值
func PctChange(series []float64, lag int) []model.NullFloat {
	out := make([]model.NullFloat, len(series))
	if lag < 1 {
		return out
	}
	for i := lag; i < len(series); i++ {
		prev := series[i-lag]
		cur := series[i]
		if prev == 0 || !finite(prev) || !finite(cur) {
			continue
		}
		out[i] = model.Some((cur - prev) / prev * 100)
	}
	return out
}

// windowStats 计算单个窗口的均值与样本标准差
// 窗口内任一比率无值时返回 ok=false；窗口内取值完全相同时 std 精确为 0
func windowStats(win []model.NullFloat) (mean float64, std model.NullFloat, ok bool) {
	lo, hi := math.Inf(1), math.Inf(-1)
	var sum float64
	for _, r := range win {
		if !r.Valid {
			return 0, model.None(), false
		}
		sum += r.Value
		lo = math.Min(lo, r.Value)
		hi = math.Max(hi, r.Value)
	}
	w := len(win)
	if lo == hi {
		mean = lo
		if w < 2 {
			return mean, model.None(), true
		}
		return mean, model.Some(0), true
	}
	mean = sum / float64(w)
	if w < 2 {
		return mean, model.None(), true
	}

	var ss float64
	for _, r := range win {
		d := r.Value - mean
		ss += d * d
	}
	return mean, model.Some(math.Sqrt(ss / float64(w-1))), true
}

func zScore(ratio, mean, std model.NullFloat) model.NullFloat {
	if !ratio.Valid || !mean.Valid || !std.Valid || std.Value == 0 {
		return model.None()
	}
	return model.Some((ratio.Value - mean.Value) / std.Value)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
