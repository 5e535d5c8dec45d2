package data

import (
	"sort"

	"pairtrade-backtester/internal/core/model"
)

// Align 按时间戳内连接两腿价格序列
// 结果按时间严格升序；同一腿重复时间戳以最后一条为准，仅一腿存在的时间戳被丢弃
func Align(a, b []model.PricePoint) model.AlignedSeries {
	pb := make(map[int64]float64, len(b))
	for _, p := range b {
		pb[p.TimestampMs] = p.Price
	}
	pa := make(map[int64]float64, len(a))
	for _, p := range a {
		pa[p.TimestampMs] = p.Price
	}

	out := make(model.AlignedSeries, 0, len(pa))
	for ts, priceA := range pa {
		priceB, ok := pb[ts]
		if !ok {
			continue
		}
		out = append(out, model.AlignedRow{TimestampMs: ts, PriceA: priceA, PriceB: priceB})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TimestampMs < out[j].TimestampMs
	})
	return out
}

// Tail 返回序列最后 n 行（n<=0 或超过长度时返回全部）
func Tail(s model.AlignedSeries, n int) model.AlignedSeries {
	if n <= 0 || n >= len(s) {
		return s
	}
	return s[len(s)-n:]
}
