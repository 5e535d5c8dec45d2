// Package fastparse 提供字符串到数值的解析函数。
// 使用 strconv 进行转换，避免在逐行加载 K 线时使用 fmt.Sscanf。
// 主要用于解析 CSV 行情字段与预言机响应中的数值字段。
package fastparse

import (
	"math"
	"strconv"
	"strings"
)

// ParseFloat 解析浮点数字符串
// 参数 s: 待解析的字符串，如 "12345.67"，首尾空白会被忽略
func ParseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// ParseInt 解析十进制整数字符串
func ParseInt(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}

// ParseTimestampMs 解析毫秒时间戳
// 兼容整数与浮点形式（如 pandas 导出的 "1700000000000.0"）
func ParseTimestampMs(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &strconv.NumError{Func: "ParseTimestampMs", Num: s, Err: strconv.ErrRange}
	}
	return int64(math.Round(f)), nil
}

// MustParseFloat 解析浮点数，失败时返回 0
func MustParseFloat(s string) float64 {
	v, err := ParseFloat(s)
	if err != nil {
		return 0
	}
	return v
}

// FormatFloat 格式化浮点数为字符串
// 参数 prec: 小数位数，-1 表示最短表示
func FormatFloat(f float64, prec int) string {
	return strconv.FormatFloat(f, 'f', prec, 64)
}
