// Package timeutil 提供毫秒时间戳相关的工具函数。
// 行情、交易记录与持久化状态统一使用 Unix 毫秒时间戳。
package timeutil

import (
	"time"
)

const (
	// HourMs 一小时的毫秒数
	HourMs int64 = 3_600_000
	// DayMs 一天的毫秒数
	DayMs int64 = 24 * HourMs
)

// NowMs 获取当前时间的毫秒时间戳
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// MsToTime 将毫秒时间戳转换为 UTC time.Time
func MsToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// HoursBetween 计算两个毫秒时间戳之间的小时数
func HoursBetween(startMs, endMs int64) float64 {
	return float64(endMs-startMs) / float64(HourMs)
}

// FormatMs 将毫秒时间戳格式化为 UTC 时间字符串
// 0 返回 "-"
func FormatMs(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return MsToTime(ms).Format("2006-01-02 15:04:05")
}

// DaysAgoMs 返回 days 天前的毫秒时间戳
// 参数 nowMs: 参考时间（毫秒）
func DaysAgoMs(nowMs int64, days int) int64 {
	return nowMs - int64(days)*DayMs
}
