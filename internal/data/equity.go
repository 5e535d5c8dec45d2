package data

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"pairtrade-backtester/internal/core/model"
)

// EquityRecord 权益曲线的 Parquet 磁盘格式
type EquityRecord struct {
	Timestamp int64    `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Equity    float64  `parquet:"equity"`
	ZScore    *float64 `parquet:"z_score,optional"`
}

// EquityRecords 将回测结果转为逐行权益记录
func EquityRecords(res *model.BacktestResult) []EquityRecord {
	if res == nil {
		return nil
	}
	out := make([]EquityRecord, len(res.EquityCurve))
	for i, eq := range res.EquityCurve {
		out[i].Equity = eq
		if i < len(res.Timestamps) {
			out[i].Timestamp = res.Timestamps[i]
		}
		if i < len(res.ZScores) {
			out[i].ZScore = res.ZScores[i].Ptr()
		}
	}
	return out
}

// WriteEquityParquet 导出权益曲线到 Parquet 文件
func WriteEquityParquet(path string, res *model.BacktestResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := parquet.WriteFile(path, EquityRecords(res)); err != nil {
		return fmt.Errorf("写入权益曲线失败: %w", err)
	}
	return nil
}

// ReadEquityParquet 读取权益曲线 Parquet 文件
func ReadEquityParquet(path string) ([]EquityRecord, error) {
	rows, err := parquet.ReadFile[EquityRecord](path)
	if err != nil {
		return nil, fmt.Errorf("读取权益曲线失败: %w", err)
	}
	return rows, nil
}
