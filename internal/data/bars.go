// Package data 负责行情 K 线的加载、两腿对齐、新闻标题加载与结果导出。
// 支持 CSV（timestamp,open,high,low,close,volume，毫秒时间戳）与 Parquet 两种格式。
package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"

	"pairtrade-backtester/internal/core/model"
	"pairtrade-backtester/internal/util/fastparse"
)

const (
	// FormatCSV CSV 格式
	FormatCSV = "csv"
	// FormatParquet Parquet 格式
	FormatParquet = "parquet"
)

// ErrMissingColumn CSV 缺少必需列
var ErrMissingColumn = errors.New("缺少必需列")

// Bar 单根 K 线（Parquet 磁盘格式）
type Bar struct {
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// LoadBars 按格式加载 K 线，结果按时间升序
func LoadBars(format, path string) ([]Bar, error) {
	switch format {
	case FormatCSV, "":
		return LoadBarsCSV(path)
	case FormatParquet:
		return LoadBarsParquet(path)
	default:
		return nil, fmt.Errorf("不支持的数据格式: %s", format)
	}
}

// LoadBarsCSV 从 CSV 文件加载 K 线
func LoadBarsCSV(path string) ([]Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开行情文件失败: %w", err)
	}
	defer f.Close()

	bars, err := ReadBarsCSV(f)
	if err != nil {
		return nil, fmt.Errorf("解析行情文件 %s 失败: %w", path, err)
	}
	return bars, nil
}

// ReadBarsCSV 从 CSV 读取 K 线
// 表头必须包含 timestamp 与 close，其余列可缺省
func ReadBarsCSV(r io.Reader) ([]Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("读取表头失败: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, need := range []string{"timestamp", "close"} {
		if _, ok := cols[need]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, need)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	var bars []Bar
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", line, err)
		}

		ts, err := fastparse.ParseTimestampMs(field(rec, "timestamp"))
		if err != nil {
			return nil, fmt.Errorf("第 %d 行 timestamp 无效: %w", line, err)
		}
		closePx, err := fastparse.ParseFloat(field(rec, "close"))
		if err != nil {
			return nil, fmt.Errorf("第 %d 行 close 无效: %w", line, err)
		}
		bars = append(bars, Bar{
			Timestamp: ts,
			Open:      fastparse.MustParseFloat(field(rec, "open")),
			High:      fastparse.MustParseFloat(field(rec, "high")),
			Low:       fastparse.MustParseFloat(field(rec, "low")),
			Close:     closePx,
			Volume:    fastparse.MustParseFloat(field(rec, "volume")),
		})
	}

	sortBars(bars)
	return bars, nil
}

// LoadBarsParquet 从 Parquet 文件加载 K 线
func LoadBarsParquet(path string) ([]Bar, error) {
	bars, err := parquet.ReadFile[Bar](path)
	if err != nil {
		return nil, fmt.Errorf("读取 Parquet 行情 %s 失败: %w", path, err)
	}
	sortBars(bars)
	return bars, nil
}

// WriteBarsParquet 将 K 线写入 Parquet 文件
func WriteBarsParquet(path string, bars []Bar) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, bars)
}

// ClosePoints 取收盘价序列
func ClosePoints(bars []Bar) []model.PricePoint {
	out := make([]model.PricePoint, len(bars))
	for i, b := range bars {
		out[i] = model.PricePoint{TimestampMs: b.Timestamp, Price: b.Close}
	}
	return out
}

func sortBars(bars []Bar) {
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Timestamp < bars[j].Timestamp
	})
}
