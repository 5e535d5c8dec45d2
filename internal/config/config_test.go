// Package config 配置模块测试
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// **Feature: pairtrade-backtester, Property 20: Config Validation Correctness**
// **Validates: Requirements 9.2, 9.3, 9.4, 9.5**

// TestConfigValidation_CostRateRange 测试成本率范围验证
// 属性: 成本率在 [0, 1] 范围外应验证失败
func TestConfigValidation_CostRateRange(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("成本率小于0应验证失败", prop.ForAll(
		func(rate float64) bool {
			cfg := createValidConfig()
			cfg.Ledger.CostRate = rate
			return cfg.Validate() != nil
		},
		gen.Float64Range(-1000, -0.0001),
	))

	properties.Property("成本率大于1应验证失败", prop.ForAll(
		func(rate float64) bool {
			cfg := createValidConfig()
			cfg.Ledger.CostRate = rate
			return cfg.Validate() != nil
		},
		gen.Float64Range(1.0001, 1000),
	))

	properties.Property("成本率在有效范围内应通过验证", prop.ForAll(
		func(rate float64) bool {
			cfg := createValidConfig()
			cfg.Ledger.CostRate = rate
			return cfg.Validate() == nil
		},
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}

// TestConfigValidation_StrategyThresholds 测试策略阈值顺序验证
// 属性: exit < entry < stop_loss 时通过，否则失败
func TestConfigValidation_StrategyThresholds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("阈值有序应通过验证", prop.ForAll(
		func(exit, gapEntry, gapStop float64) bool {
			cfg := createValidConfig()
			cfg.Strategy.ExitThreshold = exit
			cfg.Strategy.EntryThreshold = exit + gapEntry
			cfg.Strategy.StopLossThreshold = exit + gapEntry + gapStop
			return cfg.Validate() == nil
		},
		gen.Float64Range(0, 2),
		gen.Float64Range(0.01, 5),
		gen.Float64Range(0.01, 5),
	))

	properties.Property("止损阈值不大于入场阈值应验证失败", prop.ForAll(
		func(entry, below float64) bool {
			cfg := createValidConfig()
			cfg.Strategy.ExitThreshold = 0
			cfg.Strategy.EntryThreshold = entry
			cfg.Strategy.StopLossThreshold = entry - below
			return cfg.Validate() != nil
		},
		gen.Float64Range(0.1, 10),
		gen.Float64Range(0, 5),
	))

	properties.Property("窗口小于2应验证失败", prop.ForAll(
		func(window int) bool {
			cfg := createValidConfig()
			cfg.Strategy.Window = window
			return cfg.Validate() != nil
		},
		gen.IntRange(-100, 1),
	))

	properties.TestingRun(t)
}

// TestConfigValidation_Ledger 测试账本参数验证
func TestConfigValidation_Ledger(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("初始资金非正数应验证失败", prop.ForAll(
		func(capital float64) bool {
			cfg := createValidConfig()
			cfg.Ledger.InitialCapital = capital
			return cfg.Validate() != nil
		},
		gen.Float64Range(-1e6, 0),
	))

	properties.Property("单腿比例超过 0.5 应验证失败", prop.ForAll(
		func(frac float64) bool {
			cfg := createValidConfig()
			cfg.Ledger.LegFraction = frac
			return cfg.Validate() != nil
		},
		gen.Float64Range(0.5001, 10),
	))

	properties.TestingRun(t)
}

func TestConfigValidation_OracleMode(t *testing.T) {
	cfg := createValidConfig()
	cfg.Oracle.Mode = "magic"
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("未知预言机模式应验证失败")
	}
	if !strings.Contains(err.Error(), "oracle.mode") {
		t.Fatalf("错误信息应包含字段名: %v", err)
	}

	for _, mode := range []string{OracleModeMock, OracleModePass, OracleModeLive} {
		cfg := createValidConfig()
		cfg.Oracle.Mode = mode
		if err := cfg.Validate(); err != nil {
			t.Fatalf("mode=%s 应通过验证: %v", mode, err)
		}
	}
}

func TestConfigValidation_CollectsAllErrors(t *testing.T) {
	cfg := createValidConfig()
	cfg.Data.Format = "xlsx"
	cfg.App.LogLevel = "loud"
	cfg.Ledger.InitialCapital = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("应返回错误")
	}
	for _, field := range []string{"data.format", "app.log_level", "ledger.initial_capital"} {
		if !strings.Contains(err.Error(), field) {
			t.Fatalf("错误信息缺少 %s: %v", field, err)
		}
	}
}

// createValidConfig 创建一个有效的配置用于测试
func createValidConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:     "test",
			LogLevel: "info",
		},
		Data: DataConfig{
			Format:  "csv",
			PathA:   "data/eth.csv",
			PathB:   "data/btc.csv",
			SymbolA: "ETH",
			SymbolB: "BTC",
		},
		Strategy: StrategyConfig{
			Window:             200,
			EntryThreshold:     2.0,
			ExitThreshold:      0.5,
			StopLossThreshold:  3.5,
			ChangeLookbackBars: 24,
		},
		Ledger: LedgerConfig{
			InitialCapital: 10000,
			LegFraction:    0.25,
			CostRate:       0.0015,
		},
		Oracle: OracleConfig{
			Mode:          OracleModeMock,
			BaseURL:       "https://api.deepseek.com/v1",
			Model:         "deepseek-chat",
			TimeoutMs:     30000,
			MinConfidence: 70,
			RatePerSec:    1,
			Burst:         1,
			MaxAttempts:   2,
		},
		Output: OutputConfig{
			Dir:        "./output",
			BufferSize: 1000,
		},
		Store: StoreConfig{
			Path:    "./pairtrade.db",
			TTLDays: 90,
		},
	}
}

// TestLoad_ValidFile 测试从有效文件加载配置
func TestLoad_ValidFile(t *testing.T) {
	content := `
app:
  name: test-backtester
  log_level: debug

data:
  format: parquet
  path_a: data/eth_1h.parquet
  path_b: data/btc_1h.parquet

strategy:
  window: 100
  entry_threshold: 2.5

ledger:
  initial_capital: 5000

oracle:
  mode: live
  min_confidence: 80

store:
  enabled: true
  ttl_days: 30
`
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("创建临时文件失败: %v", err)
	}

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.App.Name != "test-backtester" {
		t.Errorf("App.Name = %s, want test-backtester", cfg.App.Name)
	}
	if cfg.Data.Format != "parquet" {
		t.Errorf("Data.Format = %s, want parquet", cfg.Data.Format)
	}
	if cfg.Strategy.Window != 100 || cfg.Strategy.EntryThreshold != 2.5 {
		t.Errorf("Strategy = %+v", cfg.Strategy)
	}
	// 未配置字段取默认值
	if cfg.Strategy.ExitThreshold != 0.5 || cfg.Strategy.StopLossThreshold != 3.5 {
		t.Errorf("Strategy 默认阈值错误: %+v", cfg.Strategy)
	}
	if cfg.Ledger.InitialCapital != 5000 || cfg.Ledger.CostRate != 0.0015 || cfg.Ledger.LegFraction != 0.25 {
		t.Errorf("Ledger = %+v", cfg.Ledger)
	}
	if cfg.Oracle.Mode != OracleModeLive || cfg.Oracle.MinConfidence != 80 {
		t.Errorf("Oracle = %+v", cfg.Oracle)
	}
	if !cfg.Store.Enabled || cfg.Store.TTLDays != 30 {
		t.Errorf("Store = %+v", cfg.Store)
	}
}

// TestDefault 测试默认值与原始策略常量一致
func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("默认配置应通过验证: %v", err)
	}
	s := cfg.Strategy
	if s.Window != 200 || s.EntryThreshold != 2.0 || s.ExitThreshold != 0.5 || s.StopLossThreshold != 3.5 {
		t.Fatalf("Strategy 默认值错误: %+v", s)
	}
	l := cfg.Ledger
	if l.InitialCapital != 10000 || l.LegFraction != 0.25 || l.CostRate != 0.0015 {
		t.Fatalf("Ledger 默认值错误: %+v", l)
	}
	if l.TotalFraction() != 0.5 {
		t.Fatalf("TotalFraction=%v, want 0.5", l.TotalFraction())
	}
	if cfg.Oracle.MinConfidence != 70 {
		t.Fatalf("MinConfidence=%d, want 70", cfg.Oracle.MinConfidence)
	}
}

// TestLoad_InvalidFile 测试加载无效文件
func TestLoad_InvalidFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("加载不存在的文件应返回错误")
	}
}

// TestLoad_InvalidYAML 测试加载无效 YAML
func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "invalid.yaml")
	if err := os.WriteFile(tmpFile, []byte("invalid: yaml: content:"), 0644); err != nil {
		t.Fatalf("创建临时文件失败: %v", err)
	}

	_, err := Load(tmpFile)
	if err == nil {
		t.Error("加载无效 YAML 应返回错误")
	}
}
