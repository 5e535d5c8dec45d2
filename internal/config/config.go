// Package config 负责加载和验证 YAML 配置文件。
// 提供回测器所需的所有配置项，包括数据源、策略阈值、账本参数、决策预言机等。
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 应用配置根结构
// 包含所有子模块的配置项
type Config struct {
	// App 应用基础配置
	App AppConfig `yaml:"app"`
	// Data 价格数据配置
	Data DataConfig `yaml:"data"`
	// Strategy 策略参数配置
	Strategy StrategyConfig `yaml:"strategy"`
	// Ledger 账本参数配置
	Ledger LedgerConfig `yaml:"ledger"`
	// Oracle 决策预言机配置
	Oracle OracleConfig `yaml:"oracle"`
	// Output 输出配置
	Output OutputConfig `yaml:"output"`
	// Store 状态存储配置
	Store StoreConfig `yaml:"store"`
	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	// Name 应用名称，用于日志标识
	Name string `yaml:"name"`
	// LogLevel 日志级别: debug, info, warn, error
	LogLevel string `yaml:"log_level"`
}

// DataConfig 价格数据配置
type DataConfig struct {
	// Format 数据文件格式: csv 或 parquet
	Format string `yaml:"format"`
	// PathA A 腿 K 线文件路径
	PathA string `yaml:"path_a"`
	// PathB B 腿 K 线文件路径
	PathB string `yaml:"path_b"`
	// SymbolA A 腿标识，如 ETH
	SymbolA string `yaml:"symbol_a"`
	// SymbolB B 腿标识，如 BTC
	SymbolB string `yaml:"symbol_b"`
	// NewsPath 新闻标题文件（每行一条，可选）
	NewsPath string `yaml:"news_path"`
}

// StrategyConfig 策略参数配置
type StrategyConfig struct {
	// Window 滚动窗口大小（K 线根数）
	Window int `yaml:"window"`
	// EntryThreshold 入场阈值，|z| 超过此值触发候选入场
	EntryThreshold float64 `yaml:"entry_threshold"`
	// ExitThreshold 退出阈值，|z| 回落至此值以内平仓
	ExitThreshold float64 `yaml:"exit_threshold"`
	// StopLossThreshold 止损阈值，同时用于禁止在极端偏离区入场
	StopLossThreshold float64 `yaml:"stop_loss_threshold"`
	// ChangeLookbackBars 24 小时涨跌幅回看根数（1 小时线为 24）
	ChangeLookbackBars int `yaml:"change_lookback_bars"`
}

// LedgerConfig 账本参数配置
type LedgerConfig struct {
	// InitialCapital 初始资金（USD）
	InitialCapital float64 `yaml:"initial_capital"`
	// LegFraction 单腿占用余额比例，双腿合计为 2 倍
	LegFraction float64 `yaml:"leg_fraction"`
	// CostRate 单边交易成本率（手续费 + 价差）
	CostRate float64 `yaml:"cost_rate"`
}

// OracleConfig 决策预言机配置
type OracleConfig struct {
	// Mode 预言机模式: mock, pass, live
	Mode string `yaml:"mode"`
	// BaseURL OpenAI 兼容接口地址
	BaseURL string `yaml:"base_url"`
	// Model 模型名称
	Model string `yaml:"model"`
	// APIKeyEnv API Key 所在环境变量名
	APIKeyEnv string `yaml:"api_key_env"`
	// TimeoutMs 单次请求超时（毫秒）
	TimeoutMs int `yaml:"timeout_ms"`
	// MinConfidence 入场所需最低置信度（严格大于）
	MinConfidence int `yaml:"min_confidence"`
	// Temperature 采样温度
	Temperature float64 `yaml:"temperature"`
	// RatePerSec 每秒请求数上限
	RatePerSec float64 `yaml:"rate_per_sec"`
	// Burst 令牌桶突发容量
	Burst int `yaml:"burst"`
	// MaxAttempts 最大尝试次数（含首次）
	MaxAttempts int `yaml:"max_attempts"`
	// BreakerFailures 连续失败多少次后熔断
	BreakerFailures int `yaml:"breaker_failures"`
	// BreakerCooldownMs 熔断冷却时间（毫秒）
	BreakerCooldownMs int `yaml:"breaker_cooldown_ms"`
	// MaxNews 注入提示词的新闻条数上限
	MaxNews int `yaml:"max_news"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	// Dir 输出目录
	Dir string `yaml:"dir"`
	// TradesEnabled 是否输出成交文件
	TradesEnabled bool `yaml:"trades_enabled"`
	// SignalsEnabled 是否输出信号文件
	SignalsEnabled bool `yaml:"signals_enabled"`
	// EquityEnabled 是否输出权益曲线（jsonl + parquet）
	EquityEnabled bool `yaml:"equity_enabled"`
	// BufferSize 异步写入缓冲区大小
	BufferSize int `yaml:"buffer_size"`
}

// StoreConfig 状态存储配置
type StoreConfig struct {
	// Enabled 是否启用 SQLite 存储
	Enabled bool `yaml:"enabled"`
	// Path SQLite 文件路径
	Path string `yaml:"path"`
	// TTLDays 日志保留天数
	TTLDays int `yaml:"ttl_days"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// WSAddr WebSocket 事件广播监听地址，空表示关闭
	WSAddr string `yaml:"ws_addr"`
	// MetricsAddr Prometheus 指标监听地址，空表示关闭
	MetricsAddr string `yaml:"metrics_addr"`
}

// Oracle 模式常量
const (
	// OracleModeMock 恒定 ENTRY（离线回放）
	OracleModeMock = "mock"
	// OracleModePass 恒定 PASS
	OracleModePass = "pass"
	// OracleModeLive 真实接口调用
	OracleModeLive = "live"
)

// Load 从文件加载配置并验证
// 参数 path: 配置文件路径
// 返回: 解析后的配置对象，若失败则返回错误
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return Parse(data)
}

// Parse 解析 YAML 字节并应用默认值与验证
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &cfg, nil
}

// Default 返回全部取默认值的配置
func Default() *Config {
	var cfg Config
	cfg.setDefaults()
	return &cfg
}

// DefaultStrategy 返回默认策略参数
func DefaultStrategy() StrategyConfig {
	return Default().Strategy
}

// DefaultLedger 返回默认账本参数
func DefaultLedger() LedgerConfig {
	return Default().Ledger
}

// setDefaults 设置配置默认值
func (c *Config) setDefaults() {
	if c.App.Name == "" {
		c.App.Name = "pairtrade-backtester"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}

	if c.Data.Format == "" {
		c.Data.Format = "csv"
	}
	if c.Data.SymbolA == "" {
		c.Data.SymbolA = "ETH"
	}
	if c.Data.SymbolB == "" {
		c.Data.SymbolB = "BTC"
	}

	// 策略默认值
	if c.Strategy.Window == 0 {
		c.Strategy.Window = 200
	}
	if c.Strategy.EntryThreshold == 0 {
		c.Strategy.EntryThreshold = 2.0
	}
	if c.Strategy.ExitThreshold == 0 {
		c.Strategy.ExitThreshold = 0.5
	}
	if c.Strategy.StopLossThreshold == 0 {
		c.Strategy.StopLossThreshold = 3.5
	}
	if c.Strategy.ChangeLookbackBars == 0 {
		c.Strategy.ChangeLookbackBars = 24
	}

	// 账本默认值
	if c.Ledger.InitialCapital == 0 {
		c.Ledger.InitialCapital = 10000
	}
	if c.Ledger.LegFraction == 0 {
		c.Ledger.LegFraction = 0.25
	}
	if c.Ledger.CostRate == 0 {
		c.Ledger.CostRate = 0.0015 // 0.15% per side
	}

	// 预言机默认值
	if c.Oracle.Mode == "" {
		c.Oracle.Mode = OracleModeMock
	}
	if c.Oracle.BaseURL == "" {
		c.Oracle.BaseURL = "https://api.deepseek.com/v1"
	}
	if c.Oracle.Model == "" {
		c.Oracle.Model = "deepseek-chat"
	}
	if c.Oracle.APIKeyEnv == "" {
		c.Oracle.APIKeyEnv = "DEEPSEEK_API_KEY"
	}
	if c.Oracle.TimeoutMs == 0 {
		c.Oracle.TimeoutMs = 30000 // 30 秒
	}
	if c.Oracle.MinConfidence == 0 {
		c.Oracle.MinConfidence = 70
	}
	if c.Oracle.Temperature == 0 {
		c.Oracle.Temperature = 0.3
	}
	if c.Oracle.RatePerSec == 0 {
		c.Oracle.RatePerSec = 1
	}
	if c.Oracle.Burst == 0 {
		c.Oracle.Burst = 1
	}
	if c.Oracle.MaxAttempts == 0 {
		c.Oracle.MaxAttempts = 2
	}
	if c.Oracle.BreakerFailures == 0 {
		c.Oracle.BreakerFailures = 3
	}
	if c.Oracle.BreakerCooldownMs == 0 {
		c.Oracle.BreakerCooldownMs = 60000 // 60 秒
	}
	if c.Oracle.MaxNews == 0 {
		c.Oracle.MaxNews = 10
	}

	// 输出默认值
	if c.Output.Dir == "" {
		c.Output.Dir = "./output"
	}
	if c.Output.BufferSize == 0 {
		c.Output.BufferSize = 1000
	}

	// 存储默认值
	if c.Store.Path == "" {
		c.Store.Path = "./pairtrade.db"
	}
	if c.Store.TTLDays == 0 {
		c.Store.TTLDays = 90
	}
}

// Validate 验证配置合法性
// 检查所有必填项和数值范围
// 返回: 若配置无效则返回描述性错误
func (c *Config) Validate() error {
	var errs []string

	// 验证数据配置
	if c.Data.Format != "csv" && c.Data.Format != "parquet" {
		errs = append(errs, fmt.Sprintf("data.format: 无效的数据格式 '%s'，有效值: csv, parquet", c.Data.Format))
	}

	// 验证策略参数
	errs = append(errs, c.Strategy.validate()...)

	// 验证账本参数
	errs = append(errs, c.Ledger.validate()...)

	// 验证预言机参数
	switch c.Oracle.Mode {
	case OracleModeMock, OracleModePass, OracleModeLive:
	default:
		errs = append(errs, fmt.Sprintf("oracle.mode: 无效的模式 '%s'，有效值: mock, pass, live", c.Oracle.Mode))
	}
	if c.Oracle.MinConfidence < 0 || c.Oracle.MinConfidence > 100 {
		errs = append(errs, "oracle.min_confidence: 置信度阈值必须在 0-100 之间")
	}
	if c.Oracle.TimeoutMs <= 0 {
		errs = append(errs, "oracle.timeout_ms: 超时时间必须为正数")
	}
	if c.Oracle.RatePerSec <= 0 {
		errs = append(errs, "oracle.rate_per_sec: 请求速率必须为正数")
	}
	if c.Oracle.MaxAttempts <= 0 {
		errs = append(errs, "oracle.max_attempts: 尝试次数必须为正数")
	}
	if c.Oracle.Mode == OracleModeLive && c.Oracle.BaseURL == "" {
		errs = append(errs, "oracle.base_url: live 模式下接口地址不能为空")
	}

	if c.Store.TTLDays < 0 {
		errs = append(errs, "store.ttl_days: 保留天数不能为负数")
	}

	// 验证日志级别
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.App.LogLevel)] {
		errs = append(errs, fmt.Sprintf("app.log_level: 无效的日志级别 '%s'，有效值: debug, info, warn, error", c.App.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("配置验证错误:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

func (s StrategyConfig) validate() []string {
	var errs []string
	if s.Window < 2 {
		errs = append(errs, "strategy.window: 窗口大小至少为 2")
	}
	if s.EntryThreshold <= 0 {
		errs = append(errs, "strategy.entry_threshold: 入场阈值必须为正数")
	}
	if s.ExitThreshold < 0 {
		errs = append(errs, "strategy.exit_threshold: 退出阈值不能为负数")
	}
	if s.ExitThreshold >= s.EntryThreshold {
		errs = append(errs, "strategy.exit_threshold: 退出阈值必须小于入场阈值")
	}
	if s.StopLossThreshold <= s.EntryThreshold {
		errs = append(errs, "strategy.stop_loss_threshold: 止损阈值必须大于入场阈值")
	}
	if s.ChangeLookbackBars < 1 {
		errs = append(errs, "strategy.change_lookback_bars: 回看根数至少为 1")
	}
	return errs
}

func (l LedgerConfig) validate() []string {
	var errs []string
	if l.InitialCapital <= 0 {
		errs = append(errs, "ledger.initial_capital: 初始资金必须为正数")
	}
	if l.LegFraction <= 0 || l.LegFraction > 0.5 {
		errs = append(errs, "ledger.leg_fraction: 单腿比例必须在 (0, 0.5] 之间")
	}
	if err := validateRate(l.CostRate, "ledger.cost_rate"); err != nil {
		errs = append(errs, err.Error())
	}
	return errs
}

// validateRate 验证费率范围
// 参数 rate: 费率值
// 参数 field: 字段名称，用于错误消息
// 返回: 若费率无效则返回错误
func validateRate(rate float64, field string) error {
	if rate < 0 || rate > 1 {
		return fmt.Errorf("%s: 费率必须在 0-1 之间，当前值: %f", field, rate)
	}
	return nil
}

// TotalFraction 双腿合计占用余额比例
func (l LedgerConfig) TotalFraction() float64 {
	return 2 * l.LegFraction
}
