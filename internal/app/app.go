// Package app 组装回测器各组件：数据加载、预言机选择、单步实时处理与状态维护。
// cmd/backtester 与 cmd/pairctl 共用。
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"pairtrade-backtester/internal/config"
	"pairtrade-backtester/internal/core/model"
	"pairtrade-backtester/internal/core/sim"
	"pairtrade-backtester/internal/data"
	"pairtrade-backtester/internal/oracle"
	"pairtrade-backtester/internal/stats/rolling"
	"pairtrade-backtester/internal/store"
)

// newsLookbackHours 新闻回看窗口
const newsLookbackHours = 24

// SummaryFile 回测摘要文件名
const SummaryFile = "summary.json"

// EquityParquetFile 权益曲线 Parquet 文件名
const EquityParquetFile = "equity.parquet"

// BuildOracle 按配置创建预言机，统一用 Guard 包装
// 参数 recorders: 调用记录器（时延追踪、指标）
func BuildOracle(cfg config.Config, logger *zap.Logger, recorders ...oracle.Recorder) (oracle.DecisionOracle, error) {
	var q oracle.Querier
	switch cfg.Oracle.Mode {
	case config.OracleModeMock:
		q = oracle.MockOracle{}
	case config.OracleModePass:
		q = oracle.PassOracle{}
	case config.OracleModeLive:
		apiKey := os.Getenv(cfg.Oracle.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("%w: 环境变量 %s 为空", oracle.ErrNoAPIKey, cfg.Oracle.APIKeyEnv)
		}
		legs := oracle.Legs{A: cfg.Data.SymbolA, B: cfg.Data.SymbolB}
		q = oracle.NewLiveOracle(cfg.Oracle, legs, apiKey, logger)
	default:
		return nil, fmt.Errorf("未知的预言机模式: %s", cfg.Oracle.Mode)
	}
	timeout := time.Duration(cfg.Oracle.TimeoutMs) * time.Millisecond
	return oracle.NewGuard(q, timeout, logger, recorders...), nil
}

// LoadSeries 加载两腿 K 线并按时间戳对齐
func LoadSeries(cfg config.DataConfig) (model.AlignedSeries, error) {
	if cfg.PathA == "" || cfg.PathB == "" {
		return nil, errors.New("data.path_a 与 data.path_b 不能为空")
	}
	barsA, err := data.LoadBars(cfg.Format, cfg.PathA)
	if err != nil {
		return nil, fmt.Errorf("加载 %s 失败: %w", cfg.SymbolA, err)
	}
	barsB, err := data.LoadBars(cfg.Format, cfg.PathB)
	if err != nil {
		return nil, fmt.Errorf("加载 %s 失败: %w", cfg.SymbolB, err)
	}
	return data.Align(data.ClosePoints(barsA), data.ClosePoints(barsB)), nil
}

// LoadNewsFeed 加载新闻文件，未配置时返回 nil
func LoadNewsFeed(cfg config.Config) (*data.NewsFeed, error) {
	if cfg.Data.NewsPath == "" {
		return nil, nil
	}
	items, err := data.LoadNews(cfg.Data.NewsPath)
	if err != nil {
		return nil, err
	}
	return data.NewNewsFeed(items, cfg.Oracle.MaxNews, newsLookbackHours), nil
}

// LatestStep 以序列最后一行构造单步输入
// 只计算所需的尾部窗口；数据不足时返回 sim.ErrDataInsufficient
func LatestStep(series model.AlignedSeries, strategy config.StrategyConfig, news sim.NewsSource) (sim.StepInput, error) {
	need := strategy.Window + 1
	if strategy.ChangeLookbackBars+1 > need {
		need = strategy.ChangeLookbackBars + 1
	}
	if len(series) < strategy.Window+1 {
		return sim.StepInput{}, fmt.Errorf("%w: %d 行, 窗口 %d", sim.ErrDataInsufficient, len(series), strategy.Window)
	}
	tail := data.Tail(series, need)

	rows, err := rolling.Rows(tail, strategy.Window)
	if err != nil {
		return sim.StepInput{}, fmt.Errorf("计算滚动统计失败: %w", err)
	}
	last := len(rows) - 1
	in := sim.StepInput{
		Row:        rows[last],
		Change24hA: rolling.PctChange(tail.PricesA(), strategy.ChangeLookbackBars)[last],
		Change24hB: rolling.PctChange(tail.PricesB(), strategy.ChangeLookbackBars)[last],
	}
	if news != nil {
		in.News = news.Headlines(rows[last].TimestampMs)
	}
	return in, nil
}

// RunStep 读取持久化状态、处理一个时间步并写回状态
// 交易、信号与监控日志由挂在 loop 上的观察者写入
func RunStep(ctx context.Context, loop *sim.Loop, st *store.SQLiteStore, in sim.StepInput, initialCapital float64) (*sim.StepOutcome, error) {
	state, ok, err := st.LoadState(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		state = model.NoPositionState(model.Some(initialCapital))
	}

	out, err := loop.Step(ctx, state, in)
	if err != nil {
		return nil, err
	}
	if err := st.SaveState(ctx, out.State); err != nil {
		return nil, err
	}
	return out, nil
}

// ResetState 紧急停止：丢弃持仓，返还占用的名义价值
// 入场成本已支出，不予返还；余额未知时仍为无值，恢复时沿用初始资金
func ResetState(state model.PositionState) model.PositionState {
	if !state.IsOpen() || !state.Balance.Valid {
		return model.NoPositionState(state.Balance)
	}
	return model.NoPositionState(model.Some(state.Balance.Value + state.PositionSize))
}

// WriteJSON 将 v 以缩进 JSON 写入 path
func WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化失败: %w", err)
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}
