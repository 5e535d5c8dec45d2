// Package main 是配对交易均值回归回测器的入口点。
// 对两条对齐价格序列的比率计算滚动 z-score，z 偏离时询问决策预言机，
// 批准后开双腿对冲仓位，z 回归或突破止损时平仓。
//
// 两种模式：
//   - backtest: 全量历史回测，输出 JSONL / Parquet / summary.json
//   - step: 以最新一行执行单个实时时间步，状态保存在 SQLite
//
// 重要：本系统只做模拟记账，不向任何交易所下单。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pairtrade-backtester/internal/app"
	"pairtrade-backtester/internal/config"
	"pairtrade-backtester/internal/core/model"
	"pairtrade-backtester/internal/core/sim"
	"pairtrade-backtester/internal/data"
	"pairtrade-backtester/internal/output/jsonl"
	"pairtrade-backtester/internal/stats/latency"
	"pairtrade-backtester/internal/stats/perf"
	"pairtrade-backtester/internal/store"
	"pairtrade-backtester/internal/telemetry"
)

const (
	modeBacktest = "backtest"
	modeStep     = "step"
)

func main() {
	var configPath, mode string
	flag.StringVar(&configPath, "config", "config.yaml", "配置文件路径")
	flag.StringVar(&mode, "mode", modeBacktest, "运行模式: backtest 或 step")
	flag.Parse()

	// .env 可选
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.App.LogLevel).Named(cfg.App.Name)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 捕获 SIGINT/SIGTERM，触发优雅退出
	sigCh := make(chan os.Signal, 2)
	ossignal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("收到退出信号，开始优雅关闭")
		cancel()
	}()

	switch mode {
	case modeBacktest:
		err = runBacktest(ctx, cfg, logger)
	case modeStep:
		err = runStep(ctx, cfg, logger)
	default:
		err = fmt.Errorf("未知运行模式: %s", mode)
	}
	if err != nil {
		logger.Error("运行失败", zap.String("mode", mode), zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func runBacktest(ctx context.Context, cfg *config.Config, logger *zap.Logger) (err error) {
	series, err := app.LoadSeries(cfg.Data)
	if err != nil {
		return err
	}
	logger.Info("价格序列已对齐",
		zap.String("a", cfg.Data.SymbolA),
		zap.String("b", cfg.Data.SymbolB),
		zap.Int("rows", len(series)))

	latTracker := latency.NewTracker(1000)
	metrics := telemetry.NewMetrics()
	o, err := app.BuildOracle(*cfg, logger, latTracker, metrics)
	if err != nil {
		return err
	}

	sink, err := jsonl.NewSink(cfg.Output, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, sink.Close()) }()

	observers := []sim.Observer{sink, metrics}
	if hub := startTelemetry(ctx, cfg.Telemetry, metrics, logger); hub != nil {
		observers = append(observers, hub)
	}

	loop := sim.NewLoop(cfg.Strategy, cfg.Ledger, o, cfg.Oracle.MinConfidence, logger, observers...)
	news, err := app.LoadNewsFeed(*cfg)
	if err != nil {
		return err
	}
	if news != nil {
		loop.WithNews(news)
	}

	start := time.Now()
	res, err := loop.Run(ctx, series)
	if err != nil {
		return err
	}

	summary := perf.Report(res)
	if err := app.WriteJSON(filepath.Join(cfg.Output.Dir, app.SummaryFile), summary); err != nil {
		return fmt.Errorf("写入摘要失败: %w", err)
	}
	if cfg.Output.EquityEnabled {
		if err := data.WriteEquityParquet(filepath.Join(cfg.Output.Dir, app.EquityParquetFile), res); err != nil {
			return fmt.Errorf("写入权益曲线失败: %w", err)
		}
	}

	lat := latTracker.Stats()
	logger.Info("预言机调用统计",
		zap.Int64("count", lat.Count),
		zap.Int64("entries", lat.Entries),
		zap.Int64("failures", lat.Failures),
		zap.Float64("p50_ms", lat.P50Ms),
		zap.Float64("p99_ms", lat.P99Ms))

	printSummary(summary, time.Since(start))
	return nil
}

func runStep(ctx context.Context, cfg *config.Config, logger *zap.Logger) (err error) {
	if !cfg.Store.Enabled {
		return fmt.Errorf("step 模式需要启用 store.enabled")
	}
	series, err := app.LoadSeries(cfg.Data)
	if err != nil {
		return err
	}
	news, err := app.LoadNewsFeed(*cfg)
	if err != nil {
		return err
	}
	var src sim.NewsSource
	if news != nil {
		src = news
	}
	in, err := app.LatestStep(series, cfg.Strategy, src)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Store.Path, cfg.Store.TTLDays)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, st.Close()) }()

	o, err := app.BuildOracle(*cfg, logger)
	if err != nil {
		return err
	}
	loop := sim.NewLoop(cfg.Strategy, cfg.Ledger, o, cfg.Oracle.MinConfidence, logger, store.NewObserver(st, logger))

	out, err := app.RunStep(ctx, loop, st, in, cfg.Ledger.InitialCapital)
	if err != nil {
		return err
	}

	if n, err := st.Prune(ctx); err != nil {
		logger.Warn("清理过期日志失败", zap.Error(err))
	} else if n > 0 {
		logger.Info("已清理过期日志", zap.Int64("rows", n))
	}

	fields := []zap.Field{
		zap.Int64("ts_ms", in.Row.TimestampMs),
		zap.String("status", string(out.State.Status)),
		zap.Float64("equity", out.Equity),
	}
	if in.Row.ZScore.Valid {
		fields = append(fields, zap.Float64("z_score", in.Row.ZScore.Value))
	}
	if out.Trade != nil {
		fields = append(fields, zap.String("exit_reason", string(out.Trade.ExitReason)), zap.Float64("net_pnl", out.Trade.NetPnL))
	}
	logger.Info("时间步完成", fields...)
	return nil
}

// startTelemetry 按配置启动 WebSocket 广播与指标服务
// 未配置 ws_addr 时返回 nil
func startTelemetry(ctx context.Context, cfg config.TelemetryConfig, metrics *telemetry.Metrics, logger *zap.Logger) *telemetry.Hub {
	if cfg.MetricsAddr != "" {
		go func() {
			if err := telemetry.Serve(ctx, cfg.MetricsAddr, metrics.Handler(), logger); err != nil {
				logger.Warn("指标服务退出", zap.Error(err))
			}
		}()
	}
	if cfg.WSAddr == "" {
		return nil
	}
	hub := telemetry.NewHub(1024, logger)
	go hub.Run(ctx)
	go func() {
		if err := telemetry.Serve(ctx, cfg.WSAddr, hub.Handler(), logger); err != nil {
			logger.Warn("WebSocket 服务退出", zap.Error(err))
		}
	}()
	return hub
}

func printSummary(s perf.Summary, elapsed time.Duration) {
	fmt.Println("=== 回测结果 ===")
	fmt.Printf("  初始资金:     %.2f\n", s.InitialCapital)
	fmt.Printf("  期末权益:     %.2f\n", s.FinalEquity)
	fmt.Printf("  总收益率:     %.2f%%\n", s.TotalReturnPct)
	fmt.Printf("  最大回撤:     %.2f%%\n", s.MaxDrawdown*100)
	fmt.Printf("  交易次数:     %d (盈利 %d, 胜率 %.1f%%)\n", s.TotalTrades, s.WinningTrades, s.WinRate*100)
	fmt.Printf("  累计成本:     %.2f\n", s.TotalCosts)
	fmt.Printf("  每笔期望:     %.2f\n", s.Expectancy)
	fmt.Printf("  信号/批准:    %d/%d\n", s.Signals, s.ApprovedSignals)
	for _, r := range []model.ExitReason{model.ExitMeanReversion, model.ExitStopLoss, model.ExitEndOfData} {
		fmt.Printf("  %-16s %d\n", r, s.ExitReasons[r])
	}
	fmt.Printf("  耗时:         %s\n", elapsed.Round(time.Millisecond))
}

func newLogger(level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
