// Package main 是回测器 step 模式的运维工具。
// 读取 SQLite 中的持仓状态、交易记录与监控日志，并提供紧急停止。
//
// 用法：
//
//	pairctl [-config config.yaml] status
//	pairctl trades [-limit N | -all]
//	pairctl logs [-days N] [-limit N]
//	pairctl stop [-yes]
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"pairtrade-backtester/internal/app"
	"pairtrade-backtester/internal/config"
	"pairtrade-backtester/internal/core/model"
	"pairtrade-backtester/internal/store"
	"pairtrade-backtester/internal/util/fastparse"
	"pairtrade-backtester/internal/util/timeutil"
)

func main() {
	_ = godotenv.Load()

	var configPath string
	global := flag.NewFlagSet("pairctl", flag.ExitOnError)
	global.StringVar(&configPath, "config", "config.yaml", "配置文件路径")
	global.Usage = usage
	_ = global.Parse(os.Args[1:])

	args := global.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	st, err := store.Open(cfg.Store.Path, cfg.Store.TTLDays)
	if err != nil {
		fmt.Fprintf(os.Stderr, "打开数据库失败: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "status":
		err = cmdStatus(ctx, st, cfg, os.Stdout)
	case "trades":
		err = cmdTrades(ctx, st, rest, os.Stdout)
	case "logs":
		err = cmdLogs(ctx, st, rest, os.Stdout)
	case "stop":
		err = cmdStop(ctx, st, rest, os.Stdin, os.Stdout)
	default:
		usage()
		err = fmt.Errorf("未知命令: %s", cmd)
	}
	if err = multierr.Append(err, st.Close()); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "用法: pairctl [-config path] <status|trades|logs|stop> [options]")
	fmt.Fprintln(os.Stderr, "  status              当前持仓状态与最近一次监控")
	fmt.Fprintln(os.Stderr, "  trades [-limit N]   交易记录（-all 显示全部）")
	fmt.Fprintln(os.Stderr, "  logs [-days N]      最近 N 天的监控日志")
	fmt.Fprintln(os.Stderr, "  stop [-yes]         将持仓状态重置为 NO_POSITION")
}

func cmdStatus(ctx context.Context, st *store.SQLiteStore, cfg *config.Config, w io.Writer) error {
	state, ok, err := st.LoadState(ctx)
	if err != nil {
		return err
	}
	updated, err := st.StateUpdatedAt(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "=== 持仓状态 ===")
	if !ok {
		fmt.Fprintln(w, "  status: NO_POSITION (未初始化)")
	} else {
		fmt.Fprintf(w, "  status: %s\n", state.Status)
		fmt.Fprintf(w, "  updated_at: %s\n", timeutil.FormatMs(updated))
		if state.Balance.Valid {
			fmt.Fprintf(w, "  balance: %s\n", fastparse.FormatFloat(state.Balance.Value, 2))
		}
		if state.IsOpen() {
			fmt.Fprintf(w, "  direction: %s\n", state.Direction)
			fmt.Fprintf(w, "  entry_z_score: %s\n", formatNull(state.EntryZScore))
			fmt.Fprintf(w, "  %s_entry: %s | %s_entry: %s\n",
				cfg.Data.SymbolA, formatNull(state.EntryPriceA),
				cfg.Data.SymbolB, formatNull(state.EntryPriceB))
			fmt.Fprintf(w, "  position_size: %s\n", fastparse.FormatFloat(state.PositionSize, 2))
			fmt.Fprintf(w, "  entry_time: %s\n", timeutil.FormatMs(state.EntryTimestampMs))
		}
	}

	fmt.Fprintln(w, "\n=== 最近监控 ===")
	ms, err := st.ListMonitors(ctx, 0, 1)
	if err != nil {
		return err
	}
	if len(ms) == 0 {
		fmt.Fprintln(w, "  无数据")
		return nil
	}
	m := ms[0]
	fmt.Fprintf(w, "  time: %s\n", timeutil.FormatMs(m.TimestampMs))
	fmt.Fprintf(w, "  z_score: %s | ratio: %s\n", formatNull(m.ZScore), formatNull(m.Ratio))
	fmt.Fprintf(w, "  %s: %s | %s: %s\n",
		cfg.Data.SymbolA, fastparse.FormatFloat(m.PriceA, 2),
		cfg.Data.SymbolB, fastparse.FormatFloat(m.PriceB, 2))
	fmt.Fprintf(w, "  equity: %s\n", fastparse.FormatFloat(m.Equity, 2))
	return nil
}

func cmdTrades(ctx context.Context, st *store.SQLiteStore, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("trades", flag.ContinueOnError)
	limit := fs.Int("limit", 50, "显示条数")
	all := fs.Bool("all", false, "显示全部")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *all {
		*limit = 0
	}

	trades, err := st.ListTrades(ctx, *limit)
	if err != nil {
		return err
	}
	if len(trades) == 0 {
		fmt.Fprintln(w, "暂无交易记录。")
		return nil
	}

	var total float64
	wins := 0
	fmt.Fprintln(w, "=== 交易记录 ===")
	for _, tr := range trades {
		total += tr.NetPnL
		if tr.Win {
			wins++
		}
		fmt.Fprintf(w, "  %s | %s | PnL: $%.2f | %s\n",
			timeutil.FormatMs(tr.ExitTimestampMs), tr.Direction, tr.NetPnL, tr.ExitReason)
	}
	fmt.Fprintf(w, "\n合计: %d 笔 | 盈利: %d | 净盈亏: $%.2f\n", len(trades), wins, total)
	return nil
}

func cmdLogs(ctx context.Context, st *store.SQLiteStore, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("logs", flag.ContinueOnError)
	days := fs.Int("days", 7, "回看天数")
	limit := fs.Int("limit", 50, "显示条数")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ms, err := st.ListMonitors(ctx, timeutil.DaysAgoMs(timeutil.NowMs(), *days), *limit)
	if err != nil {
		return err
	}
	if len(ms) == 0 {
		fmt.Fprintf(w, "最近 %d 天无监控数据。\n", *days)
		return nil
	}
	fmt.Fprintf(w, "%-20s %10s %12s %12s %12s %-12s\n", "time", "z_score", "ratio", "price_a", "price_b", "status")
	for _, m := range ms {
		fmt.Fprintf(w, "%-20s %10s %12s %12s %12s %-12s\n",
			timeutil.FormatMs(m.TimestampMs), formatNull(m.ZScore), formatNull(m.Ratio),
			fastparse.FormatFloat(m.PriceA, 2), fastparse.FormatFloat(m.PriceB, 2), m.Status)
	}
	return nil
}

func cmdStop(ctx context.Context, st *store.SQLiteStore, args []string, in io.Reader, w io.Writer) error {
	fs := flag.NewFlagSet("stop", flag.ContinueOnError)
	yes := fs.Bool("yes", false, "跳过确认")
	if err := fs.Parse(args); err != nil {
		return err
	}

	state, _, err := st.LoadState(ctx)
	if err != nil {
		return err
	}
	if state.IsOpen() {
		fmt.Fprintln(w, "警告: 存在未平仓位。")
		fmt.Fprintln(w, "此操作只重置持仓状态，不计算平仓盈亏，入场成本不予返还。")
		if !*yes {
			fmt.Fprint(w, "确认继续? [y/N]: ")
			line, _ := bufio.NewReader(in).ReadString('\n')
			if strings.ToLower(strings.TrimSpace(line)) != "y" {
				fmt.Fprintln(w, "已取消。")
				return nil
			}
		}
	}

	if err := st.SaveState(ctx, app.ResetState(state)); err != nil {
		return fmt.Errorf("重置失败: %w", err)
	}
	fmt.Fprintln(w, "持仓状态已重置为 NO_POSITION。")
	return nil
}

func formatNull(n model.NullFloat) string {
	if !n.Valid {
		return "-"
	}
	return fastparse.FormatFloat(n.Value, 4)
}
