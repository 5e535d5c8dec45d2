// Package signal 实现 z-score 阈值信号判定。
// 所有方法均为纯函数，不持有状态；阈值在构造时固定。
package signal

import (
	"math"

	"pairtrade-backtester/internal/config"
	"pairtrade-backtester/internal/core/model"
)

// exitTolerance 退出判定容差，|z| 恰好等于阈值时视为回归
const exitTolerance = 1e-9

// Evaluator 信号判定器
type Evaluator struct {
	// cfg 策略配置（不可变副本）
	cfg config.StrategyConfig
}

// NewEvaluator 创建信号判定器
// 参数 cfg: 策略配置
func NewEvaluator(cfg config.StrategyConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// CheckEntry 判断是否满足入场条件
// 规则：
// - z 无值：不入场
// - |z| > stop_loss：不入场（偏离可能继续扩大）
// - z < -entry：long_a_short_b
// - z > entry：short_a_long_b
func (e *Evaluator) CheckEntry(z model.NullFloat) (bool, model.Direction) {
	if !z.Valid {
		return false, ""
	}
	if math.Abs(z.Value) > e.cfg.StopLossThreshold {
		return false, ""
	}
	if z.Value < -e.cfg.EntryThreshold {
		return true, model.DirLongAShortB
	}
	if z.Value > e.cfg.EntryThreshold {
		return true, model.DirShortALongB
	}
	return false, ""
}

// CheckExit 判断 z 是否已回归到均值附近（|z| <= exit）
func (e *Evaluator) CheckExit(z model.NullFloat) bool {
	if !z.Valid {
		return false
	}
	return math.Abs(z.Value) <= math.Abs(e.cfg.ExitThreshold)+exitTolerance
}

// CheckStopLoss 判断 z 是否朝持仓不利方向突破止损阈值
// long_a_short_b: z < -stop_loss
// short_a_long_b: z > stop_loss
func (e *Evaluator) CheckStopLoss(z model.NullFloat, dir model.Direction) bool {
	if !z.Valid {
		return false
	}
	switch dir {
	case model.DirLongAShortB:
		return z.Value < -e.cfg.StopLossThreshold
	case model.DirShortALongB:
		return z.Value > e.cfg.StopLossThreshold
	default:
		return false
	}
}

// EvaluateOpen 持仓状态下的退出判定
// 止损优先于均值回归；均不触发时返回 ok=false
func (e *Evaluator) EvaluateOpen(z model.NullFloat, dir model.Direction) (model.ExitReason, bool) {
	if e.CheckStopLoss(z, dir) {
		return model.ExitStopLoss, true
	}
	if e.CheckExit(z) {
		return model.ExitMeanReversion, true
	}
	return "", false
}
