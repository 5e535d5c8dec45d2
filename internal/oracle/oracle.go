// Package oracle 定义入场决策预言机（基本面过滤）的抽象与实现。
// 预言机只对入场做门控，退出与止损从不询问预言机。
// 任何失败（超时、响应畸形、panic）一律降级为 {PASS, 0, 原因}，绝不降级为 ENTRY。
package oracle

import (
	"context"
	"time"

	"pairtrade-backtester/internal/core/model"
)

// DecisionOracle 决策预言机接口
// Decide 必须总是返回可用响应，失败时按 PASS 处理
type DecisionOracle interface {
	Decide(ctx context.Context, req model.OracleRequest) model.OracleResponse
}

// Querier 可能失败的底层查询
// 由 Guard 负责将错误转换为安全的 PASS 响应
type Querier interface {
	Query(ctx context.Context, req model.OracleRequest) (model.OracleResponse, error)
}

// Recorder 预言机调用记录器（时延统计、Prometheus 指标等）
type Recorder interface {
	RecordDecision(resp model.OracleResponse, elapsed time.Duration, failed bool)
}

// FailClosed 构造失败时的安全响应
func FailClosed(reason string) model.OracleResponse {
	return model.OracleResponse{
		Decision:   model.DecisionPass,
		Confidence: 0,
		Reason:     reason,
	}
}

// Sanitize 规范化响应
// 非 ENTRY/PASS 的判定强制为 PASS，置信度截断到 [0, 100]
func Sanitize(resp model.OracleResponse) model.OracleResponse {
	if resp.Decision != model.DecisionEntry && resp.Decision != model.DecisionPass {
		resp.Decision = model.DecisionPass
	}
	if resp.Confidence < 0 {
		resp.Confidence = 0
	}
	if resp.Confidence > 100 {
		resp.Confidence = 100
	}
	return resp
}

// Approved 判断响应是否允许入场
// 条件：decision == ENTRY 且 confidence > minConfidence（严格大于）
func Approved(resp model.OracleResponse, minConfidence int) bool {
	resp = Sanitize(resp)
	return resp.Decision == model.DecisionEntry && resp.Confidence > minConfidence
}
