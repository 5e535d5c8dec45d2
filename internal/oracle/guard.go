package oracle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pairtrade-backtester/internal/core/model"
)

// Guard 将任意 Querier 包装为 fail-closed 的 DecisionOracle
// 负责超时、panic 恢复、响应规范化以及调用记录
type Guard struct {
	q         Querier
	timeout   time.Duration
	logger    *zap.Logger
	recorders []Recorder
}

// NewGuard 创建预言机守卫
// 参数 q: 底层查询
// 参数 timeout: 单次调用超时，<=0 表示仅依赖调用方 ctx
// 参数 logger: 日志
// 参数 recorders: 调用记录器（可选）
func NewGuard(q Querier, timeout time.Duration, logger *zap.Logger, recorders ...Recorder) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		q:         q,
		timeout:   timeout,
		logger:    logger.Named("oracle"),
		recorders: recorders,
	}
}

type queryResult struct {
	resp model.OracleResponse
	err  error
}

// Decide 实现 DecisionOracle
func (g *Guard) Decide(ctx context.Context, req model.OracleRequest) model.OracleResponse {
	start := time.Now()
	resp, err := g.query(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		g.logger.Warn("预言机调用失败，按 PASS 处理",
			zap.Error(err),
			zap.Float64("z_score", req.ZScore),
			zap.Duration("elapsed", elapsed),
		)
		resp = FailClosed(fmt.Sprintf("oracle failure: %v", err))
	} else {
		resp = Sanitize(resp)
		g.logger.Info("预言机判定",
			zap.String("decision", string(resp.Decision)),
			zap.Int("confidence", resp.Confidence),
			zap.String("reason", resp.Reason),
			zap.Float64("z_score", req.ZScore),
			zap.Duration("elapsed", elapsed),
		)
	}

	for _, r := range g.recorders {
		r.RecordDecision(resp, elapsed, err != nil)
	}
	return resp
}

func (g *Guard) query(ctx context.Context, req model.OracleRequest) (model.OracleResponse, error) {
	if g.q == nil {
		return model.OracleResponse{}, fmt.Errorf("预言机未配置")
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	done := make(chan queryResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- queryResult{err: fmt.Errorf("预言机 panic: %v", r)}
			}
		}()
		resp, err := g.q.Query(ctx, req)
		done <- queryResult{resp: resp, err: err}
	}()

	select {
	case res := <-done:
		return res.resp, res.err
	case <-ctx.Done():
		return model.OracleResponse{}, fmt.Errorf("预言机超时: %w", ctx.Err())
	}
}

var _ DecisionOracle = (*Guard)(nil)
