package oracle

import (
	"context"

	"pairtrade-backtester/internal/core/model"
)

// MockOracle 离线回放用预言机，恒定返回 ENTRY / 100
type MockOracle struct{}

// Query 实现 Querier
func (MockOracle) Query(_ context.Context, _ model.OracleRequest) (model.OracleResponse, error) {
	return model.OracleResponse{
		Decision:   model.DecisionEntry,
		Confidence: 100,
		Reason:     "backtest mock: always ENTRY",
	}, nil
}

// Decide 实现 DecisionOracle
func (m MockOracle) Decide(ctx context.Context, req model.OracleRequest) model.OracleResponse {
	resp, _ := m.Query(ctx, req)
	return resp
}

// PassOracle 恒定返回 PASS 的预言机
type PassOracle struct {
	// Reason 返回的理由，为空时使用默认值
	Reason string
}

// Query 实现 Querier
func (p PassOracle) Query(_ context.Context, _ model.OracleRequest) (model.OracleResponse, error) {
	reason := p.Reason
	if reason == "" {
		reason = "pass oracle: always PASS"
	}
	return model.OracleResponse{
		Decision:   model.DecisionPass,
		Confidence: 100,
		Reason:     reason,
	}, nil
}

// Decide 实现 DecisionOracle
func (p PassOracle) Decide(ctx context.Context, req model.OracleRequest) model.OracleResponse {
	resp, _ := p.Query(ctx, req)
	return resp
}

// Func 函数适配器
type Func func(ctx context.Context, req model.OracleRequest) (model.OracleResponse, error)

// Query 实现 Querier
func (f Func) Query(ctx context.Context, req model.OracleRequest) (model.OracleResponse, error) {
	return f(ctx, req)
}

var (
	_ DecisionOracle = MockOracle{}
	_ DecisionOracle = PassOracle{}
	_ Querier        = MockOracle{}
	_ Querier        = PassOracle{}
	_ Querier        = Func(nil)
)
