package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pairtrade-backtester/internal/config"
	"pairtrade-backtester/internal/core/model"
	"pairtrade-backtester/internal/util/backoff"
	"pairtrade-backtester/internal/util/fastparse"
)

// ErrNoAPIKey 未配置 API Key
var ErrNoAPIKey = errors.New("API Key 未配置")

// LiveOracle 基于 OpenAI 兼容 chat-completions 接口的预言机
// 请求节流使用令牌桶，连续失败触发熔断，可重试错误按指数退避重试
type LiveOracle struct {
	cfg     config.OracleConfig
	legs    Legs
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewLiveOracle 创建真实接口预言机
// 参数 cfg: 预言机配置
// 参数 legs: 两腿资产名称
// 参数 apiKey: 接口密钥
// 参数 logger: 日志
func NewLiveOracle(cfg config.OracleConfig, legs Legs, apiKey string, logger *zap.Logger) *LiveOracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("oracle.live")

	failures := uint32(cfg.BreakerFailures)
	if failures == 0 {
		failures = 3
	}
	st := gobreaker.Settings{
		Name:     "decision-oracle",
		Interval: 60 * time.Second,
		Timeout:  time.Duration(cfg.BreakerCooldownMs) * time.Millisecond,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("熔断器状态变化", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &LiveOracle{
		cfg:     cfg,
		legs:    legs,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst),
		breaker: gobreaker.NewCircuitBreaker(st),
		logger:  logger,
	}
}

// Decide 实现 DecisionOracle，错误降级为 PASS
func (o *LiveOracle) Decide(ctx context.Context, req model.OracleRequest) model.OracleResponse {
	resp, err := o.Query(ctx, req)
	if err != nil {
		o.logger.Warn("预言机请求失败，按 PASS 处理", zap.Error(err))
		return FailClosed(fmt.Sprintf("oracle failure: %v", err))
	}
	return resp
}

// Query 实现 Querier
func (o *LiveOracle) Query(ctx context.Context, req model.OracleRequest) (model.OracleResponse, error) {
	if o.apiKey == "" {
		return model.OracleResponse{}, ErrNoAPIKey
	}

	system, user, err := BuildPrompt(o.legs, req, o.cfg.MaxNews)
	if err != nil {
		return model.OracleResponse{}, err
	}
	body, err := json.Marshal(chatRequest{
		Model: o.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    o.cfg.Temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return model.OracleResponse{}, fmt.Errorf("序列化请求失败: %w", err)
	}

	raw, err := o.postWithRetry(ctx, body)
	if err != nil {
		return model.OracleResponse{}, err
	}
	return ParseChatResponse(raw)
}

func (o *LiveOracle) postWithRetry(ctx context.Context, body []byte) ([]byte, error) {
	attempts := o.cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	bo := backoff.NewDefault()

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := bo.Wait(ctx); err != nil {
				return nil, err
			}
			o.logger.Debug("重试预言机请求", zap.Int("attempt", bo.Attempt()+1), zap.Error(lastErr))
		}

		if err := o.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("等待限流令牌失败: %w", err)
		}

		out, err := o.breaker.Execute(func() (interface{}, error) {
			return o.post(ctx, body)
		})
		if err == nil {
			return out.([]byte), nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (o *LiveOracle) post(ctx context.Context, body []byte) ([]byte, error) {
	url := strings.TrimRight(o.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("User-Agent", "pairtrade-backtester/1.0")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode}
	}
	return b, nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP 状态码错误: %d", e.code)
}

// retryable 5xx、429 与网络错误可重试；熔断打开与其余 4xx 不重试
func retryable(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	return true
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// ParseChatResponse 解析 chat-completions 响应中的判定 JSON
// 缺失字段按 PASS / 0 处理，结果经过 Sanitize
func ParseChatResponse(raw []byte) (model.OracleResponse, error) {
	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return model.OracleResponse{}, fmt.Errorf("解析响应失败: %w", err)
	}
	if len(cr.Choices) == 0 {
		return model.OracleResponse{}, fmt.Errorf("响应缺少 choices")
	}
	return ParseDecision(cr.Choices[0].Message.Content)
}

// ParseDecision 解析判定 JSON 文本
func ParseDecision(content string) (model.OracleResponse, error) {
	content = stripCodeFence(content)

	var m map[string]any
	if err := json.Unmarshal([]byte(content), &m); err != nil {
		return model.OracleResponse{}, fmt.Errorf("解析判定 JSON 失败: %w", err)
	}

	resp := model.OracleResponse{Decision: model.DecisionPass}
	if d, ok := m["decision"].(string); ok {
		// 判定区分大小写，非规范取值由 Sanitize 归为 PASS
		resp.Decision = model.Decision(d)
	}
	conf, err := toInt(m["confidence"])
	if err != nil {
		return model.OracleResponse{}, fmt.Errorf("解析 confidence 失败: %w", err)
	}
	resp.Confidence = conf
	if r, ok := m["reason"]; ok && r != nil {
		resp.Reason = fmt.Sprint(r)
	}
	return Sanitize(resp), nil
}

func toInt(v any) (int, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, fmt.Errorf("非有限数值")
		}
		return int(math.Max(-1, math.Min(101, x))), nil
	case string:
		f, err := fastparse.ParseFloat(strings.TrimSpace(x))
		if err != nil {
			return 0, err
		}
		return toInt(f)
	default:
		return 0, fmt.Errorf("未知类型 %T", v)
	}
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

var (
	_ DecisionOracle = (*LiveOracle)(nil)
	_ Querier        = (*LiveOracle)(nil)
)
