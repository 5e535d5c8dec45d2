package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"pairtrade-backtester/internal/core/model"
)

// Legs 两腿资产名称，用于提示词
type Legs struct {
	// A 比率分子资产，如 ETH
	A string
	// B 比率分母资产，如 BTC
	B string
}

const priceOnlySystemPrompt = `你是一名加密货币量化基金经理。
当前 %[1]s 与 %[2]s 的价格比率出现统计异常（偏离超过 2 个标准差）。
请参考最近 24 小时的涨跌幅，判断该偏离是源于 %[1]s 的根本性基本面变化（如被盗、重大升级失败），
还是暂时性的供需扭曲（噪声）。
若推测没有根本原因（属于噪声），输出 "ENTRY"；若存在致命利空，输出 "PASS"。
只允许输出如下 JSON，不得包含其他文本：
{"decision": "ENTRY" | "PASS", "confidence": 0-100 的整数, "reason": "简要理由"}`

const newsSystemPrompt = `你是一名加密货币量化基金经理。
当前出现 z-score 异常（价格偏离）。
请阅读下方【最新新闻列表】，判断该偏离是否由被盗、监管收紧等重大利空引起。
新闻中存在利空时必须输出 "PASS"，仅在未发现利空、属于噪声波动时输出 "ENTRY"。
只允许输出如下 JSON，不得包含其他文本：
{"decision": "ENTRY" | "PASS", "confidence": 0-100 的整数, "reason": "简要理由（PASS 时列出利空新闻）"}`

type priceOnlyPayload struct {
	Situation  string  `json:"situation"`
	ZScore     float64 `json:"z_score"`
	Ratio      float64 `json:"ratio"`
	PriceA     float64 `json:"price_a_usd"`
	PriceB     float64 `json:"price_b_usd"`
	Change24hA float64 `json:"change_24h_a_pct"`
	Change24hB float64 `json:"change_24h_b_pct"`
}

// BuildPrompt 构建系统提示词与用户内容
// 有新闻时使用新闻版提示词，否则使用仅价格提示词
func BuildPrompt(legs Legs, req model.OracleRequest, maxNews int) (system string, user string, err error) {
	chgA := valueOr(req.Change24hA, 0)
	chgB := valueOr(req.Change24hB, 0)

	if news := limitNews(req.News, maxNews); len(news) > 0 {
		var sb strings.Builder
		fmt.Fprintf(&sb, "【z-score】%.2f | 24h 涨跌幅: %s %+.2f%%, %s %+.2f%%\n\n", req.ZScore, legs.B, chgB, legs.A, chgA)
		sb.WriteString("【最新新闻列表】\n")
		for _, n := range news {
			sb.WriteString("- ")
			sb.WriteString(n)
			sb.WriteString("\n")
		}
		return newsSystemPrompt, strings.TrimRight(sb.String(), "\n"), nil
	}

	verb := "买入"
	if req.ZScore < 0 {
		verb = "卖出"
	}
	situation := fmt.Sprintf("当前 %s 相对 %s 被异常%s（z-score %.2f）。最近 24 小时 %s %+.2f%%，%s %+.2f%%。",
		legs.A, legs.B, verb, req.ZScore, legs.B, chgB, legs.A, chgA)

	b, err := json.Marshal(priceOnlyPayload{
		Situation:  situation,
		ZScore:     req.ZScore,
		Ratio:      req.Ratio,
		PriceA:     req.PriceA,
		PriceB:     req.PriceB,
		Change24hA: chgA,
		Change24hB: chgB,
	})
	if err != nil {
		return "", "", fmt.Errorf("序列化提示词失败: %w", err)
	}
	return fmt.Sprintf(priceOnlySystemPrompt, legs.A, legs.B), string(b), nil
}

func limitNews(news []string, max int) []string {
	out := make([]string, 0, len(news))
	for _, n := range news {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		out = append(out, n)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}

func valueOr(v model.NullFloat, def float64) float64 {
	if !v.Valid {
		return def
	}
	return v.Value
}
