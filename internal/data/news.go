package data

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"pairtrade-backtester/internal/util/fastparse"
	"pairtrade-backtester/internal/util/timeutil"
)

// NewsItem 单条新闻标题
type NewsItem struct {
	TimestampMs int64
	Headline    string
}

// NewsFeed 按时间检索的新闻标题集合
// 实现 sim.NewsSource
type NewsFeed struct {
	items    []NewsItem
	max      int
	lookback int64
}

// LoadNews 加载新闻文件
// 每行一条："<毫秒时间戳>\t<标题>"；没有时间戳的行视为始终可见（时间戳 0）。
// 空行与 # 开头的行被忽略。
func LoadNews(path string) ([]NewsItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开新闻文件失败: %w", err)
	}
	defer f.Close()

	var items []NewsItem
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		item := NewsItem{Headline: line}
		if tsStr, headline, ok := strings.Cut(line, "\t"); ok {
			if ts, err := fastparse.ParseTimestampMs(tsStr); err == nil {
				item = NewsItem{TimestampMs: ts, Headline: strings.TrimSpace(headline)}
			}
		}
		if item.Headline != "" {
			items = append(items, item)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("读取新闻文件失败: %w", err)
	}
	return items, nil
}

// NewNewsFeed 创建新闻检索器
// 参数 max: 每次返回的最大条数（<=0 表示不限）
// 参数 lookbackHours: 只返回该时间窗口内的新闻（<=0 表示不限）
func NewNewsFeed(items []NewsItem, max int, lookbackHours int) *NewsFeed {
	sorted := make([]NewsItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TimestampMs < sorted[j].TimestampMs
	})
	return &NewsFeed{
		items:    sorted,
		max:      max,
		lookback: int64(lookbackHours) * timeutil.HourMs,
	}
}

// Headlines 返回 tsMs 及之前的新闻标题，最新的在前
// 不会返回 tsMs 之后发布的新闻
func (f *NewsFeed) Headlines(tsMs int64) []string {
	if f == nil || len(f.items) == 0 {
		return nil
	}
	end := sort.Search(len(f.items), func(i int) bool {
		return f.items[i].TimestampMs > tsMs
	})

	var out []string
	for i := end - 1; i >= 0; i-- {
		it := f.items[i]
		if f.lookback > 0 && it.TimestampMs != 0 && it.TimestampMs < tsMs-f.lookback {
			continue
		}
		out = append(out, it.Headline)
		if f.max > 0 && len(out) >= f.max {
			break
		}
	}
	return out
}
