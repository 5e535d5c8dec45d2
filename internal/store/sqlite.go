// Package store 基于 SQLite 持久化持仓状态、交易记录、信号日志与监控日志。
// 供 step 模式的无状态宿主在两次调用之间保存状态，也供 pairctl 运维查询。
// 日志类记录带过期时间，Prune 按 ttl_days 清理。
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"go.uber.org/multierr"

	"pairtrade-backtester/internal/core/model"
	"pairtrade-backtester/internal/util/timeutil"

	_ "modernc.org/sqlite" // 纯 Go SQLite 驱动
)

// maxReasonRunes 信号理由最大保存长度（字符）
const maxReasonRunes = 500

const stateKey = "position"

const schema = `
CREATE TABLE IF NOT EXISTS state (
	key        TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS trades (
	id          TEXT PRIMARY KEY,
	exit_ts_ms  INTEGER NOT NULL,
	exit_reason TEXT NOT NULL,
	net_pnl     REAL NOT NULL,
	payload     TEXT NOT NULL,
	expires_at  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_trades_exit ON trades(exit_ts_ms);
CREATE TABLE IF NOT EXISTS signals (
	id         TEXT PRIMARY KEY,
	ts_ms      INTEGER NOT NULL,
	z_score    REAL NOT NULL,
	decision   TEXT NOT NULL,
	confidence INTEGER NOT NULL,
	reason     TEXT NOT NULL,
	news_count INTEGER NOT NULL,
	payload    TEXT NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_signals_ts ON signals(ts_ms);
CREATE TABLE IF NOT EXISTS monitors (
	ts_ms        INTEGER PRIMARY KEY,
	z_score      REAL,
	ratio        REAL,
	price_a      REAL NOT NULL,
	price_b      REAL NOT NULL,
	change_24h_a REAL,
	change_24h_b REAL,
	status       TEXT NOT NULL,
	equity       REAL NOT NULL,
	expires_at   INTEGER NOT NULL DEFAULT 0
);
`

// MonitorRecord 每个时间步的监控日志
type MonitorRecord struct {
	TimestampMs int64                `json:"ts_ms"`
	ZScore      model.NullFloat      `json:"z_score"`
	Ratio       model.NullFloat      `json:"ratio"`
	PriceA      float64              `json:"price_a"`
	PriceB      float64              `json:"price_b"`
	Change24hA  model.NullFloat      `json:"change_24h_a"`
	Change24hB  model.NullFloat      `json:"change_24h_b"`
	Status      model.PositionStatus `json:"status"`
	Equity      float64              `json:"equity"`
}

// SQLiteStore SQLite 持久化
type SQLiteStore struct {
	db      *sql.DB
	ttlDays int
	now     func() int64
}

// Open 打开（或创建）数据库并建表
// 参数 ttlDays: 日志保留天数，<=0 表示永久保留
func Open(path string, ttlDays int) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	// SQLite 单写者
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		return nil, multierr.Append(fmt.Errorf("初始化表结构失败: %w", err), db.Close())
	}
	return &SQLiteStore{db: db, ttlDays: ttlDays, now: timeutil.NowMs}, nil
}

// Close 关闭数据库
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) expiresAt() int64 {
	if s.ttlDays <= 0 {
		return 0
	}
	return s.now() + int64(s.ttlDays)*timeutil.DayMs
}

// LoadState 读取持仓状态；从未保存过时 ok=false
func (s *SQLiteStore) LoadState(ctx context.Context) (state model.PositionState, ok bool, err error) {
	var payload string
	err = s.db.QueryRowContext(ctx, `SELECT payload FROM state WHERE key = ?`, stateKey).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PositionState{}, false, nil
	}
	if err != nil {
		return model.PositionState{}, false, fmt.Errorf("读取持仓状态失败: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return model.PositionState{}, false, fmt.Errorf("解析持仓状态失败: %w", err)
	}
	return state, true, nil
}

// SaveState 保存持仓状态（覆盖）
func (s *SQLiteStore) SaveState(ctx context.Context, state model.PositionState) error {
	b, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("序列化持仓状态失败: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO state(key, payload, updated_at) VALUES(?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		stateKey, string(b), s.now())
	if err != nil {
		return fmt.Errorf("保存持仓状态失败: %w", err)
	}
	return nil
}

// StateUpdatedAt 持仓状态最后更新时间（毫秒），未保存过返回 0
func (s *SQLiteStore) StateUpdatedAt(ctx context.Context) (int64, error) {
	var ts int64
	err := s.db.QueryRowContext(ctx, `SELECT updated_at FROM state WHERE key = ?`, stateKey).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return ts, err
}

// SaveTrade 保存已实现交易
func (s *SQLiteStore) SaveTrade(ctx context.Context, tr model.TradeRecord) error {
	b, err := json.Marshal(tr)
	if err != nil {
		return fmt.Errorf("序列化交易失败: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO trades(id, exit_ts_ms, exit_reason, net_pnl, payload, expires_at)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.ExitTimestampMs, string(tr.ExitReason), tr.NetPnL, string(b), s.expiresAt())
	if err != nil {
		return fmt.Errorf("保存交易失败: %w", err)
	}
	return nil
}

// ListTrades 按出场时间倒序列出交易
// 参数 limit: <=0 表示全部
func (s *SQLiteStore) ListTrades(ctx context.Context, limit int) ([]model.TradeRecord, error) {
	q := `SELECT payload FROM trades ORDER BY exit_ts_ms DESC, id`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("查询交易失败: %w", err)
	}
	defer rows.Close()

	var out []model.TradeRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var tr model.TradeRecord
		if err := json.Unmarshal([]byte(payload), &tr); err != nil {
			return nil, fmt.Errorf("解析交易失败: %w", err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// SaveSignal 保存信号事件，理由截断到 500 字符
func (s *SQLiteStore) SaveSignal(ctx context.Context, ev model.SignalEvent) error {
	ev.Reason = truncateRunes(ev.Reason, maxReasonRunes)
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("序列化信号失败: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO signals(id, ts_ms, z_score, decision, confidence, reason, news_count, payload, expires_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.TimestampMs, ev.ZScore, string(ev.Decision), ev.Confidence, ev.Reason, ev.NewsCount, string(b), s.expiresAt())
	if err != nil {
		return fmt.Errorf("保存信号失败: %w", err)
	}
	return nil
}

// ListSignals 列出 sinceMs 及之后的信号，时间倒序
func (s *SQLiteStore) ListSignals(ctx context.Context, sinceMs int64) ([]model.SignalEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM signals WHERE ts_ms >= ? ORDER BY ts_ms DESC, id`, sinceMs)
	if err != nil {
		return nil, fmt.Errorf("查询信号失败: %w", err)
	}
	defer rows.Close()

	var out []model.SignalEvent
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var ev model.SignalEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("解析信号失败: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// SaveMonitor 保存监控日志（同一时间戳覆盖）
func (s *SQLiteStore) SaveMonitor(ctx context.Context, m MonitorRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO monitors(ts_ms, z_score, ratio, price_a, price_b, change_24h_a, change_24h_b, status, equity, expires_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.TimestampMs, toNull(m.ZScore), toNull(m.Ratio), m.PriceA, m.PriceB,
		toNull(m.Change24hA), toNull(m.Change24hB), string(m.Status), m.Equity, s.expiresAt())
	if err != nil {
		return fmt.Errorf("保存监控日志失败: %w", err)
	}
	return nil
}

// ListMonitors 列出 sinceMs 及之后的监控日志，时间倒序
// 参数 limit: <=0 表示全部
func (s *SQLiteStore) ListMonitors(ctx context.Context, sinceMs int64, limit int) ([]MonitorRecord, error) {
	q := `SELECT ts_ms, z_score, ratio, price_a, price_b, change_24h_a, change_24h_b, status, equity
	      FROM monitors WHERE ts_ms >= ? ORDER BY ts_ms DESC`
	args := []any{sinceMs}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("查询监控日志失败: %w", err)
	}
	defer rows.Close()

	var out []MonitorRecord
	for rows.Next() {
		var (
			m                  MonitorRecord
			z, ratio, chA, chB sql.NullFloat64
			status             string
		)
		if err := rows.Scan(&m.TimestampMs, &z, &ratio, &m.PriceA, &m.PriceB, &chA, &chB, &status, &m.Equity); err != nil {
			return nil, err
		}
		m.ZScore, m.Ratio = fromNull(z), fromNull(ratio)
		m.Change24hA, m.Change24hB = fromNull(chA), fromNull(chB)
		m.Status = model.PositionStatus(status)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Prune 删除已过期的日志记录，返回删除行数
func (s *SQLiteStore) Prune(ctx context.Context) (int64, error) {
	now := s.now()
	var total int64
	var errs error
	for _, table := range []string{"trades", "signals", "monitors"} {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE expires_at > 0 AND expires_at < ?`, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("清理 %s 失败: %w", table, err))
			continue
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, errs
}

func toNull(n model.NullFloat) sql.NullFloat64 {
	return sql.NullFloat64{Float64: n.Value, Valid: n.Valid}
}

func fromNull(n sql.NullFloat64) model.NullFloat {
	if !n.Valid {
		return model.None()
	}
	return model.Some(n.Float64)
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}
