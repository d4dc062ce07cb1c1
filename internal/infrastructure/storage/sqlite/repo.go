package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"canlidoviz/internal/application/port"
	"canlidoviz/internal/domain"
)

// Repo 每个品种保存一行最新报价；decimal 以 TEXT 存储以保证精度
type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// 确保目录存在
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) DB() *sql.DB { return r.db }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS quotes (
  symbol TEXT PRIMARY KEY,
  buy_price TEXT,
  sell_price TEXT,
  buy_change TEXT,
  sell_change TEXT,
  value TEXT,
  updated_ms INTEGER NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_quotes_updated ON quotes(updated_ms);
`)
	return err
}

func (r *Repo) UpsertQuote(ctx context.Context, q domain.Quote) error {
	ts := q.LastUpdate.UnixMilli()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO quotes(symbol, buy_price, sell_price, buy_change, sell_change, value, updated_ms, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
		buy_price=excluded.buy_price, sell_price=excluded.sell_price,
		buy_change=excluded.buy_change, sell_change=excluded.sell_change,
		value=excluded.value, updated_ms=excluded.updated_ms
	`, q.Symbol, q.BuyPrice, q.SellPrice, q.BuyPriceChange, q.SellPriceChange, q.Value, ts, ts)
	return err
}

// GetQuote 品种不存在时返回 sql.ErrNoRows
func (r *Repo) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT symbol, buy_price, sell_price, buy_change, sell_change, value, updated_ms
		FROM quotes WHERE symbol=?`, symbol)
	return scanQuote(row)
}

func (r *Repo) ListQuotes(ctx context.Context) ([]domain.Quote, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, buy_price, sell_price, buy_change, sell_change, value, updated_ms
		FROM quotes ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuote(s scanner) (domain.Quote, error) {
	var q domain.Quote
	var ts int64
	if err := s.Scan(&q.Symbol, &q.BuyPrice, &q.SellPrice, &q.BuyPriceChange, &q.SellPriceChange, &q.Value, &ts); err != nil {
		return domain.Quote{}, err
	}
	q.LastUpdate = time.UnixMilli(ts)
	return q, nil
}

var _ port.QuoteRepository = (*Repo)(nil)
