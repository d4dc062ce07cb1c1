package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"canlidoviz/internal/application/port"
	"canlidoviz/internal/domain"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS quotes (
  symbol TEXT PRIMARY KEY,
  buy_price NUMERIC,
  sell_price NUMERIC,
  buy_change NUMERIC,
  sell_change NUMERIC,
  value NUMERIC,
  updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_quotes_updated ON quotes(updated_at);
`)
	return err
}

func (r *Repo) UpsertQuote(ctx context.Context, q domain.Quote) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO quotes(symbol, buy_price, sell_price, buy_change, sell_change, value, updated_at)
		VALUES($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT(symbol) DO UPDATE SET
		buy_price=EXCLUDED.buy_price, sell_price=EXCLUDED.sell_price,
		buy_change=EXCLUDED.buy_change, sell_change=EXCLUDED.sell_change,
		value=EXCLUDED.value, updated_at=EXCLUDED.updated_at
	`, q.Symbol, q.BuyPrice, q.SellPrice, q.BuyPriceChange, q.SellPriceChange, q.Value, q.LastUpdate.UTC())
	return err
}

func (r *Repo) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	var q domain.Quote
	var ts time.Time
	err := r.db.QueryRowContext(ctx, `
		SELECT symbol, buy_price::text, sell_price::text, buy_change::text, sell_change::text, value::text, updated_at
		FROM quotes WHERE symbol=$1`, symbol).
		Scan(&q.Symbol, &q.BuyPrice, &q.SellPrice, &q.BuyPriceChange, &q.SellPriceChange, &q.Value, &ts)
	if err != nil {
		return domain.Quote{}, err
	}
	q.LastUpdate = ts
	return q, nil
}

var _ port.QuoteRepository = (*Repo)(nil)
