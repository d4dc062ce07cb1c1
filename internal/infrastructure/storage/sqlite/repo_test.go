package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"canlidoviz/internal/domain"

	"github.com/shopspring/decimal"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	repo, err := New(filepath.Join(t.TempDir(), "data", "quotes.db"))
	if err != nil {
		t.Fatalf("failed to create repo: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSQLiteRepoUpsertAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ts := time.UnixMilli(1700000000123)
	q := domain.Quote{Symbol: "USD"}
	q.Apply([]string{"34.5", "34.9"}, ts)
	if err := repo.UpsertQuote(ctx, q); err != nil {
		t.Fatalf("UpsertQuote failed: %v", err)
	}

	q.Apply([]string{"35.0", ""}, ts.Add(time.Second))
	if err := repo.UpsertQuote(ctx, q); err != nil {
		t.Fatalf("UpsertQuote failed: %v", err)
	}

	got, err := repo.GetQuote(ctx, "USD")
	if err != nil {
		t.Fatalf("GetQuote failed: %v", err)
	}
	if !got.BuyPrice.Valid || !got.BuyPrice.Decimal.Equal(decimal.RequireFromString("35.0")) {
		t.Errorf("unexpected buy %+v", got.BuyPrice)
	}
	if !got.BuyPriceChange.Decimal.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("unexpected buy change %s", got.BuyPriceChange.Decimal)
	}
	if got.Value.Valid {
		t.Errorf("value should be NULL, got %s", got.Value.Decimal)
	}
	if got.LastUpdate.UnixMilli() != ts.Add(time.Second).UnixMilli() {
		t.Errorf("unexpected last update %v", got.LastUpdate)
	}
}

func TestSQLiteRepoSingleValue(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	q := domain.Quote{Symbol: "XU100"}
	q.Apply([]string{"", "", "9876.54"}, time.Now())
	if err := repo.UpsertQuote(ctx, q); err != nil {
		t.Fatalf("UpsertQuote failed: %v", err)
	}

	got, err := repo.GetQuote(ctx, "XU100")
	if err != nil {
		t.Fatalf("GetQuote failed: %v", err)
	}
	if got.BuyPrice.Valid || got.SellPrice.Valid {
		t.Errorf("expected NULL sides, got %+v", got)
	}
	if !got.Value.Decimal.Equal(decimal.RequireFromString("9876.54")) {
		t.Errorf("unexpected value %s", got.Value.Decimal)
	}
}

func TestSQLiteRepoListQuotes(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, sym := range []string{"USD", "EUR", "GA"} {
		q := domain.Quote{Symbol: sym}
		q.Apply([]string{"1", "2"}, time.Now())
		if err := repo.UpsertQuote(ctx, q); err != nil {
			t.Fatalf("UpsertQuote failed: %v", err)
		}
	}

	quotes, err := repo.ListQuotes(ctx)
	if err != nil {
		t.Fatalf("ListQuotes failed: %v", err)
	}
	if len(quotes) != 3 || quotes[0].Symbol != "EUR" || quotes[2].Symbol != "USD" {
		t.Errorf("unexpected quotes %+v", quotes)
	}
}

func TestSQLiteRepoGetMissing(t *testing.T) {
	repo := newTestRepo(t)
	if _, err := repo.GetQuote(context.Background(), "NOPE"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}
