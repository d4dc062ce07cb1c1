package port

import (
	"context"

	"canlidoviz/internal/domain"
)

// QuoteRepository mirrors the latest quote per symbol. Implementations upsert, they never append history.
type QuoteRepository interface {
	UpsertQuote(ctx context.Context, q domain.Quote) error
	Close() error
}
