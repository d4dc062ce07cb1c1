package composite

import (
	"context"
	"errors"

	"canlidoviz/internal/application/port"
	"canlidoviz/internal/domain"
)

// Repo fans every write out to all backends. The first error is returned but
// the remaining backends are still written.
type Repo struct {
	repos []port.QuoteRepository
}

func New(repos ...port.QuoteRepository) *Repo {
	out := make([]port.QuoteRepository, 0, len(repos))
	for _, r := range repos {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Repo{repos: out}
}

func (r *Repo) Len() int { return len(r.repos) }

func (r *Repo) UpsertQuote(ctx context.Context, q domain.Quote) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.UpsertQuote(ctx, q); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) Close() error {
	var errs []error
	for _, repo := range r.repos {
		if err := repo.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ port.QuoteRepository = (*Repo)(nil)
