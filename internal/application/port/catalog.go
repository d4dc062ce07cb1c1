package port

import (
	"context"

	"canlidoviz/internal/domain"
)

// CatalogResolver maps one category's numeric instrument ids to symbols.
type CatalogResolver interface {
	Resolve(ctx context.Context, category domain.Category) (map[int]string, error)
}
