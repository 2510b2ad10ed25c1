package ports

import (
	"context"

	"github.com/propmap/propmap/internal/core/domain"
)

// ListingRepository persists listings.
type ListingRepository interface {
	UpsertBatch(ctx context.Context, listings []domain.Listing) error
	GetByIDs(ctx context.Context, ids []string) ([]domain.Listing, error)
	// Points returns every listing matching filters, projected for clustering.
	Points(ctx context.Context, filters domain.FilterSet) ([]domain.ListingPoint, error)
	// DataVersion changes whenever any listing is written.
	DataVersion(ctx context.Context) (int64, error)
}
