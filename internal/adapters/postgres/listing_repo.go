package postgres

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/jackc/pgx/v5"

	"github.com/propmap/propmap/internal/core/domain"
)

// ListingRepo implements ports.ListingRepository with pgx.
type ListingRepo struct {
	db *DB
}

// NewListingRepo creates a new ListingRepo.
func NewListingRepo(db *DB) *ListingRepo {
	return &ListingRepo{db: db}
}

const upsertListingSQL = `
	INSERT INTO listings (id, title, latitude, longitude, price, bedrooms, bathrooms,
	                      category, transaction_type, city, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), now())
	ON CONFLICT (id) DO UPDATE
	SET title = EXCLUDED.title, latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude,
	    price = EXCLUDED.price, bedrooms = EXCLUDED.bedrooms, bathrooms = EXCLUDED.bathrooms,
	    category = EXCLUDED.category, transaction_type = EXCLUDED.transaction_type,
	    city = EXCLUDED.city, updated_at = now()
`

// UpsertBatch inserts many listings using pgx.Batch.
func (r *ListingRepo) UpsertBatch(ctx context.Context, listings []domain.Listing) error {
	if len(listings) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, l := range listings {
		batch.Queue(upsertListingSQL,
			l.ID, l.Title, l.Latitude, l.Longitude, l.Price, l.Bedrooms, l.Bathrooms,
			string(l.Category), string(l.TransactionType), l.City)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range listings {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}

// GetByIDs returns full listings, ordered by price.
func (r *ListingRepo) GetByIDs(ctx context.Context, ids []string) ([]domain.Listing, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, title, latitude, longitude, price, bedrooms, bathrooms,
		       category, transaction_type, COALESCE(city, ''), updated_at
		FROM listings WHERE id = ANY($1)
		ORDER BY price, id
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []domain.Listing
	for rows.Next() {
		var l domain.Listing
		var category, transaction string
		if err := rows.Scan(
			&l.ID, &l.Title, &l.Latitude, &l.Longitude, &l.Price, &l.Bedrooms, &l.Bathrooms,
			&category, &transaction, &l.City, &l.UpdatedAt,
		); err != nil {
			return nil, err
		}
		l.Category = domain.PropertyCategory(category)
		l.TransactionType = domain.TransactionType(transaction)
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// Points returns every listing matching filters, coordinates included even
// when NULL; the clustering index drops those.
func (r *ListingRepo) Points(ctx context.Context, filters domain.FilterSet) ([]domain.ListingPoint, error) {
	sql, args := pointsQuery(filters)
	rows, err := r.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}
	defer rows.Close()

	var points []domain.ListingPoint
	for rows.Next() {
		var p domain.ListingPoint
		var category, transaction string
		if err := rows.Scan(&p.ID, &p.Latitude, &p.Longitude, &p.Price, &category, &transaction); err != nil {
			return nil, err
		}
		p.Category = domain.PropertyCategory(category)
		p.TransactionType = domain.TransactionType(transaction)
		points = append(points, p)
	}
	return points, rows.Err()
}

// DataVersion changes whenever a listing is written or removed.
func (r *ListingRepo) DataVersion(ctx context.Context) (int64, error) {
	var latest, count int64
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COALESCE((EXTRACT(EPOCH FROM max(updated_at)) * 1000000)::bigint, 0), count(*)
		FROM listings
	`).Scan(&latest, &count)
	if err != nil {
		return 0, fmt.Errorf("data version: %w", err)
	}
	return dataVersion(latest, count), nil
}

// dataVersion folds the newest write time and the row count into one
// positive, non-zero number. Zero is reserved for "unknown" on the event bus.
func dataVersion(latestMicros, count int64) int64 {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(latestMicros))
	binary.BigEndian.PutUint64(buf[8:], uint64(count))
	v := int64(xxhash.Sum64(buf[:]) & math.MaxInt64)
	if v == 0 {
		return 1
	}
	return v
}

// pointsQuery translates filters into a parameterised SELECT.
func pointsQuery(f domain.FilterSet) (string, []any) {
	var where []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.MinPrice != nil {
		add("price >= $%d", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		add("price <= $%d", *f.MaxPrice)
	}
	if f.Bedrooms != nil {
		add("bedrooms >= $%d", *f.Bedrooms)
	}
	if f.Bathrooms != nil {
		add("bathrooms >= $%d", *f.Bathrooms)
	}
	if len(f.Category) > 0 {
		cats := make([]string, len(f.Category))
		for i, c := range f.Category {
			cats[i] = string(c)
		}
		add("category = ANY($%d)", cats)
	}
	if len(f.TransactionType) > 0 {
		types := make([]string, len(f.TransactionType))
		for i, t := range f.TransactionType {
			types[i] = string(t)
		}
		add("transaction_type = ANY($%d)", types)
	}
	if f.City != nil {
		add("lower(city) = lower($%d)", *f.City)
	}
	if f.Query != nil {
		add("search_vector @@ plainto_tsquery('spanish', $%d)", *f.Query)
	}

	sql := `SELECT id, latitude, longitude, price, category, transaction_type FROM listings`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	return sql + " ORDER BY id", args
}
