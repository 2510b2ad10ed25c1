package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	natsadapter "github.com/propmap/propmap/internal/adapters/nats"
	"github.com/propmap/propmap/internal/adapters/postgres"
	"github.com/propmap/propmap/internal/core/domain"
	"github.com/propmap/propmap/internal/core/ports"
	"github.com/propmap/propmap/internal/pkg/config"
	"github.com/propmap/propmap/internal/pkg/logging"
)

const batchSize = 500

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: seeder <listings.json|listings.csv> | seeder generate <n> [south,west,north,east]")
	}

	cfg, err := config.Load("propmap-seeder")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format, "service", "propmap-seeder")

	ctx := context.Background()

	var listings []domain.Listing
	if os.Args[1] == "generate" {
		listings, err = generateFromArgs(os.Args[2:])
	} else {
		listings, err = loadFile(os.Args[1])
	}
	if err != nil {
		log.Fatalf("listings: %v", err)
	}
	logger.Info("seeding listings", "count", len(listings))

	db, err := postgres.New(ctx, cfg.Database.DSN(), postgres.WithApplicationName("propmap-seeder"))
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewListingRepo(db)
	for start := 0; start < len(listings); start += batchSize {
		end := min(start+batchSize, len(listings))
		if err := repo.UpsertBatch(ctx, listings[start:end]); err != nil {
			log.Fatalf("upsert %d-%d: %v", start, end, err)
		}
		logger.Info("batch upserted", "from", start, "to", end)
	}

	version, err := repo.DataVersion(ctx)
	if err != nil {
		log.Fatalf("data version: %v", err)
	}

	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		// API replicas will pick the new version up on restart.
		logger.Warn("nats unavailable, listings.changed not published", "error", err)
		return
	}
	defer pub.Close()

	if err := announce(ctx, pub, version, len(listings)); err != nil {
		log.Fatalf("publish: %v", err)
	}
	logger.Info("seeding complete", "version", version)
}

// announce tells API replicas that their indexes are stale.
func announce(ctx context.Context, pub ports.EventPublisher, version int64, count int) error {
	return pub.PublishListingsChanged(ctx, domain.ListingsChanged{
		Version: version,
		Count:   count,
		At:      time.Now().UTC(),
	})
}

// ---------------------------------------------------------------------------
// Files
// ---------------------------------------------------------------------------

func loadFile(path string) ([]domain.Listing, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		var listings []domain.Listing
		if err := json.NewDecoder(f).Decode(&listings); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return stamp(listings), nil
	case ".csv":
		return readCSV(f)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

// readCSV expects a header row; columns are matched by name and empty
// latitude/longitude cells leave the listing off the map.
func readCSV(r io.Reader) ([]domain.Listing, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(strings.ToLower(h))] = i
	}
	for _, required := range []string{"title", "price", "category", "transaction_type"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	get := func(rec []string, name string) string {
		if i, ok := col[name]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	var listings []domain.Listing
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		price, err := strconv.ParseInt(get(rec, "price"), 10, 64)
		if err != nil {
			log.Printf("line %d: skipping, bad price %q", line, get(rec, "price"))
			continue
		}
		category, ok := domain.ParsePropertyCategory(get(rec, "category"))
		if !ok {
			log.Printf("line %d: skipping, bad category %q", line, get(rec, "category"))
			continue
		}
		tx, ok := domain.ParseTransactionType(get(rec, "transaction_type"))
		if !ok {
			log.Printf("line %d: skipping, bad transaction_type %q", line, get(rec, "transaction_type"))
			continue
		}

		l := domain.Listing{
			ID:              get(rec, "id"),
			Title:           get(rec, "title"),
			Price:           price,
			Category:        category,
			TransactionType: tx,
			City:            get(rec, "city"),
		}
		l.Bedrooms, _ = strconv.Atoi(get(rec, "bedrooms"))
		l.Bathrooms, _ = strconv.Atoi(get(rec, "bathrooms"))
		if lat, err := strconv.ParseFloat(get(rec, "latitude"), 64); err == nil {
			l.Latitude = &lat
		}
		if lng, err := strconv.ParseFloat(get(rec, "longitude"), 64); err == nil {
			l.Longitude = &lng
		}
		listings = append(listings, l)
	}
	return stamp(listings), nil
}

// stamp fills missing ids and timestamps.
func stamp(listings []domain.Listing) []domain.Listing {
	now := time.Now().UTC()
	for i := range listings {
		if listings[i].ID == "" {
			listings[i].ID = uuid.NewString()
		}
		if listings[i].UpdatedAt.IsZero() {
			listings[i].UpdatedAt = now
		}
	}
	return listings
}

// ---------------------------------------------------------------------------
// Generator
// ---------------------------------------------------------------------------

// spain is mainland Spain, the default generation box.
var spain = domain.BoundingBox{South: 36.0, West: -9.3, North: 43.8, East: 3.3}

var cities = []struct {
	name     string
	lat, lng float64
}{
	{"Madrid", 40.4168, -3.7038},
	{"Barcelona", 41.3874, 2.1686},
	{"Bilbao", 43.2630, -2.9350},
	{"Valencia", 39.4699, -0.3763},
	{"Sevilla", 37.3891, -5.9845},
	{"Zaragoza", 41.6488, -0.8891},
	{"Málaga", 36.7213, -4.4214},
}

func generateFromArgs(args []string) ([]domain.Listing, error) {
	if len(args) < 1 {
		return nil, errors.New("generate needs a count")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("bad count %q", args[0])
	}
	box := spain
	if len(args) > 1 {
		parts := strings.Split(args[1], ",")
		if len(parts) != 4 {
			return nil, fmt.Errorf("box must be south,west,north,east")
		}
		var v [4]float64
		for i, p := range parts {
			if v[i], err = strconv.ParseFloat(strings.TrimSpace(p), 64); err != nil {
				return nil, fmt.Errorf("box: %w", err)
			}
		}
		box = domain.BoundingBox{South: v[0], West: v[1], North: v[2], East: v[3]}
		if !box.Valid() || box.CrossesAntimeridian() {
			return nil, fmt.Errorf("invalid box %s", args[1])
		}
	}
	return generate(rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 7)), n, box), nil
}

// generate places most listings near cities inside box and the rest
// uniformly; about one in fifty has no coordinates.
func generate(rng *rand.Rand, n int, box domain.BoundingBox) []domain.Listing {
	var local []int
	for i, c := range cities {
		if c.lat >= box.South && c.lat <= box.North && c.lng >= box.West && c.lng <= box.East {
			local = append(local, i)
		}
	}

	categories := []domain.PropertyCategory{
		domain.CategoryApartment, domain.CategoryApartment, domain.CategoryHouse,
		domain.CategoryLand, domain.CategoryCommercial, domain.CategoryOffice, domain.CategoryGarage,
	}
	now := time.Now().UTC()

	out := make([]domain.Listing, n)
	for i := range out {
		l := domain.Listing{
			ID:        uuid.NewString(),
			Category:  categories[rng.IntN(len(categories))],
			Bedrooms:  rng.IntN(5),
			Bathrooms: 1 + rng.IntN(3),
			UpdatedAt: now,
		}
		if rng.IntN(3) == 0 {
			l.TransactionType = domain.TransactionRent
			l.Price = int64(400 + rng.IntN(2600))
		} else {
			l.TransactionType = domain.TransactionSale
			l.Price = int64(60000 + rng.IntN(940000))
		}

		if rng.IntN(50) != 0 {
			var lat, lng float64
			if len(local) > 0 && rng.IntN(4) != 0 {
				c := cities[local[rng.IntN(len(local))]]
				lat = clamp(c.lat+rng.NormFloat64()*0.04, box.South, box.North)
				lng = clamp(c.lng+rng.NormFloat64()*0.05, box.West, box.East)
				l.City = c.name
			} else {
				lat = box.South + rng.Float64()*(box.North-box.South)
				lng = box.West + rng.Float64()*(box.East-box.West)
			}
			l.Latitude, l.Longitude = &lat, &lng
		}
		l.Title = fmt.Sprintf("%s %d hab. %s", strings.ToLower(string(l.Category)), l.Bedrooms, l.City)
		out[i] = l
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
