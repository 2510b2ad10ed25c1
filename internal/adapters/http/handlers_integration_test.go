//go:build integration
// +build integration

package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	handler "github.com/propmap/propmap/internal/adapters/http"
	"github.com/propmap/propmap/internal/adapters/postgres"
	"github.com/propmap/propmap/internal/core/domain"
	"github.com/propmap/propmap/internal/core/usecases"
	"github.com/propmap/propmap/internal/pkg/config"
	"github.com/propmap/propmap/internal/pkg/logging"
)

// setupTestDB connects to the database named by the test config. The
// listings table must exist (go run ./cmd/migrate up).
func setupTestDB(t *testing.T) *postgres.DB {
	cfg, err := config.Load("propmap-test")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	return db
}

func setupIntegrationApp(db *postgres.DB) *fiber.App {
	repo := postgres.NewListingRepo(db)
	app := fiber.New()
	handler.SetupRoutes(app, &handler.Dependencies{
		Clusters: usecases.NewClusterService(repo, nil, usecases.ClusterServiceOptions{Logger: logging.Discard()}),
		Listings: repo,
		DB:       db,
		Logger:   logging.Discard(),
	})
	return app
}

// seedListings writes n listings around Bilbao in a city unique to the test
// run, so filtering by that city isolates them.
func seedListings(t *testing.T, db *postgres.DB, n int) (city string, ids []string) {
	city = "Test-" + time.Now().Format("20060102150405.000")
	listings := make([]domain.Listing, n)
	for i := range listings {
		lat := 43.263 + float64(i)*0.001
		lng := -2.935 - float64(i)*0.001
		id := fmt.Sprintf("%s-%d", city, i)
		ids = append(ids, id)
		listings[i] = domain.Listing{
			ID:              id,
			Title:           "Piso " + id,
			Latitude:        &lat,
			Longitude:       &lng,
			Price:           int64(150000 + i*10000),
			Bedrooms:        2,
			Bathrooms:       1,
			Category:        domain.CategoryApartment,
			TransactionType: domain.TransactionSale,
			City:            city,
		}
	}
	if err := postgres.NewListingRepo(db).UpsertBatch(context.Background(), listings); err != nil {
		t.Fatalf("seed listings: %v", err)
	}
	return city, ids
}

func TestClusters_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Close()

	city, _ := seedListings(t, db, 12)
	app := setupIntegrationApp(db)

	url := "/v1/clusters?ne_lat=43.4000&ne_lng=-2.8000&sw_lat=43.1000&sw_lng=-3.1000&zoom=8&city=" + city
	resp, err := app.Test(httptest.NewRequest("GET", url, nil), -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var fc struct {
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	total := 0
	for _, f := range fc.Features {
		total += int(f.Properties["point_count"].(float64))
	}
	if total != 12 {
		t.Errorf("expected 12 listings, got %d", total)
	}
}

func TestBatchListings_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Close()

	_, ids := seedListings(t, db, 3)
	app := setupIntegrationApp(db)

	url := "/v1/listings?ids=" + ids[2] + "," + ids[0]
	resp, err := app.Test(httptest.NewRequest("GET", url, nil), -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var listings []domain.Listing
	if err := json.NewDecoder(resp.Body).Decode(&listings); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(listings) != 2 || listings[0].ID != ids[2] || listings[1].ID != ids[0] {
		t.Errorf("expected [%s %s], got %+v", ids[2], ids[0], listings)
	}
}

func TestReady_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Close()
	app := setupIntegrationApp(db)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/ready", nil), -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("expected 200 with a live database, got %d", resp.StatusCode)
	}
}
