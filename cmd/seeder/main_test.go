package main

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/propmap/propmap/internal/core/domain"
)

func TestReadCSV(t *testing.T) {
	in := `id,title,price,category,transaction_type,city,latitude,longitude,bedrooms
a,Piso centro,250000,apartment,sale,Bilbao,43.263,-2.935,3
b,Bajo,notanumber,house,sale,Bilbao,43.2,-2.9,1
c,Garaje,15000,GARAGE,SALE,Bilbao,,,0
`
	listings, err := readCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("readCSV: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("expected 2 listings (bad price skipped), got %d", len(listings))
	}
	a := listings[0]
	if a.ID != "a" || a.Category != domain.CategoryApartment || a.Bedrooms != 3 || a.Latitude == nil {
		t.Errorf("unexpected first listing %+v", a)
	}
	if listings[1].Latitude != nil || listings[1].Longitude != nil {
		t.Error("empty coordinates should stay unset")
	}
	if listings[1].UpdatedAt.IsZero() {
		t.Error("expected timestamp to be stamped")
	}
}

func TestReadCSV_MissingColumn(t *testing.T) {
	if _, err := readCSV(strings.NewReader("id,title\na,b\n")); err == nil {
		t.Error("expected error for missing columns")
	}
}

func TestGenerate_StaysInBox(t *testing.T) {
	box := domain.BoundingBox{South: 43.0, West: -3.2, North: 43.5, East: -2.6}
	rng := rand.New(rand.NewPCG(1, 2))

	listings := generate(rng, 500, box)
	if len(listings) != 500 {
		t.Fatalf("expected 500 listings, got %d", len(listings))
	}
	seen := make(map[string]bool, len(listings))
	for _, l := range listings {
		if seen[l.ID] {
			t.Fatalf("duplicate id %s", l.ID)
		}
		seen[l.ID] = true
		if l.Latitude == nil {
			continue
		}
		if *l.Latitude < box.South || *l.Latitude > box.North || *l.Longitude < box.West || *l.Longitude > box.East {
			t.Errorf("listing %s outside box: %f,%f", l.ID, *l.Latitude, *l.Longitude)
		}
	}
}

func TestGenerateFromArgs(t *testing.T) {
	tests := []struct {
		args    []string
		wantErr bool
	}{
		{[]string{"10"}, false},
		{[]string{"10", "43.0,-3.2,43.5,-2.6"}, false},
		{nil, true},
		{[]string{"0"}, true},
		{[]string{"10", "1,2,3"}, true},
		{[]string{"10", "43.5,-3.2,43.0,-2.6"}, true},
	}
	for _, tt := range tests {
		_, err := generateFromArgs(tt.args)
		if (err != nil) != tt.wantErr {
			t.Errorf("generateFromArgs(%v) err=%v, wantErr %v", tt.args, err, tt.wantErr)
		}
	}
}
