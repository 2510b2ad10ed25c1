package domain_test

import (
	"testing"

	"github.com/propmap/propmap/internal/core/domain"
)

func TestFilterSet_WithAndGet(t *testing.T) {
	f := domain.FilterSet{}.
		With(domain.FilterMinPrice, domain.Number(100000)).
		With(domain.FilterBedrooms, domain.Number(3)).
		With(domain.FilterCategory, domain.List("house", "APARTMENT")).
		With(domain.FilterCity, domain.Text("  Bilbao ")).
		With(domain.FilterQuery, domain.Text("terrace"))

	if f.MinPrice == nil || *f.MinPrice != 100000 {
		t.Errorf("expected minPrice 100000, got %v", f.MinPrice)
	}
	if f.Bedrooms == nil || *f.Bedrooms != 3 {
		t.Errorf("expected bedrooms 3, got %v", f.Bedrooms)
	}
	if len(f.Category) != 2 || f.Category[0] != domain.CategoryHouse || f.Category[1] != domain.CategoryApartment {
		t.Errorf("unexpected categories %v", f.Category)
	}
	if f.City == nil || *f.City != "Bilbao" {
		t.Errorf("expected trimmed city, got %v", f.City)
	}

	got := f.Get(domain.FilterBedrooms)
	if got.Number == nil || *got.Number != 3 {
		t.Errorf("expected Get(bedrooms)=3, got %+v", got)
	}
	if !f.Get(domain.FilterMaxPrice).IsUnset() {
		t.Error("expected maxPrice unset")
	}
}

func TestFilterSet_WithRejectsMismatchedShape(t *testing.T) {
	f := domain.FilterSet{}.With(domain.FilterMinPrice, domain.Number(5))
	f = f.With(domain.FilterMinPrice, domain.Text("cheap"))
	if f.MinPrice != nil {
		t.Errorf("expected text on a number key to unset it, got %v", *f.MinPrice)
	}

	f = f.With(domain.FilterCategory, domain.List("castle"))
	if f.Category != nil {
		t.Errorf("expected unknown categories to be dropped, got %v", f.Category)
	}

	f = f.With(domain.FilterCity, domain.Text("   "))
	if f.City != nil {
		t.Errorf("expected blank city to be unset, got %q", *f.City)
	}
}

func TestFilterSet_WithDoesNotAlias(t *testing.T) {
	base := domain.FilterSet{}.With(domain.FilterTransactionType, domain.List("SALE"))
	next := base.With(domain.FilterMinPrice, domain.Number(1))
	next.TransactionType[0] = domain.TransactionRent

	if base.TransactionType[0] != domain.TransactionSale {
		t.Error("expected With to copy list fields")
	}
	if base.MinPrice != nil {
		t.Error("expected base to be untouched")
	}
}

func TestFilterSet_Equal(t *testing.T) {
	a := domain.FilterSet{}.With(domain.FilterMaxPrice, domain.Number(10))
	b := domain.FilterSet{}.With(domain.FilterMaxPrice, domain.Number(10))
	if !a.Equal(b) {
		t.Error("expected equal sets")
	}
	if a.Equal(domain.FilterSet{}) {
		t.Error("expected sets to differ")
	}
	if !(domain.FilterSet{Category: []domain.PropertyCategory{}}).IsZero() {
		t.Error("expected empty list to count as unset")
	}
}

func TestFilterKey_Kind(t *testing.T) {
	cases := map[domain.FilterKey]domain.FilterKind{
		domain.FilterMinPrice:        domain.KindNumber,
		domain.FilterBathrooms:       domain.KindNumber,
		domain.FilterCategory:        domain.KindList,
		domain.FilterTransactionType: domain.KindList,
		domain.FilterCity:            domain.KindText,
		domain.FilterQuery:           domain.KindText,
	}
	for k, want := range cases {
		if got := k.Kind(); got != want {
			t.Errorf("%s: expected kind %d, got %d", k, want, got)
		}
	}
	if domain.FilterKey("view").Valid() {
		t.Error("expected unknown key to be invalid")
	}
}

func TestParseTransactionType(t *testing.T) {
	if tt, ok := domain.ParseTransactionType("rent"); !ok || tt != domain.TransactionRent {
		t.Errorf("expected RENT, got %q %v", tt, ok)
	}
	if _, ok := domain.ParseTransactionType("lease"); ok {
		t.Error("expected lease to be rejected")
	}
}

func TestFilterSet_WithDedupesLists(t *testing.T) {
	f := domain.FilterSet{}.
		With(domain.FilterCategory, domain.List("HOUSE", "house", "LAND", " House ")).
		With(domain.FilterTransactionType, domain.List("sale", "SALE"))

	if len(f.Category) != 2 || f.Category[0] != domain.CategoryHouse || f.Category[1] != domain.CategoryLand {
		t.Errorf("expected [HOUSE LAND], got %v", f.Category)
	}
	if len(f.TransactionType) != 1 {
		t.Errorf("expected [SALE], got %v", f.TransactionType)
	}
}
