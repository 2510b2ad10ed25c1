package urlcodec_test

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propmap/propmap/internal/core/domain"
	"github.com/propmap/propmap/internal/urlcodec"
)

func TestDecode_FiltersFromQuery(t *testing.T) {
	st := urlcodec.Decode("?minPrice=100000&category=HOUSE&category=APARTMENT")

	require.NotNil(t, st.Filters.MinPrice)
	assert.Equal(t, int64(100000), *st.Filters.MinPrice)
	assert.Equal(t, []domain.PropertyCategory{domain.CategoryHouse, domain.CategoryApartment}, st.Filters.Category)
	assert.Nil(t, st.Filters.MaxPrice)
	assert.Nil(t, st.Bounds)
}

func TestDecode_MalformedValuesAreUnset(t *testing.T) {
	st := urlcodec.Decode("minPrice=abc&maxPrice=-5&bedrooms=2.5&category=CASTLE&transactionType=rent&city=&q=%zz")

	assert.Nil(t, st.Filters.MinPrice)
	assert.Nil(t, st.Filters.MaxPrice)
	assert.Nil(t, st.Filters.Bedrooms)
	assert.Nil(t, st.Filters.Category)
	assert.Equal(t, []domain.TransactionType{domain.TransactionRent}, st.Filters.TransactionType)
	assert.Nil(t, st.Filters.City)
	assert.Nil(t, st.Filters.Query)
}

func TestDecode_Bounds(t *testing.T) {
	st := urlcodec.Decode("https://example.com/search?ne_lat=40.5&ne_lng=-3.6&sw_lat=40.3&sw_lng=-3.8#map")
	require.NotNil(t, st.Bounds)
	assert.Equal(t, domain.BoundingBox{North: 40.5, East: -3.6, South: 40.3, West: -3.8}, *st.Bounds)

	for _, raw := range []string{
		"ne_lat=40.5&ne_lng=-3.6&sw_lat=40.3",              // incomplete
		"ne_lat=40.3&ne_lng=-3.6&sw_lat=40.5&sw_lng=-3.8",  // inverted
		"ne_lat=91&ne_lng=-3.6&sw_lat=40.3&sw_lng=-3.8",    // out of range
		"ne_lat=NaN&ne_lng=-3.6&sw_lat=40.3&sw_lng=-3.8",   // not finite
		"ne_lat=40.5&ne_lng=east&sw_lat=40.3&sw_lng=-3.8", // not a number
	} {
		assert.Nil(t, urlcodec.Decode(raw).Bounds, raw)
	}
}

func TestEncode_OmitsUnsetAndSorts(t *testing.T) {
	f := domain.FilterSet{}.
		With(domain.FilterMaxPrice, domain.Number(300000)).
		With(domain.FilterCategory, domain.List("APARTMENT", "HOUSE")).
		With(domain.FilterCity, domain.Text("San Sebastián"))

	got := urlcodec.Encode(urlcodec.State{Filters: f}, nil)
	assert.Equal(t, "category=APARTMENT&category=HOUSE&city=San+Sebasti%C3%A1n&maxPrice=300000", got)
	assert.Equal(t, "", urlcodec.Encode(urlcodec.State{}, nil))
}

func TestEncode_BoundsPrecision(t *testing.T) {
	b := domain.BoundingBox{North: 40.456789, South: 40.400001, East: -3.612345, West: -3.798765}
	got := urlcodec.Encode(urlcodec.State{Bounds: &b}, nil)
	assert.Equal(t, "ne_lat=40.4568&ne_lng=-3.6123&sw_lat=40.4000&sw_lng=-3.7988", got)
}

func TestEncode_TinyBoxStaysValid(t *testing.T) {
	b := domain.BoundingBox{North: 40.41681, South: 40.41679, East: -3.70379, West: -3.70381}
	got := urlcodec.Encode(urlcodec.State{Bounds: &b}, nil)

	st := urlcodec.Decode(got)
	require.NotNil(t, st.Bounds, got)
	assert.True(t, st.Bounds.Valid())
}

func TestEncode_EdgesOnAntimeridian(t *testing.T) {
	tests := []struct {
		name string
		box  domain.BoundingBox
		want string
	}{
		{
			name: "sliver across the meridian",
			box:  domain.BoundingBox{North: 10, South: 9, West: 179.99996, East: -179.99996},
			want: "ne_lat=10.0000&ne_lng=-179.9999&sw_lat=9.0000&sw_lng=-180.0000",
		},
		{
			name: "west edge on the meridian",
			box:  domain.BoundingBox{North: 10, South: 9, West: 180, East: 10},
			want: "ne_lat=10.0000&ne_lng=10.0000&sw_lat=9.0000&sw_lng=-180.0000",
		},
		{
			name: "east edge on the meridian",
			box:  domain.BoundingBox{North: 10, South: 9, West: 170, East: -180},
			want: "ne_lat=10.0000&ne_lng=180.0000&sw_lat=9.0000&sw_lng=170.0000",
		},
		{
			name: "sliver at the east end",
			box:  domain.BoundingBox{North: 10, South: 9, West: 179.99996, East: 179.99998},
			want: "ne_lat=10.0000&ne_lng=180.0000&sw_lat=9.0000&sw_lng=179.9999",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := urlcodec.Encode(urlcodec.State{Bounds: &tt.box}, nil)
			assert.Equal(t, tt.want, got)

			st := urlcodec.Decode(got)
			require.NotNil(t, st.Bounds, got)
			assert.True(t, st.Bounds.Valid())
			for _, part := range st.Bounds.Split() {
				assert.Greater(t, part.East, part.West, "empty strip in %v", st.Bounds.Split())
			}
		})
	}
}

func TestEncode_PreservesForeignKeys(t *testing.T) {
	base := url.Values{"view": {"list"}, "minPrice": {"1"}, "utm_source": {"mail"}}
	f := domain.FilterSet{}.With(domain.FilterMinPrice, domain.Number(500))

	got := urlcodec.Encode(urlcodec.State{Filters: f}, base)
	assert.Equal(t, "minPrice=500&utm_source=mail&view=list", got)
	assert.Equal(t, []string{"1"}, base["minPrice"], "base must not be modified")
}

func TestRoundTrip(t *testing.T) {
	b := domain.BoundingBox{North: 43.3, South: 43.2, East: -2.9, West: -3.0}
	f := domain.FilterSet{}.
		With(domain.FilterMinPrice, domain.Number(100000)).
		With(domain.FilterMaxPrice, domain.Number(90000)).
		With(domain.FilterBedrooms, domain.Number(2)).
		With(domain.FilterBathrooms, domain.Number(1)).
		With(domain.FilterTransactionType, domain.List("SALE", "RENT")).
		With(domain.FilterQuery, domain.Text("ático & terraza"))

	st := urlcodec.Decode(urlcodec.Encode(urlcodec.State{Filters: f, Bounds: &b}, nil))
	assert.True(t, f.Equal(st.Filters), "filters: %+v", st.Filters)
	require.NotNil(t, st.Bounds)
	assert.Equal(t, b, *st.Bounds)
}

func TestCanonical_Idempotent(t *testing.T) {
	for _, raw := range []string{
		"",
		"?view=map&category=house&minPrice=0100&bogus=%",
		"q=a+b&city=Bilbao&ne_lat=1.23456&ne_lng=2&sw_lat=0&sw_lng=1&x=1&x=2",
		"category=HOUSE&category=HOUSE&category=LAND",
	} {
		once := urlcodec.Canonical(raw)
		assert.Equal(t, once, urlcodec.Canonical(once), raw)
	}
	assert.Equal(t, "category=HOUSE&minPrice=100&view=map", urlcodec.Canonical("?view=map&category=house&minPrice=0100"))
}

func TestCanonical_EquivalentQueries(t *testing.T) {
	a := urlcodec.Canonical("minPrice=100&view=map")
	b := urlcodec.Canonical("?view=map&minPrice=100&maxPrice=")
	assert.Equal(t, a, b)
}

func TestEncodeFilters(t *testing.T) {
	f := domain.FilterSet{}.With(domain.FilterBedrooms, domain.Number(3))
	assert.Equal(t, "bedrooms=3", urlcodec.EncodeFilters(f))
}

func TestOwned(t *testing.T) {
	assert.True(t, urlcodec.Owned("minPrice"))
	assert.True(t, urlcodec.Owned("sw_lng"))
	assert.False(t, urlcodec.Owned("view"))
}
