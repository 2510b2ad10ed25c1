// Package urlcodec maps search filters and the visible map area to and from
// the page's query string.
//
// Omission means default: unset keys are never written, and absent or
// malformed keys decode to unset. Keys the codec does not own are carried
// through untouched.
package urlcodec

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/propmap/propmap/internal/core/domain"
)

// Bounds keys. The box is written as its north-east and south-west corners.
const (
	KeyNorthEastLat = "ne_lat"
	KeyNorthEastLng = "ne_lng"
	KeySouthWestLat = "sw_lat"
	KeySouthWestLng = "sw_lng"
)

// Precision is the number of decimals kept for coordinates (~11m).
const Precision = 4

var boundsKeys = []string{KeyNorthEastLat, KeyNorthEastLng, KeySouthWestLat, KeySouthWestLng}

// State is everything the codec owns in a query string.
type State struct {
	Filters domain.FilterSet
	Bounds  *domain.BoundingBox
}

// Owned reports whether key is written by the codec.
func Owned(key string) bool {
	if domain.FilterKey(key).Valid() {
		return true
	}
	for _, k := range boundsKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Encode writes state over base and returns the query string without '?'.
// Owned keys in base are replaced; every other key is kept.
func Encode(state State, base url.Values) string {
	v := make(url.Values, len(base)+len(domain.FilterKeys)+len(boundsKeys))
	for k, vals := range base {
		if Owned(k) {
			continue
		}
		v[k] = append([]string(nil), vals...)
	}
	writeFilters(v, state.Filters)
	if state.Bounds != nil && state.Bounds.Valid() {
		writeBounds(v, *state.Bounds)
	}
	return v.Encode()
}

// EncodeFilters is the canonical query string for filters alone.
func EncodeFilters(f domain.FilterSet) string {
	return Encode(State{Filters: f}, nil)
}

// Decode reads the owned keys of raw. raw may be a bare query string, start
// with '?', or be a full URL. Decode never fails: anything it cannot use is
// left unset.
func Decode(raw string) State {
	v := parse(raw)
	st := State{Filters: readFilters(v)}
	if b, ok := readBounds(v); ok {
		st.Bounds = &b
	}
	return st
}

// Foreign returns the keys of raw that the codec does not own.
func Foreign(raw string) url.Values {
	v := parse(raw)
	for k := range v {
		if Owned(k) {
			delete(v, k)
		}
	}
	return v
}

// Canonical normalizes raw: owned keys are re-encoded from their decoded
// value, foreign keys are kept, and everything is sorted. Two query strings
// that describe the same state have the same canonical form.
func Canonical(raw string) string {
	return Encode(Decode(raw), Foreign(raw))
}

func parse(raw string) url.Values {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[i+1:]
	}
	// ParseQuery keeps every pair it could decode alongside the error.
	v, _ := url.ParseQuery(raw)
	if v == nil {
		v = url.Values{}
	}
	return v
}

func writeFilters(v url.Values, f domain.FilterSet) {
	for _, key := range domain.FilterKeys {
		val := f.Get(key)
		k := string(key)
		switch {
		case val.Number != nil:
			v.Set(k, strconv.FormatInt(*val.Number, 10))
		case val.Text != nil:
			v.Set(k, *val.Text)
		case len(val.List) > 0:
			v[k] = val.List
		}
	}
}

func readFilters(v url.Values) domain.FilterSet {
	var f domain.FilterSet
	for _, key := range domain.FilterKeys {
		vals := v[string(key)]
		if len(vals) == 0 {
			continue
		}
		switch key.Kind() {
		case domain.KindNumber:
			n, err := strconv.ParseInt(strings.TrimSpace(vals[0]), 10, 64)
			if err != nil || n < 0 {
				continue
			}
			if (key == domain.FilterBedrooms || key == domain.FilterBathrooms) && n > math.MaxInt32 {
				continue
			}
			f = f.With(key, domain.Number(n))
		case domain.KindText:
			f = f.With(key, domain.Text(vals[0]))
		case domain.KindList:
			f = f.With(key, domain.List(dedupe(vals)...))
		}
	}
	return f
}

func dedupe(vals []string) []string {
	seen := make(map[string]bool, len(vals))
	out := make([]string, 0, len(vals))
	for _, s := range vals {
		u := strings.ToUpper(strings.TrimSpace(s))
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, s)
	}
	return out
}

func writeBounds(v url.Values, b domain.BoundingBox) {
	north, south := round(b.North), round(b.South)
	east, west := round(b.East), round(b.West)
	step := math.Pow10(-Precision)
	// Rounding must not collapse a very small box.
	if south >= north {
		if north+step <= 90 {
			north = round(south + step)
		} else {
			south = round(north - step)
		}
	}
	// ±180 are one meridian. An edge on it takes the side that keeps the box
	// from wrapping, so a sliver across it cannot split into empty strips.
	if west == 180 && east != 180 {
		west = -180
	}
	if east == -180 && west != -180 {
		east = 180
	}
	if east == west {
		if east+step <= 180 {
			east = round(west + step)
		} else {
			west = round(east - step)
		}
	}
	v.Set(KeyNorthEastLat, format(north))
	v.Set(KeyNorthEastLng, format(east))
	v.Set(KeySouthWestLat, format(south))
	v.Set(KeySouthWestLng, format(west))
}

func readBounds(v url.Values) (domain.BoundingBox, bool) {
	var c [4]float64
	for i, k := range boundsKeys {
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Get(k)), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return domain.BoundingBox{}, false
		}
		c[i] = f
	}
	b := domain.BoundingBox{North: c[0], East: c[1], South: c[2], West: c[3]}
	return b, b.Valid()
}

func round(f float64) float64 {
	p := math.Pow10(Precision)
	r := math.Round(f*p) / p
	if r == 0 {
		return 0
	}
	return r
}

func format(f float64) string {
	return strconv.FormatFloat(f, 'f', Precision, 64)
}
