package domain

import (
	"slices"
	"strings"
)

// FilterKey names a search filter. The string value is the query-string key.
type FilterKey string

const (
	FilterMinPrice        FilterKey = "minPrice"
	FilterMaxPrice        FilterKey = "maxPrice"
	FilterBedrooms        FilterKey = "bedrooms"
	FilterBathrooms       FilterKey = "bathrooms"
	FilterCategory        FilterKey = "category"
	FilterTransactionType FilterKey = "transactionType"
	FilterCity            FilterKey = "city"
	FilterQuery           FilterKey = "q"
)

// FilterKeys lists every filter key.
var FilterKeys = []FilterKey{
	FilterMinPrice,
	FilterMaxPrice,
	FilterBedrooms,
	FilterBathrooms,
	FilterCategory,
	FilterTransactionType,
	FilterCity,
	FilterQuery,
}

// FilterKind is the value shape a key accepts.
type FilterKind int

const (
	KindNumber FilterKind = iota
	KindText
	KindList
)

// Kind returns the value shape of k.
func (k FilterKey) Kind() FilterKind {
	switch k {
	case FilterCategory, FilterTransactionType:
		return KindList
	case FilterCity, FilterQuery:
		return KindText
	default:
		return KindNumber
	}
}

// Valid reports whether k is a known filter key.
func (k FilterKey) Valid() bool {
	return slices.Contains(FilterKeys, k)
}

// PropertyCategory is the listing's property type.
type PropertyCategory string

const (
	CategoryHouse      PropertyCategory = "HOUSE"
	CategoryApartment  PropertyCategory = "APARTMENT"
	CategoryLand       PropertyCategory = "LAND"
	CategoryCommercial PropertyCategory = "COMMERCIAL"
	CategoryOffice     PropertyCategory = "OFFICE"
	CategoryGarage     PropertyCategory = "GARAGE"
)

var categories = []PropertyCategory{
	CategoryHouse, CategoryApartment, CategoryLand,
	CategoryCommercial, CategoryOffice, CategoryGarage,
}

// ParsePropertyCategory accepts any casing of a known category.
func ParsePropertyCategory(s string) (PropertyCategory, bool) {
	c := PropertyCategory(strings.ToUpper(strings.TrimSpace(s)))
	return c, slices.Contains(categories, c)
}

// TransactionType distinguishes sale from rental listings.
type TransactionType string

const (
	TransactionSale TransactionType = "SALE"
	TransactionRent TransactionType = "RENT"
)

// ParseTransactionType accepts any casing of a known transaction type.
func ParseTransactionType(s string) (TransactionType, bool) {
	t := TransactionType(strings.ToUpper(strings.TrimSpace(s)))
	return t, t == TransactionSale || t == TransactionRent
}

// FilterValue is a loosely shaped value for a single key, used for draft
// edits. The zero value is the unset sentinel.
type FilterValue struct {
	Number *int64   `json:"number,omitempty"`
	Text   *string  `json:"text,omitempty"`
	List   []string `json:"list,omitempty"`
}

func Number(n int64) FilterValue { return FilterValue{Number: &n} }

func Text(s string) FilterValue { return FilterValue{Text: &s} }

func List(items ...string) FilterValue { return FilterValue{List: slices.Clone(items)} }

// Unset clears a key when committed.
func Unset() FilterValue { return FilterValue{} }

// IsUnset reports whether v carries no value.
func (v FilterValue) IsUnset() bool {
	return v.Number == nil && v.Text == nil && len(v.List) == 0
}

// FilterSet is the typed record of all search filters. nil / empty fields are unset.
type FilterSet struct {
	MinPrice        *int64             `json:"minPrice,omitempty"`
	MaxPrice        *int64             `json:"maxPrice,omitempty"`
	Bedrooms        *int               `json:"bedrooms,omitempty"`
	Bathrooms       *int               `json:"bathrooms,omitempty"`
	Category        []PropertyCategory `json:"category,omitempty"`
	TransactionType []TransactionType  `json:"transactionType,omitempty"`
	City            *string            `json:"city,omitempty"`
	Query           *string            `json:"q,omitempty"`
}

// Get returns the value stored under k as a FilterValue.
func (f FilterSet) Get(k FilterKey) FilterValue {
	switch k {
	case FilterMinPrice:
		return numberValue(f.MinPrice)
	case FilterMaxPrice:
		return numberValue(f.MaxPrice)
	case FilterBedrooms:
		return intValue(f.Bedrooms)
	case FilterBathrooms:
		return intValue(f.Bathrooms)
	case FilterCategory:
		out := make([]string, len(f.Category))
		for i, c := range f.Category {
			out[i] = string(c)
		}
		return listValue(out)
	case FilterTransactionType:
		out := make([]string, len(f.TransactionType))
		for i, t := range f.TransactionType {
			out[i] = string(t)
		}
		return listValue(out)
	case FilterCity:
		return textValue(f.City)
	case FilterQuery:
		return textValue(f.Query)
	}
	return Unset()
}

// With returns a copy of f with k replaced by v. A value whose shape does not
// match the key, an empty string, or a list without any known member leaves
// the key unset. Unknown and repeated list members are dropped.
func (f FilterSet) With(k FilterKey, v FilterValue) FilterSet {
	out := f.Clone()
	switch k {
	case FilterMinPrice:
		out.MinPrice = cloneInt64(v.Number)
	case FilterMaxPrice:
		out.MaxPrice = cloneInt64(v.Number)
	case FilterBedrooms:
		out.Bedrooms = toInt(v.Number)
	case FilterBathrooms:
		out.Bathrooms = toInt(v.Number)
	case FilterCategory:
		out.Category = nil
		for _, s := range v.List {
			if c, ok := ParsePropertyCategory(s); ok && !slices.Contains(out.Category, c) {
				out.Category = append(out.Category, c)
			}
		}
	case FilterTransactionType:
		out.TransactionType = nil
		for _, s := range v.List {
			if t, ok := ParseTransactionType(s); ok && !slices.Contains(out.TransactionType, t) {
				out.TransactionType = append(out.TransactionType, t)
			}
		}
	case FilterCity:
		out.City = nonEmpty(v.Text)
	case FilterQuery:
		out.Query = nonEmpty(v.Text)
	}
	return out
}

// Clone returns a deep copy.
func (f FilterSet) Clone() FilterSet {
	return FilterSet{
		MinPrice:        cloneInt64(f.MinPrice),
		MaxPrice:        cloneInt64(f.MaxPrice),
		Bedrooms:        cloneInt(f.Bedrooms),
		Bathrooms:       cloneInt(f.Bathrooms),
		Category:        slices.Clone(f.Category),
		TransactionType: slices.Clone(f.TransactionType),
		City:            cloneString(f.City),
		Query:           cloneString(f.Query),
	}
}

// Equal compares two sets key by key. Empty and nil lists are equal.
func (f FilterSet) Equal(o FilterSet) bool {
	return eqPtr(f.MinPrice, o.MinPrice) &&
		eqPtr(f.MaxPrice, o.MaxPrice) &&
		eqPtr(f.Bedrooms, o.Bedrooms) &&
		eqPtr(f.Bathrooms, o.Bathrooms) &&
		slices.Equal(f.Category, o.Category) &&
		slices.Equal(f.TransactionType, o.TransactionType) &&
		eqPtr(f.City, o.City) &&
		eqPtr(f.Query, o.Query)
}

// IsZero reports whether no filter is set.
func (f FilterSet) IsZero() bool {
	return f.Equal(FilterSet{})
}

func numberValue(p *int64) FilterValue {
	if p == nil {
		return Unset()
	}
	return Number(*p)
}

func intValue(p *int) FilterValue {
	if p == nil {
		return Unset()
	}
	return Number(int64(*p))
}

func textValue(p *string) FilterValue {
	if p == nil {
		return Unset()
	}
	return Text(*p)
}

func listValue(items []string) FilterValue {
	if len(items) == 0 {
		return Unset()
	}
	return FilterValue{List: items}
}

func toInt(p *int64) *int {
	if p == nil {
		return nil
	}
	n := int(*p)
	return &n
}

func nonEmpty(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}

func cloneInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
