package catalog

import (
	"slices"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"heritagecoffee/pkg/domain"
)

// PriceCeiling is the fixed upper bound of the price filter.
var PriceCeiling = decimal.NewFromInt(45)

type SortKey string

const (
	SortDefault   SortKey = "default"
	SortPriceAsc  SortKey = "price-asc"
	SortPriceDesc SortKey = "price-desc"
	SortNameAsc   SortKey = "name-asc"
	SortStockDesc SortKey = "stock-desc"
)

// SortKeys lists sort options with their display labels.
var SortKeys = []struct {
	Key   SortKey
	Label string
}{
	{SortDefault, "Par défaut"},
	{SortPriceAsc, "Prix croissant"},
	{SortPriceDesc, "Prix décroissant"},
	{SortNameAsc, "Nom A → Z"},
	{SortStockDesc, "Disponibilité"},
}

// ParseSortKey maps s to a known key, falling back to SortDefault.
func ParseSortKey(s string) SortKey {
	for _, k := range SortKeys {
		if string(k.Key) == strings.TrimSpace(s) {
			return k.Key
		}
	}
	return SortDefault
}

type PriceRange struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

func (r PriceRange) contains(d decimal.Decimal) bool {
	return d.GreaterThanOrEqual(r.Min) && d.LessThanOrEqual(r.Max)
}

// Filters is the local query state. A nil Price means the full bounds of
// the loaded products.
type Filters struct {
	Text          string
	RoastLevels   []domain.RoastLevel
	AromaProfiles []string
	Price         *PriceRange
	Sort          SortKey
}

func (f Filters) clone() Filters {
	f.RoastLevels = slices.Clone(f.RoastLevels)
	f.AromaProfiles = slices.Clone(f.AromaProfiles)
	if f.Price != nil {
		r := *f.Price
		f.Price = &r
	}
	return f
}

// PriceBounds returns floor(min price) and PriceCeiling. An empty set
// yields [0, PriceCeiling].
func PriceBounds(products []domain.Product) PriceRange {
	if len(products) == 0 {
		return PriceRange{Min: decimal.Zero, Max: PriceCeiling}
	}
	lowest := products[0].Price
	for _, p := range products[1:] {
		if p.Price.LessThan(lowest) {
			lowest = p.Price
		}
	}
	return PriceRange{Min: lowest.Floor(), Max: PriceCeiling}
}

// ActiveFilterCount counts selected roasts and profiles, plus one when the
// price range is narrower than bounds.
func ActiveFilterCount(f Filters, bounds PriceRange) int {
	n := len(f.RoastLevels) + len(f.AromaProfiles)
	if f.Price != nil && (f.Price.Min.GreaterThan(bounds.Min) || f.Price.Max.LessThan(bounds.Max)) {
		n++
	}
	return n
}

// Derive filters and sorts raw. It is a pure function of its arguments.
func Derive(raw []domain.Product, f Filters) []domain.Product {
	price := PriceBounds(raw)
	if f.Price != nil {
		price = *f.Price
	}
	text := strings.ToLower(strings.TrimSpace(f.Text))

	out := make([]domain.Product, 0, len(raw))
	for _, p := range raw {
		if text != "" && !matchesText(p, text) {
			continue
		}
		if len(f.RoastLevels) > 0 && (p.RoastLevel == "" || !slices.Contains(f.RoastLevels, p.RoastLevel)) {
			continue
		}
		if len(f.AromaProfiles) > 0 && !matchesProfiles(p, f.AromaProfiles) {
			continue
		}
		if !price.contains(p.Price) {
			continue
		}
		out = append(out, p)
	}
	sortProducts(out, f.Sort)
	return out
}

func matchesText(p domain.Product, text string) bool {
	if strings.Contains(strings.ToLower(p.Name), text) || strings.Contains(strings.ToLower(p.Description), text) {
		return true
	}
	for _, n := range p.TastingNotes {
		if strings.Contains(strings.ToLower(n), text) {
			return true
		}
	}
	return false
}

func matchesProfiles(p domain.Product, selected []string) bool {
	for _, name := range selected {
		profile, ok := profileByName(name)
		if ok && hasAnyNote(p.TastingNotes, profile.Keywords) {
			return true
		}
	}
	return false
}

func sortProducts(list []domain.Product, key SortKey) {
	switch key {
	case SortPriceAsc:
		sort.SliceStable(list, func(i, j int) bool { return list[i].Price.LessThan(list[j].Price) })
	case SortPriceDesc:
		sort.SliceStable(list, func(i, j int) bool { return list[i].Price.GreaterThan(list[j].Price) })
	case SortNameAsc:
		c := collate.New(language.French)
		sort.SliceStable(list, func(i, j int) bool { return c.CompareString(list[i].Name, list[j].Name) < 0 })
	case SortStockDesc:
		sort.SliceStable(list, func(i, j int) bool { return list[i].Stock > list[j].Stock })
	}
}

// MaxRelated is the number of suggestions returned by Related.
const MaxRelated = 4

// Related returns up to MaxRelated products other than currentID, in
// input order.
func Related(currentID int64, products []domain.Product) []domain.Product {
	out := make([]domain.Product, 0, MaxRelated)
	for _, p := range products {
		if p.ID == currentID {
			continue
		}
		out = append(out, p)
		if len(out) == MaxRelated {
			break
		}
	}
	return out
}
