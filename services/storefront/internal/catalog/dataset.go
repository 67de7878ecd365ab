package catalog

import (
	_ "embed"
	"encoding/json"
	"strings"
	"sync"

	"heritagecoffee/pkg/domain"
)

//go:embed data/products.json
var datasetJSON []byte

var (
	datasetOnce sync.Once
	dataset     []domain.Product
	datasetErr  error
)

// Dataset returns the bundled product set served when the backend is
// unreachable. Callers receive their own copy.
func Dataset() []domain.Product {
	datasetOnce.Do(func() {
		datasetErr = json.Unmarshal(datasetJSON, &dataset)
	})
	if datasetErr != nil {
		panic("catalog: bundled dataset is invalid: " + datasetErr.Error())
	}
	return append([]domain.Product(nil), dataset...)
}

// SearchDataset filters the bundled set by a case-insensitive substring of
// the name, the description or the origin.
func SearchDataset(term string) []domain.Product {
	all := Dataset()
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return all
	}
	out := make([]domain.Product, 0, len(all))
	for _, p := range all {
		if matchesFallback(p, term) {
			out = append(out, p)
		}
	}
	return out
}

func matchesFallback(p domain.Product, term string) bool {
	if strings.Contains(strings.ToLower(p.Name), term) || strings.Contains(strings.ToLower(p.Description), term) {
		return true
	}
	if p.Origin == nil {
		return false
	}
	return strings.Contains(strings.ToLower(p.Origin.Country), term) || strings.Contains(strings.ToLower(p.Origin.Region), term)
}

// DatasetProduct looks up id in the bundled set.
func DatasetProduct(id int64) (domain.Product, bool) {
	for _, p := range Dataset() {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Product{}, false
}
