package catalog

import (
	"sort"

	"github.com/xenking/storefront/internal/domain/product"
)

// Conflict reports a product id present in more than one source.
type Conflict struct {
	ID        int64
	Locations []string
}

// Merge combines sources; for ids present in several sources the last source
// wins. Products come back ordered by id.
func Merge(sources []*Source) ([]product.Product, []Conflict) {
	merged := make(map[int64]product.Product)
	seenIn := make(map[int64][]string)
	for _, s := range sources {
		for _, p := range s.Products {
			merged[p.ID] = p
			seenIn[p.ID] = appendOnce(seenIn[p.ID], s.Location)
		}
	}

	products := make([]product.Product, 0, len(merged))
	for _, p := range merged {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })

	var conflicts []Conflict
	for id, locations := range seenIn {
		if len(locations) > 1 {
			conflicts = append(conflicts, Conflict{ID: id, Locations: locations})
		}
	}
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].ID < conflicts[j].ID })

	return products, conflicts
}

func appendOnce(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}
