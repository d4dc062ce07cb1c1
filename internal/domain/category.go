package domain

import (
	"fmt"
	"strings"
)

// Category is a set of instrument catalogs. Values combine with Union.
type Category uint8

const (
	CategoryNone     Category = 0
	CategoryCurrency Category = 1 << 0
	CategoryGold     Category = 1 << 1
	CategoryStock    Category = 1 << 2
	CategoryCrypto   Category = 1 << 3

	CategoryAll = CategoryCurrency | CategoryGold | CategoryStock | CategoryCrypto
)

// catalog precedence: earlier categories win duplicate ids
var categoryOrder = []Category{CategoryCurrency, CategoryGold, CategoryStock, CategoryCrypto}

var categoryNames = map[Category]string{
	CategoryCurrency: "currency",
	CategoryGold:     "gold",
	CategoryStock:    "stock",
	CategoryCrypto:   "crypto",
}

// Has reports whether every category in other is present in c.
func (c Category) Has(other Category) bool {
	return other != CategoryNone && c&other == other
}

func (c Category) Union(other Category) Category { return c | other }

// Categories expands the set into single categories in precedence order.
func (c Category) Categories() []Category {
	out := make([]Category, 0, len(categoryOrder))
	for _, single := range categoryOrder {
		if c&single != 0 {
			out = append(out, single)
		}
	}
	return out
}

// ExplicitTag returns the subscription tag for categories the server only
// streams on request. Currency and gold are streamed by default.
func (c Category) ExplicitTag() (string, bool) {
	switch c {
	case CategoryStock:
		return "STOCK", true
	case CategoryCrypto:
		return "COIN", true
	default:
		return "", false
	}
}

func (c Category) String() string {
	if c == CategoryNone {
		return "none"
	}
	if c == CategoryAll {
		return "all"
	}
	parts := make([]string, 0, 4)
	for _, single := range c.Categories() {
		parts = append(parts, categoryNames[single])
	}
	return strings.Join(parts, "|")
}

// ParseCategory maps a config name (currency, gold, stock, crypto, all) to a Category.
func ParseCategory(name string) (Category, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "all" {
		return CategoryAll, nil
	}
	for c, cn := range categoryNames {
		if cn == n {
			return c, nil
		}
	}
	return CategoryNone, fmt.Errorf("unknown category %q", name)
}

func ParseCategories(names []string) (Category, error) {
	var out Category
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		c, err := ParseCategory(n)
		if err != nil {
			return CategoryNone, err
		}
		out = out.Union(c)
	}
	return out, nil
}
