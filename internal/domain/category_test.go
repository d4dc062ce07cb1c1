package domain

import (
	"reflect"
	"testing"
)

func TestCategoryHasAndUnion(t *testing.T) {
	c := CategoryCurrency.Union(CategoryCrypto)

	if !c.Has(CategoryCurrency) || !c.Has(CategoryCrypto) {
		t.Fatalf("expected currency and crypto in %s", c)
	}
	if c.Has(CategoryGold) {
		t.Errorf("did not expect gold in %s", c)
	}
	if c.Has(CategoryNone) {
		t.Errorf("None must never be reported as present")
	}
	if !CategoryAll.Has(CategoryStock | CategoryGold) {
		t.Errorf("All must contain every category")
	}
}

func TestCategoryCategoriesOrder(t *testing.T) {
	got := (CategoryCrypto | CategoryCurrency | CategoryStock).Categories()
	want := []Category{CategoryCurrency, CategoryStock, CategoryCrypto}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestCategoryExplicitTag(t *testing.T) {
	tests := []struct {
		c   Category
		tag string
		ok  bool
	}{
		{CategoryCurrency, "", false},
		{CategoryGold, "", false},
		{CategoryStock, "STOCK", true},
		{CategoryCrypto, "COIN", true},
	}
	for _, tt := range tests {
		tag, ok := tt.c.ExplicitTag()
		if tag != tt.tag || ok != tt.ok {
			t.Errorf("%s: expected (%q,%v), got (%q,%v)", tt.c, tt.tag, tt.ok, tag, ok)
		}
	}
}

func TestCategoryString(t *testing.T) {
	if s := (CategoryCurrency | CategoryGold).String(); s != "currency|gold" {
		t.Errorf("unexpected string %q", s)
	}
	if s := CategoryAll.String(); s != "all" {
		t.Errorf("unexpected string %q", s)
	}
	if s := CategoryNone.String(); s != "none" {
		t.Errorf("unexpected string %q", s)
	}
}

func TestParseCategories(t *testing.T) {
	c, err := ParseCategories([]string{"Currency", " stock ", ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != CategoryCurrency|CategoryStock {
		t.Errorf("expected currency|stock, got %s", c)
	}

	c, err = ParseCategories([]string{"all"})
	if err != nil || c != CategoryAll {
		t.Errorf("expected all, got %s err=%v", c, err)
	}

	if _, err := ParseCategories([]string{"bonds"}); err == nil {
		t.Errorf("expected error for unknown category")
	}
}
