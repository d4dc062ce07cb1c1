package domain

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestCatalogFetchErrorUnwrap(t *testing.T) {
	err := error(&CatalogFetchError{Category: CategoryGold, URL: "https://x/altin", Err: io.ErrUnexpectedEOF})

	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected wrapped cause to be reachable")
	}
	var fe *CatalogFetchError
	if !errors.As(err, &fe) || fe.Category != CategoryGold {
		t.Fatalf("expected CatalogFetchError for gold, got %v", err)
	}
	if !strings.Contains(err.Error(), "gold") {
		t.Errorf("expected category in message: %s", err)
	}
}

func TestCatalogParseErrorMessage(t *testing.T) {
	err := &CatalogParseError{Category: CategoryStock, URL: "https://x/borsa", Reason: "no rows"}
	if got := err.Error(); !strings.Contains(got, "stock") || !strings.Contains(got, "no rows") {
		t.Errorf("unexpected message %q", got)
	}
}
