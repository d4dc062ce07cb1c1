package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSymbols no configured category resolved to any instrument
	ErrNoSymbols = errors.New("no symbols resolved for configured categories")
	// ErrNotConnected emit attempted without a live transport connection
	ErrNotConnected = errors.New("transport not connected")
	// ErrSessionClosed operation on a session that was already closed
	ErrSessionClosed = errors.New("session closed")
	// ErrAlreadyStarted Start called twice
	ErrAlreadyStarted = errors.New("session already started")
	// ErrNoLogListener a transport error occurred with nobody listening for log events
	ErrNoLogListener = errors.New("transport error with no log listener registered")
)

// CatalogFetchError the catalog page could not be retrieved.
type CatalogFetchError struct {
	Category Category
	URL      string
	Err      error
}

func (e *CatalogFetchError) Error() string {
	return fmt.Sprintf("fetch %s catalog %s: %v", e.Category, e.URL, e.Err)
}

func (e *CatalogFetchError) Unwrap() error { return e.Err }

// CatalogParseError the catalog page lacks the expected row structure.
type CatalogParseError struct {
	Category Category
	URL      string
	Reason   string
}

func (e *CatalogParseError) Error() string {
	return fmt.Sprintf("parse %s catalog %s: %s", e.Category, e.URL, e.Reason)
}
