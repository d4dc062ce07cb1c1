package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"canlidoviz/internal/application/port"
	"canlidoviz/internal/domain"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	DefaultTimeout   = 15 * time.Second

	rowSelector    = "tr[itemprop='itemListElement']"
	symbolSelector = "span[itemprop='currency']"
	idSelector     = "td[itemprop='currentExchangeRate'] span[itemprop='price']"
)

// DefaultURLs lists the catalog page of every category.
var DefaultURLs = map[domain.Category]string{
	domain.CategoryCurrency: "https://canlidoviz.com/doviz-kurlari",
	domain.CategoryGold:     "https://canlidoviz.com/altin-fiyatlari",
	domain.CategoryStock:    "https://canlidoviz.com/borsa",
	domain.CategoryCrypto:   "https://canlidoviz.com/kripto-paralar",
}

type Options struct {
	Timeout   time.Duration
	UserAgent string
	// URLs overrides DefaultURLs per category
	URLs map[domain.Category]string
}

// Resolver scrapes the numeric id of every instrument from a catalog page.
// The same row rule applies to all categories; only the page differs.
type Resolver struct {
	client    *http.Client
	userAgent string
	urls      map[domain.Category]string
}

func New(opts Options) *Resolver {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = DefaultUserAgent
	}
	urls := make(map[domain.Category]string, len(DefaultURLs))
	for c, u := range DefaultURLs {
		urls[c] = u
	}
	for c, u := range opts.URLs {
		if strings.TrimSpace(u) != "" {
			urls[c] = u
		}
	}
	return &Resolver{
		client:    &http.Client{Timeout: opts.Timeout},
		userAgent: opts.UserAgent,
		urls:      urls,
	}
}

func (r *Resolver) URL(category domain.Category) string { return r.urls[category] }

func (r *Resolver) Resolve(ctx context.Context, category domain.Category) (map[int]string, error) {
	pageURL, ok := r.urls[category]
	if !ok {
		return nil, &domain.CatalogFetchError{Category: category, Err: fmt.Errorf("no catalog page for category")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &domain.CatalogFetchError{Category: category, URL: pageURL, Err: err}
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "text/html")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &domain.CatalogFetchError{Category: category, URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &domain.CatalogFetchError{
			Category: category,
			URL:      pageURL,
			Err:      fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &domain.CatalogFetchError{Category: category, URL: pageURL, Err: err}
	}

	out, err := Extract(doc, category, pageURL)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("category", category.String()).
		Str("url", pageURL).
		Int("symbols", len(out)).
		Dur("took", time.Since(start)).
		Msg("catalog fetched")
	return out, nil
}

// Extract reads (id, symbol) pairs from catalog rows. Rows missing either
// attribute are skipped; a page with no usable row at all is a parse error.
func Extract(doc *goquery.Document, category domain.Category, pageURL string) (map[int]string, error) {
	rows := doc.Find(rowSelector)
	if rows.Length() == 0 {
		return nil, &domain.CatalogParseError{Category: category, URL: pageURL, Reason: "no catalog rows"}
	}

	out := make(map[int]string, rows.Length())
	rows.Each(func(_ int, row *goquery.Selection) {
		sym, _ := row.Find(symbolSelector).First().Attr("content")
		sym = strings.TrimSpace(sym)
		cid, _ := row.Find(idSelector).First().Attr("cid")
		id, err := strconv.Atoi(strings.TrimSpace(cid))
		if sym == "" || err != nil {
			return
		}
		if _, dup := out[id]; dup {
			return
		}
		out[id] = sym
	})

	if len(out) == 0 {
		return nil, &domain.CatalogParseError{Category: category, URL: pageURL, Reason: "rows carry no currency/id attributes"}
	}
	return out, nil
}

var _ port.CatalogResolver = (*Resolver)(nil)
