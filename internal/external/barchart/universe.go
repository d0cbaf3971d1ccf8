package barchart

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/tagomatech/ETL/internal/calendar"
	"github.com/tagomatech/ETL/internal/contracts"
)

var quoteHref = regexp.MustCompile(`/futures/quotes/([A-Za-z]+[FGHJKMNQUVXZ]\d{2})(?:/|$)`)

var _ contracts.SymbolUniverse = (*Client)(nil)

// Contracts lists the contracts of root shown on its futures-prices page
// Results are de-duplicated and ordered by expiry.
func (c *Client) Contracts(ctx context.Context, root string) ([]string, error) {
	root, err := calendar.NormalizeRoot(root)
	if err != nil {
		return nil, err
	}
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}

	doc, err := c.fetchHTML(ctx, c.baseURL.JoinPath("futures", "quotes", root+"*0", "futures-prices").String())
	if err != nil {
		return nil, fmt.Errorf("barchart universe %s: %w", root, err)
	}

	symbols := parseContracts(doc, root)
	c.logger.WithFields(map[string]interface{}{
		"root":      root,
		"contracts": len(symbols),
	}).Debug("Barchart universe listed")
	return symbols, nil
}

func (c *Client) fetchHTML(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// parseContracts collects symbols from quote links and data-symbol attributes
func parseContracts(doc *goquery.Document, root string) []string {
	seen := make(map[string]contracts.ContractSymbol)
	add := func(raw string) {
		sym, err := calendar.ParseSymbol(raw)
		if err != nil || sym.Root != root {
			return
		}
		seen[sym.String()] = sym
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if m := quoteHref.FindStringSubmatch(href); m != nil {
			add(m[1])
		}
	})
	doc.Find("[data-symbol]").Each(func(_ int, s *goquery.Selection) {
		v, _ := s.Attr("data-symbol")
		add(strings.TrimSpace(v))
	})

	out := make([]contracts.ContractSymbol, 0, len(seen))
	for _, sym := range seen {
		out = append(out, sym)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiryKey() < out[j].ExpiryKey() })

	names := make([]string, len(out))
	for i, sym := range out {
		names[i] = sym.String()
	}
	return names
}
