package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// HTTPPageFetcher implements PageFetcher with a plain HTTP client. Voucher
// pages carry the barcode code in <title> (fallback: the barcode image's alt
// text) and reference the barcode image with a src relative to the page URL.
type HTTPPageFetcher struct {
	client *http.Client
}

// NewHTTPPageFetcher creates a page fetcher with the given timeout.
func NewHTTPPageFetcher(timeout time.Duration) *HTTPPageFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPPageFetcher{
		client: &http.Client{Timeout: timeout},
	}
}

// FetchPage retrieves a voucher page and reduces it to the fields the
// normalizer cares about.
func (f *HTTPPageFetcher) FetchPage(ctx context.Context, url string) (*VoucherPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", url, err)
	}

	page := &VoucherPage{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}
	if img := doc.Find("img").First(); img.Length() > 0 {
		page.ImageSrc, _ = img.Attr("src")
		page.ImageAlt, _ = img.Attr("alt")
	}
	return page, nil
}

// FetchAsset downloads a binary asset (barcode image).
func (f *HTTPPageFetcher) FetchAsset(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch asset %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching asset %s", resp.StatusCode, url)
	}

	return io.ReadAll(resp.Body)
}

// ResolveAssetURL builds the absolute URL of an asset whose src is relative
// to the page URL (e.g. "bar.ashx?x" next to ".../voucher/abc").
func ResolveAssetURL(pageURL, src string) string {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return src
	}
	base := pageURL
	if idx := strings.LastIndex(base, "/"); idx > len("https://") {
		base = base[:idx]
	}
	return base + "/" + strings.TrimPrefix(src, "/")
}

var _ PageFetcher = (*HTTPPageFetcher)(nil)
