package ingest

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"voucherhub-api/internal/model"
	"voucherhub-api/internal/repository"
	"voucherhub-api/internal/source"
)

// linkKeyword identifies voucher links in batch rows; rows whose link cell
// does not contain it are counted as errors.
const linkKeyword = "pluxee"

// usedKeywords mark a row's voucher as already redeemed; such rows are
// skipped and counted separately from errors.
var usedKeywords = []string{"used", "נוצל", "נוצלה", "מומש"}

// BatchReport aggregates the outcome of one batch import.
type BatchReport struct {
	Imported     int `json:"imported"`
	SkippedUsed  int `json:"skipped_used"`
	SkippedError int `json:"skipped_error"`
}

// columnRole is a semantic role a spreadsheet column can play.
type columnRole string

const (
	roleLink   columnRole = "link"
	roleAmount columnRole = "amount"
	roleStatus columnRole = "status"
	roleStore  columnRole = "store"
)

// headerDetector maps header keywords to a column role. Detectors are tried
// in priority order; the first match per column wins and each role is
// assigned at most once.
type headerDetector struct {
	role     columnRole
	keywords []string
}

var headerDetectors = []headerDetector{
	{roleLink, []string{"link", "url", "קישור"}},
	{roleAmount, []string{"שווי", "סכום", "amount", "price", "₪"}},
	{roleStatus, []string{"סטטוס", "status", "מצב"}},
	{roleStore, []string{"חנות", "store", "סניף", "רשת"}},
}

// sampleDepth is how many leading non-empty values the positional fallbacks
// inspect per column.
const sampleDepth = 5

// BatchImporter turns spreadsheet batches into stored vouchers. The voucher
// code is not in the sheet itself: each row links to a voucher page whose
// title (or barcode image alt text) carries it.
type BatchImporter struct {
	repo       repository.VoucherRepository
	fetcher    source.PageFetcher
	barcodeDir string
}

// NewBatchImporter creates a new batch importer.
func NewBatchImporter(repo repository.VoucherRepository, fetcher source.PageFetcher, barcodeDir string) *BatchImporter {
	if barcodeDir == "" {
		barcodeDir = "./barcodes"
	}
	return &BatchImporter{repo: repo, fetcher: fetcher, barcodeDir: barcodeDir}
}

// Import processes every row of the batch. Row-level trouble (bad link,
// missing code, fetch failure, duplicate) is counted, never fatal; the only
// hard error is a sheet with no recognizable link column.
func (b *BatchImporter) Import(ctx context.Context, src source.BatchSource) (BatchReport, error) {
	var report BatchReport

	table, err := src.Table(ctx)
	if err != nil {
		return report, err
	}

	cols := detectColumns(table)
	linkCol, hasLink := cols[roleLink]
	if !hasLink {
		return report, fmt.Errorf("could not find a link/URL column; one column must contain voucher links")
	}
	amountCol, hasAmount := cols[roleAmount]
	statusCol, hasStatus := cols[roleStatus]
	storeCol, hasStore := cols[roleStore]

	log.Printf("[BatchImporter] Columns detected — link: %d, amount: %v, status: %v, store: %v",
		linkCol, colLabel(amountCol, hasAmount), colLabel(statusCol, hasStatus), colLabel(storeCol, hasStore))

	for _, row := range table.Rows {
		if hasStatus && isUsedStatus(table.Cell(row, statusCol)) {
			report.SkippedUsed++
			continue
		}

		link := strings.TrimSpace(table.Cell(row, linkCol))
		if link == "" || !strings.Contains(strings.ToLower(link), linkKeyword) {
			report.SkippedError++
			continue
		}

		amount := 0
		if hasAmount {
			if a, err := CleanAmount(table.Cell(row, amountCol)); err == nil {
				amount = a
			}
		}

		store := ""
		if hasStore {
			store = strings.TrimSpace(table.Cell(row, storeCol))
		}

		page, err := b.fetcher.FetchPage(ctx, link)
		if err != nil {
			log.Printf("[BatchImporter] Error fetching %s: %v", link, err)
			report.SkippedError++
			continue
		}

		code := ExtractCode(page.Title, page.ImageAlt)
		if code == "" {
			log.Printf("[BatchImporter] Could not extract voucher code from %s", link)
			report.SkippedError++
			continue
		}

		if amount == 0 {
			log.Printf("[BatchImporter] No amount found for code %s — skipping", code)
			report.SkippedError++
			continue
		}

		imagePath := b.saveBarcode(ctx, link, page, code)

		_, inserted, err := b.repo.InsertIfNew(ctx, model.VoucherInput{
			Code:             code,
			Amount:           amount,
			Store:            store,
			SourceTag:        "batch-import",
			BarcodeImagePath: imagePath,
		})
		if err != nil {
			log.Printf("[BatchImporter] Failed to store voucher %s: %v", code, err)
			report.SkippedError++
			continue
		}

		if inserted {
			report.Imported++
			log.Printf("[BatchImporter] Imported: code=%s amount=%d store=%s", code, amount, store)
		} else {
			log.Printf("[BatchImporter] Duplicate code=%s — skipped", code)
			report.SkippedError++
		}
	}

	return report, nil
}

// saveBarcode downloads the page's barcode image and stores it under the
// barcode dir. Failures only cost the image, not the voucher.
func (b *BatchImporter) saveBarcode(ctx context.Context, pageURL string, page *source.VoucherPage, code string) string {
	if page.ImageSrc == "" {
		log.Printf("[BatchImporter] No barcode image on %s", pageURL)
		return ""
	}

	data, err := b.fetcher.FetchAsset(ctx, source.ResolveAssetURL(pageURL, page.ImageSrc))
	if err != nil {
		log.Printf("[BatchImporter] Could not fetch barcode for %s: %v", code, err)
		return ""
	}

	if err := os.MkdirAll(b.barcodeDir, 0o755); err != nil {
		log.Printf("[BatchImporter] Could not create barcode dir: %v", err)
		return ""
	}
	dest := filepath.Join(b.barcodeDir, code+".png")
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		log.Printf("[BatchImporter] Could not save barcode for %s: %v", code, err)
		return ""
	}
	log.Printf("[BatchImporter] Saved barcode image: %s", dest)
	return dest
}

// detectColumns resolves column roles. Header keywords are tried first in
// detector priority order; the link and amount roles fall back to positional
// detection over sample values when no header matches.
func detectColumns(t *source.Table) map[columnRole]int {
	cols := make(map[columnRole]int)

	for i, header := range t.Headers {
		h := strings.ToLower(strings.TrimSpace(header))
		if h == "" {
			continue
		}
		for _, d := range headerDetectors {
			if _, taken := cols[d.role]; taken {
				continue
			}
			if containsAny(h, d.keywords) {
				cols[d.role] = i
				break
			}
		}
	}

	// Fallback: first column whose sample values look like voucher links.
	if _, ok := cols[roleLink]; !ok {
		for i := range t.Headers {
			if columnSamplesContain(t, i, linkKeyword) {
				cols[roleLink] = i
				break
			}
		}
	}

	// Fallback: first numeric column that is not already link or status.
	if _, ok := cols[roleAmount]; !ok {
		for i := range t.Headers {
			if (hasRole(cols, roleLink) && i == cols[roleLink]) || (hasRole(cols, roleStatus) && i == cols[roleStatus]) {
				continue
			}
			if columnSamplesNumeric(t, i) {
				cols[roleAmount] = i
				break
			}
		}
	}

	return cols
}

func hasRole(cols map[columnRole]int, role columnRole) bool {
	_, ok := cols[role]
	return ok
}

func columnSamplesContain(t *source.Table, col int, keyword string) bool {
	seen := 0
	for _, row := range t.Rows {
		v := strings.TrimSpace(t.Cell(row, col))
		if v == "" {
			continue
		}
		if strings.Contains(strings.ToLower(v), keyword) {
			return true
		}
		seen++
		if seen >= sampleDepth {
			break
		}
	}
	return false
}

func columnSamplesNumeric(t *source.Table, col int) bool {
	seen := 0
	for _, row := range t.Rows {
		v := strings.TrimSpace(t.Cell(row, col))
		if v == "" {
			continue
		}
		if _, err := CleanAmount(v); err != nil {
			return false
		}
		seen++
		if seen >= sampleDepth {
			break
		}
	}
	return seen > 0
}

func isUsedStatus(raw string) bool {
	return containsAny(strings.ToLower(strings.TrimSpace(raw)), usedKeywords)
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func colLabel(col int, ok bool) interface{} {
	if !ok {
		return "none"
	}
	return col
}
