// Package source holds the adapters that deliver raw voucher material to the
// ingestion normalizer: a polled mailbox, spreadsheet batches, and the
// voucher web pages referenced by batch rows.
package source

import "context"

// MailItem is one message pulled from the mailbox.
type MailItem struct {
	UID         uint32
	Subject     string
	Body        string
	Attachments []Attachment
}

// Attachment is a file attached to a mail item.
type Attachment struct {
	Filename string
	Data     []byte
}

// MailProvider exposes the mailbox to the ingestion sweep. Implementations
// own transport details; callers only see items and a consume operation.
type MailProvider interface {
	// ListUnreadMatching returns unread items whose subject contains the
	// keyword (case-insensitive).
	ListUnreadMatching(ctx context.Context, keyword string) ([]MailItem, error)

	// MarkConsumed flags an item so it is never delivered again.
	MarkConsumed(ctx context.Context, item MailItem) error

	// Close releases the mailbox connection, if any.
	Close() error
}

// Table is a decoded spreadsheet: a header row plus data rows. Cells are
// plain strings; column roles are resolved later by the batch importer.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Cell returns the row's value for a column index, or "" when the row is
// shorter than the header.
func (t *Table) Cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}

// BatchSource yields the rows of an uploaded voucher batch.
type BatchSource interface {
	Table(ctx context.Context) (*Table, error)
}

// VoucherPage is the reduced view of a fetched voucher page: just the pieces
// the normalizer extracts a code and barcode from.
type VoucherPage struct {
	Title    string
	ImageAlt string
	ImageSrc string
}

// PageFetcher retrieves voucher pages and their barcode assets.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (*VoucherPage, error)
	FetchAsset(ctx context.Context, url string) ([]byte, error)
}
