package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"

	"voucherhub-api/internal/model"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteVoucherRepository implements VoucherRepository using SQLite.
// WAL mode allows concurrent readers; a single writer at a time is enforced
// by the connection limit plus the repository mutex, so the allocation
// read-compute-write sequence can never interleave with another mutation.
type SQLiteVoucherRepository struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteVoucherRepository creates a new SQLite voucher repository.
// dbPath is the path to the SQLite database file (e.g., "./data/vouchers.db")
func NewSQLiteVoucherRepository(dbPath string) (*SQLiteVoucherRepository, error) {
	// _txlock=immediate makes every transaction take the write lock up
	// front, same as BEGIN IMMEDIATE.
	dsn := fmt.Sprintf("%s?_txlock=immediate&_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createVoucherTable(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[SQLiteVoucherRepository] Initialized with database: %s", dbPath)
	return &SQLiteVoucherRepository{db: db}, nil
}

// createVoucherTable creates the vouchers table and migrates columns added
// after the first release.
func createVoucherTable(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS vouchers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE,
		amount INTEGER NOT NULL,
		store TEXT,
		status TEXT NOT NULL DEFAULT 'available',
		source_tag TEXT,
		assigned_to TEXT,
		barcode_image_path TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_vouchers_status ON vouchers(status);
	CREATE INDEX IF NOT EXISTS idx_vouchers_store ON vouchers(store);
	`
	if _, err := db.Exec(query); err != nil {
		return err
	}

	rows, err := db.Query(`PRAGMA table_info(vouchers)`)
	if err != nil {
		return err
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return err
		}
		existing[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for col, definition := range map[string]string{
		"store":              "TEXT",
		"assigned_to":        "TEXT",
		"barcode_image_path": "TEXT",
	} {
		if !existing[col] {
			if _, err := db.Exec(fmt.Sprintf("ALTER TABLE vouchers ADD COLUMN %s %s", col, definition)); err != nil {
				return err
			}
			log.Printf("[SQLiteVoucherRepository] DB migration: added column '%s'", col)
		}
	}
	return nil
}

// InsertIfNew inserts a voucher unless its code already exists.
func (r *SQLiteVoucherRepository) InsertIfNew(ctx context.Context, in model.VoucherInput) (int64, bool, error) {
	if in.Code == "" {
		return 0, false, fmt.Errorf("voucher code is empty")
	}
	if in.Amount <= 0 {
		return 0, false, fmt.Errorf("voucher amount must be positive, got %d", in.Amount)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO vouchers (code, amount, store, source_tag, barcode_image_path)
		VALUES (?, ?, ?, ?, ?)`,
		in.Code, in.Amount, nullable(in.Store), nullable(in.SourceTag), nullable(in.BarcodeImagePath),
	)
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert voucher: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if affected > 0 {
		id, err := result.LastInsertId()
		if err != nil {
			return 0, false, err
		}
		return id, true, nil
	}

	// Duplicate code: report the existing row's id.
	var id int64
	if err := r.db.QueryRowContext(ctx, `SELECT id FROM vouchers WHERE code = ?`, in.Code).Scan(&id); err != nil {
		return 0, false, fmt.Errorf("failed to look up duplicate code: %w", err)
	}
	return id, false, nil
}

// ListAvailable returns available vouchers matching the store filter, biggest
// first so combination search favors fewer, larger vouchers.
func (r *SQLiteVoucherRepository) ListAvailable(ctx context.Context, storeSubstring string) ([]model.Voucher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, code, amount, store, status, source_tag, assigned_to, barcode_image_path, created_at
		FROM vouchers
		WHERE status = 'available' AND store LIKE ?
		ORDER BY amount DESC, id ASC`,
		"%"+storeSubstring+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list available vouchers: %w", err)
	}
	defer rows.Close()

	return scanVouchers(rows)
}

// ListDistinctStores returns store labels with available inventory.
func (r *SQLiteVoucherRepository) ListDistinctStores(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT store FROM vouchers
		WHERE status = 'available' AND store IS NOT NULL
		ORDER BY store`)
	if err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}
	defer rows.Close()

	var stores []string
	for rows.Next() {
		var store string
		if err := rows.Scan(&store); err != nil {
			return nil, err
		}
		stores = append(stores, store)
	}
	return stores, rows.Err()
}

// Allocate runs the atomic claim transaction. The write lock is taken before
// the candidate read so no other allocation or insert can interleave.
func (r *SQLiteVoucherRepository) Allocate(ctx context.Context, requester, storeSubstring string, choose ChooseFunc) ([]model.Voucher, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to begin allocation transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, code, amount, store, status, source_tag, assigned_to, barcode_image_path, created_at
		FROM vouchers
		WHERE status = 'available' AND store LIKE ?
		ORDER BY amount DESC, id ASC`,
		"%"+storeSubstring+"%",
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read candidates: %w", err)
	}
	available, err := scanVouchers(rows)
	rows.Close()
	if err != nil {
		return nil, 0, err
	}

	if len(available) == 0 {
		return nil, 0, ErrNoCandidates
	}

	ids, sum := choose(available)
	if len(ids) == 0 {
		return nil, 0, nil
	}

	chosen := make([]model.Voucher, 0, len(ids))
	byID := make(map[int64]model.Voucher, len(available))
	for _, v := range available {
		byID[v.ID] = v
	}
	for _, id := range ids {
		v, ok := byID[id]
		if !ok {
			return nil, 0, fmt.Errorf("chosen id %d is not among candidates", id)
		}
		v.Status = model.StatusPending
		v.AssignedTo = requester
		chosen = append(chosen, v)
	}

	for _, id := range ids {
		res, err := tx.ExecContext(ctx,
			`UPDATE vouchers SET status = 'pending', assigned_to = ? WHERE id = ? AND status = 'available'`,
			requester, id,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to mark voucher %d pending: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, 0, err
		}
		if affected == 0 {
			return nil, 0, fmt.Errorf("voucher %d is no longer available", id)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("failed to commit allocation: %w", err)
	}
	return chosen, sum, nil
}

// MarkUsed transitions the requester's pending vouchers to used.
func (r *SQLiteVoucherRepository) MarkUsed(ctx context.Context, requester string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.ExecContext(ctx,
		`UPDATE vouchers SET status = 'used' WHERE status = 'pending' AND assigned_to = ?`,
		requester,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark vouchers used: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if count > 0 {
		log.Printf("[SQLiteVoucherRepository] Requester %s marked %d voucher(s) as used", requester, count)
	}
	return count, nil
}

// ListPendingFor returns pending voucher IDs for a requester, newest first.
func (r *SQLiteVoucherRepository) ListPendingFor(ctx context.Context, requester string) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM vouchers
		WHERE status = 'pending' AND assigned_to = ?
		ORDER BY created_at DESC, id DESC`,
		requester,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending vouchers: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListAll returns the full inventory.
func (r *SQLiteVoucherRepository) ListAll(ctx context.Context) ([]model.Voucher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, code, amount, store, status, source_tag, assigned_to, barcode_image_path, created_at
		FROM vouchers
		ORDER BY store, amount, created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list vouchers: %w", err)
	}
	defer rows.Close()

	return scanVouchers(rows)
}

// GroupedByStore returns per-store, per-amount, per-status counts.
func (r *SQLiteVoucherRepository) GroupedByStore(ctx context.Context) ([]model.GroupRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, `
		SELECT IFNULL(store, ''), amount, status, COUNT(*)
		FROM vouchers
		GROUP BY store, amount, status
		ORDER BY store, amount`)
	if err != nil {
		return nil, fmt.Errorf("failed to group vouchers: %w", err)
	}
	defer rows.Close()

	var result []model.GroupRow
	for rows.Next() {
		var g model.GroupRow
		if err := rows.Scan(&g.Store, &g.Amount, &g.Status, &g.Count); err != nil {
			return nil, err
		}
		result = append(result, g)
	}
	return result, rows.Err()
}

// StatusSummary returns per-amount, per-status counts.
func (r *SQLiteVoucherRepository) StatusSummary(ctx context.Context) ([]model.SummaryRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, `
		SELECT amount, status, COUNT(*)
		FROM vouchers
		GROUP BY amount, status
		ORDER BY amount DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize vouchers: %w", err)
	}
	defer rows.Close()

	var result []model.SummaryRow
	for rows.Next() {
		var s model.SummaryRow
		if err := rows.Scan(&s.Amount, &s.Status, &s.Count); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// Stats returns statistics about the voucher database.
func (r *SQLiteVoucherRepository) Stats(ctx context.Context) (map[string]interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]interface{})

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vouchers`).Scan(&total); err != nil {
		return nil, err
	}
	stats["total_vouchers"] = total

	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM vouchers GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	byStatus := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		byStatus[status] = count
	}
	stats["by_status"] = byStatus

	// Database file size (approximate from page count)
	var pageCount, pageSize int64
	r.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	r.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
	stats["db_size_bytes"] = pageCount * pageSize

	return stats, nil
}

// Close closes the database connection.
func (r *SQLiteVoucherRepository) Close() error {
	return r.db.Close()
}

func scanVouchers(rows *sql.Rows) ([]model.Voucher, error) {
	var vouchers []model.Voucher
	for rows.Next() {
		var v model.Voucher
		var store, sourceTag, assignedTo, imagePath sql.NullString
		if err := rows.Scan(&v.ID, &v.Code, &v.Amount, &store, &v.Status, &sourceTag, &assignedTo, &imagePath, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan voucher: %w", err)
		}
		v.Store = store.String
		v.SourceTag = sourceTag.String
		v.AssignedTo = assignedTo.String
		v.BarcodeImagePath = imagePath.String
		vouchers = append(vouchers, v)
	}
	return vouchers, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: strings.TrimSpace(s) != ""}
}

// Ensure SQLiteVoucherRepository implements VoucherRepository
var _ VoucherRepository = (*SQLiteVoucherRepository)(nil)
