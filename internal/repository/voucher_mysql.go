package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"voucherhub-api/internal/model"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLVoucherRepository implements VoucherRepository using MySQL. The
// allocation transaction locks candidate rows with SELECT ... FOR UPDATE so
// concurrent claims on overlapping inventory serialize at the database.
type MySQLVoucherRepository struct {
	db *sql.DB
}

// NewMySQLVoucherRepository creates a new MySQL voucher repository.
func NewMySQLVoucherRepository(dsn string) (*MySQLVoucherRepository, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	if err := createVoucherTableMySQL(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[MySQLVoucherRepository] Initialized")
	return &MySQLVoucherRepository{db: db}, nil
}

func createVoucherTableMySQL(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS vouchers (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		code VARCHAR(32) NOT NULL,
		amount INT NOT NULL,
		store VARCHAR(255),
		status VARCHAR(16) NOT NULL DEFAULT 'available',
		source_tag VARCHAR(255),
		assigned_to VARCHAR(64),
		barcode_image_path VARCHAR(512),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uniq_vouchers_code (code),
		KEY idx_vouchers_status (status),
		KEY idx_vouchers_store (store)
	)`
	_, err := db.Exec(query)
	return err
}

// InsertIfNew inserts a voucher unless its code already exists.
func (r *MySQLVoucherRepository) InsertIfNew(ctx context.Context, in model.VoucherInput) (int64, bool, error) {
	if in.Code == "" {
		return 0, false, fmt.Errorf("voucher code is empty")
	}
	if in.Amount <= 0 {
		return 0, false, fmt.Errorf("voucher amount must be positive, got %d", in.Amount)
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT IGNORE INTO vouchers (code, amount, store, source_tag, barcode_image_path)
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

	var id int64
	if err := r.db.QueryRowContext(ctx, `SELECT id FROM vouchers WHERE code = ?`, in.Code).Scan(&id); err != nil {
		return 0, false, fmt.Errorf("failed to look up duplicate code: %w", err)
	}
	return id, false, nil
}

// ListAvailable returns available vouchers matching the store filter.
func (r *MySQLVoucherRepository) ListAvailable(ctx context.Context, storeSubstring string) ([]model.Voucher, error) {
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
func (r *MySQLVoucherRepository) ListDistinctStores(ctx context.Context) ([]string, error) {
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

// Allocate runs the claim transaction with row locks held from the read.
func (r *MySQLVoucherRepository) Allocate(ctx context.Context, requester, storeSubstring string, choose ChooseFunc) ([]model.Voucher, int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to begin allocation transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, code, amount, store, status, source_tag, assigned_to, barcode_image_path, created_at
		FROM vouchers
		WHERE status = 'available' AND store LIKE ?
		ORDER BY amount DESC, id ASC
		FOR UPDATE`,
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

	byID := make(map[int64]model.Voucher, len(available))
	for _, v := range available {
		byID[v.ID] = v
	}
	chosen := make([]model.Voucher, 0, len(ids))
	for _, id := range ids {
		v, ok := byID[id]
		if !ok {
			return nil, 0, fmt.Errorf("chosen id %d is not among candidates", id)
		}
		v.Status = model.StatusPending
		v.AssignedTo = requester
		chosen = append(chosen, v)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, requester)
	for _, id := range ids {
		args = append(args, id)
	}
	result, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE vouchers SET status = 'pending', assigned_to = ? WHERE id IN (%s) AND status = 'available'`, placeholders),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to mark vouchers pending: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, 0, err
	}
	if affected != int64(len(ids)) {
		return nil, 0, fmt.Errorf("claimed %d of %d vouchers, aborting", affected, len(ids))
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("failed to commit allocation: %w", err)
	}
	return chosen, sum, nil
}

// MarkUsed transitions the requester's pending vouchers to used.
func (r *MySQLVoucherRepository) MarkUsed(ctx context.Context, requester string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE vouchers SET status = 'used' WHERE status = 'pending' AND assigned_to = ?`,
		requester,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark vouchers used: %w", err)
	}
	return result.RowsAffected()
}

// ListPendingFor returns pending voucher IDs for a requester, newest first.
func (r *MySQLVoucherRepository) ListPendingFor(ctx context.Context, requester string) ([]int64, error) {
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
func (r *MySQLVoucherRepository) ListAll(ctx context.Context) ([]model.Voucher, error) {
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
func (r *MySQLVoucherRepository) GroupedByStore(ctx context.Context) ([]model.GroupRow, error) {
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
func (r *MySQLVoucherRepository) StatusSummary(ctx context.Context) ([]model.SummaryRow, error) {
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
func (r *MySQLVoucherRepository) Stats(ctx context.Context) (map[string]interface{}, error) {
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

	return stats, nil
}

// Close closes the database connection.
func (r *MySQLVoucherRepository) Close() error {
	return r.db.Close()
}

// Ensure MySQLVoucherRepository implements VoucherRepository
var _ VoucherRepository = (*MySQLVoucherRepository)(nil)
