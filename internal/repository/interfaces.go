package repository

import (
	"context"
	"errors"

	"voucherhub-api/internal/model"
)

// ErrNoCandidates is returned by Allocate when no available voucher matches
// the store filter; the transaction is rolled back before it is returned.
var ErrNoCandidates = errors.New("no available vouchers match the store filter")

// ChooseFunc picks the voucher subset to claim out of the available
// candidates. It runs inside the allocation transaction and must be pure:
// no I/O, no store access. Returning no IDs aborts the allocation.
type ChooseFunc func(available []model.Voucher) (ids []int64, sum int)

// VoucherRepository defines voucher data access methods.
//
// Status transitions are restricted by construction: Available→Pending only
// happens inside Allocate, Pending→Used only inside MarkUsed. Nothing else
// mutates status, and vouchers are never deleted.
type VoucherRepository interface {
	// InsertIfNew inserts a voucher unless its code already exists.
	// Duplicate codes are a no-op, reported through inserted=false.
	InsertIfNew(ctx context.Context, in model.VoucherInput) (id int64, inserted bool, err error)

	// ListAvailable returns available vouchers whose store contains the
	// given substring, ordered by amount descending then insertion order.
	ListAvailable(ctx context.Context, storeSubstring string) ([]model.Voucher, error)

	// ListDistinctStores returns the distinct store labels that still have
	// available inventory, alphabetically.
	ListDistinctStores(ctx context.Context) ([]string, error)

	// Allocate runs the claim transaction: read the available candidates for
	// the store filter, let choose pick a subset, mark the picked vouchers
	// pending for the requester, commit. Any failure rolls everything back.
	// Returns ErrNoCandidates when the read comes up empty; returns
	// (nil, 0, nil) when choose picks nothing.
	Allocate(ctx context.Context, requester, storeSubstring string, choose ChooseFunc) ([]model.Voucher, int, error)

	// MarkUsed transitions every pending voucher assigned to the requester
	// to used and returns how many were transitioned. Idempotent.
	MarkUsed(ctx context.Context, requester string) (int64, error)

	// ListPendingFor returns the pending voucher IDs assigned to the
	// requester, most recent first.
	ListPendingFor(ctx context.Context, requester string) ([]int64, error)

	// ListAll returns the full inventory ordered by store, amount, creation.
	ListAll(ctx context.Context) ([]model.Voucher, error)

	// GroupedByStore returns per-store, per-amount, per-status counts.
	GroupedByStore(ctx context.Context) ([]model.GroupRow, error)

	// StatusSummary returns per-amount, per-status counts, amount descending.
	StatusSummary(ctx context.Context) ([]model.SummaryRow, error)

	// Stats returns statistics about the voucher database.
	Stats(ctx context.Context) (map[string]interface{}, error)

	// Close closes the repository connection.
	Close() error
}
