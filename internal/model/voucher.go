package model

import "time"

// VoucherStatus is the lifecycle state of a voucher. Vouchers are never
// deleted; status is the only lifecycle signal.
type VoucherStatus string

const (
	StatusAvailable VoucherStatus = "available"
	StatusPending   VoucherStatus = "pending"
	StatusUsed      VoucherStatus = "used"
)

// Voucher represents a single-use monetary voucher row.
type Voucher struct {
	ID               int64         `json:"id"`
	Code             string        `json:"code"`
	Amount           int           `json:"amount"`
	Store            string        `json:"store,omitempty"`
	Status           VoucherStatus `json:"status"`
	SourceTag        string        `json:"source_tag,omitempty"`
	AssignedTo       string        `json:"assigned_to,omitempty"`
	BarcodeImagePath string        `json:"barcode_image_path,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

// VoucherInput holds the fields of a candidate voucher produced by the
// ingestion normalizer. ID, status and created_at are assigned at insert.
type VoucherInput struct {
	Code             string
	Amount           int
	Store            string
	SourceTag        string
	BarcodeImagePath string
}

// Allocation is the result of a successful claim: the vouchers moved to
// pending for a requester and the total they add up to.
type Allocation struct {
	Vouchers []Voucher `json:"vouchers"`
	Total    int       `json:"total"`
	Target   int       `json:"target"`
}

// ExactMatch reports whether the claimed total hits the requested target.
func (a *Allocation) ExactMatch() bool {
	return a.Total == a.Target
}

// GroupRow is one row of the per-store inventory breakdown.
type GroupRow struct {
	Store  string        `json:"store"`
	Amount int           `json:"amount"`
	Status VoucherStatus `json:"status"`
	Count  int           `json:"count"`
}

// SummaryRow is one row of the per-amount status summary.
type SummaryRow struct {
	Amount int           `json:"amount"`
	Status VoucherStatus `json:"status"`
	Count  int           `json:"count"`
}
