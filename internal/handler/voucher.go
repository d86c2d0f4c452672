package handler

import (
	"log"
	"net/http"

	"voucherhub-api/internal/repository"
	"voucherhub-api/pkg/apierror"
	"voucherhub-api/pkg/response"
)

// VoucherHandler exposes read-only inventory views over HTTP.
type VoucherHandler struct {
	repo repository.VoucherRepository
}

// NewVoucherHandler creates a new voucher handler.
func NewVoucherHandler(repo repository.VoucherRepository) *VoucherHandler {
	return &VoucherHandler{repo: repo}
}

// List handles GET /api/v1/vouchers
func (h *VoucherHandler) List(w http.ResponseWriter, r *http.Request) {
	vouchers, err := h.repo.ListAll(r.Context())
	if err != nil {
		log.Printf("[VoucherHandler] ListAll failed: %v", err)
		response.Error(w, apierror.InternalError("failed to list vouchers"))
		return
	}
	response.OK(w, map[string]interface{}{
		"vouchers": vouchers,
		"count":    len(vouchers),
	})
}

// Grouped handles GET /api/v1/vouchers/grouped
func (h *VoucherHandler) Grouped(w http.ResponseWriter, r *http.Request) {
	rows, err := h.repo.GroupedByStore(r.Context())
	if err != nil {
		log.Printf("[VoucherHandler] GroupedByStore failed: %v", err)
		response.Error(w, apierror.InternalError("failed to group vouchers"))
		return
	}
	response.OK(w, map[string]interface{}{"groups": rows})
}

// Summary handles GET /api/v1/vouchers/summary
func (h *VoucherHandler) Summary(w http.ResponseWriter, r *http.Request) {
	rows, err := h.repo.StatusSummary(r.Context())
	if err != nil {
		log.Printf("[VoucherHandler] StatusSummary failed: %v", err)
		response.Error(w, apierror.InternalError("failed to summarize vouchers"))
		return
	}
	response.OK(w, map[string]interface{}{"summary": rows})
}

// Stores handles GET /api/v1/vouchers/stores
func (h *VoucherHandler) Stores(w http.ResponseWriter, r *http.Request) {
	stores, err := h.repo.ListDistinctStores(r.Context())
	if err != nil {
		log.Printf("[VoucherHandler] ListDistinctStores failed: %v", err)
		response.Error(w, apierror.InternalError("failed to list stores"))
		return
	}
	response.OK(w, map[string]interface{}{"stores": stores})
}
