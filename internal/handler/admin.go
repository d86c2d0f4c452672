package handler

import (
	"net/http"
	"runtime"
	"time"

	"voucherhub-api/internal/ingest"
	"voucherhub-api/internal/repository"
	"voucherhub-api/pkg/apierror"
	"voucherhub-api/pkg/response"
)

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	repo      repository.VoucherRepository
	sweeper   *ingest.MailSweeper
	dbType    string // Database type: sqlite or mysql
	startTime time.Time
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(repo repository.VoucherRepository, sweeper *ingest.MailSweeper, dbType string) *AdminHandler {
	return &AdminHandler{
		repo:      repo,
		sweeper:   sweeper,
		dbType:    dbType,
		startTime: time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := make(map[string]interface{})

	// System info
	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["db_type"] = h.dbType

	// Memory stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_alloc_mb": float64(memStats.HeapAlloc) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	// Voucher store stats
	if h.repo != nil {
		dbStats, err := h.repo.Stats(ctx)
		if err == nil {
			dbStats["status"] = "connected"
			stats["voucher_db"] = dbStats
		} else {
			stats["voucher_db"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		}
	} else {
		stats["voucher_db"] = map[string]interface{}{
			"status": "not_configured",
		}
	}

	// Mail sweeper status
	if h.sweeper != nil {
		stats["mail_sweeper"] = map[string]interface{}{"status": "running"}
	} else {
		stats["mail_sweeper"] = map[string]interface{}{"status": "not_configured"}
	}

	// Runtime info
	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}

// GetHealth handles GET /api/v1/admin/health
func (h *AdminHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// TriggerSweep handles POST /api/v1/admin/sweep. It runs one mailbox sweep
// immediately instead of waiting for the next poll tick.
func (h *AdminHandler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		response.Error(w, apierror.ServiceUnavailable("mail ingestion is not configured"))
		return
	}

	report, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		response.Error(w, apierror.InternalError("sweep failed: "+err.Error()))
		return
	}
	response.OK(w, report)
}
