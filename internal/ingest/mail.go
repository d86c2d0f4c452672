package ingest

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"voucherhub-api/internal/model"
	"voucherhub-api/internal/repository"
	"voucherhub-api/internal/source"
)

// SweepReport aggregates the outcome of one mailbox sweep.
type SweepReport struct {
	Stored        int `json:"stored"`
	Duplicates    int `json:"duplicates"`
	ParseFailures int `json:"parse_failures"`
	Errors        int `json:"errors"`
}

// MailSweeperConfig holds configuration for the mail sweeper.
type MailSweeperConfig struct {
	// SubjectKeyword filters inbound mail; only subjects containing it are
	// considered voucher mail.
	SubjectKeyword string

	// PollInterval is how often the mailbox is swept. Default: 5 minutes.
	PollInterval time.Duration

	// BarcodeDir is where barcode attachments are saved.
	BarcodeDir string
}

// MailSweeper periodically pulls voucher mail from a MailProvider, parses it
// and stores new vouchers. It runs entirely off the request-serving path, and
// a failed sweep never breaks the schedule: the next tick always fires.
type MailSweeper struct {
	provider source.MailProvider
	repo     repository.VoucherRepository
	config   MailSweeperConfig

	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
}

// NewMailSweeper creates a new mail sweeper.
func NewMailSweeper(provider source.MailProvider, repo repository.VoucherRepository, config MailSweeperConfig) *MailSweeper {
	if config.PollInterval == 0 {
		config.PollInterval = 5 * time.Minute
	}
	if config.BarcodeDir == "" {
		config.BarcodeDir = "./barcodes"
	}

	return &MailSweeper{
		provider: provider,
		repo:     repo,
		config:   config,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic sweep.
func (s *MailSweeper) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.PollInterval)
	s.mu.Unlock()

	log.Printf("[MailSweeper] Started - Interval: %v, Keyword: %q",
		s.config.PollInterval, s.config.SubjectKeyword)

	// Run an initial sweep shortly after startup.
	go func() {
		time.Sleep(10 * time.Second)
		s.runSweep()
	}()

	go s.run()
}

// run is the main sweep loop.
func (s *MailSweeper) run() {
	for {
		select {
		case <-s.ticker.C:
			s.runSweep()
		case <-s.stopCh:
			log.Printf("[MailSweeper] Stopped")
			return
		}
	}
}

// runSweep executes one sweep inside a failure boundary: any error or panic
// is logged and the schedule stays alive.
func (s *MailSweeper) runSweep() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[MailSweeper] Sweep panicked: %v — will retry in %v", r, s.config.PollInterval)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	report, err := s.Sweep(ctx)
	if err != nil {
		log.Printf("[MailSweeper] Sweep failed: %v — will retry in %v", err, s.config.PollInterval)
		return
	}
	if report.Stored > 0 || report.Duplicates > 0 || report.ParseFailures > 0 || report.Errors > 0 {
		log.Printf("[MailSweeper] Sweep done: stored=%d duplicates=%d parse_failures=%d errors=%d",
			report.Stored, report.Duplicates, report.ParseFailures, report.Errors)
	}
}

// Sweep pulls unread voucher mail once and stores what parses. Items are
// marked consumed whether or not they parse, so a bad message is never
// re-delivered on the next poll.
func (s *MailSweeper) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	items, err := s.provider.ListUnreadMatching(ctx, s.config.SubjectKeyword)
	if err != nil {
		return report, fmt.Errorf("failed to list unread mail: %w", err)
	}
	if len(items) == 0 {
		return report, nil
	}

	log.Printf("[MailSweeper] Found %d new mail item(s)", len(items))

	for _, item := range items {
		amount, store := ParseSubject(item.Subject)
		code := ParseBody(item.Body)

		if code == "" || amount <= 0 {
			log.Printf("[MailSweeper] Could not parse %q (amount=%d code=%q) — marking consumed to avoid re-fetch",
				item.Subject, amount, code)
			report.ParseFailures++
			s.consume(ctx, item)
			continue
		}

		imagePath := s.saveBarcodeAttachment(item, code)

		_, inserted, err := s.repo.InsertIfNew(ctx, model.VoucherInput{
			Code:             code,
			Amount:           amount,
			Store:            store,
			SourceTag:        "mail",
			BarcodeImagePath: imagePath,
		})
		if err != nil {
			// Storage trouble: leave the item unread so it is retried on
			// the next sweep.
			log.Printf("[MailSweeper] Failed to store voucher %s: %v", code, err)
			report.Errors++
			continue
		}

		s.consume(ctx, item)

		if inserted {
			report.Stored++
			log.Printf("[MailSweeper] Stored voucher: code=%s amount=%d store=%s", code, amount, store)
		} else {
			report.Duplicates++
			log.Printf("[MailSweeper] Duplicate code=%s — marked consumed and skipped", code)
		}
	}

	return report, nil
}

// saveBarcodeAttachment writes the first barcode-looking attachment
// (img*.gif) under the barcode dir, named by the voucher code. Returns the
// saved path, or "" when there is none or saving fails.
func (s *MailSweeper) saveBarcodeAttachment(item source.MailItem, code string) string {
	for _, att := range item.Attachments {
		name := strings.ToLower(att.Filename)
		if !strings.HasPrefix(name, "img") || !strings.HasSuffix(name, ".gif") {
			continue
		}

		if err := os.MkdirAll(s.config.BarcodeDir, 0o755); err != nil {
			log.Printf("[MailSweeper] Could not create barcode dir: %v", err)
			return ""
		}
		dest := filepath.Join(s.config.BarcodeDir, code+".gif")
		if err := os.WriteFile(dest, att.Data, 0o644); err != nil {
			log.Printf("[MailSweeper] Could not save barcode image: %v", err)
			return ""
		}
		log.Printf("[MailSweeper] Saved barcode image: %s", dest)
		return dest
	}
	return ""
}

func (s *MailSweeper) consume(ctx context.Context, item source.MailItem) {
	if err := s.provider.MarkConsumed(ctx, item); err != nil {
		log.Printf("[MailSweeper] Could not mark item %d consumed: %v", item.UID, err)
	}
}

// Stop stops the sweeper.
func (s *MailSweeper) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
	})
}
