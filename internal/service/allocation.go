package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"voucherhub-api/internal/combiner"
	"voucherhub-api/internal/model"
	"voucherhub-api/internal/repository"
)

var (
	// ErrNoInventory means no available voucher matches the store filter.
	ErrNoInventory = errors.New("no available vouchers for that store")

	// ErrNoFeasibleCombination means inventory exists but even the smallest
	// available voucher exceeds the requested amount.
	ErrNoFeasibleCombination = errors.New("no voucher combination fits under the requested amount")
)

// AllocationService is the only place where vouchers transition to pending.
// It wraps read + combination + claim into the repository's single atomic
// transaction so two concurrent requests can never claim the same voucher.
type AllocationService struct {
	repo repository.VoucherRepository
}

// NewAllocationService creates a new allocation service.
// Returns nil if repo is nil (required dependency).
func NewAllocationService(repo repository.VoucherRepository) *AllocationService {
	if repo == nil {
		return nil
	}
	return &AllocationService{repo: repo}
}

// Allocate claims the best voucher combination for the requester: the subset
// of available vouchers at the store summing as close to target as possible
// without exceeding it. The candidate set is fed to the combination engine in
// amount-descending order, so results are reproducible for identical
// inventory.
func (s *AllocationService) Allocate(ctx context.Context, requester string, target int, storeSubstring string) (*model.Allocation, error) {
	if target <= 0 {
		return nil, fmt.Errorf("target must be positive, got %d", target)
	}

	chosen, sum, err := s.repo.Allocate(ctx, requester, storeSubstring, func(available []model.Voucher) ([]int64, int) {
		candidates := make([]combiner.Candidate, len(available))
		for i, v := range available {
			candidates[i] = combiner.Candidate{ID: v.ID, Amount: v.Amount}
		}
		return combiner.Best(candidates, target)
	})
	if errors.Is(err, repository.ErrNoCandidates) {
		return nil, ErrNoInventory
	}
	if err != nil {
		return nil, fmt.Errorf("allocation failed: %w", err)
	}
	if len(chosen) == 0 {
		return nil, ErrNoFeasibleCombination
	}

	log.Printf("[AllocationService] Requester %s claimed %d voucher(s), total=%d target=%d",
		requester, len(chosen), sum, target)

	return &model.Allocation{Vouchers: chosen, Total: sum, Target: target}, nil
}

// MarkUsed transitions every pending voucher of the requester to used and
// returns the count. Calling it again with nothing pending returns 0.
func (s *AllocationService) MarkUsed(ctx context.Context, requester string) (int64, error) {
	count, err := s.repo.MarkUsed(ctx, requester)
	if err != nil {
		return 0, fmt.Errorf("failed to mark vouchers used: %w", err)
	}
	return count, nil
}
