package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"voucherhub-api/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *SQLiteVoucherRepository {
	t.Helper()
	repo, err := NewSQLiteVoucherRepository(filepath.Join(t.TempDir(), "vouchers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func mustInsert(t *testing.T, repo *SQLiteVoucherRepository, code string, amount int, store string) int64 {
	t.Helper()
	id, inserted, err := repo.InsertIfNew(context.Background(), model.VoucherInput{
		Code:   code,
		Amount: amount,
		Store:  store,
	})
	require.NoError(t, err)
	require.True(t, inserted)
	return id
}

// chooseAll claims every candidate.
func chooseAll(available []model.Voucher) ([]int64, int) {
	var ids []int64
	sum := 0
	for _, v := range available {
		ids = append(ids, v.ID)
		sum += v.Amount
	}
	return ids, sum
}

func TestInsertIfNewDeduplicatesByCode(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id1, inserted, err := repo.InsertIfNew(ctx, model.VoucherInput{Code: "111222333444555", Amount: 100, Store: "shufersal"})
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same code, different amount: must be a no-op reporting the original row.
	id2, inserted, err := repo.InsertIfNew(ctx, model.VoucherInput{Code: "111222333444555", Amount: 250, Store: "rami levy"})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, id1, id2)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 100, all[0].Amount)
	assert.Equal(t, "shufersal", all[0].Store)
}

func TestInsertIfNewRejectsInvalidInput(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, _, err := repo.InsertIfNew(ctx, model.VoucherInput{Code: "", Amount: 100})
	assert.Error(t, err)

	_, _, err = repo.InsertIfNew(ctx, model.VoucherInput{Code: "999888777666555", Amount: 0})
	assert.Error(t, err)

	_, _, err = repo.InsertIfNew(ctx, model.VoucherInput{Code: "999888777666555", Amount: -50})
	assert.Error(t, err)
}

func TestInsertIfNewConcurrentSameCode(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	const workers = 20
	var insertedCount int64
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, inserted, err := repo.InsertIfNew(ctx, model.VoucherInput{
				Code:   "123456789012345",
				Amount: 100,
				Store:  "shufersal",
			})
			if err == nil && inserted {
				atomic.AddInt64(&insertedCount, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), insertedCount, "exactly one insert should win")

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestListAvailableOrderingAndFilter(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	mustInsert(t, repo, "100000000000001", 50, "shufersal deal")
	mustInsert(t, repo, "100000000000002", 200, "shufersal deal")
	mustInsert(t, repo, "100000000000003", 200, "shufersal deal")
	mustInsert(t, repo, "100000000000004", 100, "rami levy")

	got, err := repo.ListAvailable(ctx, "shufersal")
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Amount descending, insertion order breaking ties.
	assert.Equal(t, "100000000000002", got[0].Code)
	assert.Equal(t, "100000000000003", got[1].Code)
	assert.Equal(t, "100000000000001", got[2].Code)

	// Claimed vouchers drop out of the available view.
	_, _, err = repo.Allocate(ctx, "alice", "rami", chooseAll)
	require.NoError(t, err)
	got, err = repo.ListAvailable(ctx, "")
	require.NoError(t, err)
	assert.Len(t, got, 3)
	for _, v := range got {
		assert.Equal(t, model.StatusAvailable, v.Status)
	}
}

func TestAllocateMarksChosenPending(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id1 := mustInsert(t, repo, "200000000000001", 150, "shufersal")
	mustInsert(t, repo, "200000000000002", 80, "shufersal")

	chosen, sum, err := repo.Allocate(ctx, "alice", "shufersal", func(available []model.Voucher) ([]int64, int) {
		return []int64{id1}, 150
	})
	require.NoError(t, err)
	require.Len(t, chosen, 1)
	assert.Equal(t, 150, sum)
	assert.Equal(t, model.StatusPending, chosen[0].Status)
	assert.Equal(t, "alice", chosen[0].AssignedTo)

	pending, err := repo.ListPendingFor(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []int64{id1}, pending)
}

func TestAllocateNoCandidates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	mustInsert(t, repo, "300000000000001", 100, "shufersal")

	_, _, err := repo.Allocate(ctx, "alice", "victory", chooseAll)
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestAllocateChooseNothing(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	mustInsert(t, repo, "400000000000001", 100, "shufersal")

	chosen, sum, err := repo.Allocate(ctx, "alice", "shufersal", func([]model.Voucher) ([]int64, int) {
		return nil, 0
	})
	require.NoError(t, err)
	assert.Nil(t, chosen)
	assert.Zero(t, sum)

	// Nothing was claimed.
	available, err := repo.ListAvailable(ctx, "shufersal")
	require.NoError(t, err)
	assert.Len(t, available, 1)
}

func TestAllocateConcurrentClaimsAreDisjoint(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	const vouchers = 10
	for i := 0; i < vouchers; i++ {
		mustInsert(t, repo, fmt.Sprintf("5000000000000%02d", i), 100, "shufersal")
	}

	const requesters = 25
	var wg sync.WaitGroup
	claimed := make(chan int64, vouchers*2)

	for i := 0; i < requesters; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			// Each requester tries to grab one voucher.
			chosen, _, err := repo.Allocate(ctx, fmt.Sprintf("requester-%d", n), "shufersal",
				func(available []model.Voucher) ([]int64, int) {
					return []int64{available[0].ID}, available[0].Amount
				})
			if err != nil {
				return
			}
			for _, v := range chosen {
				claimed <- v.ID
			}
		}(i)
	}
	wg.Wait()
	close(claimed)

	seen := make(map[int64]bool)
	for id := range claimed {
		assert.False(t, seen[id], "voucher %d claimed twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, vouchers, "all vouchers should be claimed exactly once")
}

func TestMarkUsedIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	mustInsert(t, repo, "600000000000001", 100, "shufersal")
	mustInsert(t, repo, "600000000000002", 50, "shufersal")

	_, _, err := repo.Allocate(ctx, "alice", "shufersal", chooseAll)
	require.NoError(t, err)

	count, err := repo.MarkUsed(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = repo.MarkUsed(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, count)

	// Used vouchers keep their assignment and never return to the pool.
	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	for _, v := range all {
		assert.Equal(t, model.StatusUsed, v.Status)
		assert.Equal(t, "alice", v.AssignedTo)
	}
}

func TestMarkUsedOnlyTouchesOwnVouchers(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	idA := mustInsert(t, repo, "700000000000001", 100, "shufersal")
	idB := mustInsert(t, repo, "700000000000002", 100, "rami levy")

	_, _, err := repo.Allocate(ctx, "alice", "shufersal", func([]model.Voucher) ([]int64, int) { return []int64{idA}, 100 })
	require.NoError(t, err)
	_, _, err = repo.Allocate(ctx, "bob", "rami", func([]model.Voucher) ([]int64, int) { return []int64{idB}, 100 })
	require.NoError(t, err)

	count, err := repo.MarkUsed(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	pending, err := repo.ListPendingFor(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []int64{idB}, pending)
}

func TestGroupedByStoreAndSummary(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	mustInsert(t, repo, "800000000000001", 100, "shufersal")
	mustInsert(t, repo, "800000000000002", 100, "shufersal")
	mustInsert(t, repo, "800000000000003", 50, "rami levy")

	groups, err := repo.GroupedByStore(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, model.GroupRow{Store: "rami levy", Amount: 50, Status: model.StatusAvailable, Count: 1}, groups[0])
	assert.Equal(t, model.GroupRow{Store: "shufersal", Amount: 100, Status: model.StatusAvailable, Count: 2}, groups[1])

	summary, err := repo.StatusSummary(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 2)
	// Amount descending.
	assert.Equal(t, 100, summary[0].Amount)
	assert.Equal(t, 2, summary[0].Count)
	assert.Equal(t, 50, summary[1].Amount)
}

func TestListDistinctStores(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	mustInsert(t, repo, "900000000000001", 100, "shufersal")
	mustInsert(t, repo, "900000000000002", 100, "shufersal")
	id := mustInsert(t, repo, "900000000000003", 100, "rami levy")

	stores, err := repo.ListDistinctStores(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"rami levy", "shufersal"}, stores)

	// A store with no available inventory left drops off the menu.
	_, _, err = repo.Allocate(ctx, "alice", "rami", func([]model.Voucher) ([]int64, int) { return []int64{id}, 100 })
	require.NoError(t, err)

	stores, err = repo.ListDistinctStores(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"shufersal"}, stores)
}

func TestStats(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	mustInsert(t, repo, "110000000000001", 100, "shufersal")

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats["total_vouchers"])

	byStatus, ok := stats["by_status"].(map[string]int64)
	require.True(t, ok)
	assert.Equal(t, int64(1), byStatus["available"])
}
