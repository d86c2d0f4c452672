package combiner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBest_ExactMatch(t *testing.T) {
	candidates := []Candidate{{1, 100}, {2, 150}, {3, 80}}

	ids, sum := Best(candidates, 230)

	assert.Equal(t, 230, sum)
	assert.Equal(t, []int64{2, 3}, ids)
}

func TestBest_NothingFits(t *testing.T) {
	candidates := []Candidate{{1, 100}, {2, 150}}

	ids, sum := Best(candidates, 50)

	assert.Equal(t, 0, sum)
	assert.Empty(t, ids)
}

func TestBest_EmptyInput(t *testing.T) {
	ids, sum := Best(nil, 200)

	assert.Equal(t, 0, sum)
	assert.Empty(t, ids)
}

func TestBest_ZeroTarget(t *testing.T) {
	ids, sum := Best([]Candidate{{1, 100}}, 0)

	assert.Equal(t, 0, sum)
	assert.Empty(t, ids)
}

func TestBest_BestUnderTarget(t *testing.T) {
	candidates := []Candidate{{1, 100}, {2, 150}, {3, 80}}

	ids, sum := Best(candidates, 200)

	// 100+80=180 is the closest reachable sum under 200.
	assert.Equal(t, 180, sum)
	assert.Equal(t, []int64{1, 3}, ids)
}

func TestBest_FirstSubsetWinsTie(t *testing.T) {
	// Both {1} and {2,3} sum to 100; the single voucher is considered first
	// and keeps the sum.
	ids, sum := Best([]Candidate{{1, 100}, {2, 60}, {3, 40}}, 100)
	assert.Equal(t, 100, sum)
	assert.Equal(t, []int64{1}, ids)

	// Reordered input reaches 100 through {2,3} first. Same sum, different
	// subset: the chosen set depends on input order, the achieved sum does
	// not.
	ids, sum = Best([]Candidate{{2, 60}, {3, 40}, {1, 100}}, 100)
	assert.Equal(t, 100, sum)
	assert.Equal(t, []int64{2, 3}, ids)
}

func TestBest_NotMinimumCardinality(t *testing.T) {
	// {2,3,4} reaches 90 before the later single voucher {1} can; the result
	// is intentionally not the smallest subset.
	candidates := []Candidate{{2, 30}, {3, 30}, {4, 30}, {1, 90}}

	ids, sum := Best(candidates, 90)

	assert.Equal(t, 90, sum)
	assert.Equal(t, []int64{2, 3, 4}, ids)
}

func TestBest_Deterministic(t *testing.T) {
	candidates := []Candidate{{1, 70}, {2, 55}, {3, 120}, {4, 35}, {5, 90}}

	firstIDs, firstSum := Best(candidates, 250)
	for i := 0; i < 50; i++ {
		ids, sum := Best(candidates, 250)
		assert.Equal(t, firstSum, sum)
		assert.Equal(t, firstIDs, ids)
	}
}

func TestBest_SingleVoucherEqualsTarget(t *testing.T) {
	ids, sum := Best([]Candidate{{7, 200}}, 200)

	assert.Equal(t, 200, sum)
	assert.Equal(t, []int64{7}, ids)
}
