// Package combiner selects the voucher subset whose total comes closest to a
// requested amount without exceeding it (bounded subset-sum).
package combiner

// Candidate is one voucher considered by Best.
type Candidate struct {
	ID     int64
	Amount int
}

// Best finds a subset of candidates summing as close to target as possible
// without exceeding it. Candidates are processed in the given order and are
// NOT re-sorted here; the caller controls the order and with it which subset
// wins a tie on the achieved sum (first subset to reach a sum keeps it).
//
// Returns the chosen IDs and their total. If nothing fits under target the
// result is (empty, 0). Complexity is O(n * distinct achievable sums), with
// distinct sums bounded by target+1.
func Best(candidates []Candidate, target int) ([]int64, int) {
	// subsets maps an achievable sum to the first subset that reached it.
	// order records sums in discovery order so the sweep is deterministic.
	subsets := map[int][]int64{0: {}}
	order := []int{0}

	for _, c := range candidates {
		// Only sums recorded before this candidate are extended.
		known := len(order)
		for i := 0; i < known; i++ {
			sum := order[i]
			next := sum + c.Amount
			if next > target {
				continue
			}
			if _, seen := subsets[next]; seen {
				continue
			}
			prev := subsets[sum]
			ids := make([]int64, len(prev)+1)
			copy(ids, prev)
			ids[len(prev)] = c.ID
			subsets[next] = ids
			order = append(order, next)
		}
	}

	best := 0
	for sum := range subsets {
		if sum > best {
			best = sum
		}
	}
	return subsets[best], best
}
