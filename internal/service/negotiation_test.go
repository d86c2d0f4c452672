package service

import (
	"context"
	"strings"
	"testing"

	"voucherhub-api/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNegotiator(repo *fakeRepo) *Negotiator {
	return NewNegotiator(repo, NewAllocationService(repo), DefaultMaxAmount)
}

func handle(t *testing.T, n *Negotiator, requester, text string) string {
	t.Helper()
	reply, err := n.Handle(context.Background(), requester, text)
	require.NoError(t, err)
	require.NotEmpty(t, reply.Messages)
	return strings.Join(reply.Messages, "\n")
}

func TestHandleHelp(t *testing.T) {
	n := newTestNegotiator(newFakeRepo())

	msg := handle(t, n, "alice", "?")
	assert.Equal(t, HelpText, msg)
}

func TestHandleUnrecognized(t *testing.T) {
	n := newTestNegotiator(newFakeRepo())

	msg := handle(t, n, "alice", "hello there")
	assert.Contains(t, msg, "I didn't understand that.")
	assert.Contains(t, msg, "Voucher commands")
}

func TestHandleAmountOutOfBounds(t *testing.T) {
	n := newTestNegotiator(newFakeRepo(model.Voucher{Code: "c1", Amount: 100, Store: "shufersal"}))

	msg := handle(t, n, "alice", "0")
	assert.Contains(t, msg, "between 1 and 10000")

	msg = handle(t, n, "alice", "10001")
	assert.Contains(t, msg, "between 1 and 10000")
}

func TestHandleAmountWithEmptyInventory(t *testing.T) {
	n := newTestNegotiator(newFakeRepo())

	msg := handle(t, n, "alice", "200")
	assert.Equal(t, "No available vouchers in the database.", msg)
}

func TestHandleAmountPresentsStoreMenu(t *testing.T) {
	n := newTestNegotiator(newFakeRepo(
		model.Voucher{Code: "c1", Amount: 100, Store: "rami levy"},
		model.Voucher{Code: "c2", Amount: 100, Store: "shufersal"},
	))

	msg := handle(t, n, "alice", "200")
	assert.Contains(t, msg, "For 200 ₪, choose a store:")
	assert.Contains(t, msg, "1. rami levy")
	assert.Contains(t, msg, "2. shufersal")
	assert.Contains(t, msg, "Reply with the store number.")
}

func TestTwoStepClaimFlow(t *testing.T) {
	repo := newFakeRepo(
		model.Voucher{Code: "111000000000001", Amount: 150, Store: "shufersal"},
		model.Voucher{Code: "111000000000002", Amount: 80, Store: "shufersal"},
	)
	n := newTestNegotiator(repo)

	handle(t, n, "alice", "230")
	msg := handle(t, n, "alice", "1")

	assert.Contains(t, msg, "230 ₪ total")
	assert.Contains(t, msg, "✓ Exact match!")
	assert.Contains(t, msg, "111000000000001")
	assert.Contains(t, msg, "111000000000002")
	assert.Contains(t, msg, "Send 'used' when done.")

	// The claim stuck: both vouchers are pending for alice.
	pending, err := repo.ListPendingFor(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	// And the session is gone: the next number starts a fresh negotiation.
	msg = handle(t, n, "alice", "50")
	assert.Contains(t, msg, "No available vouchers in the database.")
}

func TestClaimReplyReportsShortfall(t *testing.T) {
	n := newTestNegotiator(newFakeRepo(
		model.Voucher{Code: "222000000000001", Amount: 120, Store: "shufersal"},
	))

	handle(t, n, "alice", "150")
	msg := handle(t, n, "alice", "1")

	assert.Contains(t, msg, "120 ₪ total")
	assert.Contains(t, msg, "(Best possible: 120 ₪ — 30 ₪ short of 150 ₪)")
}

func TestStoreChoiceInfeasible(t *testing.T) {
	n := newTestNegotiator(newFakeRepo(
		model.Voucher{Code: "c1", Amount: 300, Store: "shufersal"},
	))

	handle(t, n, "alice", "200")
	msg := handle(t, n, "alice", "1")
	assert.Contains(t, msg, "Could not build any combination ≤ 200 ₪.")
}

func TestStoreChoiceOutOfRangeBecomesNewAmount(t *testing.T) {
	n := newTestNegotiator(newFakeRepo(
		model.Voucher{Code: "c1", Amount: 100, Store: "shufersal"},
	))

	handle(t, n, "alice", "200")

	// Only one store on the menu, so "300" cannot be a choice; it is taken
	// as a new target amount and a fresh menu is shown.
	msg := handle(t, n, "alice", "300")
	assert.Contains(t, msg, "For 300 ₪, choose a store:")

	// Bounds still apply to the reinterpreted amount.
	handle(t, n, "alice", "cancel")
	handle(t, n, "alice", "200")
	msg = handle(t, n, "alice", "99999")
	assert.Contains(t, msg, "between 1 and 10000")
}

func TestCancel(t *testing.T) {
	n := newTestNegotiator(newFakeRepo(
		model.Voucher{Code: "c1", Amount: 100, Store: "shufersal"},
	))

	msg := handle(t, n, "alice", "cancel")
	assert.Equal(t, "Nothing to cancel.", msg)

	handle(t, n, "alice", "200")
	msg = handle(t, n, "alice", "cancel")
	assert.Equal(t, "Cancelled. Send an amount when you're ready.", msg)

	// After cancelling, "1" is an amount again, not a store choice.
	msg = handle(t, n, "alice", "1")
	assert.Contains(t, msg, "For 1 ₪, choose a store:")
}

func TestUsed(t *testing.T) {
	repo := newFakeRepo(
		model.Voucher{Code: "c1", Amount: 100, Store: "shufersal"},
	)
	n := newTestNegotiator(repo)

	msg := handle(t, n, "alice", "used")
	assert.Equal(t, "No pending vouchers found for you.", msg)

	handle(t, n, "alice", "100")
	handle(t, n, "alice", "1")

	msg = handle(t, n, "alice", "used")
	assert.Equal(t, "Marked 1 voucher(s) as used ✓", msg)

	msg = handle(t, n, "alice", "used")
	assert.Equal(t, "No pending vouchers found for you.", msg)
}

func TestUnrecognizedClearsSession(t *testing.T) {
	n := newTestNegotiator(newFakeRepo(
		model.Voucher{Code: "c1", Amount: 100, Store: "shufersal"},
	))

	handle(t, n, "alice", "200")
	handle(t, n, "alice", "what?")

	// "1" starts over as an amount instead of resolving the stale menu.
	msg := handle(t, n, "alice", "1")
	assert.Contains(t, msg, "For 1 ₪, choose a store:")
}

func TestOverflowingDigitsTreatedAsUnrecognized(t *testing.T) {
	n := newTestNegotiator(newFakeRepo(
		model.Voucher{Code: "c1", Amount: 100, Store: "shufersal"},
	))

	msg := handle(t, n, "alice", strings.Repeat("9", 30))
	assert.Contains(t, msg, "I didn't understand that.")
}

func TestSessionsAreIndependent(t *testing.T) {
	repo := newFakeRepo(
		model.Voucher{Code: "333000000000001", Amount: 100, Store: "shufersal"},
		model.Voucher{Code: "333000000000002", Amount: 100, Store: "shufersal"},
	)
	n := newTestNegotiator(repo)

	handle(t, n, "alice", "100")
	handle(t, n, "bob", "100")

	handle(t, n, "alice", "1")
	handle(t, n, "bob", "1")

	aliceIDs, err := repo.ListPendingFor(context.Background(), "alice")
	require.NoError(t, err)
	bobIDs, err := repo.ListPendingFor(context.Background(), "bob")
	require.NoError(t, err)

	require.Len(t, aliceIDs, 1)
	require.Len(t, bobIDs, 1)
	assert.NotEqual(t, aliceIDs[0], bobIDs[0])
}

func TestInventoryViews(t *testing.T) {
	repo := newFakeRepo(
		model.Voucher{Code: "444000000000001", Amount: 100, Store: "shufersal"},
		model.Voucher{Code: "444000000000002", Amount: 50, Store: "rami levy"},
	)
	n := newTestNegotiator(repo)

	msg := handle(t, n, "alice", "inv")
	assert.Contains(t, msg, "Full Inventory")
	assert.Contains(t, msg, "444000000000001")
	assert.Contains(t, msg, "🟢")

	msg = handle(t, n, "alice", "grp inv")
	assert.Contains(t, msg, "Inventory by Store")
	assert.Contains(t, msg, "🏪 rami levy")
	assert.Contains(t, msg, "🏪 shufersal")

	msg = handle(t, n, "alice", "status")
	assert.Contains(t, msg, "Status Summary")
	assert.Contains(t, msg, "100 ₪: 1 available")
}

func TestInventoryViewsEmpty(t *testing.T) {
	n := newTestNegotiator(newFakeRepo())

	for _, cmd := range []string{"inv", "grp inv", "status"} {
		msg := handle(t, n, "alice", cmd)
		assert.Equal(t, "No vouchers in the database.", msg)
	}
}
