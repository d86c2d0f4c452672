package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"voucherhub-api/internal/model"
	"voucherhub-api/internal/repository"
)

// DefaultMaxAmount is the sanity cap on requested amounts.
const DefaultMaxAmount = 10_000

// HelpText lists the commands the negotiator understands.
const HelpText = "🛒 Voucher commands\n\n" +
	"?  — show this help\n" +
	"inv  — list all vouchers\n" +
	"grp inv  — inventory grouped by store\n" +
	"status  — summary count by amount\n" +
	"used  — mark your pending voucher(s) as used\n" +
	"cancel  — cancel current store selection\n" +
	"<amount>  — e.g. 200, 350 — find best combo, then choose a store from the menu\n" +
	"📎 Upload an Excel file (.xlsx) to bulk-import vouchers\n"

var digitsRe = regexp.MustCompile(`^\d+$`)

// Negotiator drives the per-requester two-step "amount → store → claim"
// protocol. The only state it keeps is the pending target amount of each
// requester who has chosen an amount but not yet a store. Sessions live in
// process memory only: they do not survive a restart and never expire.
type Negotiator struct {
	repo      repository.VoucherRepository
	alloc     *AllocationService
	maxAmount int

	mu      sync.Mutex
	pending map[string]int
}

// NewNegotiator creates a new negotiator.
func NewNegotiator(repo repository.VoucherRepository, alloc *AllocationService, maxAmount int) *Negotiator {
	if maxAmount <= 0 {
		maxAmount = DefaultMaxAmount
	}
	return &Negotiator{
		repo:      repo,
		alloc:     alloc,
		maxAmount: maxAmount,
		pending:   make(map[string]int),
	}
}

// Handle processes one chat message from a requester and returns the reply.
func (n *Negotiator) Handle(ctx context.Context, requesterID, text string) (*model.Reply, error) {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)

	switch {
	case lower == "?":
		return textReply(HelpText), nil

	case lower == "inv":
		return n.renderInventory(ctx)

	case lower == "grp inv":
		return n.renderGrouped(ctx)

	case lower == "status":
		return n.renderSummary(ctx)

	case lower == "cancel":
		if n.clearSession(requesterID) {
			return textReply("Cancelled. Send an amount when you're ready."), nil
		}
		return textReply("Nothing to cancel."), nil

	case lower == "used":
		n.clearSession(requesterID)
		count, err := n.alloc.MarkUsed(ctx, requesterID)
		if err != nil {
			return nil, err
		}
		if count == 0 {
			return textReply("No pending vouchers found for you."), nil
		}
		return textReply(fmt.Sprintf("Marked %d voucher(s) as used ✓", count)), nil

	case digitsRe.MatchString(text):
		value, err := strconv.Atoi(text)
		if err != nil {
			// Absurdly long digit strings overflow int; treat like any
			// other unrecognized input.
			break
		}
		if target, awaiting := n.session(requesterID); awaiting {
			return n.handleStoreChoice(ctx, requesterID, value, target)
		}
		return n.handleAmount(ctx, requesterID, value)
	}

	n.clearSession(requesterID)
	return textReply("I didn't understand that.\n\n" + HelpText), nil
}

// handleAmount starts a new negotiation: validate the amount, present the
// store menu and remember the target until a store is chosen.
func (n *Negotiator) handleAmount(ctx context.Context, requesterID string, amount int) (*model.Reply, error) {
	if amount < 1 || amount > n.maxAmount {
		return textReply(fmt.Sprintf("Please enter an amount between 1 and %d ₪.", n.maxAmount)), nil
	}

	stores, err := n.repo.ListDistinctStores(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query stores: %w", err)
	}
	if len(stores) == 0 {
		return textReply("No available vouchers in the database."), nil
	}

	n.mu.Lock()
	n.pending[requesterID] = amount
	n.mu.Unlock()

	return textReply(storeMenu(amount, stores)), nil
}

// handleStoreChoice resolves a numeric reply while a target is pending. The
// store list is re-queried because inventory may have changed since the menu
// was presented. A number outside the menu range is reinterpreted as a new
// target amount, so a requester can simply type a different amount without
// cancelling first.
func (n *Negotiator) handleStoreChoice(ctx context.Context, requesterID string, choice, target int) (*model.Reply, error) {
	stores, err := n.repo.ListDistinctStores(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query stores: %w", err)
	}

	if choice < 1 || choice > len(stores) {
		n.clearSession(requesterID)
		return n.handleAmount(ctx, requesterID, choice)
	}

	n.clearSession(requesterID)
	store := stores[choice-1]

	allocation, err := n.alloc.Allocate(ctx, requesterID, target, store)
	switch {
	case errors.Is(err, ErrNoInventory):
		return textReply("No available vouchers for that store."), nil
	case errors.Is(err, ErrNoFeasibleCombination):
		return textReply(fmt.Sprintf("Could not build any combination ≤ %d ₪.", target)), nil
	case err != nil:
		log.Printf("[Negotiator] Allocation for %s failed: %v", requesterID, err)
		return textReply("Something went wrong while claiming vouchers — please try again."), nil
	}

	return claimReply(allocation), nil
}

func claimReply(a *model.Allocation) *model.Reply {
	note := fmt.Sprintf("(Best possible: %d ₪ — %d ₪ short of %d ₪)", a.Total, a.Target-a.Total, a.Target)
	if a.ExactMatch() {
		note = "✓ Exact match!"
	}

	lines := []string{fmt.Sprintf("Here are your voucher(s) — %d ₪ total:\n%s\n", a.Total, note)}
	for _, v := range a.Vouchers {
		lines = append(lines, fmt.Sprintf("• %s — %d ₪ | %s", v.Code, v.Amount, storeLabel(v.Store)))
	}
	lines = append(lines, "\nSend 'used' when done.")

	reply := textReply(strings.Join(lines, "\n"))
	for _, v := range a.Vouchers {
		if v.BarcodeImagePath != "" {
			reply.Images = append(reply.Images, model.ReplyImage{
				Caption: fmt.Sprintf("%s — %d ₪", v.Code, v.Amount),
				Path:    v.BarcodeImagePath,
			})
		}
	}
	return reply
}

func storeMenu(amount int, stores []string) string {
	lines := []string{fmt.Sprintf("For %d ₪, choose a store:\n", amount)}
	for i, store := range stores {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, store))
	}
	lines = append(lines, "\nReply with the store number.")
	return strings.Join(lines, "\n")
}

func (n *Negotiator) renderInventory(ctx context.Context) (*model.Reply, error) {
	vouchers, err := n.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list vouchers: %w", err)
	}
	if len(vouchers) == 0 {
		return textReply("No vouchers in the database."), nil
	}

	lines := []string{"Full Inventory\n"}
	for _, v := range vouchers {
		lines = append(lines, fmt.Sprintf("%s %s — %d ₪ | %s | %s",
			statusMarker(v.Status), v.Code, v.Amount, storeLabel(v.Store), v.Status))
	}
	return textReply(strings.Join(lines, "\n")), nil
}

func (n *Negotiator) renderGrouped(ctx context.Context) (*model.Reply, error) {
	groups, err := n.repo.GroupedByStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to group vouchers: %w", err)
	}
	if len(groups) == 0 {
		return textReply("No vouchers in the database."), nil
	}

	lines := []string{"Inventory by Store\n"}
	lastStore := "\x00"
	for _, g := range groups {
		store := storeLabel(g.Store)
		if store != lastStore {
			lines = append(lines, fmt.Sprintf("🏪 %s", store))
			lastStore = store
		}
		lines = append(lines, fmt.Sprintf("   %d ₪ — %d %s", g.Amount, g.Count, g.Status))
	}
	return textReply(strings.Join(lines, "\n")), nil
}

func (n *Negotiator) renderSummary(ctx context.Context) (*model.Reply, error) {
	summary, err := n.repo.StatusSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize vouchers: %w", err)
	}
	if len(summary) == 0 {
		return textReply("No vouchers in the database."), nil
	}

	lines := []string{"Status Summary\n"}
	for _, s := range summary {
		lines = append(lines, fmt.Sprintf("%d ₪: %d %s", s.Amount, s.Count, s.Status))
	}
	return textReply(strings.Join(lines, "\n")), nil
}

// session returns the pending target for a requester, if any.
func (n *Negotiator) session(requesterID string) (int, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	target, ok := n.pending[requesterID]
	return target, ok
}

// clearSession discards the requester's pending target and reports whether
// one existed.
func (n *Negotiator) clearSession(requesterID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.pending[requesterID]
	delete(n.pending, requesterID)
	return ok
}

func textReply(msg string) *model.Reply {
	return &model.Reply{Messages: []string{msg}}
}

func statusMarker(s model.VoucherStatus) string {
	switch s {
	case model.StatusAvailable:
		return "🟢"
	case model.StatusPending:
		return "🟡"
	case model.StatusUsed:
		return "🔴"
	}
	return "⚪"
}

func storeLabel(store string) string {
	if store == "" {
		return "Unknown"
	}
	return store
}
