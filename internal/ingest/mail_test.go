package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"voucherhub-api/internal/model"
	"voucherhub-api/internal/source"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMailProvider serves canned items and records which were consumed.
type fakeMailProvider struct {
	items    []source.MailItem
	consumed map[uint32]bool
	listErr  error
}

func newFakeMailProvider(items ...source.MailItem) *fakeMailProvider {
	return &fakeMailProvider{items: items, consumed: make(map[uint32]bool)}
}

func (p *fakeMailProvider) ListUnreadMatching(context.Context, string) ([]source.MailItem, error) {
	if p.listErr != nil {
		return nil, p.listErr
	}
	var unread []source.MailItem
	for _, item := range p.items {
		if !p.consumed[item.UID] {
			unread = append(unread, item)
		}
	}
	return unread, nil
}

func (p *fakeMailProvider) MarkConsumed(_ context.Context, item source.MailItem) error {
	p.consumed[item.UID] = true
	return nil
}

func (p *fakeMailProvider) Close() error { return nil }

// failingRepo rejects every insert.
type failingRepo struct {
	nullVoucherRepo
}

func (failingRepo) InsertIfNew(context.Context, model.VoucherInput) (int64, bool, error) {
	return 0, false, errors.New("disk full")
}

func voucherMail(uid uint32, subject, body string) source.MailItem {
	return source.MailItem{UID: uid, Subject: subject, Body: body}
}

func TestSweepStoresParsedVouchers(t *testing.T) {
	provider := newFakeMailProvider(
		voucherMail(1, "שובר על סך ₪200.00 - שופרסל - מרכז", "הינה:\n91098085941400300563\n"),
	)
	repo := newMemRepo()
	sweeper := NewMailSweeper(provider, repo, MailSweeperConfig{BarcodeDir: t.TempDir()})

	report, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SweepReport{Stored: 1}, report)
	require.Len(t, repo.inserted, 1)
	assert.Equal(t, "91098085941400300563", repo.inserted[0].Code)
	assert.Equal(t, 200, repo.inserted[0].Amount)
	assert.Equal(t, "שופרסל", repo.inserted[0].Store)
	assert.Equal(t, "mail", repo.inserted[0].SourceTag)
	assert.True(t, provider.consumed[1])
}

func TestSweepConsumesUnparseableMail(t *testing.T) {
	provider := newFakeMailProvider(
		voucherMail(1, "שובר בלי סכום", "no code here"),
	)
	repo := newMemRepo()
	sweeper := NewMailSweeper(provider, repo, MailSweeperConfig{BarcodeDir: t.TempDir()})

	report, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SweepReport{ParseFailures: 1}, report)
	assert.Empty(t, repo.inserted)
	// Consumed anyway so the next sweep does not refetch it forever.
	assert.True(t, provider.consumed[1])
}

func TestSweepLeavesItemUnreadOnStoreError(t *testing.T) {
	provider := newFakeMailProvider(
		voucherMail(1, "שובר על סך ₪100.00 - שופרסל", "123456789012345678\n"),
	)
	sweeper := NewMailSweeper(provider, failingRepo{}, MailSweeperConfig{BarcodeDir: t.TempDir()})

	report, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SweepReport{Errors: 1}, report)
	// Left unread so the next sweep retries it.
	assert.False(t, provider.consumed[1])
}

func TestSweepCountsDuplicates(t *testing.T) {
	provider := newFakeMailProvider(
		voucherMail(1, "שובר על סך ₪100.00 - שופרסל", "123456789012345678\n"),
		voucherMail(2, "Fw: שובר על סך ₪100.00 - שופרסל", "123456789012345678\n"),
	)
	repo := newMemRepo()
	sweeper := NewMailSweeper(provider, repo, MailSweeperConfig{BarcodeDir: t.TempDir()})

	report, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SweepReport{Stored: 1, Duplicates: 1}, report)
	assert.True(t, provider.consumed[1])
	assert.True(t, provider.consumed[2])
}

func TestSweepSavesBarcodeAttachment(t *testing.T) {
	item := voucherMail(1, "שובר על סך ₪100.00 - שופרסל", "123456789012345678\n")
	item.Attachments = []source.Attachment{
		{Filename: "logo.png", Data: []byte("not a barcode")},
		{Filename: "img001.gif", Data: []byte("GIF89a-barcode")},
	}
	provider := newFakeMailProvider(item)
	repo := newMemRepo()
	dir := t.TempDir()
	sweeper := NewMailSweeper(provider, repo, MailSweeperConfig{BarcodeDir: dir})

	report, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Stored: 1}, report)

	wantPath := filepath.Join(dir, "123456789012345678.gif")
	require.Len(t, repo.inserted, 1)
	assert.Equal(t, wantPath, repo.inserted[0].BarcodeImagePath)

	data, err := os.ReadFile(wantPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("GIF89a-barcode"), data)
}

func TestSweepPropagatesListError(t *testing.T) {
	provider := newFakeMailProvider()
	provider.listErr = errors.New("connection reset")
	sweeper := NewMailSweeper(provider, newMemRepo(), MailSweeperConfig{BarcodeDir: t.TempDir()})

	_, err := sweeper.Sweep(context.Background())
	assert.Error(t, err)
}

func TestSweeperStartStop(t *testing.T) {
	sweeper := NewMailSweeper(newFakeMailProvider(), newMemRepo(), MailSweeperConfig{})
	sweeper.Start()
	sweeper.Stop()
	// Stop is idempotent.
	sweeper.Stop()
}
