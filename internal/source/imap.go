package source

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
)

// IMAPConfig holds connection settings for the IMAP mail provider.
type IMAPConfig struct {
	Addr     string // host:port, TLS
	Username string
	Password string
	Mailbox  string // defaults to INBOX
}

// IMAPProvider implements MailProvider against an IMAP mailbox. A connection
// is dialed lazily on first use and reused until Close; consuming an item
// adds the \Seen flag so the next sweep's unseen search skips it.
type IMAPProvider struct {
	cfg IMAPConfig
	c   *client.Client
}

// NewIMAPProvider creates a new IMAP mail provider.
func NewIMAPProvider(cfg IMAPConfig) *IMAPProvider {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	return &IMAPProvider{cfg: cfg}
}

func (p *IMAPProvider) connect() error {
	if p.c != nil {
		return nil
	}

	c, err := client.DialTLS(p.cfg.Addr, nil)
	if err != nil {
		return fmt.Errorf("failed to dial IMAP server: %w", err)
	}
	if err := c.Login(p.cfg.Username, p.cfg.Password); err != nil {
		c.Logout()
		return fmt.Errorf("IMAP login failed: %w", err)
	}
	if _, err := c.Select(p.cfg.Mailbox, false); err != nil {
		c.Logout()
		return fmt.Errorf("failed to select %s: %w", p.cfg.Mailbox, err)
	}

	p.c = c
	return nil
}

// ListUnreadMatching returns unseen messages whose subject contains keyword.
func (p *IMAPProvider) ListUnreadMatching(ctx context.Context, keyword string) ([]MailItem, error) {
	if err := p.connect(); err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := p.c.UidSearch(criteria)
	if err != nil {
		p.reset()
		return nil, fmt.Errorf("unseen search failed: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	// Peek so fetching the body does not set \Seen; only MarkConsumed does.
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- p.c.UidFetch(seqset, items, messages)
	}()

	keywordLower := strings.ToLower(keyword)
	var result []MailItem
	for msg := range messages {
		if msg.Envelope == nil {
			continue
		}
		subject := msg.Envelope.Subject
		if keywordLower != "" && !strings.Contains(strings.ToLower(subject), keywordLower) {
			continue
		}

		body, attachments := readMessageParts(msg.GetBody(section))
		result = append(result, MailItem{
			UID:         msg.Uid,
			Subject:     subject,
			Body:        body,
			Attachments: attachments,
		})
	}

	if err := <-done; err != nil {
		p.reset()
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	return result, nil
}

// readMessageParts walks the MIME structure collecting inline text and
// attachments. Malformed parts are skipped, not fatal.
func readMessageParts(r io.Reader) (string, []Attachment) {
	if r == nil {
		return "", nil
	}

	mr, err := mail.CreateReader(r)
	if err != nil {
		log.Printf("[IMAPProvider] Could not parse message body: %v", err)
		return "", nil
	}

	var body strings.Builder
	var attachments []Attachment
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("[IMAPProvider] Skipping unreadable part: %v", err)
			break
		}

		switch header := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := header.ContentType()
			if contentType == "text/plain" || contentType == "text/html" {
				data, err := io.ReadAll(part.Body)
				if err == nil {
					body.Write(data)
					body.WriteString("\n")
				}
			}
		case *mail.AttachmentHeader:
			filename, _ := header.Filename()
			data, err := io.ReadAll(part.Body)
			if err != nil {
				log.Printf("[IMAPProvider] Could not read attachment %s: %v", filename, err)
				continue
			}
			attachments = append(attachments, Attachment{Filename: filename, Data: data})
		}
	}
	return body.String(), attachments
}

// MarkConsumed adds the \Seen flag to the item's message.
func (p *IMAPProvider) MarkConsumed(ctx context.Context, item MailItem) error {
	if err := p.connect(); err != nil {
		return err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(item.UID)
	flagsItem := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := p.c.UidStore(seqset, flagsItem, []interface{}{imap.SeenFlag}, nil); err != nil {
		p.reset()
		return fmt.Errorf("failed to mark message %d seen: %w", item.UID, err)
	}
	return nil
}

// Close logs out of the mailbox.
func (p *IMAPProvider) Close() error {
	if p.c == nil {
		return nil
	}
	err := p.c.Logout()
	p.c = nil
	return err
}

// reset drops a connection that returned a protocol error so the next call
// dials fresh.
func (p *IMAPProvider) reset() {
	if p.c != nil {
		p.c.Logout()
		p.c = nil
	}
}

var _ MailProvider = (*IMAPProvider)(nil)
