package channel

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"

	"leadpilot/models"
)

// IMAPConfig carries the mailbox credentials for reply ingestion.
type IMAPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	Encryption string // SSL, TLS, STARTTLS, or empty for plain
	Mailbox    string
}

// IMAPReplyFetcher pulls unseen messages from the outreach mailbox. Each
// connection is opened per fetch and closed after; the worker controls
// cadence.
type IMAPReplyFetcher struct {
	cfg    IMAPConfig
	logger *logrus.Entry
}

func NewIMAPReplyFetcher(cfg IMAPConfig, logger *logrus.Entry) *IMAPReplyFetcher {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	return &IMAPReplyFetcher{cfg: cfg, logger: logger}
}

func (f *IMAPReplyFetcher) Provider() string { return "imap" }

func (f *IMAPReplyFetcher) Channel() string { return models.ChannelEmail }

func (f *IMAPReplyFetcher) FetchUnread(ctx context.Context) ([]InboundReply, error) {
	imapClient, err := f.dial()
	if err != nil {
		return nil, fmt.Errorf("imap connect: %w", err)
	}
	defer imapClient.Logout()

	if err := imapClient.Login(f.cfg.Username, f.cfg.Password); err != nil {
		return nil, fmt.Errorf("imap login: %w", err)
	}

	if _, err := imapClient.Select(f.cfg.Mailbox, false); err != nil {
		return nil, fmt.Errorf("imap select %s: %w", f.cfg.Mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := imapClient.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- imapClient.Fetch(seqset,
			[]imap.FetchItem{imap.FetchEnvelope, imap.FetchItem("BODY.PEEK[]")}, messages)
	}()

	var replies []InboundReply
	for msg := range messages {
		reply, err := f.parseMessage(msg)
		if err != nil {
			f.logger.Warnf("failed to parse message %d: %v", msg.SeqNum, err)
			continue
		}
		replies = append(replies, reply)
	}

	if err := <-done; err != nil {
		return replies, fmt.Errorf("imap fetch: %w", err)
	}
	return replies, nil
}

func (f *IMAPReplyFetcher) dial() (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", f.cfg.Host, f.cfg.Port)
	tlsConfig := &tls.Config{ServerName: f.cfg.Host}

	switch strings.ToUpper(f.cfg.Encryption) {
	case "SSL", "TLS":
		return client.DialTLS(addr, tlsConfig)
	case "STARTTLS":
		c, err := client.Dial(addr)
		if err != nil {
			return nil, err
		}
		if err := c.StartTLS(tlsConfig); err != nil {
			return nil, err
		}
		return c, nil
	default:
		return client.Dial(addr)
	}
}

func (f *IMAPReplyFetcher) parseMessage(msg *imap.Message) (InboundReply, error) {
	if msg.Envelope == nil {
		return InboundReply{}, fmt.Errorf("message has no envelope")
	}

	reply := InboundReply{
		Provider:   f.Provider(),
		MessageID:  msg.Envelope.MessageId,
		FromEmail:  envelopeFromEmail(msg.Envelope),
		Subject:    msg.Envelope.Subject,
		ReceivedAt: msg.Envelope.Date,
	}

	section := imap.BodySectionName{}
	literal, ok := msg.Body[&section]
	if !ok {
		return reply, nil
	}

	mr, err := mail.CreateReader(literal)
	if err != nil {
		return reply, fmt.Errorf("create message reader: %w", err)
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			return reply, fmt.Errorf("read message part: %w", err)
		}

		if h, ok := p.Header.(*mail.InlineHeader); ok {
			contentType, _, _ := h.ContentType()
			if strings.Contains(contentType, "text/plain") {
				b, err := io.ReadAll(p.Body)
				if err != nil {
					return reply, fmt.Errorf("read body: %w", err)
				}
				reply.Body = string(b)
			}
		}
	}

	return reply, nil
}

func envelopeFromEmail(env *imap.Envelope) string {
	for _, addr := range env.From {
		if addr.MailboxName != "" && addr.HostName != "" {
			return strings.ToLower(addr.MailboxName + "@" + addr.HostName)
		}
	}
	return ""
}
