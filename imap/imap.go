// Package imap implements the mail gateway on an IMAP account: drafts and
// searches are read over IMAP, sends go through a transport.Sender and are
// then filed in the sent folder.
package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/dhcgn/mail-merge/gateway"
	"github.com/dhcgn/mail-merge/model"
	"github.com/dhcgn/mail-merge/rfc822"
	"github.com/dhcgn/mail-merge/transport"
)

var ErrNoSender = errors.New("imap gateway needs a transport to send")

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool

	// From is the envelope and header sender address.
	From          string
	DraftsMailbox string
	SentMailbox   string
	InboxMailbox  string
}

// Gateway keeps one IMAP connection open for the lifetime of a command.
type Gateway struct {
	opts   Options
	sender transport.Sender
	logger *slog.Logger

	mu      sync.Mutex
	client  *imapclient.Client
	cleanup func()
}

func New(opts Options, sender transport.Sender, logger *slog.Logger) (*Gateway, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("imap port must be positive")
	}
	if opts.From == "" {
		opts.From = opts.Username
	}
	if opts.DraftsMailbox == "" {
		opts.DraftsMailbox = "Drafts"
	}
	if opts.SentMailbox == "" {
		opts.SentMailbox = "Sent"
	}
	if opts.InboxMailbox == "" {
		opts.InboxMailbox = "INBOX"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{opts: opts, sender: sender, logger: logger}, nil
}

func (g *Gateway) Name() string { return "imap" }

// Close logs out and closes the connection if one was opened.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cleanup != nil {
		g.cleanup()
	}
	g.client, g.cleanup = nil, nil
	return nil
}

func (g *Gateway) ListDrafts(ctx context.Context, limit int) ([]model.Draft, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	client, err := g.conn(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := client.Select(g.opts.DraftsMailbox, &imapv2.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, fmt.Errorf("select %s: %w", g.opts.DraftsMailbox, err)
	}

	data, err := client.UIDSearch(&imapv2.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search drafts: %w", err)
	}
	uids := newestUIDs(data.AllUIDs(), limit)
	if len(uids) == 0 {
		return nil, nil
	}

	section := &imapv2.FetchItemBodySection{Peek: true}
	msgs, err := client.Fetch(imapv2.UIDSetNum(uids...), &imapv2.FetchOptions{
		UID:         true,
		BodySection: []*imapv2.FetchItemBodySection{section},
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetch drafts: %w", err)
	}

	drafts := make([]model.Draft, 0, len(msgs))
	for _, m := range msgs {
		d, err := rfc822.ParseDraft(m.FindBodySection(section))
		if err != nil {
			g.logger.Warn("skipping unreadable draft", "uid", m.UID, "err", err)
			continue
		}
		d.ID = strconv.FormatUint(uint64(m.UID), 10)
		drafts = append(drafts, d)
	}
	sort.SliceStable(drafts, func(i, j int) bool {
		return drafts[i].Date.After(drafts[j].Date)
	})
	return drafts, nil
}

func (g *Gateway) Send(ctx context.Context, msg model.Message) error {
	return g.deliver(ctx, msg, nil)
}

func (g *Gateway) Reply(ctx context.Context, thread model.Thread, msg model.Message) error {
	return g.deliver(ctx, msg, &thread)
}

func (g *Gateway) deliver(ctx context.Context, msg model.Message, thread *model.Thread) error {
	if g.sender == nil {
		return ErrNoSender
	}
	raw, id, err := rfc822.Compose(rfc822.Outgoing{From: g.opts.From, Message: msg, Date: time.Now(), Thread: thread})
	if err != nil {
		return err
	}
	if err := g.sender.Send(ctx, g.opts.From, rfc822.Recipients(msg), raw); err != nil {
		return fmt.Errorf("%s: %w", g.sender.Name(), err)
	}

	// The message is out; failing to file it only costs the sent copy.
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fileSent(ctx, raw); err != nil {
		g.logger.Warn("could not file message in sent folder", "messageID", id, "mailbox", g.opts.SentMailbox, "err", err)
	}
	return nil
}

func (g *Gateway) fileSent(ctx context.Context, raw []byte) error {
	client, err := g.conn(ctx)
	if err != nil {
		return err
	}
	if err := g.ensureMailbox(client, g.opts.SentMailbox); err != nil {
		return err
	}
	return appendMessage(client, g.opts.SentMailbox, raw, time.Now())
}

func (g *Gateway) Search(ctx context.Context, q gateway.Query, limit int) ([]model.Thread, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	client, err := g.conn(ctx)
	if err != nil {
		return nil, err
	}
	mailbox := g.mailboxFor(q.Mailbox)
	if _, err := client.Select(mailbox, &imapv2.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, fmt.Errorf("select %s: %w", mailbox, err)
	}

	data, err := client.UIDSearch(Criteria(q), nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", mailbox, err)
	}
	uids := data.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	section := &imapv2.FetchItemBodySection{Specifier: imapv2.PartSpecifierHeader, Peek: true}
	msgs, err := client.Fetch(imapv2.UIDSetNum(uids...), &imapv2.FetchOptions{
		UID:          true,
		InternalDate: true,
		BodySection:  []*imapv2.FetchItemBodySection{section},
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetch headers: %w", err)
	}

	envs := make([]rfc822.Envelope, 0, len(msgs))
	for _, m := range msgs {
		env, err := rfc822.ParseEnvelope(m.FindBodySection(section))
		if err != nil {
			g.logger.Debug("skipping unreadable header", "uid", m.UID, "err", err)
			continue
		}
		if env.Date.IsZero() {
			env.Date = m.InternalDate
		}
		envs = append(envs, env)
	}
	threads := rfc822.Threads(envs, limit)
	g.logger.Debug("imap search", "mailbox", mailbox, "query", q.String(), "matches", len(uids), "threads", len(threads))
	return threads, nil
}

// Criteria translates a query into an IMAP SEARCH. Directive text is
// stripped; IMAP quotes values itself.
func Criteria(q gateway.Query) *imapv2.SearchCriteria {
	q = q.Plain()
	c := &imapv2.SearchCriteria{Since: q.Since}
	if q.Subject != "" {
		c.Header = append(c.Header, imapv2.SearchCriteriaHeaderField{Key: "Subject", Value: q.Subject})
	}
	for _, p := range q.Predicates {
		alternatives := make([]imapv2.SearchCriteria, 0, len(p.Fields))
		for _, f := range p.Fields {
			alternatives = append(alternatives, imapv2.SearchCriteria{
				Header: []imapv2.SearchCriteriaHeaderField{{Key: headerName(f), Value: p.Address}},
			})
		}
		switch len(alternatives) {
		case 0:
		case 1:
			c.Header = append(c.Header, alternatives[0].Header...)
		default:
			c.Or = append(c.Or, anyOf(alternatives))
		}
	}
	return c
}

// anyOf folds alternatives into nested OR pairs.
func anyOf(alternatives []imapv2.SearchCriteria) [2]imapv2.SearchCriteria {
	if len(alternatives) == 2 {
		return [2]imapv2.SearchCriteria{alternatives[0], alternatives[1]}
	}
	rest := imapv2.SearchCriteria{Or: [][2]imapv2.SearchCriteria{anyOf(alternatives[1:])}}
	return [2]imapv2.SearchCriteria{alternatives[0], rest}
}

func headerName(f gateway.Field) string {
	switch f {
	case gateway.FieldFrom:
		return "From"
	case gateway.FieldCc:
		return "Cc"
	case gateway.FieldBcc:
		return "Bcc"
	default:
		return "To"
	}
}

func (g *Gateway) mailboxFor(m gateway.Mailbox) string {
	if m == gateway.MailboxSent {
		return g.opts.SentMailbox
	}
	return g.opts.InboxMailbox
}

// newestUIDs returns up to limit of the highest UIDs, highest first.
func newestUIDs(uids []imapv2.UID, limit int) []imapv2.UID {
	sorted := append([]imapv2.UID(nil), uids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

// conn returns the open connection, dialing on first use. Callers hold g.mu.
func (g *Gateway) conn(ctx context.Context) (*imapclient.Client, error) {
	if g.client != nil {
		return g.client, nil
	}
	client, cleanup, err := g.dial(ctx)
	if err != nil {
		return nil, err
	}
	g.client, g.cleanup = client, cleanup
	return client, nil
}

func (g *Gateway) dial(ctx context.Context) (*imapclient.Client, func(), error) {
	address := net.JoinHostPort(g.opts.Host, strconv.Itoa(g.opts.Port))
	options := &imapclient.Options{}

	if g.opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         g.opts.Host,
			InsecureSkipVerify: g.opts.InsecureSkipVerify,
		}
	}

	var (
		client *imapclient.Client
		err    error
	)

	if g.opts.UseTLS {
		client, err = imapclient.DialTLS(address, options)
	} else {
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(g.opts.Username, g.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("imap login failed: %w", err)
	}

	g.logger.Debug("imap connection established", "address", address, "user", g.opts.Username, "tls", g.opts.UseTLS)

	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	cleanup := func() {
		stopClose()
		if ctx.Err() == nil {
			if err := client.Logout().Wait(); err != nil {
				g.logger.Warn("imap logout failed", "err", err)
			}
		}
		if err := client.Close(); err != nil {
			g.logger.Debug("imap connection closed", "err", err)
		}
	}

	return client, cleanup, nil
}

func appendMessage(client *imapclient.Client, mailbox string, raw []byte, at time.Time) error {
	cmd := client.Append(mailbox, int64(len(raw)), &imapv2.AppendOptions{
		Flags: []imapv2.Flag{imapv2.FlagSeen},
		Time:  at,
	})

	remaining := raw
	for len(remaining) > 0 {
		n, err := cmd.Write(remaining)
		if err != nil {
			_ = cmd.Close()
			return fmt.Errorf("append write: %w", err)
		}
		if n == 0 {
			_ = cmd.Close()
			return fmt.Errorf("append write: wrote 0 bytes")
		}
		remaining = remaining[n:]
	}

	if err := cmd.Close(); err != nil {
		return fmt.Errorf("append close: %w", err)
	}

	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("append wait: %w", err)
	}

	return nil
}

func (g *Gateway) ensureMailbox(client *imapclient.Client, name string) error {
	cmd := client.Create(name, nil)
	if err := cmd.Wait(); err != nil {
		var respErr *imapv2.Error
		if errors.As(err, &respErr) {
			if respErr.Code == imapv2.ResponseCodeAlreadyExists {
				return nil
			}
		}
		return fmt.Errorf("ensure mailbox %s: %w", name, err)
	}

	g.logger.Info("imap mailbox created", "mailbox", name)
	return nil
}
