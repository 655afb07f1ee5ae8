package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dhcgn/mail-merge/clock"
	"github.com/dhcgn/mail-merge/config"
	"github.com/dhcgn/mail-merge/gateway"
	"github.com/dhcgn/mail-merge/gmail"
	"github.com/dhcgn/mail-merge/imap"
	"github.com/dhcgn/mail-merge/mbox"
	"github.com/dhcgn/mail-merge/progress"
	"github.com/dhcgn/mail-merge/prompt"
	"github.com/dhcgn/mail-merge/runner"
	"github.com/dhcgn/mail-merge/sheets"
	"github.com/dhcgn/mail-merge/state"
	"github.com/dhcgn/mail-merge/stats"
	"github.com/dhcgn/mail-merge/store"
	"github.com/dhcgn/mail-merge/transport"
)

// app is one configured set of backends.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	store    store.Store
	template store.TemplateSource
	gateway  gateway.Gateway
	prompt   prompt.Prompter
	stream   *stats.Stream
	closers  []func() error
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, stream: stats.NewStream()}
	if cfg.Yes {
		a.prompt = prompt.Auto{Answer: true, Logger: logger}
	} else {
		a.prompt = prompt.Terminal{}
	}

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openGateway(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openJournal(); err != nil {
		a.Close()
		return nil, err
	}

	progress.New(cfg.LogLevel).Attach(a.stream)
	stats.NewReporter(a.stream, logger)
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	var source store.TemplateSource
	switch a.cfg.Store {
	case config.StoreSheets:
		s, err := sheets.New(ctx, sheets.Options{
			SpreadsheetID:   a.cfg.SpreadsheetID,
			ContactsSheet:   a.cfg.ContactsSheet,
			TemplateSheet:   a.cfg.TemplateSheet,
			CredentialsFile: a.cfg.CredentialsFile,
			Subject:         a.gmailSubject(),
		})
		if err != nil {
			return fmt.Errorf("sheets.New: %w", err)
		}
		a.store, source = s, s
	case config.StoreSQLite:
		s, err := store.OpenSQLite(a.cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("store.OpenSQLite: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		a.store, source = s, s
	default:
		return fmt.Errorf("unknown store %q", a.cfg.Store)
	}

	if a.cfg.TemplateFile != "" {
		source = store.YAMLTemplate{Path: a.cfg.TemplateFile}
	}
	a.template = source
	return nil
}

// gmailSubject is the account service account credentials impersonate.
func (a *app) gmailSubject() string {
	if a.cfg.GmailUser == "me" {
		return ""
	}
	return a.cfg.GmailUser
}

func (a *app) openGateway(ctx context.Context) error {
	switch a.cfg.Gateway {
	case config.GatewayGmail:
		g, err := gmail.New(ctx, gmail.Options{
			CredentialsFile: a.cfg.CredentialsFile,
			User:            a.cfg.GmailUser,
			From:            a.cfg.From,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("gmail.New: %w", err)
		}
		a.gateway = g
	case config.GatewayIMAP:
		sender, err := a.openTransport(ctx)
		if err != nil {
			return err
		}
		g, err := imap.New(imap.Options{
			Host:               a.cfg.IMAP.Host,
			Port:               a.cfg.IMAP.Port,
			Username:           a.cfg.IMAP.User,
			Password:           a.cfg.IMAP.Pass,
			UseTLS:             a.cfg.IMAP.UseTLS,
			InsecureSkipVerify: a.cfg.IMAP.InsecureSkipVerify,
			From:               a.cfg.From,
			DraftsMailbox:      a.cfg.IMAP.DraftsMailbox,
			SentMailbox:        a.cfg.IMAP.SentMailbox,
			InboxMailbox:       a.cfg.IMAP.InboxMailbox,
		}, sender, a.logger)
		if err != nil {
			return fmt.Errorf("imap.New: %w", err)
		}
		a.closers = append(a.closers, g.Close)
		a.gateway = g
	case config.GatewayMbox:
		g, err := mbox.New(mbox.Options{
			DraftsPath: a.cfg.Mbox.DraftsPath,
			OutboxPath: a.cfg.Mbox.OutboxPath,
			InboxPath:  a.cfg.Mbox.InboxPath,
			From:       a.cfg.From,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("mbox.New: %w", err)
		}
		a.gateway = g
	default:
		return fmt.Errorf("unknown gateway %q", a.cfg.Gateway)
	}
	return nil
}

func (a *app) openTransport(ctx context.Context) (transport.Sender, error) {
	switch a.cfg.Transport {
	case config.TransportSES:
		s, err := transport.NewSES(ctx, transport.SESOptions{
			Region:          a.cfg.SES.Region,
			AccessKeyID:     a.cfg.SES.AccessKeyID,
			SecretAccessKey: a.cfg.SES.SecretAccessKey,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("transport.NewSES: %w", err)
		}
		return s, nil
	default:
		s, err := transport.NewSMTP(transport.SMTPOptions{
			Host:               a.cfg.SMTP.Host,
			Port:               a.cfg.SMTP.Port,
			Username:           a.cfg.SMTP.User,
			Password:           a.cfg.SMTP.Pass,
			ImplicitTLS:        a.cfg.SMTP.ImplicitTLS,
			InsecureSkipVerify: a.cfg.IMAP.InsecureSkipVerify,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("transport.NewSMTP: %w", err)
		}
		return s, nil
	}
}

// openJournal records every contact outcome in the state directory.
func (a *app) openJournal() error {
	j, err := state.NewJournal(a.cfg.StateDir)
	if err != nil {
		return fmt.Errorf("state.NewJournal: %w", err)
	}
	a.closers = append(a.closers, j.Close)
	a.stream.Subscribe("journal", journalSubscriber(j, a.logger))
	return nil
}

func journalSubscriber(j *state.Journal, logger *slog.Logger) func(stats.Event) {
	return func(evt stats.Event) {
		if evt.Type != stats.EventTypeOutcome {
			return
		}
		rec := state.Record{
			Time:   evt.Time,
			RunID:  evt.RunID,
			Row:    evt.Row,
			Email:  evt.Email,
			Status: evt.Status.Format(evt.Detail),
		}
		if evt.Err != nil {
			rec.Error = evt.Err.Error()
		}
		if err := j.Append(rec); err != nil {
			logger.Warn("journal append failed", "row", evt.Row, "error", err)
		}
	}
}

func (a *app) runner() *runner.Runner {
	return runner.New(runner.Deps{
		Store:    a.store,
		Template: a.template,
		Gateway:  a.gateway,
		Prompt:   a.prompt,
		Clock:    clock.Real{},
		Stream:   a.stream,
		Logger:   a.logger,
	}, runner.Options{
		Interval:     a.cfg.Interval,
		VerifyWindow: a.cfg.VerifyWindow,
		ThreadWindow: a.cfg.ThreadWindow,
		Cache:        a.cfg.Cache,
	})
}

// Close releases the backends in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
