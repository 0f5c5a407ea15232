package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/firefart/dmarcingest/internal/config"
)

func Connect(conf config.IMAPConfig, logger *slog.Logger) (*client.Client, error) {
	tlsConfig := tls.Config{} // nolint: gosec
	if conf.IgnoreCert {
		tlsConfig.InsecureSkipVerify = true // nolint:gosec
	}
	errorLog := slog.NewLogLogger(logger.Handler(), slog.LevelError)
	if conf.SSL {
		c, err := client.DialTLS(conf.Host, &tlsConfig)
		if err != nil {
			return nil, err
		}
		c.Timeout = conf.Timeout.Duration
		c.ErrorLog = errorLog
		return c, nil
	}
	c, err := client.Dial(conf.Host)
	if err != nil {
		return nil, err
	}
	c.ErrorLog = errorLog
	c.Timeout = conf.Timeout.Duration
	support, err := c.SupportStartTLS()
	if err != nil {
		return nil, err
	}
	if support {
		if err := c.StartTLS(&tlsConfig); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func HasImapFolder(c *client.Client, folderName string) (bool, error) {
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.List("", "*", mailboxes)
	}()

	hasFolder := false
	for m := range mailboxes {
		if m.Name == folderName {
			hasFolder = true
		}
	}

	if err := <-done; err != nil {
		return false, err
	}

	return hasFolder, nil
}

// MarkMessages adds flag to all messages in uids
func MarkMessages(c *client.Client, flag string, uids ...uint32) error {
	if len(uids) == 0 {
		return nil
	}
	seq := new(imap.SeqSet)
	seq.AddNum(uids...)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []any{flag}
	return c.UidStore(seq, item, flags, nil)
}

// Handler is called for every fetched message with the raw RFC 5322 body
type Handler func(ctx context.Context, uid uint32, subject string, body io.Reader) error

// Poller fetches messages of one folder in batches. Handled messages are
// deleted when DeleteProcessed is set, otherwise they are flagged as seen and
// only unseen messages are fetched.
type Poller struct {
	Config          config.IMAPConfig
	BatchSize       int
	DeleteProcessed bool
	Handler         Handler
	Logger          *slog.Logger
}

// Run works through the folder until no more messages are left. It runs in
// batches as some IMAP servers have pretty short timeouts and the imap
// library does not handle reconnects.
func (p *Poller) Run(ctx context.Context) error {
	if p.BatchSize < 1 {
		return fmt.Errorf("invalid batch size %d", p.BatchSize)
	}
	hasMore := true
	for hasMore {
		p.Logger.Debug("starting new imap loop", slog.Int("batch_size", p.BatchSize))
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		hasMore, err = p.fetch(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Poller) fetch(ctx context.Context) (bool, error) {
	c, err := Connect(p.Config, p.Logger)
	if err != nil {
		return false, fmt.Errorf("could not connect to %s: %w", p.Config.Host, err)
	}

	p.Logger.Debug("connected to imap server")

	// also log IMAP messages in debug mode
	if p.Logger.Enabled(ctx, slog.LevelDebug) {
		c.SetDebug(slog.NewLogLogger(p.Logger.Handler(), slog.LevelDebug).Writer())
	}

	if err := c.Login(p.Config.User, p.Config.Pass); err != nil {
		return false, fmt.Errorf("could not login: %w", err)
	}

	p.Logger.Debug("successful login")

	defer func() {
		if err := c.Logout(); err != nil {
			p.Logger.Error("error on logout", slog.Any("error", err))
		}
	}()

	hasFolder, err := HasImapFolder(c, p.Config.Folder)
	if err != nil {
		return false, fmt.Errorf("could not check if folder %s exists: %w", p.Config.Folder, err)
	}
	if !hasFolder {
		return false, fmt.Errorf("imap folder %s not found in account", p.Config.Folder)
	}

	mbox, err := c.Select(p.Config.Folder, false)
	if err != nil {
		return false, fmt.Errorf("could not select folder %s: %w", p.Config.Folder, err)
	}

	p.Logger.Info("opened folder", slog.String("folder", mbox.Name), slog.Any("messages", mbox.Messages), slog.Any("unseen", mbox.Unseen))

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.DeletedFlag}
	if !p.DeleteProcessed {
		criteria.WithoutFlags = append(criteria.WithoutFlags, imap.SeenFlag)
	}
	ids, err := c.UidSearch(criteria)
	if err != nil {
		return false, fmt.Errorf("could not search for mails: %w", err)
	}

	p.Logger.Debug("found unprocessed mails", slog.Int("count", len(ids)))

	if len(ids) == 0 {
		return false, nil
	}

	hasMore := len(ids) > p.BatchSize
	if hasMore {
		ids = ids[:p.BatchSize]
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	p.Logger.Debug("fetching messages", slog.String("uids", seqset.String()))

	messages := make(chan *imap.Message)
	done := make(chan error, 1)

	// Get the whole message body
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		section.FetchItem(),
		imap.FetchEnvelope,
		imap.FetchUid,
	}
	go func() {
		done <- c.UidFetch(seqset, items, messages)
	}()

	var handled []uint32
	var cancelled error
	for msg := range messages {
		// drain the channel so the fetch can finish
		if cancelled != nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			cancelled = err
			continue
		}

		subject := ""
		if msg.Envelope != nil {
			subject = msg.Envelope.Subject
		}
		logger := p.Logger.With(slog.Any("uid", msg.Uid), slog.String("subject", subject))
		logger.Info("processing email")

		body := msg.GetBody(section)
		if body == nil {
			logger.Error("server didn't return message body")
			continue
		}
		if err := p.Handler(ctx, msg.Uid, subject, body); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				cancelled = err
				continue
			}
			// junk is marked too so it does not block the folder
			logger.Error("could not process message", slog.Any("error", err))
		}
		handled = append(handled, msg.Uid)
	}

	p.Logger.Debug("waiting for fetch to finish")

	if err := <-done; err != nil {
		return false, fmt.Errorf("error on fetch: %w", err)
	}

	if err := p.finish(c, handled); err != nil {
		return false, err
	}

	p.Logger.Info("processed emails", slog.Int("count", len(handled)))

	if cancelled != nil {
		return false, cancelled
	}
	return hasMore, nil
}

// finish deletes or flags the handled messages
func (p *Poller) finish(c *client.Client, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}
	if !p.DeleteProcessed {
		if err := MarkMessages(c, imap.SeenFlag, uids...); err != nil {
			return fmt.Errorf("could not set seen flag: %w", err)
		}
		return nil
	}

	p.Logger.Debug("marking messages as deleted", slog.Int("count", len(uids)))
	if err := MarkMessages(c, imap.DeletedFlag, uids...); err != nil {
		return fmt.Errorf("could not set delete flag: %w", err)
	}
	p.Logger.Info("running expunge command (delete all marked messages)")
	if err := c.Expunge(nil); err != nil {
		return fmt.Errorf("could not expunge: %w", err)
	}
	return nil
}
