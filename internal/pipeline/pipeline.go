package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/firefart/dmarcingest/internal/analytics"
	"github.com/firefart/dmarcingest/internal/dmarc"
	"github.com/firefart/dmarcingest/internal/message"
	"github.com/firefart/dmarcingest/internal/metrics"
	"github.com/firefart/dmarcingest/internal/storage"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// Pipeline turns one inbound message into analytics rows. It only holds
// collaborators that are safe for concurrent use, so Process can be called
// from several goroutines.
type Pipeline struct {
	logger    *slog.Logger
	archive   storage.Store
	sink      analytics.Sink
	metrics   *metrics.Metrics
	extractor dmarc.Extractor
	now       func() time.Time
}

type Option func(*Pipeline)

// WithArchive stores every raw attachment before it is processed
func WithArchive(s storage.Store) Option {
	return func(p *Pipeline) {
		p.archive = s
	}
}

// WithSink forwards the rows to s
func WithSink(s analytics.Sink) Option {
	return func(p *Pipeline) {
		p.sink = s
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithMaxPayloadSize limits the decompressed report size
func WithMaxPayloadSize(n int64) Option {
	return func(p *Pipeline) {
		p.extractor.MaxPayloadSize = n
	}
}

// WithClock overrides the clock used for archive keys
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

func New(logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		logger: logger,
		now:    time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Result summarizes one pipeline run
type Result struct {
	RunID          string
	Filename       string
	Kind           dmarc.ContainerKind
	Rows           []dmarc.RecordRow
	RowsWritten    int
	RowsFailed     int
	RecordsSkipped int
}

// Process runs the message through all stages. Only the first attachment is
// used. Archive and sink failures are logged and never returned, the first
// error of the decoding stages is returned unchanged.
func (p *Pipeline) Process(ctx context.Context, msg *message.Message) (*Result, error) {
	res := &Result{RunID: uuid.NewString()}
	logger := p.logger.With(slog.String("run_id", res.RunID))

	if msg == nil || len(msg.Attachments) == 0 {
		p.metrics.Message(metrics.OutcomeNoAttachment)
		return nil, dmarc.ErrNoAttachment
	}
	if len(msg.Attachments) > 1 {
		logger.Warn("message has more than one attachment, only processing the first one", slog.Int("attachments", len(msg.Attachments)))
	}
	attachment := msg.Attachments[0]
	res.Filename = attachment.Filename
	logger = logger.With(slog.String("filename", attachment.Filename))
	logger.Info("got attachment", slog.String("mime_type", attachment.MIMEType), slog.Int("size", len(attachment.Content)))

	p.archiveAttachment(ctx, logger, attachment)

	if err := ctx.Err(); err != nil {
		p.metrics.Message(metrics.OutcomeCancelled)
		return nil, err
	}

	res.Kind = dmarc.Detect(attachment.MIMEType)
	logger.Debug("detected container", slog.String("kind", res.Kind.String()))

	xml, err := p.extractor.Extract(res.Kind, attachment.Content)
	if err != nil {
		p.metrics.Message(metrics.OutcomeExtractionError)
		return nil, err
	}

	doc, err := dmarc.ParseDocument(xml)
	if err != nil {
		p.metrics.Message(metrics.OutcomeParseError)
		return nil, err
	}

	report, err := dmarc.Normalize(doc)
	if err != nil {
		p.metrics.Message(metrics.OutcomeSchemaError)
		return nil, err
	}
	res.Rows = report.Rows

	if report.Skipped != nil {
		var merr *multierror.Error
		if errors.As(report.Skipped, &merr) {
			res.RecordsSkipped = len(merr.Errors)
		}
		p.metrics.RecordsSkipped(res.RecordsSkipped)
		logger.Warn("skipped invalid records", slog.Int("count", res.RecordsSkipped), slog.Any("error", report.Skipped))
	}
	if len(report.UnknownTokens) > 0 {
		p.metrics.UnknownTokens(len(report.UnknownTokens))
		logger.Debug("replaced unknown tokens with defaults", slog.Any("tokens", report.UnknownTokens))
	}

	if err := p.writeRows(ctx, logger, res); err != nil {
		p.metrics.Message(metrics.OutcomeCancelled)
		return nil, err
	}

	p.metrics.Message(metrics.OutcomeProcessed)
	logger.Info("processed report",
		slog.Int("rows", len(res.Rows)),
		slog.Int("rows_written", res.RowsWritten),
		slog.Int("rows_failed", res.RowsFailed),
	)
	return res, nil
}

// archiveAttachment is best effort, a failure never stops the pipeline
func (p *Pipeline) archiveAttachment(ctx context.Context, logger *slog.Logger, a message.Attachment) {
	if p.archive == nil {
		return
	}
	key := storage.ArchiveKey(p.now(), a.Filename)
	if err := p.archive.Put(ctx, key, a.Content); err != nil {
		p.metrics.ArchiveFailure()
		logger.Error("could not archive attachment", slog.String("key", key), slog.Any("error", err))
		return
	}
	logger.Debug("archived attachment", slog.String("key", key))
}

// writeRows sends every row once in report order. Failed rows are not
// retried. Only a cancelled context is returned as error.
func (p *Pipeline) writeRows(ctx context.Context, logger *slog.Logger, res *Result) error {
	if p.sink == nil {
		return nil
	}
	var errs *multierror.Error
	for _, row := range res.Rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		dp := row.DataPoint()
		if err := p.sink.WriteRow(ctx, dp.Indexes, dp.Blobs, dp.Doubles); err != nil {
			errs = multierror.Append(errs, err)
			res.RowsFailed++
			continue
		}
		res.RowsWritten++
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.metrics.RowsWritten(res.RowsWritten)
	p.metrics.RowWriteFailures(res.RowsFailed)
	if err := errs.ErrorOrNil(); err != nil {
		logger.Error("could not write rows", slog.Int("failed", res.RowsFailed), slog.Any("error", err))
	}
	return nil
}
