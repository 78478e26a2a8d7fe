package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"github.com/emersion/go-msgauth/dkim"
	"github.com/google/uuid"
	"github.com/nao1215/leakbox/internal/analyzer"
	"github.com/nao1215/leakbox/internal/extract"
	"github.com/nao1215/leakbox/internal/model"
)

// ErrNoUser is returned by steps that need the recipient's user.
var ErrNoUser = errors.New("delivery has no registered user")

// ArchiveStep writes the raw message below a per-recipient directory.
type ArchiveStep struct {
	dir   string
	now   func() time.Time
	newID func() string
}

// ArchiveStepOption configures an ArchiveStep.
type ArchiveStepOption func(*ArchiveStep)

// WithArchiveClock overrides the clock used for file names.
func WithArchiveClock(now func() time.Time) ArchiveStepOption {
	return func(s *ArchiveStep) {
		s.now = now
	}
}

// NewArchiveStep creates an ArchiveStep rooted at dir.
func NewArchiveStep(dir string, opts ...ArchiveStepOption) *ArchiveStep {
	s := &ArchiveStep{
		dir:   dir,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *ArchiveStep) Name() string {
	return "archive"
}

// Do writes d.Data to {dir}/{recipient}/{millis}-{uuid}.eml.
func (s *ArchiveStep) Do(_ context.Context, d *model.Delivery) error {
	dir := filepath.Join(s.dir, mailboxDir(d.Recipient))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create mailbox directory: %w", err)
	}

	name := fmt.Sprintf("%d-%s.eml", s.now().UnixMilli(), s.newID())
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, d.Data, 0o600); err != nil {
		return fmt.Errorf("failed to archive message: %w", err)
	}

	d.ArchivePath = path
	return nil
}

// mailboxDir turns a recipient into a single safe path element.
func mailboxDir(recipient string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '@', r == '-', r == '_', r == '+':
			return r
		default:
			return '_'
		}
	}, strings.ToLower(strings.TrimSpace(recipient)))

	if strings.Trim(clean, ".") == "" {
		return "_unknown"
	}
	return clean
}

// MailEventStore appends mail events.
type MailEventStore interface {
	AddMailEvent(ctx context.Context, ev *model.MailEvent) error
}

// DKIMVerifier checks the DKIM signatures of a raw message.
type DKIMVerifier func(r io.Reader) ([]*dkim.Verification, error)

// RecordStep parses message headers, verifies DKIM and appends a MailEvent.
type RecordStep struct {
	store  MailEventStore
	verify DKIMVerifier
	now    func() time.Time
	logger *slog.Logger
}

// RecordStepOption configures a RecordStep.
type RecordStepOption func(*RecordStep)

// WithDKIMVerifier replaces dkim.Verify, which performs DNS lookups.
func WithDKIMVerifier(v DKIMVerifier) RecordStepOption {
	return func(s *RecordStep) {
		s.verify = v
	}
}

// WithRecordClock overrides the receive timestamp source.
func WithRecordClock(now func() time.Time) RecordStepOption {
	return func(s *RecordStep) {
		s.now = now
	}
}

// WithRecordLogger sets the logger.
func WithRecordLogger(logger *slog.Logger) RecordStepOption {
	return func(s *RecordStep) {
		s.logger = logger
	}
}

// NewRecordStep creates a RecordStep writing to store.
func NewRecordStep(store MailEventStore, opts ...RecordStepOption) *RecordStep {
	s := &RecordStep{
		store:  store,
		verify: dkim.Verify,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *RecordStep) Name() string {
	return "record"
}

// Do appends a MailEvent for d. Unparseable headers leave subject and date
// empty rather than failing the step.
func (s *RecordStep) Do(ctx context.Context, d *model.Delivery) error {
	ev := &model.MailEvent{
		Recipient:   d.Recipient,
		Sender:      d.From,
		ArchivePath: d.ArchivePath,
		ReceivedAt:  s.now(),
	}

	if h, err := readHeader(d.Data); err != nil {
		s.logger.Warn("failed to parse message header", "rcpt", d.Recipient, "error", err)
	} else {
		if subject, err := h.Subject(); err == nil {
			ev.Subject = subject
		} else {
			ev.Subject = h.Get("Subject")
		}
		if date, err := h.Date(); err == nil {
			ev.SentAt = date
		}
	}

	ev.DKIM = s.dkimVerdict(d)

	if err := s.store.AddMailEvent(ctx, ev); err != nil {
		return fmt.Errorf("failed to record mail event: %w", err)
	}
	return nil
}

func (s *RecordStep) dkimVerdict(d *model.Delivery) string {
	verifications, err := s.verify(bytes.NewReader(d.Data))
	if err != nil {
		s.logger.Debug("dkim verification error", "rcpt", d.Recipient, "error", err)
		return "error"
	}
	if len(verifications) == 0 {
		return "none"
	}
	for _, v := range verifications {
		if v.Err == nil {
			return "pass:" + v.Domain
		}
	}
	return "fail"
}

func readHeader(data []byte) (mail.Header, error) {
	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(data)))
	if err != nil {
		return mail.Header{}, err
	}
	return mail.Header{Header: message.Header{Header: h}}, nil
}

// ExtractStep fills d.Inventory from the message body.
type ExtractStep struct{}

// NewExtractStep creates an ExtractStep.
func NewExtractStep() *ExtractStep {
	return &ExtractStep{}
}

// Name returns the step name.
func (s *ExtractStep) Name() string {
	return "extract"
}

// Do parses the MIME tree and collects links.
func (s *ExtractStep) Do(_ context.Context, d *model.Delivery) error {
	inv, err := extract.FromMessage(bytes.NewReader(d.Data))
	if err != nil {
		return err
	}
	d.Inventory = inv
	return nil
}

// Analyzer analyzes an extracted message.
type Analyzer interface {
	Analyze(ctx context.Context, msg analyzer.Message) (*analyzer.Outcome, error)
}

// AnalyzeStep hands the extracted inventory to the leak analyzer.
type AnalyzeStep struct {
	analyzer Analyzer
	logger   *slog.Logger
}

// NewAnalyzeStep creates an AnalyzeStep.
func NewAnalyzeStep(a Analyzer, logger *slog.Logger) *AnalyzeStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyzeStep{analyzer: a, logger: logger}
}

// Name returns the step name.
func (s *AnalyzeStep) Name() string {
	return "analyze"
}

// Do runs the analyzer.
func (s *AnalyzeStep) Do(ctx context.Context, d *model.Delivery) error {
	if d.User == nil {
		return ErrNoUser
	}

	out, err := s.analyzer.Analyze(ctx, analyzer.Message{
		From:      d.From,
		User:      d.User,
		Inventory: d.Inventory,
	})
	if err != nil {
		return err
	}

	s.logger.Info("message analyzed",
		"rcpt", d.Recipient,
		"links", len(d.Inventory),
		"leaks", len(out.Leaks),
		"probes", len(out.Probes),
		"deferred", len(out.Deferred),
	)
	return nil
}

// DefaultPipeline builds the standard ingest pipeline.
func DefaultPipeline(mailDir string, store MailEventStore, a Analyzer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := New(WithLogger(logger))
	p.AddSteps(
		Optional(NewArchiveStep(mailDir)),
		Optional(NewRecordStep(store, WithRecordLogger(logger))),
		NewExtractStep(),
		NewAnalyzeStep(a, logger),
	)
	return p
}
