package mailserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/emersion/go-smtp"
)

const (
	// DefaultMaxMessageBytes bounds a single DATA payload.
	DefaultMaxMessageBytes = 10 << 20
	// DefaultMaxRecipients bounds RCPT TO commands per transaction.
	DefaultMaxRecipients = 50

	defaultTimeout         = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

var (
	errUnknownRecipient = &smtp.SMTPError{
		Code:         550,
		EnhancedCode: smtp.EnhancedCode{5, 1, 1},
		Message:      "No such user here",
	}
	errLookup = &smtp.SMTPError{
		Code:         451,
		EnhancedCode: smtp.EnhancedCode{4, 3, 0},
		Message:      "Requested action aborted: local error in processing",
	}
	errNoRecipients = &smtp.SMTPError{
		Code:         554,
		EnhancedCode: smtp.EnhancedCode{5, 5, 1},
		Message:      "No valid recipients",
	}
)

// Handler decides which recipients exist and consumes delivered messages.
type Handler interface {
	Accept(ctx context.Context, from, recipient string) (bool, error)
	Deliver(ctx context.Context, from, recipient string, data []byte) error
}

// Server receives mail over SMTP.
type Server struct {
	srv     *smtp.Server
	backend *backend
	logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMaxMessageBytes overrides DefaultMaxMessageBytes.
func WithMaxMessageBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.srv.MaxMessageBytes = n
		}
	}
}

// WithTimeout sets the per-command read and write timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.srv.ReadTimeout = d
			s.srv.WriteTimeout = d
		}
	}
}

// NewServer creates a Server for addr announcing itself as domain.
func NewServer(addr, domain string, handler Handler, opts ...Option) *Server {
	be := &backend{handler: handler}
	srv := smtp.NewServer(be)
	srv.Addr = addr
	srv.Domain = domain
	srv.ReadTimeout = defaultTimeout
	srv.WriteTimeout = defaultTimeout
	srv.MaxMessageBytes = DefaultMaxMessageBytes
	srv.MaxRecipients = DefaultMaxRecipients

	s := &Server{srv: srv, backend: be}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	be.logger = s.logger
	be.maxBytes = srv.MaxMessageBytes
	return s
}

// Serve accepts SMTP connections on l until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.backend.ctx = ctx

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("smtp server listening", "addr", l.Addr().String(), "domain", s.srv.Domain)
		errCh <- s.srv.Serve(l)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, smtp.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("smtp server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
		return fmt.Errorf("smtp shutdown: %w", err)
	}
	return nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ctx, l)
}

type backend struct {
	ctx      context.Context
	handler  Handler
	logger   *slog.Logger
	maxBytes int64
}

func (b *backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	ctx := b.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	remote := ""
	if conn := c.Conn(); conn != nil {
		remote = conn.RemoteAddr().String()
	}
	return &session{
		ctx:     ctx,
		backend: b,
		logger:  b.logger.With("remote", remote),
	}, nil
}

type session struct {
	ctx        context.Context
	backend    *backend
	logger     *slog.Logger
	from       string
	recipients []string
}

func (s *session) Mail(from string, _ *smtp.MailOptions) error {
	s.from = from
	return nil
}

func (s *session) Rcpt(to string, _ *smtp.RcptOptions) error {
	ok, err := s.backend.handler.Accept(s.ctx, s.from, to)
	if err != nil {
		s.logger.Error("recipient lookup failed", "rcpt", to, "error", err)
		return errLookup
	}
	if !ok {
		s.logger.Info("rejected recipient", "from", s.from, "rcpt", to)
		return errUnknownRecipient
	}
	s.logger.Info("accepted recipient", "from", s.from, "rcpt", to)
	s.recipients = append(s.recipients, to)
	return nil
}

func (s *session) Data(r io.Reader) error {
	if len(s.recipients) == 0 {
		return errNoRecipients
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(r, s.backend.maxBytes+1)); err != nil {
		return err
	}
	if int64(buf.Len()) > s.backend.maxBytes {
		return smtp.ErrDataTooLarge
	}
	data := buf.Bytes()

	for _, rcpt := range s.recipients {
		s.logger.Info("deliver", "from", s.from, "rcpt", rcpt, "bytes", len(data))
		if err := s.backend.handler.Deliver(s.ctx, s.from, rcpt, data); err != nil {
			s.logger.Error("delivery failed", "from", s.from, "rcpt", rcpt, "error", err)
		}
	}
	return nil
}

func (s *session) Reset() {
	s.from = ""
	s.recipients = nil
}

func (s *session) Logout() error {
	return nil
}
