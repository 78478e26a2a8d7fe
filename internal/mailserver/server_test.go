package mailserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/emersion/go-smtp"
)

type delivery struct {
	from, rcpt string
	data       string
}

type fakeHandler struct {
	mu         sync.Mutex
	known      map[string]bool
	lookupErr  error
	deliverErr error
	deliveries []delivery
}

func (f *fakeHandler) Accept(_ context.Context, _, recipient string) (bool, error) {
	if f.lookupErr != nil {
		return false, f.lookupErr
	}
	return f.known[recipient], nil
}

func (f *fakeHandler) Deliver(_ context.Context, from, recipient string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = append(f.deliveries, delivery{from: from, rcpt: recipient, data: string(data)})
	return f.deliverErr
}

func (f *fakeHandler) snapshot() []delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]delivery(nil), f.deliveries...)
}

func startServer(t *testing.T, h Handler, opts ...Option) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(l.Addr().String(), "mail.example.org", h, append([]Option{WithLogger(logger)}, opts...)...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, l) }()

	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	})
	return l.Addr().String()
}

func dial(t *testing.T, addr string) *smtp.Client {
	t.Helper()
	c, err := smtp.Dial(addr)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	if err := c.Hello("sender.example.com"); err != nil {
		t.Fatal(err)
	}
	return c
}

func send(t *testing.T, c *smtp.Client, body string) error {
	t.Helper()
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, body); err != nil {
		return err
	}
	return w.Close()
}

const testMessage = "From: news@shop.example.com\r\nSubject: hi\r\n\r\nhello\r\n"

func TestServer_Delivery(t *testing.T) {
	t.Parallel()

	h := &fakeHandler{known: map[string]bool{
		"apple.banana.0001@mail.example.org": true,
		"cherry.grape.0002@mail.example.org": true,
	}}
	c := dial(t, startServer(t, h))

	if err := c.Mail("news@shop.example.com", nil); err != nil {
		t.Fatal(err)
	}
	for rcpt := range h.known {
		if err := c.Rcpt(rcpt, nil); err != nil {
			t.Fatalf("Rcpt(%s) error = %v", rcpt, err)
		}
	}
	if err := send(t, c, testMessage); err != nil {
		t.Fatalf("Data error = %v", err)
	}
	_ = c.Quit()

	got := h.snapshot()
	if len(got) != 2 {
		t.Fatalf("deliveries = %d, want 2", len(got))
	}
	for _, d := range got {
		if d.from != "news@shop.example.com" {
			t.Errorf("from = %q", d.from)
		}
		if !h.known[d.rcpt] {
			t.Errorf("unexpected recipient %q", d.rcpt)
		}
		if !strings.Contains(d.data, "Subject: hi") {
			t.Errorf("data = %q", d.data)
		}
	}
}

func TestServer_UnknownRecipient(t *testing.T) {
	t.Parallel()

	h := &fakeHandler{known: map[string]bool{}}
	c := dial(t, startServer(t, h))

	if err := c.Mail("spam@example.net", nil); err != nil {
		t.Fatal(err)
	}
	err := c.Rcpt("nobody@mail.example.org", nil)
	var smtpErr *smtp.SMTPError
	if !errors.As(err, &smtpErr) || smtpErr.Code != 550 {
		t.Fatalf("Rcpt() error = %v, want 550", err)
	}
	if err := send(t, c, testMessage); err == nil {
		t.Error("Data without recipients should fail")
	}
	if n := len(h.snapshot()); n != 0 {
		t.Errorf("deliveries = %d, want 0", n)
	}
}

func TestServer_LookupFailure(t *testing.T) {
	t.Parallel()

	h := &fakeHandler{lookupErr: errors.New("database is locked")}
	c := dial(t, startServer(t, h))

	if err := c.Mail("a@example.net", nil); err != nil {
		t.Fatal(err)
	}
	err := c.Rcpt("x@mail.example.org", nil)
	var smtpErr *smtp.SMTPError
	if !errors.As(err, &smtpErr) || smtpErr.Code != 451 {
		t.Fatalf("Rcpt() error = %v, want 451", err)
	}
}

func TestServer_DeliveryFailureIsNotRejected(t *testing.T) {
	t.Parallel()

	h := &fakeHandler{
		known:      map[string]bool{"a.b.0003@mail.example.org": true},
		deliverErr: errors.New("disk full"),
	}
	c := dial(t, startServer(t, h))

	if err := c.Mail("a@example.net", nil); err != nil {
		t.Fatal(err)
	}
	if err := c.Rcpt("a.b.0003@mail.example.org", nil); err != nil {
		t.Fatal(err)
	}
	if err := send(t, c, testMessage); err != nil {
		t.Errorf("Data error = %v, want accepted", err)
	}
	if n := len(h.snapshot()); n != 1 {
		t.Errorf("deliveries = %d, want 1", n)
	}
}

func TestServer_MessageTooLarge(t *testing.T) {
	t.Parallel()

	h := &fakeHandler{known: map[string]bool{"a.b.0004@mail.example.org": true}}
	c := dial(t, startServer(t, h, WithMaxMessageBytes(64)))

	if err := c.Mail("a@example.net", nil); err != nil {
		t.Fatal(err)
	}
	if err := c.Rcpt("a.b.0004@mail.example.org", nil); err != nil {
		t.Fatal(err)
	}
	if err := send(t, c, testMessage+strings.Repeat("x", 256)+"\r\n"); err == nil {
		t.Error("oversized message should be rejected")
	}
	if n := len(h.snapshot()); n != 0 {
		t.Errorf("deliveries = %d, want 0", n)
	}
}
