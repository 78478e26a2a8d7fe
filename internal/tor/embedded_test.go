package tor

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestNewEmbeddedTor tests EmbeddedTor construction.
func TestNewEmbeddedTor(t *testing.T) {
	t.Parallel()

	t.Run("uses default timeout", func(t *testing.T) {
		t.Parallel()

		if got := NewEmbeddedTor().startupTimeout; got != defaultStartupTimeout {
			t.Errorf("expected default timeout %v, got %v", defaultStartupTimeout, got)
		}
	})

	t.Run("applies WithStartupTimeout", func(t *testing.T) {
		t.Parallel()

		embedded := NewEmbeddedTor(WithStartupTimeout(30 * time.Second))
		if embedded.startupTimeout != 30*time.Second {
			t.Errorf("expected timeout 30s, got %v", embedded.startupTimeout)
		}
	})
}

// TestEmbeddedTorNotStarted tests an EmbeddedTor that was never started.
func TestEmbeddedTorNotStarted(t *testing.T) {
	t.Parallel()

	embedded := NewEmbeddedTor()

	if embedded.IsRunning() {
		t.Error("expected IsRunning to be false")
	}
	if embedded.SocksAddr() != "" || embedded.ControlAddr() != "" {
		t.Error("expected empty addresses")
	}
	if err := embedded.Stop(); err != nil {
		t.Errorf("Stop on unstarted instance returned %v", err)
	}
	if _, err := embedded.NewClient(time.Second); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
}

// TestConnectExternal tests Connect with an external proxy.
func TestConnectExternal(t *testing.T) {
	t.Parallel()

	t.Run("rejects invalid address", func(t *testing.T) {
		t.Parallel()

		_, release, err := Connect(context.Background(), Options{ProxyAddress: "nope"})
		if !errors.Is(err, ErrInvalidProxyAddress) {
			t.Errorf("expected ErrInvalidProxyAddress, got %v", err)
		}
		if release() != nil {
			t.Error("release should be a no-op")
		}
	})

	t.Run("verifies the proxy", func(t *testing.T) {
		t.Parallel()

		addr := startFakeSOCKS5(t, []byte{0x05, 0x00}, []byte{0x05, 0x04, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
		client, release, err := Connect(context.Background(), Options{ProxyAddress: addr, Timeout: time.Second})
		if err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
		defer release() //nolint:errcheck
		if client.ProxyAddress() != addr {
			t.Errorf("ProxyAddress() = %q, want %q", client.ProxyAddress(), addr)
		}
	})

	t.Run("reports unreachable proxy", func(t *testing.T) {
		t.Parallel()

		_, _, err := Connect(context.Background(), Options{ProxyAddress: "127.0.0.1:59997"})
		if !errors.Is(err, ErrProxyCannotConnect) {
			t.Errorf("expected ErrProxyCannotConnect, got %v", err)
		}
	})
}
