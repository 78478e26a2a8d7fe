package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/leakbox/internal/coordinator"
	"github.com/nao1215/leakbox/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeUsers struct {
	mu      sync.Mutex
	results []bool
	err     error
	calls   []string
	site    string
	url     string
}

func (f *fakeUsers) AddUser(_ context.Context, email, site, registrationURL string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, email)
	f.site, f.url = site, registrationURL
	if f.err != nil {
		return false, f.err
	}
	if len(f.results) == 0 {
		return true, nil
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r, nil
}

type seqGenerator struct {
	n int
}

func (g *seqGenerator) Generate(domain string) (string, error) {
	g.n++
	return "user" + string(rune('0'+g.n)) + "@" + domain, nil
}

type fakeLinkGroups struct {
	group      *model.LinkGroup
	acquireErr error
	submitErr  error
	gotID      int64
	gotReports []model.FetchReport
}

func (f *fakeLinkGroups) Acquire(context.Context) (*model.LinkGroup, bool, error) {
	if f.acquireErr != nil {
		return nil, false, f.acquireErr
	}
	return f.group, f.group != nil, nil
}

func (f *fakeLinkGroups) Submit(_ context.Context, id int64, reports []model.FetchReport) error {
	f.gotID = id
	f.gotReports = reports
	return f.submitErr
}

func newTestRouter(users UserStore, groups LinkGroups) *gin.Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(users, &seqGenerator{}, groups, "mail.example.org", WithLogger(logger))
	return NewRouter(h)
}

func do(t *testing.T, r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegister(t *testing.T) {
	t.Parallel()

	t.Run("form parameters", func(t *testing.T) {
		t.Parallel()
		users := &fakeUsers{}
		r := newTestRouter(users, &fakeLinkGroups{})

		form := url.Values{"site": {"Example Shop"}, "url": {"https://shop.example.com/signup"}}
		req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := do(t, r, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if got := w.Body.String(); got != "user1@mail.example.org" {
			t.Errorf("body = %q", got)
		}
		if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain") {
			t.Errorf("content type = %q", w.Header().Get("Content-Type"))
		}
		if users.site != "Example Shop" || users.url != "https://shop.example.com/signup" {
			t.Errorf("stored site=%q url=%q", users.site, users.url)
		}
	})

	t.Run("query parameters", func(t *testing.T) {
		t.Parallel()
		r := newTestRouter(&fakeUsers{}, &fakeLinkGroups{})
		req := httptest.NewRequest(http.MethodPost, "/register?site=a&url=https://a.example", nil)
		if w := do(t, r, req); w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})

	t.Run("missing parameter", func(t *testing.T) {
		t.Parallel()
		users := &fakeUsers{}
		r := newTestRouter(users, &fakeLinkGroups{})
		req := httptest.NewRequest(http.MethodPost, "/register?site=a", nil)
		w := do(t, r, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
		if !strings.Contains(w.Body.String(), "400 Bad Request") {
			t.Errorf("body = %q", w.Body.String())
		}
		if len(users.calls) != 0 {
			t.Errorf("AddUser called %d times", len(users.calls))
		}
	})

	t.Run("retries on collision", func(t *testing.T) {
		t.Parallel()
		users := &fakeUsers{results: []bool{false, false, true}}
		r := newTestRouter(users, &fakeLinkGroups{})
		req := httptest.NewRequest(http.MethodPost, "/register?site=a&url=b", nil)
		w := do(t, r, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if got := w.Body.String(); got != "user3@mail.example.org" {
			t.Errorf("body = %q", got)
		}
	})

	t.Run("gives up after three collisions", func(t *testing.T) {
		t.Parallel()
		users := &fakeUsers{results: []bool{false, false, false, true}}
		r := newTestRouter(users, &fakeLinkGroups{})
		req := httptest.NewRequest(http.MethodPost, "/register?site=a&url=b", nil)
		w := do(t, r, req)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", w.Code)
		}
		if len(users.calls) != registerAttempts {
			t.Errorf("attempts = %d, want %d", len(users.calls), registerAttempts)
		}
	})

	t.Run("storage failure", func(t *testing.T) {
		t.Parallel()
		users := &fakeUsers{err: errors.New("disk full")}
		r := newTestRouter(users, &fakeLinkGroups{})
		req := httptest.NewRequest(http.MethodPost, "/register?site=a&url=b", nil)
		w := do(t, r, req)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", w.Code)
		}
		if len(users.calls) != 1 {
			t.Errorf("attempts = %d, want 1", len(users.calls))
		}
		if !strings.Contains(w.Body.String(), "500 Internal Server Error") {
			t.Errorf("body = %q", w.Body.String())
		}
	})
}

func TestVisit(t *testing.T) {
	t.Parallel()

	t.Run("nothing pending", func(t *testing.T) {
		t.Parallel()
		r := newTestRouter(&fakeUsers{}, &fakeLinkGroups{})
		w := do(t, r, httptest.NewRequest(http.MethodGet, "/visit", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if got := strings.TrimSpace(w.Body.String()); got != "{}" {
			t.Errorf("body = %q, want {}", got)
		}
		if !strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
			t.Errorf("content type = %q", w.Header().Get("Content-Type"))
		}
	})

	t.Run("group issued", func(t *testing.T) {
		t.Parallel()
		groups := &fakeLinkGroups{group: &model.LinkGroup{ID: 7, URLs: []string{"https://a.example/x", "https://b.example/y"}}}
		r := newTestRouter(&fakeUsers{}, groups)
		w := do(t, r, httptest.NewRequest(http.MethodGet, "/visit", nil))
		want := `{"id":7,"links":["https://a.example/x","https://b.example/y"]}`
		if got := strings.TrimSpace(w.Body.String()); got != want {
			t.Errorf("body = %s, want %s", got, want)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		t.Parallel()
		r := newTestRouter(&fakeUsers{}, &fakeLinkGroups{acquireErr: errors.New("boom")})
		w := do(t, r, httptest.NewRequest(http.MethodGet, "/visit", nil))
		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", w.Code)
		}
	})
}

func TestResults(t *testing.T) {
	t.Parallel()

	post := func(t *testing.T, r http.Handler, body string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodPost, "/results", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return do(t, r, req)
	}

	t.Run("accepted", func(t *testing.T) {
		t.Parallel()
		groups := &fakeLinkGroups{}
		r := newTestRouter(&fakeUsers{}, groups)
		w := post(t, r, `{"id":3,"requests":[["https://t.example/a",null,null],["https://t.example/b","https://ref.example/","k=v"]]}`)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if w.Body.Len() != 0 {
			t.Errorf("body = %q, want empty", w.Body.String())
		}
		if groups.gotID != 3 || len(groups.gotReports) != 2 {
			t.Fatalf("got id=%d reports=%d", groups.gotID, len(groups.gotReports))
		}
		first, second := groups.gotReports[0], groups.gotReports[1]
		if first.URL != "https://t.example/a" || first.Referrer != nil || first.PostBody != nil {
			t.Errorf("first = %+v", first)
		}
		if second.Referrer == nil || *second.Referrer != "https://ref.example/" {
			t.Errorf("second referrer = %v", second.Referrer)
		}
		if second.PostBody == nil || *second.PostBody != "k=v" {
			t.Errorf("second post = %v", second.PostBody)
		}
	})

	t.Run("empty requests", func(t *testing.T) {
		t.Parallel()
		groups := &fakeLinkGroups{}
		r := newTestRouter(&fakeUsers{}, groups)
		if w := post(t, r, `{"id":4,"requests":[]}`); w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
		if groups.gotID != 4 {
			t.Errorf("Submit not called with id 4")
		}
	})

	badBodies := map[string]string{
		"empty":            ``,
		"not json":         `hello`,
		"missing id":       `{"requests":[]}`,
		"missing requests": `{"id":1}`,
		"empty entry":      `{"id":1,"requests":[[]]}`,
		"null url":         `{"id":1,"requests":[[null,null,null]]}`,
		"too many fields":  `{"id":1,"requests":[["a","b","c","d"]]}`,
		"wrong type":       `{"id":"one","requests":[]}`,
	}
	for name, body := range badBodies {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			groups := &fakeLinkGroups{}
			r := newTestRouter(&fakeUsers{}, groups)
			if w := post(t, r, body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			if groups.gotReports != nil {
				t.Error("Submit should not be called")
			}
		})
	}

	t.Run("unknown group", func(t *testing.T) {
		t.Parallel()
		r := newTestRouter(&fakeUsers{}, &fakeLinkGroups{submitErr: coordinator.ErrUnknownGroup})
		if w := post(t, r, `{"id":99,"requests":[]}`); w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("internal failure", func(t *testing.T) {
		t.Parallel()
		r := newTestRouter(&fakeUsers{}, &fakeLinkGroups{submitErr: errors.New("db locked")})
		if w := post(t, r, `{"id":1,"requests":[]}`); w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", w.Code)
		}
	})
}

func TestServer_Serve(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(&fakeUsers{}, &seqGenerator{}, &fakeLinkGroups{}, "mail.example.org", WithLogger(logger))
	srv := NewServer("127.0.0.1:0", h)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, l) }()

	resp, err := http.Get("http://" + l.Addr().String() + "/visit")
	if err != nil {
		cancel()
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Serve() error = %v", err)
	}
}
