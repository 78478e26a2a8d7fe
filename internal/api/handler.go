package api

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/leakbox/internal/coordinator"
	"github.com/nao1215/leakbox/internal/model"
)

// registerAttempts bounds address generation when a collision occurs.
const registerAttempts = 3

// UserStore registers new users.
type UserStore interface {
	AddUser(ctx context.Context, email, site, registrationURL string) (bool, error)
}

// AddressGenerator produces candidate addresses.
type AddressGenerator interface {
	Generate(domain string) (string, error)
}

// LinkGroups is the hand-off protocol behind /visit and /results.
type LinkGroups interface {
	Acquire(ctx context.Context) (*model.LinkGroup, bool, error)
	Submit(ctx context.Context, id int64, reports []model.FetchReport) error
}

// Handler serves the leakbox HTTP routes.
type Handler struct {
	users      UserStore
	generator  AddressGenerator
	linkGroups LinkGroups
	domain     string
	logger     *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler creates a Handler that hands out addresses at domain.
func NewHandler(users UserStore, generator AddressGenerator, linkGroups LinkGroups, domain string, opts ...HandlerOption) *Handler {
	h := &Handler{
		users:      users,
		generator:  generator,
		linkGroups: linkGroups,
		domain:     domain,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// Register creates a new address for a site.
func (h *Handler) Register(c *gin.Context) {
	site, registrationURL := param(c, "site"), param(c, "url")
	if site == "" || registrationURL == "" {
		errorPage(c, http.StatusBadRequest)
		return
	}

	h.logger.Info("register", "site", site, "url", registrationURL)

	for range registerAttempts {
		email, err := h.generator.Generate(h.domain)
		if err != nil {
			h.logger.Error("failed to generate address", "error", err)
			break
		}
		added, err := h.users.AddUser(c.Request.Context(), email, site, registrationURL)
		if err != nil {
			h.logger.Error("failed to create user", "error", err)
			break
		}
		if added {
			h.logger.Info("user created", "email", email, "site", site)
			c.String(http.StatusOK, email)
			return
		}
		h.logger.Debug("address collision", "email", email)
	}

	errorPage(c, http.StatusInternalServerError)
}

type visitResponse struct {
	ID    int64    `json:"id"`
	Links []string `json:"links"`
}

// Visit hands one link group to the fetch agent.
func (h *Handler) Visit(c *gin.Context) {
	group, ok, err := h.linkGroups.Acquire(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to acquire link group", "error", err)
		errorPage(c, http.StatusInternalServerError)
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{})
		return
	}

	h.logger.Info("visit", "id", group.ID, "links", len(group.URLs))
	c.JSON(http.StatusOK, visitResponse{ID: group.ID, Links: group.URLs})
}

// resultsRequest mirrors the /results body. Pointers distinguish missing
// fields from zero values.
type resultsRequest struct {
	ID       *int64       `json:"id"`
	Requests *[][]*string `json:"requests"`
}

var errMalformedReport = errors.New("malformed report entry")

// Results ingests the fetch agent's reports for a link group.
func (h *Handler) Results(c *gin.Context) {
	var req resultsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ID == nil || req.Requests == nil {
		errorPage(c, http.StatusBadRequest)
		return
	}

	reports, err := toReports(*req.Requests)
	if err != nil {
		errorPage(c, http.StatusBadRequest)
		return
	}

	h.logger.Info("results", "id", *req.ID, "reports", len(reports))

	err = h.linkGroups.Submit(c.Request.Context(), *req.ID, reports)
	switch {
	case err == nil:
		c.Status(http.StatusOK)
	case errors.Is(err, coordinator.ErrUnknownGroup), errors.Is(err, coordinator.ErrUnknownRecipient):
		h.logger.Warn("rejected results", "id", *req.ID, "error", err)
		errorPage(c, http.StatusBadRequest)
	default:
		h.logger.Error("failed to process results", "id", *req.ID, "error", err)
		errorPage(c, http.StatusInternalServerError)
	}
}

// toReports converts [url, referrer, post] triples. Missing trailing
// entries are treated as null; the URL is required.
func toReports(entries [][]*string) ([]model.FetchReport, error) {
	reports := make([]model.FetchReport, 0, len(entries))
	for i, entry := range entries {
		if len(entry) == 0 || len(entry) > 3 || entry[0] == nil {
			return nil, fmt.Errorf("%w: index %d", errMalformedReport, i)
		}
		r := model.FetchReport{URL: *entry[0]}
		if len(entry) > 1 {
			r.Referrer = entry[1]
		}
		if len(entry) > 2 {
			r.PostBody = entry[2]
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// param reads a form value, falling back to the query string.
func param(c *gin.Context, name string) string {
	if v := c.PostForm(name); v != "" {
		return v
	}
	return c.Query(name)
}

// errorPage writes a minimal HTML error page.
func errorPage(c *gin.Context, status int) {
	body := fmt.Sprintf("<html><body><h2>%d %s</h2></body></html>", status, html.EscapeString(http.StatusText(status)))
	c.Data(status, "text/html; charset=utf-8", []byte(body))
}
