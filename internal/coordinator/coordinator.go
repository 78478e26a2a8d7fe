package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/leakbox/internal/model"
	"github.com/nao1215/leakbox/internal/variant"
)

var (
	// ErrUnknownGroup is returned when a submitted group does not exist or
	// was already consumed.
	ErrUnknownGroup = errors.New("unknown link group")

	// ErrUnknownRecipient is returned when a group's owner cannot be found.
	ErrUnknownRecipient = errors.New("unknown link group recipient")
)

// Store is the persistence the coordinator needs.
type Store interface {
	AcquireLinkGroup(ctx context.Context) (*model.LinkGroup, error)
	ClaimLinkGroup(ctx context.Context, id int64) (*model.LinkGroup, error)
	UserByID(ctx context.Context, id int64) (*model.User, error)
	AddLeakEvent(ctx context.Context, ev *model.LeakEvent) error
}

// Coordinator serves link groups and ingests fetch reports.
type Coordinator struct {
	store   Store
	matcher variant.Matcher
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithMatcher replaces the default substring matcher.
func WithMatcher(m variant.Matcher) Option {
	return func(c *Coordinator) {
		c.matcher = m
	}
}

// WithClock sets the time source for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// New creates a Coordinator.
func New(store Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:   store,
		matcher: variant.ContainsMatcher{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Acquire issues one un-issued link group. The boolean is false when none
// is available.
func (c *Coordinator) Acquire(ctx context.Context) (*model.LinkGroup, bool, error) {
	group, err := c.store.AcquireLinkGroup(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire link group: %w", err)
	}
	if group == nil {
		return nil, false, nil
	}
	c.logger.Debug("link group issued", "id", group.ID, "links", len(group.URLs))
	return group, true, nil
}

// Submit consumes group id and records leaks found in reports.
//
// Reports for one of the group's own URLs are skipped. For every other
// report only the highest-precedence field that contains a variant is
// considered, in the order post body, URL, referrer; it yields one leak
// event per variant it contains.
func (c *Coordinator) Submit(ctx context.Context, id int64, reports []model.FetchReport) error {
	group, err := c.store.ClaimLinkGroup(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to claim link group %d: %w", id, err)
	}
	if group == nil {
		return fmt.Errorf("%w: %d", ErrUnknownGroup, id)
	}

	user, err := c.store.UserByID(ctx, group.RecipientID)
	if err != nil {
		return fmt.Errorf("failed to look up recipient %d: %w", group.RecipientID, err)
	}
	if user == nil {
		return fmt.Errorf("%w: %d", ErrUnknownRecipient, group.RecipientID)
	}

	variants := variant.Generate(user.Email)
	recorded := 0
	emitted := make(map[string]struct{})
	for _, report := range reports {
		if group.Contains(report.URL) {
			continue
		}
		source, matched := c.match(report, variants)
		for _, v := range matched {
			key := report.URL + "\x00" + v.Name
			if _, dup := emitted[key]; dup {
				continue
			}
			emitted[key] = struct{}{}
			ev := &model.LeakEvent{
				URL:           report.URL,
				Variant:       v.Name,
				Source:        source,
				IsRedirect:    true,
				SenderDomain:  group.SenderDomain,
				SenderAddress: group.SenderAddress,
				RecipientID:   group.RecipientID,
				ObservedAt:    c.now(),
			}
			if err := c.store.AddLeakEvent(ctx, ev); err != nil {
				return fmt.Errorf("failed to store leak event for group %d: %w", id, err)
			}
			recorded++
			c.logger.Info("leak reported by fetch agent",
				"group", id,
				"url", report.URL,
				"variant", v.Name,
				"source", source,
			)
		}
	}

	c.logger.Info("link group consumed",
		"id", id,
		"reports", len(reports),
		"leaks", recorded,
	)
	return nil
}

// match returns the source and variants of the highest-precedence field of
// report that contains any variant.
func (c *Coordinator) match(report model.FetchReport, variants []model.Variant) (model.LeakSource, []model.Variant) {
	if report.PostBody != nil {
		if m := c.matcher.Match(*report.PostBody, variants); len(m) > 0 {
			return model.SourceAgentPost, m
		}
	}
	if m := c.matcher.Match(report.URL, variants); len(m) > 0 {
		return model.SourceAgentRequest, m
	}
	if report.Referrer != nil {
		if m := c.matcher.Match(*report.Referrer, variants); len(m) > 0 {
			return model.SourceAgentReferrer, m
		}
	}
	return "", nil
}
