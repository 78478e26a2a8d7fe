package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"strings"
	"time"

	"github.com/nao1215/leakbox/internal/database"
	"github.com/nao1215/leakbox/internal/model"
	"github.com/nao1215/leakbox/internal/prober"
	"github.com/nao1215/leakbox/internal/variant"
)

// ErrNoRecipient is returned when a message has no registered owner.
var ErrNoRecipient = errors.New("message has no registered recipient")

// Store is the persistence the analyzer needs.
type Store interface {
	AddLeakEvent(ctx context.Context, ev *model.LeakEvent) error
	AddRedirectChain(ctx context.Context, chain *model.RedirectChain) error
	AddLinkGroup(ctx context.Context, group *model.LinkGroup) (int64, error)
}

// Prober follows the redirect chain of a URL.
type Prober interface {
	Probe(ctx context.Context, rawURL string) (*prober.Result, error)
}

// Scheduler runs probe tasks later.
type Scheduler interface {
	Schedule(name string, task prober.Task) error
}

// Random picks an index in [0, n).
type Random interface {
	IntN(n int) int
}

// globalRandom uses the process-wide math/rand/v2 source.
type globalRandom struct{}

func (globalRandom) IntN(n int) int { return rand.IntN(n) } //nolint:gosec // sampling, not security

// Message is a delivered message ready for analysis.
type Message struct {
	// From is the envelope sender.
	From string

	// User is the registered owner of the recipient address.
	User *model.User

	// Inventory is the extracted link list.
	Inventory model.Inventory
}

// Outcome summarises what Analyze decided.
type Outcome struct {
	// Leaks are the message-level leak events recorded.
	Leaks []model.LeakEvent

	// Probes are the URLs scheduled for probing, in order.
	Probes []string

	// Deferred are the URLs placed in a link group.
	Deferred []string

	// GroupID is the ID of the created link group, or 0.
	GroupID int64
}

// Analyzer classifies message links and records findings.
type Analyzer struct {
	store     Store
	prober    Prober
	scheduler Scheduler
	matcher   variant.Matcher
	random    Random
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

// WithMatcher replaces the default substring matcher.
func WithMatcher(m variant.Matcher) Option {
	return func(a *Analyzer) {
		a.matcher = m
	}
}

// WithRandom sets the source used to pick the sample probe.
func WithRandom(r Random) Option {
	return func(a *Analyzer) {
		a.random = r
	}
}

// WithClock sets the time source for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		a.now = now
	}
}

// New creates an Analyzer.
func New(store Store, p Prober, scheduler Scheduler, opts ...Option) *Analyzer {
	a := &Analyzer{
		store:     store,
		prober:    p,
		scheduler: scheduler,
		matcher:   variant.ContainsMatcher{},
		random:    globalRandom{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Analyze processes one message. Only a missing recipient is an error;
// storage and scheduling failures are logged.
func (a *Analyzer) Analyze(ctx context.Context, msg Message) (*Outcome, error) {
	if msg.User == nil || msg.User.Email == "" {
		return nil, ErrNoRecipient
	}

	variants := variant.Generate(msg.User.Email)
	o := origin{
		senderDomain:  SenderDomain(msg.User, msg.From),
		senderAddress: msg.From,
		recipientID:   msg.User.ID,
	}
	outcome := &Outcome{}

	matched := make(map[string]bool)
	emitted := newOrderedSet()
	for _, link := range msg.Inventory {
		for _, v := range a.matcher.Match(link.URL, variants) {
			matched[link.URL] = true
			if emitted.has(pairKey(link.URL, v.Name)) {
				continue
			}
			emitted.add(pairKey(link.URL, v.Name))
			ev := o.event(link.URL, v, model.SourceMessage, false, a.now())
			a.addLeak(ctx, &ev)
			outcome.Leaks = append(outcome.Leaks, ev)
		}
	}

	probes := a.selectProbes(msg.Inventory, matched)
	for _, u := range probes {
		a.scheduleProbe(u, variants, o)
	}
	outcome.Probes = probes

	probed := make(map[string]bool, len(probes))
	for _, u := range probes {
		probed[u] = true
	}
	deferred := newOrderedSet()
	for _, link := range msg.Inventory {
		if probed[link.URL] || matched[link.URL] {
			continue
		}
		if len(link.URL) > database.MaxURLLength {
			a.logger.Warn("link too long to defer", "recipient_id", o.recipientID, "length", len(link.URL))
			continue
		}
		deferred.add(link.URL)
	}
	outcome.Deferred = deferred.items

	if len(deferred.items) > 0 {
		id, err := a.store.AddLinkGroup(ctx, &model.LinkGroup{
			SenderDomain:  o.senderDomain,
			SenderAddress: o.senderAddress,
			RecipientID:   o.recipientID,
			URLs:          deferred.items,
		})
		if err != nil {
			a.logger.Error("failed to store link group",
				"recipient_id", o.recipientID,
				"links", len(deferred.items),
				"error", err,
			)
		} else {
			outcome.GroupID = id
		}
	}

	a.logger.Info("message analyzed",
		"recipient_id", o.recipientID,
		"sender", msg.From,
		"links", len(msg.Inventory),
		"leaks", len(outcome.Leaks),
		"probes", len(outcome.Probes),
		"deferred", len(outcome.Deferred),
	)
	return outcome, nil
}

// selectProbes returns the de-duplicated URLs to probe now: every 1x1
// image, every matched image-like link, and one random unmatched image-like
// link that was not otherwise selected.
func (a *Analyzer) selectProbes(inv model.Inventory, matched map[string]bool) []string {
	selected := newOrderedSet()
	for _, link := range inv {
		if link.IsTrackingPixel() || (link.IsImageLike() && matched[link.URL]) {
			selected.add(link.URL)
		}
	}

	candidates := newOrderedSet()
	for _, link := range inv {
		if !link.IsImageLike() || link.IsTrackingPixel() || matched[link.URL] || selected.has(link.URL) {
			continue
		}
		candidates.add(link.URL)
	}
	if n := len(candidates.items); n > 0 {
		selected.add(candidates.items[a.random.IntN(n)])
	}

	return selected.items
}

// scheduleProbe queues a probe of rawURL on the scheduler.
func (a *Analyzer) scheduleProbe(rawURL string, variants []model.Variant, o origin) {
	err := a.scheduler.Schedule("probe "+rawURL, func(ctx context.Context) error {
		return a.probe(ctx, rawURL, variants, o)
	})
	if err != nil {
		a.logger.Warn("failed to schedule probe", "url", rawURL, "error", err)
	}
}

// probe runs one probe, stores its chain and records hop leaks.
func (a *Analyzer) probe(ctx context.Context, rawURL string, variants []model.Variant, o origin) error {
	result, err := a.prober.Probe(ctx, rawURL)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	if len(result.Hops) == 0 {
		return nil
	}

	chain := &model.RedirectChain{
		RequestedURL:  rawURL,
		Hops:          result.Hops,
		SenderDomain:  o.senderDomain,
		SenderAddress: o.senderAddress,
		RecipientID:   o.recipientID,
	}
	if err := a.store.AddRedirectChain(ctx, chain); err != nil {
		a.logger.Error("failed to store redirect chain", "url", rawURL, "error", err)
	}

	emitted := newOrderedSet()
	for _, hop := range result.Hops {
		for _, v := range a.matcher.Match(hop.URL, variants) {
			if emitted.has(pairKey(hop.URL, v.Name)) {
				continue
			}
			emitted.add(pairKey(hop.URL, v.Name))
			ev := o.event(hop.URL, v, model.SourceRedirect, true, a.now())
			a.addLeak(ctx, &ev)
		}
	}
	return nil
}

func (a *Analyzer) addLeak(ctx context.Context, ev *model.LeakEvent) {
	a.logger.Info("leak detected",
		"url", ev.URL,
		"variant", ev.Variant,
		"source", ev.Source,
		"sender_domain", ev.SenderDomain,
		"recipient_id", ev.RecipientID,
	)
	if err := a.store.AddLeakEvent(ctx, ev); err != nil {
		a.logger.Error("failed to store leak event", "url", ev.URL, "error", err)
	}
}

// origin identifies the message a finding belongs to.
type origin struct {
	senderDomain  string
	senderAddress string
	recipientID   int64
}

func (o origin) event(u string, v model.Variant, src model.LeakSource, redirect bool, at time.Time) model.LeakEvent {
	return model.LeakEvent{
		URL:           u,
		Variant:       v.Name,
		Source:        src,
		IsRedirect:    redirect,
		SenderDomain:  o.senderDomain,
		SenderAddress: o.senderAddress,
		RecipientID:   o.recipientID,
		ObservedAt:    at,
	}
}

// SenderDomain returns the host of the site the user registered with,
// falling back to the domain of the envelope sender.
func SenderDomain(user *model.User, from string) string {
	if user != nil {
		if u, err := url.Parse(user.RegistrationURL); err == nil && u.Hostname() != "" {
			return strings.ToLower(u.Hostname())
		}
	}
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		return strings.ToLower(from[at+1:])
	}
	return ""
}

// pairKey identifies one (url, variant) leak.
func pairKey(u, variantName string) string {
	return u + "\x00" + variantName
}

// orderedSet keeps first-seen order.
type orderedSet struct {
	items []string
	seen  map[string]struct{}
}

func newOrderedSet() *orderedSet {
	return &orderedSet{items: make([]string, 0), seen: make(map[string]struct{})}
}

func (s *orderedSet) add(v string) {
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}

func (s *orderedSet) has(v string) bool {
	_, ok := s.seen[v]
	return ok
}
