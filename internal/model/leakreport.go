package model

import (
	"sort"
	"time"
)

// LeakReport summarises recorded leak events per sender domain.
type LeakReport struct {
	GeneratedAt time.Time `json:"generatedAt"`

	// Users is the number of registered honeypot addresses.
	Users int `json:"users"`

	// PendingGroups and IssuedGroups count link groups awaiting the agent.
	PendingGroups int `json:"pendingGroups"`
	IssuedGroups  int `json:"issuedGroups"`

	// Messages is the number of messages received.
	Messages int `json:"messages"`

	// TotalLeaks is the number of leak events included.
	TotalLeaks int `json:"totalLeaks"`

	// Domains is sorted by leak count, highest first.
	Domains []DomainLeaks `json:"domains"`

	// Redirects summarises probed redirect chains per sender domain,
	// sorted by sender domain.
	Redirects []DomainRedirects `json:"redirects,omitempty"`
}

// DomainRedirects lists where the probed links of one sender redirected to.
type DomainRedirects struct {
	SenderDomain string `json:"senderDomain"`

	// Chains is the number of stored redirect chains.
	Chains int `json:"chains"`

	// HopDomains lists the distinct registrable domains of every hop, sorted.
	HopDomains []string `json:"hopDomains"`
}

// ThirdPartyDomains returns the hop domains that do not belong to the sender.
func (d *DomainRedirects) ThirdPartyDomains() []string {
	return thirdParty(d.HopDomains, d.SenderDomain)
}

// DomainLeaks aggregates the leak events of one sender domain.
type DomainLeaks struct {
	SenderDomain string `json:"senderDomain"`
	Leaks        int    `json:"leaks"`

	// Redirects counts events found after leaving the message.
	Redirects int `json:"redirects"`

	// Recipients is the number of distinct addresses affected.
	Recipients int `json:"recipients"`

	// Sources counts events per LeakSource.
	Sources map[LeakSource]int `json:"sources"`

	// Variants lists the distinct encodings seen, sorted.
	Variants []string `json:"variants"`

	// Hosts lists the distinct URL hosts the address was sent to, sorted.
	Hosts []string `json:"hosts"`

	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`

	Events []LeakEvent `json:"events,omitempty"`
}

// NewLeakReport builds a LeakReport from events. hostOf extracts the host
// of an event URL; events keep their input order within each domain.
func NewLeakReport(users int, events []LeakEvent, hostOf func(string) string, now time.Time) *LeakReport {
	r := &LeakReport{
		GeneratedAt: now,
		Users:       users,
		TotalLeaks:  len(events),
	}

	type acc struct {
		d          *DomainLeaks
		recipients map[int64]struct{}
		variants   map[string]struct{}
		hosts      map[string]struct{}
	}
	byDomain := make(map[string]*acc)
	order := make([]string, 0)

	for _, ev := range events {
		a, ok := byDomain[ev.SenderDomain]
		if !ok {
			a = &acc{
				d:          &DomainLeaks{SenderDomain: ev.SenderDomain, Sources: make(map[LeakSource]int)},
				recipients: make(map[int64]struct{}),
				variants:   make(map[string]struct{}),
				hosts:      make(map[string]struct{}),
			}
			byDomain[ev.SenderDomain] = a
			order = append(order, ev.SenderDomain)
		}

		d := a.d
		d.Leaks++
		if ev.IsRedirect {
			d.Redirects++
		}
		d.Sources[ev.Source]++
		a.recipients[ev.RecipientID] = struct{}{}
		a.variants[ev.Variant] = struct{}{}
		if hostOf != nil {
			if h := hostOf(ev.URL); h != "" {
				a.hosts[h] = struct{}{}
			}
		}
		if d.FirstSeen.IsZero() || ev.ObservedAt.Before(d.FirstSeen) {
			d.FirstSeen = ev.ObservedAt
		}
		if ev.ObservedAt.After(d.LastSeen) {
			d.LastSeen = ev.ObservedAt
		}
		d.Events = append(d.Events, ev)
	}

	r.Domains = make([]DomainLeaks, 0, len(order))
	for _, name := range order {
		a := byDomain[name]
		a.d.Recipients = len(a.recipients)
		a.d.Variants = sortedKeys(a.variants)
		a.d.Hosts = sortedKeys(a.hosts)
		r.Domains = append(r.Domains, *a.d)
	}
	sort.SliceStable(r.Domains, func(i, j int) bool {
		if r.Domains[i].Leaks != r.Domains[j].Leaks {
			return r.Domains[i].Leaks > r.Domains[j].Leaks
		}
		return r.Domains[i].SenderDomain < r.Domains[j].SenderDomain
	})

	return r
}

// AddRedirectChains fills Redirects from chains.
func (r *LeakReport) AddRedirectChains(chains []RedirectChain) {
	type acc struct {
		chains  int
		domains map[string]struct{}
	}
	bySender := make(map[string]*acc)
	for _, c := range chains {
		a, ok := bySender[c.SenderDomain]
		if !ok {
			a = &acc{domains: make(map[string]struct{})}
			bySender[c.SenderDomain] = a
		}
		a.chains++
		for _, h := range c.Hops {
			name := h.Domain
			if name == "" {
				name = h.Host
			}
			if name != "" {
				a.domains[name] = struct{}{}
			}
		}
	}

	r.Redirects = make([]DomainRedirects, 0, len(bySender))
	for sender, a := range bySender {
		r.Redirects = append(r.Redirects, DomainRedirects{
			SenderDomain: sender,
			Chains:       a.chains,
			HopDomains:   sortedKeys(a.domains),
		})
	}
	sort.Slice(r.Redirects, func(i, j int) bool {
		return r.Redirects[i].SenderDomain < r.Redirects[j].SenderDomain
	})
}

// HasLeaks reports whether any leak event was recorded.
func (r *LeakReport) HasLeaks() bool {
	return r.TotalLeaks > 0
}

// ThirdPartyHosts returns the hosts of d that belong neither to the sender
// domain, its subdomains, nor a parent domain of it.
func (d *DomainLeaks) ThirdPartyHosts() []string {
	return thirdParty(d.Hosts, d.SenderDomain)
}

func thirdParty(hosts []string, sender string) []string {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if h == sender || (sender != "" && (hasSuffixLabel(h, sender) || hasSuffixLabel(sender, h))) {
			continue
		}
		out = append(out, h)
	}
	return out
}

func hasSuffixLabel(host, domain string) bool {
	return len(host) > len(domain) && host[len(host)-len(domain)-1] == '.' && host[len(host)-len(domain):] == domain
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
