package model

import (
	"net/url"
	"testing"
	"time"
)

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func TestNewLeakReport(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []LeakEvent{
		{URL: "https://track.adnet.example/p?e=x", Variant: "md5", Source: SourceMessage, SenderDomain: "shop.example.com", RecipientID: 1, ObservedAt: t0.Add(time.Hour)},
		{URL: "https://links.shop.example.com/c?e=x", Variant: "raw", Source: SourceMessage, SenderDomain: "shop.example.com", RecipientID: 1, ObservedAt: t0},
		{URL: "https://cdn.adnet.example/r?e=x", Variant: "md5", Source: SourceRedirect, IsRedirect: true, SenderDomain: "shop.example.com", RecipientID: 2, ObservedAt: t0.Add(2 * time.Hour)},
		{URL: "https://a.example/x", Variant: "raw", Source: SourceAgentPost, IsRedirect: true, SenderDomain: "news.example.org", RecipientID: 3, ObservedAt: t0},
	}

	r := NewLeakReport(3, events, hostOf, t0)

	if r.TotalLeaks != 4 || !r.HasLeaks() || r.Users != 3 {
		t.Fatalf("report = %+v", r)
	}
	if len(r.Domains) != 2 || r.Domains[0].SenderDomain != "shop.example.com" {
		t.Fatalf("domains = %+v", r.Domains)
	}

	shop := r.Domains[0]
	if shop.Leaks != 3 || shop.Redirects != 1 || shop.Recipients != 2 {
		t.Errorf("shop counts = leaks %d, redirects %d, recipients %d", shop.Leaks, shop.Redirects, shop.Recipients)
	}
	if shop.Sources[SourceMessage] != 2 || shop.Sources[SourceRedirect] != 1 {
		t.Errorf("sources = %v", shop.Sources)
	}
	if len(shop.Variants) != 2 || shop.Variants[0] != "md5" || shop.Variants[1] != "raw" {
		t.Errorf("variants = %v", shop.Variants)
	}
	if !shop.FirstSeen.Equal(t0) || !shop.LastSeen.Equal(t0.Add(2*time.Hour)) {
		t.Errorf("seen = %v .. %v", shop.FirstSeen, shop.LastSeen)
	}

	third := shop.ThirdPartyHosts()
	if len(third) != 2 || third[0] != "cdn.adnet.example" || third[1] != "track.adnet.example" {
		t.Errorf("ThirdPartyHosts() = %v", third)
	}
}

func TestNewLeakReport_Empty(t *testing.T) {
	t.Parallel()

	r := NewLeakReport(0, nil, nil, time.Time{})
	if r.HasLeaks() || len(r.Domains) != 0 {
		t.Errorf("report = %+v", r)
	}
}

func TestThirdPartyHosts_ParentDomain(t *testing.T) {
	t.Parallel()

	d := DomainLeaks{
		SenderDomain: "shop.example.com",
		Hosts:        []string{"adnet.example", "example.com", "shop.example.com"},
	}
	got := d.ThirdPartyHosts()
	if len(got) != 1 || got[0] != "adnet.example" {
		t.Errorf("ThirdPartyHosts() = %v", got)
	}
}

func TestAddRedirectChains(t *testing.T) {
	t.Parallel()

	r := NewLeakReport(1, nil, nil, time.Time{})
	r.AddRedirectChains([]RedirectChain{
		{
			RequestedURL: "https://links.shop.example.com/c1",
			SenderDomain: "shop.example.com",
			Hops: []Hop{
				{Index: 1, Host: "t.adnet.example", Domain: "adnet.example", URL: "https://t.adnet.example/r"},
				{Index: 2, Host: "www.example.com", Domain: "example.com", URL: "https://www.example.com/"},
			},
		},
		{
			RequestedURL: "https://links.shop.example.com/c2",
			SenderDomain: "shop.example.com",
			Hops:         []Hop{{Index: 1, Host: "sync.other.example", URL: "https://sync.other.example/"}},
		},
		{
			RequestedURL: "https://news.example.org/p.gif",
			SenderDomain: "news.example.org",
			Hops:         []Hop{{Index: 1, Host: "cdn.example.org", Domain: "example.org", URL: "https://cdn.example.org/p.gif"}},
		},
	})

	if len(r.Redirects) != 2 || r.Redirects[0].SenderDomain != "news.example.org" {
		t.Fatalf("Redirects = %+v", r.Redirects)
	}
	if third := r.Redirects[0].ThirdPartyDomains(); len(third) != 0 {
		t.Errorf("news third parties = %v", third)
	}

	shop := r.Redirects[1]
	if shop.Chains != 2 {
		t.Errorf("Chains = %d, want 2", shop.Chains)
	}
	want := []string{"adnet.example", "example.com", "sync.other.example"}
	if len(shop.HopDomains) != len(want) {
		t.Fatalf("HopDomains = %v", shop.HopDomains)
	}
	for i := range want {
		if shop.HopDomains[i] != want[i] {
			t.Errorf("HopDomains = %v, want %v", shop.HopDomains, want)
		}
	}
	third := shop.ThirdPartyDomains()
	if len(third) != 2 || third[0] != "adnet.example" || third[1] != "sync.other.example" {
		t.Errorf("ThirdPartyDomains() = %v", third)
	}
}
