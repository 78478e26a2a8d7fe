package model

import "time"

// Hop is one redirect followed while probing a URL.
type Hop struct {
	// Index is the 1-based position of the hop in its chain.
	Index int `json:"index"`

	// Host is the host name of the hop URL.
	Host string `json:"host"`

	// Domain is the registrable domain (eTLD+1) of Host, or Host when it has none.
	Domain string `json:"domain"`

	// URL is the redirect target.
	URL string `json:"url"`
}

// RedirectChain is the ordered sequence of redirects followed from a
// requested URL. A chain without hops is never persisted.
type RedirectChain struct {
	RequestedURL  string `json:"requestedUrl"`
	Hops          []Hop  `json:"hops"`
	SenderDomain  string `json:"senderDomain"`
	SenderAddress string `json:"senderAddress"`
	RecipientID   int64  `json:"recipientId"`
}

// IsEmpty reports whether no redirect occurred.
func (c *RedirectChain) IsEmpty() bool {
	return c == nil || len(c.Hops) == 0
}

// LeakSource describes where a leaked address was observed.
type LeakSource string

const (
	// SourceMessage is a link inside the message itself.
	SourceMessage LeakSource = "message"

	// SourceRedirect is a redirect hop followed by the prober.
	SourceRedirect LeakSource = "redirect"

	// SourceAgentPost is a POST body reported by the fetch agent.
	SourceAgentPost LeakSource = "agent-post"

	// SourceAgentRequest is a request URL reported by the fetch agent.
	SourceAgentRequest LeakSource = "agent-request"

	// SourceAgentReferrer is a Referer header reported by the fetch agent.
	SourceAgentReferrer LeakSource = "agent-referrer"
)

// LeakEvent records that a variant of a recipient address was found in a URL,
// POST body or referrer. Events are append-only.
type LeakEvent struct {
	ID            int64      `json:"id,omitempty"`
	URL           string     `json:"url"`
	Variant       string     `json:"variant"`
	Source        LeakSource `json:"source"`
	IsRedirect    bool       `json:"isRedirect"`
	SenderDomain  string     `json:"senderDomain"`
	SenderAddress string     `json:"senderAddress"`
	RecipientID   int64      `json:"recipientId"`
	ObservedAt    time.Time  `json:"observedAt"`
}
