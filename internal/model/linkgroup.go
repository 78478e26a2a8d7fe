package model

// LinkGroup is a batch of links from one message that were not probed
// directly. The group is handed to an external fetch agent by /visit and
// consumed exactly once by /results.
type LinkGroup struct {
	ID            int64    `json:"id"`
	SenderDomain  string   `json:"senderDomain"`
	SenderAddress string   `json:"senderAddress"`
	RecipientID   int64    `json:"recipientId"`
	URLs          []string `json:"urls"`
}

// Contains reports whether rawURL is one of the group's original URLs.
func (g *LinkGroup) Contains(rawURL string) bool {
	for _, u := range g.URLs {
		if u == rawURL {
			return true
		}
	}
	return false
}

// FetchReport is one request the fetch agent actually performed while
// visiting a link group. Referrer and PostBody are nil when absent.
type FetchReport struct {
	URL      string  `json:"url"`
	Referrer *string `json:"referrer,omitempty"`
	PostBody *string `json:"postBody,omitempty"`
}
