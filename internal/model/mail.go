package model

import "time"

// MailEvent is the bookkeeping row appended for every delivered message.
type MailEvent struct {
	Recipient   string    `json:"recipient"`
	Sender      string    `json:"sender"`
	SentAt      time.Time `json:"sentAt"`
	Subject     string    `json:"subject"`
	ArchivePath string    `json:"archivePath"`

	// DKIM is a short verdict such as "pass:example.com", "fail" or "none".
	DKIM string `json:"dkim"`

	ReceivedAt time.Time `json:"receivedAt"`
}

// Delivery carries one inbound message through the ingest pipeline.
// Steps fill in fields as they run.
type Delivery struct {
	// From is the envelope sender.
	From string

	// Recipient is the envelope recipient as received.
	Recipient string

	// Data is the raw RFC 5322 message.
	Data []byte

	// User is the registered owner of Recipient.
	User *User

	// ArchivePath is where the raw message was written, if archival succeeded.
	ArchivePath string

	// Inventory holds the links extracted from the body.
	Inventory Inventory

	// Steps lists the names of the steps that ran.
	Steps []string

	// Errors collects non-fatal step failures.
	Errors []error
}

// NewDelivery creates a Delivery for the given envelope.
func NewDelivery(from, recipient string, data []byte) *Delivery {
	return &Delivery{
		From:      from,
		Recipient: recipient,
		Data:      data,
		Steps:     make([]string, 0),
		Errors:    make([]error, 0),
	}
}
