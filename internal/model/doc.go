// Package model defines the data structures shared by every leakbox package.
//
// This package contains the following main types:
//   - User: A registered honeypot address and the site it was handed to
//   - Link and Inventory: Candidate tracking resources extracted from a message
//   - Variant: A named transformation of a recipient address used as a search needle
//   - RedirectChain and Hop: The redirects followed while probing a resource
//   - LeakEvent: A record that a recipient address showed up where it should not
//   - LinkGroup and FetchReport: Deferred links handed to an external fetch agent
//   - MailEvent and Delivery: Inbound mail bookkeeping
//
// Models carry no behaviour beyond small helpers so that the extractor,
// analyzer, coordinator and database packages can share them without import cycles.
package model
