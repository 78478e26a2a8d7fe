// Package database provides the SQLite store behind leakbox.
//
// MailDB persists:
//   - Registered honeypot users
//   - Mail events for every delivered message
//   - Redirect chains and their hops, written in one transaction per chain
//   - Leak events
//   - Link groups awaiting the external fetch agent
//
// The store uses modernc.org/sqlite, a CGO-free driver, with a single open
// connection and WAL journaling. Link group hand-off relies on single
// UPDATE ... RETURNING and DELETE ... RETURNING statements so that a group
// is issued at most once and consumed at most once even under concurrent
// callers.
//
// Every stored URL is capped at MaxURLLength bytes.
package database
