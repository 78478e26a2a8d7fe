// Package mailserver is the inbound SMTP boundary of leakbox.
//
// It accepts mail only for registered honeypot addresses and hands each
// accepted message to a Handler once per recipient. It never relays.
package mailserver
