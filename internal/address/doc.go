// Package address generates honeypot email addresses.
//
// Addresses have the form word.word.NNNN@domain, where the words come from
// the BIP-39 English word list. The list is short, lowercase ASCII and free
// of ambiguous words, so generated addresses look like ordinary personal
// addresses and are always valid RFC 5322 local parts.
package address
