// Package variant generates identifier variants of an email address.
//
// A tracking link rarely embeds a recipient address verbatim. Senders hash it,
// encode it or lowercase it before putting it into a query string. This
// package produces a deterministic list of such transformations so that the
// analyzer and coordinator can search candidate URLs, referrers and POST
// bodies for any of them.
//
// Usage:
//
//	variants := variant.Generate("Alice@example.com")
//	matched := variant.ContainsMatcher{}.Match(rawURL, variants)
package variant
