// Package tor routes leakbox's outbound probes through the Tor network.
//
// Probing a tracking URL from the honeypot host would hand the tracker the
// honeypot's IP address. The Client in this package wraps a SOCKS5 dialer
// (golang.org/x/net/proxy) and builds HTTP clients that never follow
// redirects on their own, so the prober can record every hop. The proxy is
// either an external Tor daemon or an embedded one started with tornago.
//
// Components receive a *Client or the *http.Client it produces through
// their constructors; nothing in this package is global.
package tor
