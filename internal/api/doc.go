// Package api exposes leakbox over HTTP with gin.
//
// Routes:
//
//	POST /register  site, url -> generated address (text/plain)
//	GET  /visit     -> {} or {"id": N, "links": [...]}
//	POST /results   {"id": N, "requests": [[url, referrer|null, post|null], ...]}
//
// /register is used by whoever signs up on third-party sites. /visit and
// /results are polled by the external fetch agent that visits deferred
// links on the service's behalf.
package api
