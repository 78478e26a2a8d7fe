// Package prober follows redirect chains of suspected tracking URLs.
//
// A Prober issues a GET for a URL and, instead of letting net/http follow
// redirects silently, follows every 301/302/303/307/308 itself so that each
// intermediate host is recorded as a model.Hop. The number of hops is
// bounded and no request is ever retried.
//
// Probes are not fired when a message arrives. They are handed to a Pool,
// which waits a fixed delay before queueing each task and runs queued tasks
// on a fixed number of workers. A failing or panicking task is logged and
// never stops the pool.
package prober
