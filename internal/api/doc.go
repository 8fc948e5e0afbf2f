// Package api provides the HTTP client for the guidedesk booking API.
//
// Every request carries a strictly increasing cache-busting query parameter
// (_t) so intermediary caches never answer with stale listings, and an
// Authorization bearer header when the configured TokenSource yields a
// token. Requests are bounded by a timeout.
//
// Failures are typed. A request that produced no response (refused
// connection, timeout, cancelled context) is a *NetworkError. A response
// outside 2xx is a *ServerError carrying the status and body; callers match
// its category with errors.Is against ErrValidation, ErrUnauthorized and
// ErrNotFound. Required-field checks run before sending and return
// *ValidationError, which also matches ErrValidation.
//
// The client never touches the local cache. Deciding whether to serve
// cached data after a failure belongs to the caller.
//
// Listing endpoints have two historical shapes, a bare JSON array and
// {data, pagination}. DecodePage normalizes both into Page before any other
// code sees the payload.
package api
