// Package bokun is a small client for the Bokun booking platform REST API.
//
// Requests are signed the way Bokun expects: the X-Bokun-Date header, the
// access key, the HTTP method and the request path (with query) are
// concatenated and signed with HMAC-SHA1 using the secret key; the base64
// digest goes into X-Bokun-Signature.
//
// Only the booking search is implemented. Each search result is reduced to
// a Booking carrying what the back-office stores for a tour. Bokun payloads
// vary between product types, so fields are probed with gjson and missing
// values fall back to sensible defaults rather than failing the import.
package bokun
