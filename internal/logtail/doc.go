// Package logtail reads the tail of the client log file for the logs view.
//
// Read keeps a ring buffer of the last N lines, so memory stays bounded by
// the number of lines requested rather than the size of the file. A missing
// file yields no lines and no error, which is the normal state before the
// first log entry is written.
//
// Parse understands both encoders the logging package can produce:
//
//	{"level":"warn","ts":"2026-10-17T09:00:00.000+0200","msg":"serving stale tours_v1","attempt":2}
//	2026-10-17T09:00:00.000+0200	WARN	tours/service.go:212	serving stale tours_v1	{"attempt": 2}
//
// Structured fields beyond level, time, caller and message are kept as a
// JSON object in Entry.Fields. Lines that match neither shape are returned
// unparsed so stack traces and stray output still show up in the view.
package logtail
