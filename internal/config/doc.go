// Package config loads the guidedesk client configuration.
//
// # Overview
//
// The configuration is a TOML file describing where the booking API lives,
// how long cached listings stay fresh and how the automatic Bokun sync
// behaves. Every field is optional; a missing file yields Default().
//
// # Configuration Discovery
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use $XDG_CONFIG_HOME/guidedesk/config.toml
//  3. If the file doesn't exist, use the built-in defaults
//  4. Fields that are missing or empty keep their defaults
//
// # TOML Format
//
//	api_url = "https://bookings.example.com"
//	request_timeout = "10s"
//	cache_ttl = "60s"
//	refresh_interval = "30s"
//	log_level = "info"
//	log_file = "~/.local/state/guidedesk/guidedesk.log"
//
//	[sync]
//	enabled = true
//	interval_minutes = 15
//	on_startup_sync = true
//	on_focus_sync = true
//
// # Runtime Changes
//
// Watch observes the file and hands every successfully parsed revision to a
// callback. The application uses it to apply the [sync] table to the
// running orchestrator: flipping enabled starts or stops the periodic timer
// immediately, and a new interval_minutes resets it. A revision that fails
// to parse or validate is logged and ignored.
//
// # Error Handling
//
// Load returns errors for unreadable files, TOML syntax errors, malformed
// durations and values Validate rejects (interval below one minute,
// non-positive timeouts, unknown log levels). A missing file is not an
// error.
package config
