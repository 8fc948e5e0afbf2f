// Package server implements the guidedesk REST API consumed by
// internal/api: JWT login, guide and tour CRUD, the Bokun import endpoint
// and a websocket change feed.
//
// Routes are mounted on a chi router. Everything under /api except
// /api/health and /api/auth/login needs a bearer token issued by the login
// endpoint; /ws takes the token as ?token= instead. Admin-only operations
// (the sync switch, running an import, reading the import log) check the
// role claim.
//
// Every successful mutation is broadcast on the hub as an api.ChangeEvent so
// connected clients refresh without waiting for their poll. Request and
// import metrics are exported on /metrics from a private Prometheus
// registry.
//
// Configuration comes from the environment, optionally primed from a .env
// file; see LoadConfig. Without DB_HOST the server keeps its data in
// memory.
package server
