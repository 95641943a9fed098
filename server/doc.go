// Package server exposes an Engine over HTTP.
//
// Routes:
//
//	POST /v1/query      {"question": "...", "k": 5, "lookback_hours": 72, "where": {"company": "ACME"}}
//	POST /v1/documents  [{"content": "...", "metadata": {...}}]
//	GET  /v1/stats
//	GET  /healthz
//	GET  /metrics       Prometheus exposition
package server
