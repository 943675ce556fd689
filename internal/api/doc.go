// Package api implements the HTTP API and WebSocket event stream for the
// Gray Logic access service.
//
// This package provides:
//   - Door-facing endpoints: verify, issue_key, return_key
//   - Administrative credential CRUD and access event history
//   - WebSocket hub broadcasting decisions and custody changes
//   - MQTT verify requests for door controllers on the site bus
//   - JSON and Prometheus metrics
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The server is a thin shell around access.Engine and access.Ledger. It
// decodes requests, calls the core, and maps its error taxonomy onto HTTP
// status codes. Every side effect of an access operation (log line, audit
// entry, WebSocket broadcast, MQTT publish, InfluxDB point, Prometheus
// counter) is owned here; the core never logs.
//
// # Security
//
// Callers are not authenticated. The API is expected to sit on the
// building's internal network behind the site firewall.
//
// # Graceful Degradation
//
// MQTT, InfluxDB and the audit repository are optional. Without them the
// door endpoints still answer and only the matching side effect is skipped.
package api
