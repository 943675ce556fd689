// Package audit records access decisions and custody changes in the
// access_events table and serves filtered, paginated history.
package audit
