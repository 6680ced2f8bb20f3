// Package engine reconciles alerts arriving over push and poll into one
// deduplicated alert store and fires sound and toast effects exactly once
// per new alert. It owns the poll loop lifecycle (Start/Stop), the explicit
// read-state operations, and the Prometheus hooks for both.
package engine
