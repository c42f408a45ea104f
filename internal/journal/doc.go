// Package journal persists connection lifecycle events to SQLite.
//
// A Journal is a session.Observer. Observe never blocks the caller: events
// are queued to a single writer goroutine and dropped (and counted) when the
// queue is full. The table is created by the connection_events migration.
package journal
