// Package probe verifies an activated release through the backend IPC
// endpoint: a bounded readiness poll, then a fixed sequence of calls that
// must all succeed. Only call success is inspected, never payloads.
package probe
