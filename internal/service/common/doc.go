// Package common holds helpers shared by several services.
//
// It provides the IPC client of the translator backend (gRPC over a unix
// socket, with per-call timeouts) and caller identification attached to
// every call for the backend logs.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
