// Package lifecycle runs the install, update, rollback, remove, healthcheck
// and status commands.
//
// Install and update share one pipeline: resolve the manifest, build a
// verified release, activate it, restart the backend, probe it and collect
// old releases. Rollback is activation of the previous release followed by
// the same restart, probe and collection. Mutating commands hold the
// advisory lock of the application root for their whole duration.
package lifecycle
