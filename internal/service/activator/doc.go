// Package activator switches the running release.
//
// Activate moves the current pointer to a built release and keeps the old
// target as previous. Rollback is the same operation applied to the
// previous release. After the pointers move, the systemd user unit and the
// D-Bus activation file are regenerated from scratch for the new paths.
package activator
