// Package assets fetches release assets and verifies them against the
// manifest before anything uses them.
//
// Verified downloads are memoized in <root>/cache/<filename>. A cached copy
// is hashed again on every Get and is never trusted on its name alone.
package assets
