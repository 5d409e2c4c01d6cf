// Package release contains the core domain types of the release lifecycle.
//
// It defines Manifest (the filename to SHA-256 mapping every asset is
// verified against), Release (an immutable directory tree under
// <root>/releases), Metadata (the marker written when a build completes)
// and the error kinds every lifecycle step reports.
package release
