// Package manifest locates and parses the SHA-256 checksum manifest of a
// release.
//
// A manifest comes from, in order of precedence: an explicit path or URL,
// the SHA256SUMS of a trusted local source tree, or the release channel
// derived from the repository identity and tag.
package manifest
