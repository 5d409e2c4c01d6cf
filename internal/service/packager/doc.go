// Package packager produces the checksum manifest published with a release.
//
// It hashes the release assets of a directory and writes SHA256SUMS in the
// "<digest>  <filename>" form the installer reads. With Check set it
// verifies the files against an existing manifest instead.
package packager
