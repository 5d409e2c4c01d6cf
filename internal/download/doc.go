// Package download fetches release files over HTTP with a bounded number of
// attempts, hashing the bytes with SHA-256 while they are written to disk.
package download
