// Package archive extracts verified application archives and normalizes
// their layout.
//
// Supported formats are picked by file suffix: .tar.gz/.tgz, .tar.zst,
// .tar.lz4, .tar and .zip. Entries that would land outside the destination
// directory are rejected.
package archive
