// Package pointer implements the current/previous indirection table.
//
// Each pointer is a relative symlink in the application root, for example
// current -> releases/1.4.0. The SymlinkStore replaces a pointer with a single
// rename(2) of a freshly created temporary symlink, so readers always see
// either the old or the new target. The Store interface lets tests simulate
// interrupted writes.
package pointer
