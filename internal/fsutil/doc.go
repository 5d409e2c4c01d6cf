// Package fsutil holds the filesystem primitives shared by the lifecycle
// steps: durable atomic file replacement and tree copies.
package fsutil
