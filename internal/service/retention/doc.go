// Package retention keeps at most two release generations on disk.
package retention
