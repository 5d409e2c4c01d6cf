// Package lock provides the exclusive advisory lock over the application
// root that every mutating command holds for its whole duration.
package lock
