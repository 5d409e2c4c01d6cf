// Package builder materializes immutable release directories.
//
// A release is built in place under <root>/releases/<id>: application tree,
// optional desktop extension, verified data assets and a private runtime
// environment. release.yaml is written last and is what makes a release
// "fully built". Any failure removes the directory, so nothing a pointer
// could refer to is ever left half-built.
package builder
