// Package translatortest runs an in-process translator backend that speaks
// the IPC contract, for exercising clients and the health probe in tests.
package translatortest
