// Package command runs external programs (systemctl, the python interpreter)
// behind a small interface so the services that need them can be tested
// with a scripted fake.
package command
