// Package config defines the settings of the release manager and provides
// helpers to load them (YAML file plus TRANSLATOR_RELEASE_* environment
// overrides), validate them and save them back in YAML format.
package config
