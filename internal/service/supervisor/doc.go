// Package supervisor is the boundary to the process supervisor that runs
// the translator backend. The manager only starts, stops and restarts it;
// it never talks to the backend except through the health probe.
package supervisor
