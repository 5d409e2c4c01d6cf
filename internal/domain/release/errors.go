package release

import "errors"

// Error kinds reported by the lifecycle steps. Callers wrap them with
// fmt.Errorf("...: %w", kind) and inspect them with errors.Is.
var (
	// ErrManifestUnavailable is returned when no manifest source resolves or the download fails.
	ErrManifestUnavailable = errors.New("manifest unavailable")
	// ErrManifestMalformed is returned when a manifest has no usable entries or contradicts itself.
	ErrManifestMalformed = errors.New("manifest malformed")
	// ErrAssetUnavailable is returned when an asset cannot be fetched.
	ErrAssetUnavailable = errors.New("asset unavailable")
	// ErrChecksumMismatch is returned when an asset digest differs from the manifest.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrReleaseBuildFailed is returned when a release directory cannot be materialized.
	ErrReleaseBuildFailed = errors.New("release build failed")
	// ErrActivationFailed is returned when a pointer or a supervisor descriptor cannot be written.
	ErrActivationFailed = errors.New("activation failed")
	// ErrServiceUnavailable is returned when the process supervisor cannot be reached or fails.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrHealthCheckTimeout is returned when the IPC endpoint is not ready before the deadline.
	ErrHealthCheckTimeout = errors.New("health check timeout")
	// ErrHealthCheckFailed is returned when any call of the probe sequence fails.
	ErrHealthCheckFailed = errors.New("health check failed")
	// ErrNoPreviousRelease is returned by rollback when there is nothing to roll back to.
	ErrNoPreviousRelease = errors.New("no previous release")
	// ErrAlreadyInProgress is returned when another mutating invocation holds the root lock.
	ErrAlreadyInProgress = errors.New("another lifecycle operation is already in progress")
)
