//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"fmt"
	"os"
	"os/user"

	"google.golang.org/grpc/metadata"
)

// Metadata keys carrying the caller identity.
const (
	callerHostKey = "x-caller-host"
	callerUserKey = "x-caller-user"
)

// Caller identifies who is calling the backend.
type Caller struct {
	Hostname string
	Username string
}

// DetectCaller gathers host and user information.
func DetectCaller() (Caller, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return Caller{}, fmt.Errorf("hostname: %w", err)
	}

	currentUser, err := user.Current()
	if err != nil {
		return Caller{}, fmt.Errorf("current user: %w", err)
	}

	return Caller{
		Hostname: hostname,
		Username: currentUser.Username,
	}, nil
}

// Metadata returns the gRPC metadata for the caller.
func (c Caller) Metadata() metadata.MD {
	return metadata.Pairs(callerHostKey, c.Hostname, callerUserKey, c.Username)
}
