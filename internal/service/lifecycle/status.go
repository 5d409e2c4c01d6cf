package lifecycle

import (
	"context"
	"errors"
	"os"
	"sort"

	"github.com/oshokin/translator-release/internal/domain/release"
	"github.com/oshokin/translator-release/internal/repository/pointer"
	"github.com/oshokin/translator-release/internal/service/supervisor"
)

// ReleaseInfo describes one release directory.
type ReleaseInfo struct {
	ID       string
	Dir      string
	Built    bool
	Metadata *release.Metadata
	Current  bool
	Previous bool
}

// Status is a read-only snapshot of the application root.
type Status struct {
	Root      string
	Current   *ReleaseInfo
	Previous  *ReleaseInfo
	Releases  []ReleaseInfo
	Processes []supervisor.Process
	// SupervisorErr is set when the supervisor cannot be reached.
	SupervisorErr error
}

// Status inspects pointers, releases and running backend processes.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	status := Status{Root: m.cfg.Root}

	current, currentErr := m.pointers.Read(ctx, pointer.Current)
	if currentErr != nil && !errors.Is(currentErr, pointer.ErrNotFound) {
		return status, currentErr
	}

	previous, previousErr := m.pointers.Read(ctx, pointer.Previous)
	if previousErr != nil && !errors.Is(previousErr, pointer.ErrNotFound) {
		return status, previousErr
	}

	entries, err := os.ReadDir(m.releasesDir())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return status, err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		rel := release.New(m.releasesDir(), entry.Name())
		info := ReleaseInfo{
			ID:       rel.ID,
			Dir:      rel.Dir,
			Built:    release.IsBuilt(rel),
			Current:  currentErr == nil && current.Dir == rel.Dir,
			Previous: previousErr == nil && previous.Dir == rel.Dir,
		}

		if info.Built {
			info.Metadata, _ = release.ReadMetadata(rel)
		}

		status.Releases = append(status.Releases, info)
	}

	sort.Slice(status.Releases, func(i, j int) bool {
		return status.Releases[i].ID < status.Releases[j].ID
	})

	for i := range status.Releases {
		switch {
		case status.Releases[i].Current:
			status.Current = &status.Releases[i]
		case status.Releases[i].Previous:
			status.Previous = &status.Releases[i]
		}
	}

	status.Processes, _ = supervisor.FindProcesses(m.cfg.Service.ProcessName, m.cfg.Root)
	status.SupervisorErr = m.controller.Available(ctx)

	return status, nil
}
