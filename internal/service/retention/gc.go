package retention

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oshokin/translator-release/internal/domain/release"
	"github.com/oshokin/translator-release/internal/logger"
	"github.com/oshokin/translator-release/internal/repository/pointer"
)

var errCurrentBroken = errors.New("current pointer does not resolve to a built release")

// Report describes what a collection did.
type Report struct {
	// RepairedPrevious is set when previous was rewritten.
	RepairedPrevious release.Release
	// Removed lists deleted release ids.
	Removed []string
}

// Collector deletes releases outside {current, previous}.
type Collector struct {
	releasesDir string
	pointers    pointer.Store
}

// New returns a collector for the releases directory.
func New(releasesDir string, pointers pointer.Store) *Collector {
	return &Collector{
		releasesDir: filepath.Clean(releasesDir),
		pointers:    pointers,
	}
}

// Collect repairs previous when it is missing, dangling or equal to current,
// then deletes every release outside the retained set. Nothing is deleted
// while current cannot be read.
func (c *Collector) Collect(ctx context.Context) (Report, error) {
	var report Report

	ctx = logger.WithName(ctx, "retention")

	current, err := c.pointers.Read(ctx, pointer.Current)
	if err != nil {
		if errors.Is(err, pointer.ErrNotFound) {
			return report, nil
		}

		return report, err
	}

	if !release.IsBuilt(current) {
		return report, fmt.Errorf("%w: current -> %s", errCurrentBroken, current.Dir)
	}

	previous, err := c.repairPrevious(ctx, current)
	if err != nil {
		return report, err
	}

	report.RepairedPrevious = previous.repaired

	keep := map[string]struct{}{filepath.Clean(current.Dir): {}}
	if !previous.rel.IsZero() {
		keep[filepath.Clean(previous.rel.Dir)] = struct{}{}
	}

	entries, err := os.ReadDir(c.releasesDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return report, nil
		}

		return report, fmt.Errorf("list releases: %w", err)
	}

	var errs []error

	for _, entry := range entries {
		dir := filepath.Join(c.releasesDir, entry.Name())
		if _, retained := keep[dir]; retained {
			continue
		}

		if err = os.RemoveAll(dir); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", dir, err))
			continue
		}

		report.Removed = append(report.Removed, entry.Name())
		logger.InfoKV(ctx, "Removed release", "release", entry.Name())
	}

	return report, errors.Join(errs...)
}

// Run collects and only logs failures, so it never aborts the caller.
func (c *Collector) Run(ctx context.Context) Report {
	report, err := c.Collect(ctx)
	if err != nil {
		logger.WarnKV(ctx, "Release cleanup failed", "error", err)
	}

	return report
}

type previousState struct {
	rel      release.Release
	repaired release.Release
}

func (c *Collector) repairPrevious(ctx context.Context, current release.Release) (previousState, error) {
	previous, err := c.pointers.Read(ctx, pointer.Previous)
	if err != nil && !errors.Is(err, pointer.ErrNotFound) {
		return previousState{}, err
	}

	if err == nil && previous.Dir != current.Dir && release.IsBuilt(previous) {
		return previousState{rel: previous}, nil
	}

	candidate, found := c.newestOther(current)
	if !found {
		if err == nil {
			if removeErr := c.pointers.Remove(ctx, pointer.Previous); removeErr != nil {
				return previousState{}, removeErr
			}
		}

		return previousState{}, nil
	}

	if err = c.pointers.Write(ctx, pointer.Previous, candidate); err != nil {
		return previousState{}, err
	}

	logger.InfoKV(ctx, "Repaired previous pointer", "previous", candidate.ID)

	return previousState{rel: candidate, repaired: candidate}, nil
}

// newestOther picks the most recently built release other than current.
func (c *Collector) newestOther(current release.Release) (release.Release, bool) {
	entries, err := os.ReadDir(c.releasesDir)
	if err != nil {
		return release.Release{}, false
	}

	type candidate struct {
		rel     release.Release
		builtAt time.Time
	}

	candidates := make([]candidate, 0, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		rel := release.New(c.releasesDir, entry.Name())
		if rel.Dir == filepath.Clean(current.Dir) || !release.IsBuilt(rel) {
			continue
		}

		candidates = append(candidates, candidate{rel: rel, builtAt: builtAt(rel)})
	}

	if len(candidates) == 0 {
		return release.Release{}, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].builtAt.Equal(candidates[j].builtAt) {
			return candidates[i].rel.ID > candidates[j].rel.ID
		}

		return candidates[i].builtAt.After(candidates[j].builtAt)
	})

	return candidates[0].rel, true
}

// builtAt prefers the recorded build time and falls back to the directory mtime.
func builtAt(rel release.Release) time.Time {
	if metadata, err := release.ReadMetadata(rel); err == nil && !metadata.BuiltAt.IsZero() {
		return metadata.BuiltAt
	}

	if info, err := os.Stat(rel.Dir); err == nil {
		return info.ModTime()
	}

	return time.Time{}
}
