package activator

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/translator-release/internal/domain/release"
	"github.com/oshokin/translator-release/internal/logger"
	"github.com/oshokin/translator-release/internal/repository/pointer"
)

var errNotBuilt = errors.New("release is not fully built")

// DescriptorWriter regenerates the files the supervisor reads.
type DescriptorWriter interface {
	Write(ctx context.Context, rel release.Release) error
}

// Transition is the pointer state before and after an activation.
type Transition struct {
	// From is what current pointed at before, zero on a first install.
	From release.Release
	// To is the activated release.
	To release.Release
	// Previous is what previous points at afterwards, zero when absent.
	Previous release.Release
}

// Activator owns the current/previous pointers.
type Activator struct {
	pointers    pointer.Store
	descriptors DescriptorWriter
}

// New returns an activator.
func New(pointers pointer.Store, descriptors DescriptorWriter) *Activator {
	return &Activator{
		pointers:    pointers,
		descriptors: descriptors,
	}
}

// Activate points current at rel. The old current target becomes previous
// when it differs from rel and is still a built release. Every pointer
// write is a single atomic replacement, so current always resolves to a
// built release. Failures wrap release.ErrActivationFailed.
func (a *Activator) Activate(ctx context.Context, rel release.Release) (Transition, error) {
	if !release.IsBuilt(rel) {
		return Transition{}, fmt.Errorf("%w: %s: %w", release.ErrActivationFailed, rel.Dir, errNotBuilt)
	}

	ctx = logger.WithKV(ctx, "release", rel.ID)
	transition := Transition{To: rel}

	old, err := a.pointers.Read(ctx, pointer.Current)

	switch {
	case err == nil:
		transition.From = old
	case errors.Is(err, pointer.ErrNotFound):
	default:
		return Transition{}, fmt.Errorf("%w: %w", release.ErrActivationFailed, err)
	}

	oldPrevious, previousErr := a.pointers.Read(ctx, pointer.Previous)
	movedPrevious := false

	if !transition.From.IsZero() && transition.From.Dir != rel.Dir && release.IsBuilt(transition.From) {
		if err = a.pointers.Write(ctx, pointer.Previous, transition.From); err != nil {
			return Transition{}, fmt.Errorf("%w: %w", release.ErrActivationFailed, err)
		}

		movedPrevious = true

		logger.InfoKV(ctx, "Previous pointer updated", "previous", transition.From.ID)
	}

	if err = a.pointers.Write(ctx, pointer.Current, rel); err != nil {
		if movedPrevious {
			a.restorePrevious(ctx, oldPrevious, previousErr)
		}

		return Transition{}, fmt.Errorf("%w: %w", release.ErrActivationFailed, err)
	}

	logger.Info(ctx, "Current pointer updated")

	transition.Previous, err = a.settlePrevious(ctx, rel)
	if err != nil {
		return transition, fmt.Errorf("%w: %w", release.ErrActivationFailed, err)
	}

	if a.descriptors != nil {
		if err = a.descriptors.Write(ctx, rel); err != nil {
			return transition, fmt.Errorf("%w: %w", release.ErrActivationFailed, err)
		}
	}

	return transition, nil
}

// Rollback activates the previous release. Applied twice with nothing in
// between it restores the original pair.
func (a *Activator) Rollback(ctx context.Context) (Transition, error) {
	previous, err := pointer.ReadValid(ctx, a.pointers, pointer.Previous)
	if err != nil {
		return Transition{}, fmt.Errorf("%w: %w", release.ErrNoPreviousRelease, err)
	}

	current, err := a.pointers.Read(ctx, pointer.Current)
	if err == nil && current.Dir == previous.Dir {
		return Transition{}, fmt.Errorf("%w: previous equals current", release.ErrNoPreviousRelease)
	}

	logger.InfoKV(ctx, "Rolling back", "to", previous.ID)

	return a.Activate(ctx, previous)
}

// restorePrevious puts previous back after current could not be moved, so
// the two never name the same release.
func (a *Activator) restorePrevious(ctx context.Context, old release.Release, readErr error) {
	var err error

	if readErr != nil {
		err = a.pointers.Remove(ctx, pointer.Previous)
	} else {
		err = a.pointers.Write(ctx, pointer.Previous, old)
	}

	if err != nil {
		logger.WarnKV(ctx, "Unable to restore previous pointer", "error", err)
	}
}

// settlePrevious drops a previous pointer that ended up equal to current.
func (a *Activator) settlePrevious(ctx context.Context, rel release.Release) (release.Release, error) {
	previous, err := a.pointers.Read(ctx, pointer.Previous)
	if errors.Is(err, pointer.ErrNotFound) {
		return release.Release{}, nil
	}

	if err != nil {
		return release.Release{}, err
	}

	if previous.Dir != rel.Dir {
		return previous, nil
	}

	return release.Release{}, a.pointers.Remove(ctx, pointer.Previous)
}
