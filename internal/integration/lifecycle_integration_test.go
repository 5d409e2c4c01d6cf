package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/translator-release/internal/domain/release"
)

func TestFreshInstall(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.channel.publish(t, "v1.0.0", []byte("dictionary v1"))

	result, err := e.install("v1.0.0")
	require.NoError(t, err)
	require.Equal(t, "v1.0.0", result.Transition.To.ID)
	require.True(t, result.Transition.From.IsZero())

	current, previous := e.pointers(t)
	require.Equal(t, "v1.0.0", current)
	require.Empty(t, previous)

	dir := filepath.Join(e.cfg.Root, "releases", "v1.0.0")
	require.DirExists(t, filepath.Join(dir, "app", "desktop_app"))
	require.DirExists(t, filepath.Join(dir, "app", "translate_logic"))

	data, err := os.ReadFile(filepath.Join(dir, "data", "data.db"))
	require.NoError(t, err)
	require.Equal(t, "dictionary v1", string(data))

	meta, err := release.ReadMetadata(release.New(filepath.Join(e.cfg.Root, "releases"), "v1.0.0"))
	require.NoError(t, err)
	require.Equal(t, "v1.0.0", meta.Tag)
	require.Equal(t, release.SourceRemote, meta.Source)
}

func TestUpdateThenRollbackWithoutRefetch(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.channel.publish(t, "v1.0.0", []byte("dictionary v1"))
	e.channel.publish(t, "v1.1.0", []byte("dictionary v2"))

	_, err := e.install("v1.0.0")
	require.NoError(t, err)

	_, err = e.install("v1.1.0")
	require.NoError(t, err)

	current, previous := e.pointers(t)
	require.Equal(t, "v1.1.0", current)
	require.Equal(t, "v1.0.0", previous)

	// Nothing may be fetched during a rollback.
	e.channel.server.Close()

	result, err := e.manager.Rollback(context.Background())
	require.NoError(t, err)
	require.Equal(t, "v1.0.0", result.Transition.To.ID)

	current, previous = e.pointers(t)
	require.Equal(t, "v1.0.0", current)
	require.Equal(t, "v1.1.0", previous)
}

func TestRollbackIsInvolution(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.channel.publish(t, "v1.0.0", []byte("dictionary v1"))
	e.channel.publish(t, "v1.1.0", []byte("dictionary v2"))

	_, err := e.install("v1.0.0")
	require.NoError(t, err)

	_, err = e.install("v1.1.0")
	require.NoError(t, err)

	for range 2 {
		_, err = e.manager.Rollback(context.Background())
		require.NoError(t, err)
	}

	current, previous := e.pointers(t)
	require.Equal(t, "v1.1.0", current)
	require.Equal(t, "v1.0.0", previous)
}

func TestCorruptedDataKeepsPointers(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.channel.publish(t, "v1.0.0", []byte("dictionary v1"))
	e.channel.publish(t, "v1.1.0", []byte("dictionary v2"))
	e.channel.corrupt("v1.1.0", "data.db", []byte("tampered"))

	_, err := e.install("v1.0.0")
	require.NoError(t, err)

	_, err = e.install("v1.1.0")
	require.ErrorIs(t, err, release.ErrChecksumMismatch)

	current, previous := e.pointers(t)
	require.Equal(t, "v1.0.0", current)
	require.Empty(t, previous)

	require.NoDirExists(t, filepath.Join(e.cfg.Root, "releases", "v1.1.0"))
	require.NoFileExists(t, filepath.Join(e.cfg.Root, "cache", ".data.db.part"))
}

func TestSlowStatusFailsHealthCheck(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.channel.publish(t, "v1.0.0", []byte("dictionary v1"))
	e.channel.publish(t, "v1.1.0", []byte("dictionary v2"))

	_, err := e.install("v1.0.0")
	require.NoError(t, err)

	e.engine.setStatusWait(5 * time.Second)

	_, err = e.install("v1.1.0")
	require.ErrorIs(t, err, release.ErrHealthCheckFailed)

	// The new release stays active so the operator decides what to do.
	current, previous := e.pointers(t)
	require.Equal(t, "v1.1.0", current)
	require.Equal(t, "v1.0.0", previous)
}

func TestSlowStatusWithAutoRollback(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.channel.publish(t, "v1.0.0", []byte("dictionary v1"))
	e.channel.publish(t, "v1.1.0", []byte("dictionary v2"))

	_, err := e.install("v1.0.0")
	require.NoError(t, err)

	e.engine.setStatusWait(5 * time.Second)
	e.cfg.Health.AutoRollback = true

	result, err := e.install("v1.1.0")
	require.ErrorIs(t, err, release.ErrHealthCheckFailed)
	require.True(t, result.RolledBack)

	current, previous := e.pointers(t)
	require.Equal(t, "v1.0.0", current)
	require.Equal(t, "v1.1.0", previous)
}

func TestRetentionKeepsCurrentAndPrevious(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	tags := []string{"v1.0.0", "v1.1.0", "v1.2.0"}
	for _, tag := range tags {
		e.channel.publish(t, tag, []byte("dictionary "+tag))

		_, err := e.install(tag)
		require.NoError(t, err)
	}

	require.ElementsMatch(t, []string{"v1.1.0", "v1.2.0"}, e.releaseDirs(t))

	current, previous := e.pointers(t)
	require.Equal(t, "v1.2.0", current)
	require.Equal(t, "v1.1.0", previous)
}

func TestReinstallSameTagUsesCache(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.channel.publish(t, "v1.0.0", []byte("dictionary v1"))

	_, err := e.install("v1.0.0")
	require.NoError(t, err)

	result, err := e.install("v1.0.0")
	require.NoError(t, err)

	// The referenced directory is never rebuilt in place.
	require.NotEqual(t, "v1.0.0", result.Transition.To.ID)
	require.Contains(t, result.Transition.To.ID, "v1.0.0-")

	current, previous := e.pointers(t)
	require.Equal(t, result.Transition.To.ID, current)
	require.Equal(t, "v1.0.0", previous)

	require.Equal(t, 1, e.channel.downloads("v1.0.0", "data.db"))
	require.Equal(t, 1, e.channel.downloads("v1.0.0", "translator-app.tar.gz"))
	require.Equal(t, 2, e.channel.downloads("v1.0.0", "SHA256SUMS"))
}

func TestHealthcheckAgainstLiveBackend(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	require.NoError(t, e.manager.Healthcheck(context.Background()))

	e.engine.setStatusWait(5 * time.Second)
	require.ErrorIs(t, e.manager.Healthcheck(context.Background()), release.ErrHealthCheckFailed)
}
