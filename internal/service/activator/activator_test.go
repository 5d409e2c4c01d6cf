package activator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/translator-release/internal/config"
	"github.com/oshokin/translator-release/internal/domain/release"
	"github.com/oshokin/translator-release/internal/repository/pointer"
)

var errInjected = errors.New("disk full")

// faultyStore fails writes of one pointer.
type faultyStore struct {
	*pointer.SymlinkStore

	failWrite pointer.Name
}

func (s *faultyStore) Write(ctx context.Context, name pointer.Name, rel release.Release) error {
	if name == s.failWrite {
		return errInjected
	}

	return s.SymlinkStore.Write(ctx, name, rel)
}

func built(t *testing.T, root, id string) release.Release {
	t.Helper()

	rel := release.New(filepath.Join(root, release.ReleasesDirName), id)
	require.NoError(t, os.MkdirAll(rel.Dir, 0o755))
	require.NoError(t, release.WriteMetadata(rel, &release.Metadata{ID: id, BuiltAt: time.Now().UTC()}))

	return rel
}

func requirePointers(t *testing.T, store pointer.Store, current, previous string) {
	t.Helper()

	ctx := context.Background()

	got, err := store.Read(ctx, pointer.Current)
	require.NoError(t, err)
	require.Equal(t, current, got.ID)

	got, err = store.Read(ctx, pointer.Previous)
	if previous == "" {
		require.ErrorIs(t, err, pointer.ErrNotFound)
		return
	}

	require.NoError(t, err)
	require.Equal(t, previous, got.ID)
}

// TestActivate_Sequence keeps the old current as previous.
func TestActivate_Sequence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()
	store := pointer.NewSymlinkStore(root)
	a := New(store, nil)

	first := built(t, root, "v1")
	second := built(t, root, "v2")

	transition, err := a.Activate(ctx, first)
	require.NoError(t, err)
	require.True(t, transition.From.IsZero())
	requirePointers(t, store, "v1", "")

	transition, err = a.Activate(ctx, second)
	require.NoError(t, err)
	require.Equal(t, "v1", transition.From.ID)
	require.Equal(t, "v1", transition.Previous.ID)
	requirePointers(t, store, "v2", "v1")

	_, err = a.Activate(ctx, second)
	require.NoError(t, err)
	requirePointers(t, store, "v2", "v1")
}

// TestActivate_NotBuilt refuses releases without release.yaml.
func TestActivate_NotBuilt(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	rel := release.New(filepath.Join(root, release.ReleasesDirName), "half")
	require.NoError(t, os.MkdirAll(rel.Dir, 0o755))

	_, err := New(pointer.NewSymlinkStore(root), nil).Activate(context.Background(), rel)
	require.ErrorIs(t, err, release.ErrActivationFailed)
}

// TestActivate_DanglingCurrentIsNotKept skips a removed old current.
func TestActivate_DanglingCurrentIsNotKept(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()
	store := pointer.NewSymlinkStore(root)
	a := New(store, nil)

	gone := built(t, root, "gone")
	_, err := a.Activate(ctx, gone)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(gone.Dir))

	_, err = a.Activate(ctx, built(t, root, "v2"))
	require.NoError(t, err)
	requirePointers(t, store, "v2", "")
}

// TestRollback_Involution swaps the pair back and forth.
func TestRollback_Involution(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()
	store := pointer.NewSymlinkStore(root)
	a := New(store, nil)

	_, err := a.Rollback(ctx)
	require.ErrorIs(t, err, release.ErrNoPreviousRelease)

	_, err = a.Activate(ctx, built(t, root, "v1"))
	require.NoError(t, err)

	_, err = a.Rollback(ctx)
	require.ErrorIs(t, err, release.ErrNoPreviousRelease)

	_, err = a.Activate(ctx, built(t, root, "v2"))
	require.NoError(t, err)

	_, err = a.Rollback(ctx)
	require.NoError(t, err)
	requirePointers(t, store, "v1", "v2")

	_, err = a.Rollback(ctx)
	require.NoError(t, err)
	requirePointers(t, store, "v2", "v1")
}

// TestActivate_InterruptedWrite leaves the pointers as they were.
func TestActivate_InterruptedWrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()
	store := pointer.NewSymlinkStore(root)

	_, err := New(store, nil).Activate(ctx, built(t, root, "v1"))
	require.NoError(t, err)
	_, err = New(store, nil).Activate(ctx, built(t, root, "v2"))
	require.NoError(t, err)

	faulty := &faultyStore{SymlinkStore: store, failWrite: pointer.Current}

	_, err = New(faulty, nil).Activate(ctx, built(t, root, "v3"))
	require.ErrorIs(t, err, release.ErrActivationFailed)
	require.ErrorIs(t, err, errInjected)
	requirePointers(t, store, "v2", "v1")

	faulty.failWrite = pointer.Previous

	_, err = New(faulty, nil).Activate(ctx, built(t, root, "v4"))
	require.ErrorIs(t, err, release.ErrActivationFailed)
	requirePointers(t, store, "v2", "v1")
}

// TestDescriptors renders the unit and the D-Bus file for the release.
func TestDescriptors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()

	cfg := config.Default()
	cfg.Root = root
	cfg.Service.UnitDir = filepath.Join(root, "systemd")
	cfg.Service.DBusServiceDir = filepath.Join(root, "dbus")
	cfg.Health.Socket = filepath.Join(root, "ipc.sock")

	descriptors := NewDescriptors(cfg)
	store := pointer.NewSymlinkStore(root)
	rel := built(t, root, "v1")

	_, err := New(store, descriptors).Activate(ctx, rel)
	require.NoError(t, err)

	unit, err := os.ReadFile(descriptors.UnitPath())
	require.NoError(t, err)
	require.Contains(t, string(unit), "ExecStart="+filepath.Join(rel.RuntimeDir(), "bin", "python")+" -m desktop_app.main")
	require.Contains(t, string(unit), "WorkingDirectory="+rel.AppDir())
	require.Contains(t, string(unit), "TRANSLATOR_IPC_SOCKET="+cfg.Health.Socket)

	dbus, err := os.ReadFile(descriptors.DBusPath())
	require.NoError(t, err)
	require.Equal(t, "[D-BUS Service]\nName=com.translator.desktop\nExec="+
		filepath.Join(rel.RuntimeDir(), "bin", "python")+" -m desktop_app.main\nSystemdService=translator.service\n",
		string(dbus))

	require.NoError(t, descriptors.Remove(ctx))
	require.NoFileExists(t, descriptors.UnitPath())
	require.NoFileExists(t, descriptors.DBusPath())
}

// TestDescriptors_RelativeRoot writes absolute paths for a root given relative
// to the working directory.
func TestDescriptors_RelativeRoot(t *testing.T) {
	t.Parallel()

	wd, err := os.Getwd()
	require.NoError(t, err)

	tmp := t.TempDir()
	relativeRoot, err := filepath.Rel(wd, filepath.Join(tmp, "approot"))
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Root = relativeRoot
	cfg.Service.UnitDir = filepath.Join(tmp, "systemd")
	cfg.Service.DBusServiceDir = filepath.Join(tmp, "dbus")
	require.NoError(t, config.Validate(cfg))
	require.True(t, filepath.IsAbs(cfg.Root))

	descriptors := NewDescriptors(cfg)
	rel := built(t, cfg.Root, "v1")

	_, err = New(pointer.NewSymlinkStore(cfg.Root), descriptors).Activate(context.Background(), rel)
	require.NoError(t, err)

	unit, err := os.ReadFile(descriptors.UnitPath())
	require.NoError(t, err)
	require.Contains(t, string(unit), "WorkingDirectory="+filepath.Join(tmp, "approot", "releases", "v1", "app")+"\n")
	require.Contains(t, string(unit), "ExecStart="+filepath.Join(tmp, "approot", "releases", "v1", "runtime-env", "bin", "python"))
}

// TestDescriptors_DescriptorFailure reports ActivationFailed.
func TestDescriptors_DescriptorFailure(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	blocker := filepath.Join(root, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	cfg := config.Default()
	cfg.Service.UnitDir = filepath.Join(blocker, "systemd")
	cfg.Service.DBusServiceDir = filepath.Join(root, "dbus")

	_, err := New(pointer.NewSymlinkStore(root), NewDescriptors(cfg)).Activate(context.Background(), built(t, root, "v1"))
	require.ErrorIs(t, err, release.ErrActivationFailed)
}
