package builder

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/translator-release/internal/config"
	"github.com/oshokin/translator-release/internal/domain/release"
)

type scriptedRunner struct {
	calls  []string
	failOn string
}

func (r *scriptedRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	call := strings.Join(append([]string{name}, args...), " ")
	r.calls = append(r.calls, call)

	if r.failOn != "" && strings.Contains(call, r.failOn) {
		return nil, errors.New("exit status 1")
	}

	return nil, nil
}

// TestVenvProvisioner creates the environment, installs requirements and imports the native module.
func TestVenvProvisioner(t *testing.T) {
	t.Parallel()

	rel := release.New(t.TempDir(), "v1.0.0")
	writeFile(t, filepath.Join(rel.AppDir(), "requirements.txt"), []byte("ctranslate2\n"))

	cfg := config.Default().Runtime
	runner := new(scriptedRunner)

	require.NoError(t, NewVenvProvisioner(cfg, runner).Provision(context.Background(), rel))

	python := filepath.Join(rel.RuntimeDir(), "bin", "python")
	require.Equal(t, []string{
		"python3 -m venv " + rel.RuntimeDir(),
		python + " -m pip install --disable-pip-version-check --no-input -r " +
			filepath.Join(rel.AppDir(), "requirements.txt"),
		python + " -c import ctranslate2",
	}, runner.calls)
}

// TestVenvProvisioner_SmokeCheckFails reports the failing import.
func TestVenvProvisioner_SmokeCheckFails(t *testing.T) {
	t.Parallel()

	rel := release.New(t.TempDir(), "v1.0.0")
	runner := &scriptedRunner{failOn: "import"}

	err := NewVenvProvisioner(config.Default().Runtime, runner).Provision(context.Background(), rel)
	require.ErrorContains(t, err, "smoke check ctranslate2")
	require.Len(t, runner.calls, 2, "missing requirements file is skipped")
}
