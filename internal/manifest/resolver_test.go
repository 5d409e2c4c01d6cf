package manifest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/translator-release/internal/config"
	"github.com/oshokin/translator-release/internal/domain/release"
	"github.com/oshokin/translator-release/internal/download"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Root = t.TempDir()
	cfg.Channel.Repo = "owner/translator"

	return cfg
}

func newResolver(cfg *config.Config) *Resolver {
	fetcher := download.NewFetcher(download.WithAttempts(1), download.WithBackoff(0))

	return NewResolver(cfg, fetcher, filepath.Join(cfg.Root, "cache"))
}

// TestChannelURL builds latest and tagged release locations.
func TestChannelURL(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t)

	got, err := ChannelURL(cfg)
	require.NoError(t, err)
	require.Equal(t, "https://github.com/owner/translator/releases/latest/download", got)

	cfg.Channel.Tag = "v1.4.0"

	got, err = ChannelURL(cfg)
	require.NoError(t, err)
	require.Equal(t, "https://github.com/owner/translator/releases/download/v1.4.0", got)
}

// TestResolve_ExplicitPathWins prefers manifest.source over a trusted local tree.
func TestResolve_ExplicitPathWins(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t)
	source := t.TempDir()
	cfg.Install.Mode = config.ModeLocal
	cfg.Install.SourceDir = source

	require.NoError(t, os.WriteFile(filepath.Join(source, cfg.Manifest.Name), []byte(digestB+"  local.bin\n"), 0o644))

	explicit := filepath.Join(t.TempDir(), "explicit.sums")
	require.NoError(t, os.WriteFile(explicit, []byte(digestA+"  explicit.bin\n"), 0o644))

	cfg.Manifest.Source = explicit

	resolved, err := newResolver(cfg).Resolve(context.Background())
	require.NoError(t, err)

	defer resolved.Cleanup()

	require.Equal(t, OriginExplicit, resolved.Origin)
	require.Equal(t, explicit, resolved.Path)

	_, ok := resolved.Manifest.Lookup("explicit.bin")
	require.True(t, ok)
}

// TestResolve_LocalTree uses SHA256SUMS of the trusted source tree and ignores it when forced remote.
func TestResolve_LocalTree(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		served []string
	)

	servedPaths := func() []string {
		mu.Lock()
		defer mu.Unlock()

		return append([]string(nil), served...)
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		served = append(served, r.URL.Path)
		mu.Unlock()

		_, _ = w.Write([]byte(digestA + "  remote.bin\n"))
	}))
	defer ts.Close()

	cfg := newTestConfig(t)
	source := t.TempDir()
	cfg.Install.Mode = config.ModeLocal
	cfg.Install.SourceDir = source
	cfg.Channel.BaseURL = ts.URL
	cfg.Channel.Tag = "v1.0.0"

	require.NoError(t, os.WriteFile(filepath.Join(source, cfg.Manifest.Name), []byte(digestB+"  local.bin\n"), 0o644))

	resolved, err := newResolver(cfg).Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, OriginLocal, resolved.Origin)
	require.Equal(t, ts.URL+"/owner/translator/releases/download/v1.0.0", resolved.AssetBaseURL)
	resolved.Cleanup()
	require.Empty(t, servedPaths())

	cfg.Assets.ForceRemote = true

	resolved, err = newResolver(cfg).Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, OriginChannel, resolved.Origin)
	require.Equal(t, []string{"/owner/translator/releases/download/v1.0.0/SHA256SUMS"}, servedPaths())

	_, ok := resolved.Manifest.Lookup("remote.bin")
	require.True(t, ok)

	downloaded := resolved.Path
	resolved.Cleanup()

	_, err = os.Stat(downloaded)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestResolve_ExplicitURLSetsAssetBase derives the asset base from the manifest URL.
func TestResolve_ExplicitURLSetsAssetBase(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(digestA + "  app.tar.gz\n"))
	}))
	defer ts.Close()

	cfg := newTestConfig(t)
	cfg.Manifest.Source = ts.URL + "/builds/42/SHA256SUMS"

	resolved, err := newResolver(cfg).Resolve(context.Background())
	require.NoError(t, err)

	defer resolved.Cleanup()

	require.Equal(t, ts.URL+"/builds/42", resolved.AssetBaseURL)
}

// TestResolve_Unavailable reports ErrManifestUnavailable for missing files and failed downloads.
func TestResolve_Unavailable(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	cfg := newTestConfig(t)
	cfg.Channel.BaseURL = ts.URL

	_, err := newResolver(cfg).Resolve(context.Background())
	require.ErrorIs(t, err, release.ErrManifestUnavailable)

	cfg.Manifest.Source = filepath.Join(t.TempDir(), "missing")

	_, err = newResolver(cfg).Resolve(context.Background())
	require.ErrorIs(t, err, release.ErrManifestUnavailable)
}

// TestResolve_MalformedDownload reports ErrManifestMalformed when nothing parses.
func TestResolve_MalformedDownload(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not a manifest</html>"))
	}))
	defer ts.Close()

	cfg := newTestConfig(t)
	cfg.Channel.BaseURL = ts.URL

	_, err := newResolver(cfg).Resolve(context.Background())
	require.ErrorIs(t, err, release.ErrManifestMalformed)
}
