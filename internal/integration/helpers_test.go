package integration

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/translator-release/internal/api/grpc/translator/translatortest"
	"github.com/oshokin/translator-release/internal/config"
	"github.com/oshokin/translator-release/internal/repository/pointer"
	"github.com/oshokin/translator-release/internal/service/lifecycle"
)

const testRepo = "acme/translator"

// channel serves release assets the way a hosted release page does.
type channel struct {
	mu       sync.Mutex
	releases map[string]map[string][]byte
	hits     map[string]int
	server   *httptest.Server
}

func newChannel(t *testing.T) *channel {
	t.Helper()

	ch := &channel{
		releases: make(map[string]map[string][]byte),
		hits:     make(map[string]int),
	}

	ch.server = httptest.NewServer(http.HandlerFunc(ch.serve))
	t.Cleanup(ch.server.Close)

	return ch
}

// publish adds a tag with an app archive, a data file and SHA256SUMS.
func (ch *channel) publish(t *testing.T, tag string, data []byte) {
	t.Helper()

	files := map[string][]byte{
		"translator-app.tar.gz": appArchive(t, tag),
		"data.db":               data,
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}

	sort.Strings(names)

	var sums strings.Builder

	for _, name := range names {
		sum := sha256.Sum256(files[name])
		_, _ = fmt.Fprintf(&sums, "%s  %s\n", hex.EncodeToString(sum[:]), name)
	}

	files[config.DefaultManifestName] = []byte(sums.String())

	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.releases[tag] = files
}

// corrupt replaces a published file without touching the manifest.
func (ch *channel) corrupt(tag, name string, content []byte) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.releases[tag][name] = content
}

// downloads reports how many times name was served for tag.
func (ch *channel) downloads(tag, name string) int {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	return ch.hits[tag+"/"+name]
}

func (ch *channel) serve(w http.ResponseWriter, r *http.Request) {
	prefix := "/" + testRepo + "/releases/download/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)

		return
	}

	tag, name := path.Split(strings.TrimPrefix(r.URL.Path, prefix))
	tag = strings.TrimSuffix(tag, "/")

	ch.mu.Lock()
	content, ok := ch.releases[tag][name]
	if ok {
		ch.hits[tag+"/"+name]++
	}
	ch.mu.Unlock()

	if !ok {
		http.NotFound(w, r)

		return
	}

	_, _ = w.Write(content)
}

// appArchive builds a tar.gz with the application tree under a top folder.
func appArchive(t *testing.T, tag string) []byte {
	t.Helper()

	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	top := "translator-" + tag + "/"
	for _, dir := range []string{top, top + "desktop_app/", top + "translate_logic/"} {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: dir, Typeflag: tar.TypeDir, Mode: 0o755}))
	}

	files := map[string]string{
		top + "desktop_app/main.py":         "print('" + tag + "')\n",
		top + "translate_logic/__init__.py": "",
		top + "requirements.txt":            "ctranslate2\n",
	}

	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(body)),
		}))

		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}

	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	return buf.Bytes()
}

// backend is an in-process translation engine.
type backend struct {
	mu         sync.Mutex
	statusWait time.Duration
}

func (b *backend) Translate(_ context.Context, text string) (string, error) {
	return strings.ToUpper(text), nil
}

func (b *backend) Status(ctx context.Context) (map[string]any, error) {
	b.mu.Lock()
	wait := b.statusWait
	b.mu.Unlock()

	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return map[string]any{"ready": true, "engine": "test"}, nil
}

func (b *backend) setStatusWait(wait time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.statusWait = wait
}

// startBackend serves backend on a unix socket and returns the socket path.
func startBackend(t *testing.T, engine *backend) string {
	t.Helper()

	// Unix socket paths are length limited, so stay out of the long test dirs.
	dir, err := os.MkdirTemp("", "trs")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = os.RemoveAll(dir)
	})

	socket := filepath.Join(dir, "ipc.sock")

	lis, err := net.Listen("unix", socket)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- translatortest.Serve(ctx, lis, engine)
	}()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	return socket
}

// env wires a manager to a fake channel and a live backend.
type env struct {
	cfg     *config.Config
	channel *channel
	engine  *backend
	manager *lifecycle.Manager
	clock   time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		channel: newChannel(t),
		engine:  new(backend),
		clock:   time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC),
	}

	cfg := config.Default()
	cfg.Root = t.TempDir()
	cfg.Channel.BaseURL = e.channel.server.URL
	cfg.Channel.Repo = testRepo
	cfg.Assets.DataFiles = []string{"data.db"}
	cfg.Runtime.Enabled = false
	cfg.Service.Manager = config.ManagerNone
	cfg.Health.Socket = startBackend(t, e.engine)
	cfg.Health.ReadyTimeout = 5 * time.Second
	cfg.Health.PollInterval = 50 * time.Millisecond
	cfg.Health.CallTimeout = 500 * time.Millisecond
	cfg.Download.Retries = 1
	cfg.Download.Backoff = 10 * time.Millisecond
	require.NoError(t, config.Validate(cfg))

	e.cfg = cfg
	e.manager = lifecycle.New(cfg, lifecycle.WithClock(e.now))

	return e
}

func (e *env) now() time.Time {
	e.clock = e.clock.Add(time.Second)

	return e.clock
}

func (e *env) install(tag string) (lifecycle.Result, error) {
	e.cfg.Channel.Tag = tag

	return e.manager.Install(context.Background(), lifecycle.InstallOptions{})
}

// pointers returns the ids behind current and previous, empty when absent.
func (e *env) pointers(t *testing.T) (string, string) {
	t.Helper()

	store := pointer.NewSymlinkStore(e.cfg.Root)
	ids := make([]string, 0, 2)

	for _, name := range []pointer.Name{pointer.Current, pointer.Previous} {
		rel, err := store.Read(context.Background(), name)
		if errors.Is(err, pointer.ErrNotFound) {
			ids = append(ids, "")

			continue
		}

		require.NoError(t, err)

		ids = append(ids, rel.ID)
	}

	return ids[0], ids[1]
}

// releaseDirs lists release directory names on disk.
func (e *env) releaseDirs(t *testing.T) []string {
	t.Helper()

	entries, err := os.ReadDir(filepath.Join(e.cfg.Root, "releases"))
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}

	return names
}
