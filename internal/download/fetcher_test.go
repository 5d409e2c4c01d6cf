package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestFetcher_ToFile downloads a file and reports its digest.
func TestFetcher_ToFile(t *testing.T) {
	t.Parallel()

	body := []byte("primary language base")
	sum := sha256.Sum256(body)

	var userAgent atomic.Value

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent.Store(r.UserAgent())
		_, _ = w.Write(body)
	}))
	defer ts.Close()

	dst := filepath.Join(t.TempDir(), "primary.sqlite3.part")

	digest, err := NewFetcher().ToFile(context.Background(), ts.URL+"/primary.sqlite3", dst)
	require.NoError(t, err)
	require.Equal(t, hex.EncodeToString(sum[:]), digest)
	require.Contains(t, userAgent.Load(), "translator-release/")

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, body, data)
}

// TestFetcher_RetriesServerErrors retries 5xx responses up to the attempt limit.
func TestFetcher_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	f := NewFetcher(WithAttempts(3), WithBackoff(0))

	_, err := f.ToFile(context.Background(), ts.URL, filepath.Join(t.TempDir(), "x"))
	require.NoError(t, err)
	require.Equal(t, int32(3), calls.Load())
}

// TestFetcher_NotFoundIsPermanent stops after a single 404 and removes the partial file.
func TestFetcher_NotFoundIsPermanent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	dst := filepath.Join(t.TempDir(), "missing.part")

	_, err := NewFetcher(WithAttempts(5), WithBackoff(0)).ToFile(context.Background(), ts.URL, dst)
	require.ErrorIs(t, err, ErrFailed)
	require.Equal(t, int32(1), calls.Load())

	_, err = os.Stat(dst)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestJoinURL normalizes slashes between base and name.
func TestJoinURL(t *testing.T) {
	t.Parallel()

	got, err := JoinURL("https://github.com/owner/repo/releases/download/v1/", "SHA256SUMS")
	require.NoError(t, err)
	require.Equal(t, "https://github.com/owner/repo/releases/download/v1/SHA256SUMS", got)

	got, err = JoinURL("http://127.0.0.1:8080", "app.tar.gz")
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:8080/app.tar.gz", got)
}

// TestFetcher_GivesUpAfterAttempts stops at the attempt limit on persistent 5xx.
func TestFetcher_GivesUpAfterAttempts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	dst := filepath.Join(t.TempDir(), "flaky.part")

	_, err := NewFetcher(WithAttempts(2), WithBackoff(0)).ToFile(context.Background(), ts.URL, dst)
	require.ErrorIs(t, err, ErrFailed)
	require.ErrorIs(t, err, errBadHTTPStatus)
	require.Equal(t, int32(2), calls.Load())
	require.NoFileExists(t, dst)
}

// TestFetcher_CanceledContext does not wait out the backoff.
func TestFetcher_CanceledContext(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFetcher(WithAttempts(5), WithBackoff(time.Hour)).ToFile(ctx, ts.URL, filepath.Join(t.TempDir(), "x"))
	require.ErrorIs(t, err, ErrFailed)
	require.ErrorIs(t, err, context.Canceled)
}
