package rulebook

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeDefault(t *testing.T, path string, mutate func(f *File)) {
	t.Helper()
	f := Default()
	if mutate != nil {
		mutate(f)
	}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, f))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rulebook.toml")
	writeDefault(t, path, nil)

	var current atomic.Pointer[Model]
	w, err := NewWatcher(path, DefaultSettings(), zaptest.NewLogger(t).Sugar(), func(m *Model) {
		current.Store(m)
	})
	require.NoError(t, err)
	w.SetDebounce(20 * time.Millisecond)
	w.Start()
	defer w.Stop()

	writeDefault(t, path, func(f *File) { f.Version = "2" })

	require.Eventually(t, func() bool {
		m := current.Load()
		return m != nil && m.Version == "2"
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, path, current.Load().Source)
}

func TestWatcher_KeepsModelOnInvalidEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rulebook.toml")
	writeDefault(t, path, nil)

	var reloads atomic.Int32
	w, err := NewWatcher(path, DefaultSettings(), zaptest.NewLogger(t).Sugar(), func(*Model) {
		reloads.Add(1)
	})
	require.NoError(t, err)
	w.SetDebounce(20 * time.Millisecond)
	w.Start()
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("not toml ", 3)), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(0), reloads.Load())

	writeDefault(t, path, nil)
	require.Eventually(t, func() bool { return reloads.Load() > 0 }, 5*time.Second, 20*time.Millisecond)
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rulebook.toml")
	writeDefault(t, path, nil)

	var reloads atomic.Int32
	w, err := NewWatcher(path, DefaultSettings(), zaptest.NewLogger(t).Sugar(), func(*Model) {
		reloads.Add(1)
	})
	require.NoError(t, err)
	w.SetDebounce(10 * time.Millisecond)
	w.Start()
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(0), reloads.Load())
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rulebook.toml")
	writeDefault(t, path, nil)

	w, err := NewWatcher(path, DefaultSettings(), zaptest.NewLogger(t).Sugar(), func(*Model) {})
	require.NoError(t, err)
	assert.NoError(t, w.Stop())
}
