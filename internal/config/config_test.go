package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:7171", c.Listen)
	require.True(t, c.Store.Memory)
	maxSize, err := c.Buffer.Max.Bytes()
	require.NoError(t, err)
	require.Equal(t, 1<<20, maxSize)
	require.Equal(t, 5, c.Capture.Burst)
}

func TestFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: 0.0.0.0:9000
log:
  level: debug
buffer:
  max: 2MB
capture:
  interval: 30s
  threads: true
`), 0o644))
	t.Setenv("CHECKPOINT_LOG_LEVEL", "warn")
	t.Setenv("CHECKPOINT_RETAIN", "4")

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", c.Listen)
	require.Equal(t, "warn", c.Log.Level)
	require.Equal(t, 4, c.Retain)
	require.Equal(t, 30*time.Second, c.Capture.Interval)
	require.True(t, c.Capture.Threads)
	maxSize, err := c.Buffer.Max.Bytes()
	require.NoError(t, err)
	require.Equal(t, 2<<20, maxSize)
}

func TestValidation(t *testing.T) {
	t.Setenv("CHECKPOINT_LOG_LEVEL", "loud")
	_, err := Load("")
	require.ErrorContains(t, err, "Level")
}

func TestInitialAboveMax(t *testing.T) {
	t.Setenv("CHECKPOINT_BUFFER_INITIAL", "2MB")
	_, err := Load("")
	require.ErrorContains(t, err, "exceeds buffer.max")
}

func TestBadSize(t *testing.T) {
	t.Setenv("CHECKPOINT_BUFFER_MAX", "lots")
	_, err := Load("")
	require.ErrorContains(t, err, "bytesize")
}

func TestStoreDirRequiredOnDisk(t *testing.T) {
	t.Setenv("CHECKPOINT_STORE_MEMORY", "false")
	_, err := Load("")
	require.ErrorContains(t, err, "Dir")
}
