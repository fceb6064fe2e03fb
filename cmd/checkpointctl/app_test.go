package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/DataExMachina-dev/checkpoint-go/internal/config"
	"github.com/DataExMachina-dev/checkpoint-go/internal/recorder"
	"github.com/DataExMachina-dev/checkpoint-go/internal/serveconn"
	"github.com/DataExMachina-dev/checkpoint-go/internal/server"
	"github.com/DataExMachina-dev/checkpoint-go/internal/store"
	"github.com/DataExMachina-dev/checkpoint-go/internal/threads"
	"github.com/DataExMachina-dev/checkpoint-go/internal/types"
)

// startService serves a recorder with an in-memory store and returns its
// address.
func startService(t *testing.T) string {
	t.Helper()
	reg := threads.NewRegistry()
	reg.StartManaged("worker", 7, reg.NewGroup("main", nil))
	st, err := store.Open(store.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	rec := recorder.New(reg, types.DefaultManager(reg), recorder.Config{Sink: st})

	conn := serveconn.New(nil)
	require.NoError(t, conn.Listen("127.0.0.1:0", server.New(rec, server.Options{Store: st})))
	t.Cleanup(conn.Close)
	return conn.Addr().String()
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := App()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"checkpointctl"}, args...))
	return out.String(), err
}

func TestCaptureDumpListGet(t *testing.T) {
	addr := startService(t)
	path := filepath.Join(t.TempDir(), "cp.bin")

	out, err := run(t, "--addr", addr, "capture", "--kind", "threads", "--out", path)
	require.NoError(t, err)
	require.Contains(t, out, "captured checkpoint 1")
	require.Contains(t, out, "stored as")

	out, err = run(t, "dump", path)
	require.NoError(t, err)
	require.Contains(t, out, "checkpoint 1 kind=threads")
	require.Contains(t, out, "Thread (200): 1 entries")
	require.Contains(t, out, `"worker"`)
	require.Contains(t, out, "ThreadGroup (201): 1 entries")

	out, err = run(t, "--addr", addr, "list")
	require.NoError(t, err)
	ids := strings.Fields(out)
	require.Len(t, ids, 1)

	out, err = run(t, "--addr", addr, "get", ids[0])
	require.NoError(t, err)
	require.Contains(t, out, "checkpoint 1 kind=threads")
}

func TestCaptureDumpsStatics(t *testing.T) {
	addr := startService(t)
	out, err := run(t, "--addr", addr, "capture", "--kind", "statics")
	require.NoError(t, err)
	require.Contains(t, out, "kind=statics")
	require.Contains(t, out, "CodeBlobType (113): 1 entries")
	require.Contains(t, out, `0: "CodeCache"`)
	require.NotContains(t, out, "Thread (200)")
}

func TestCaptureUnknownKind(t *testing.T) {
	_, err := run(t, "--addr", "127.0.0.1:1", "capture", "--kind", "everything")
	require.ErrorContains(t, err, "unknown checkpoint kind")
}

func TestGetRequiresID(t *testing.T) {
	_, err := run(t, "--addr", "127.0.0.1:1", "get")
	require.Error(t, err)
}

func TestDumpRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.bin")
	require.NoError(t, os.WriteFile(path, []byte{0x05, 0x02, 0x00}, 0o644))
	_, err := run(t, "dump", path)
	require.Error(t, err)
}

func TestRecorderOptions(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	opts, err := recorderOptions(cfg, hclog.NewNullLogger())
	require.NoError(t, err)
	// Listen through store retain, plus the in-memory store.
	require.Len(t, opts, 10)

	cfg.Store.Memory = false
	cfg.Store.Dir = t.TempDir()
	cfg.Debug = true
	cfg.Capture.Threads = true
	opts, err = recorderOptions(cfg, hclog.NewNullLogger())
	require.NoError(t, err)
	require.Len(t, opts, 12)

	cfg.Buffer.Max = "lots"
	_, err = recorderOptions(cfg, hclog.NewNullLogger())
	require.Error(t, err)
}
