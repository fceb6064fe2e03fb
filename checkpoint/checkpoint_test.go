package checkpoint

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/DataExMachina-dev/checkpoint-go/internal/reader"
)

func TestCaptureBeforeInit(t *testing.T) {
	Stop()
	_, err := Capture(context.Background(), All)
	require.ErrorIs(t, err, ErrNotStarted)
}

func TestInitCaptureStop(t *testing.T) {
	reg := DefaultRegistry()
	g := reg.NewGroup("main", nil)
	th := reg.StartManaged("main", 1, g)
	defer reg.Exit(th)

	require.NoError(t, Init(context.Background(),
		WithInMemoryStore(),
		WithMetrics(prometheus.NewRegistry()),
		WithListenAddr("127.0.0.1:0"),
	))
	defer Stop()

	data, err := Capture(context.Background(), All)
	require.NoError(t, err)
	cps, err := reader.Decode(data)
	require.NoError(t, err)
	require.Len(t, cps, 1)
	require.Equal(t, All, cps[0].Kind)

	// Init again restarts with the new configuration.
	require.NoError(t, Init(context.Background(), WithMetrics(prometheus.NewRegistry())))
	Stop()
	Stop()
	_, err = Capture(context.Background(), All)
	require.ErrorIs(t, err, ErrNotStarted)
}

func TestPeriodicAndThreadStart(t *testing.T) {
	require.NoError(t, Init(context.Background(),
		WithInterval(5*time.Millisecond),
		WithThreadStartCheckpoints(),
		WithRetain(100),
	))
	defer Stop()

	th := DefaultRegistry().StartNative("late", 2)
	defer DefaultRegistry().Exit(th)

	require.Eventually(t, func() bool {
		var periodic, started bool
		for _, c := range singleton.recorder().Recent() {
			switch c.Kind {
			case All:
				periodic = true
			case SingleThread:
				started = true
			}
		}
		return periodic && started
	}, 5*time.Second, 5*time.Millisecond)
}

func TestHTTPHandler(t *testing.T) {
	Stop()
	srv := httptest.NewServer(HTTPHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, Init(context.Background()))
	defer Stop()
	th := DefaultRegistry().StartNative("<http worker>", 3)
	defer DefaultRegistry().Exit(th)

	resp, err = http.PostForm(srv.URL, url.Values{"capture": {"1"}})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "&lt;http worker&gt;")
	require.Contains(t, string(body), "recording")

	resp2, err := http.PostForm(srv.URL, url.Values{})
	require.NoError(t, err)
	resp2.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestInMemoryStoreOverridesEnvDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(ENV_STORE_DIR, dir)
	require.NoError(t, Init(context.Background(), WithInMemoryStore()))
	defer Stop()

	_, err := Capture(context.Background(), Statics)
	require.NoError(t, err)
	singleton.mu.Lock()
	st := singleton.mu.store
	singleton.mu.Unlock()
	require.NotNil(t, st)
	ids, err := st.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}
