// Package checkpoint records constant-table checkpoints of this process: the
// static enumerations and the live thread and thread group tables. Init starts
// the recorder and, optionally, a gRPC server through which checkpoints can be
// captured remotely.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/DataExMachina-dev/checkpoint-go/internal/framing"
	"github.com/DataExMachina-dev/checkpoint-go/internal/logging"
	"github.com/DataExMachina-dev/checkpoint-go/internal/metrics"
	"github.com/DataExMachina-dev/checkpoint-go/internal/recorder"
	"github.com/DataExMachina-dev/checkpoint-go/internal/serveconn"
	"github.com/DataExMachina-dev/checkpoint-go/internal/server"
	"github.com/DataExMachina-dev/checkpoint-go/internal/store"
	"github.com/DataExMachina-dev/checkpoint-go/internal/threads"
	"github.com/DataExMachina-dev/checkpoint-go/internal/types"
)

// Kind selects the tables of a checkpoint.
type Kind = framing.Kind

const (
	Statics = framing.KindStatics
	Threads = framing.KindThreads
	All     = framing.KindAll

	// SingleThread marks checkpoints written for a thread start.
	SingleThread = framing.KindThread
)

type (
	Registry    = threads.Registry
	Thread      = threads.Thread
	ThreadGroup = threads.Group
	ThreadState = threads.State
)

// ErrNotStarted is returned by Capture before Init.
var ErrNotStarted = errors.New("checkpoint recorder not started")

// Option to configure the checkpoint library.
type Option interface {
	apply(*config)
}

type config struct {
	listenAddr    string
	errorLogger   func(err error)
	logger        hclog.Logger
	initialBuffer int
	maxBuffer     int
	retain        int
	debug         bool
	interval      time.Duration
	trackThreads  bool
	storeDir      string
	memoryStore   bool
	storeRetain   int
	registerer    prometheus.Registerer
	captureRate   rate.Limit
	captureBurst  int
}

const (
	ENV_LISTEN_ADDR = "CHECKPOINT_LISTEN"
	ENV_STORE_DIR   = "CHECKPOINT_STORE_DIR"
)

func makeDefaultConfig() config {
	cfg := config{
		errorLogger:  func(err error) {},
		captureRate:  10,
		captureBurst: 5,
	}
	if os.Getenv(ENV_LISTEN_ADDR) != "" {
		cfg.listenAddr = os.Getenv(ENV_LISTEN_ADDR)
	}
	if os.Getenv(ENV_STORE_DIR) != "" {
		cfg.storeDir = os.Getenv(ENV_STORE_DIR)
	}
	return cfg
}

type optionFunc func(cfg *config)

func (f optionFunc) apply(cfg *config) {
	f(cfg)
}

// WithListenAddr serves the checkpoint gRPC service on addr. Defaults to the
// CHECKPOINT_LISTEN environment variable; without either no server is started.
func WithListenAddr(addr string) Option {
	return optionFunc(func(cfg *config) {
		cfg.listenAddr = addr
	})
}

// WithErrorLogger sets a function to be called with errors (for example for
// logging them).
func WithErrorLogger(f func(err error)) Option {
	return optionFunc(func(cfg *config) {
		cfg.errorLogger = f
	})
}

// WithLogger sets the structured logger. Nothing is logged by default.
func WithLogger(l hclog.Logger) Option {
	return optionFunc(func(cfg *config) {
		cfg.logger = l
	})
}

// WithMaxBuffer bounds the size of a single checkpoint in bytes.
func WithMaxBuffer(n int) Option {
	return optionFunc(func(cfg *config) {
		cfg.maxBuffer = n
	})
}

// WithInitialBuffer sets the initial capacity of the checkpoint buffer.
func WithInitialBuffer(n int) Option {
	return optionFunc(func(cfg *config) {
		cfg.initialBuffer = n
	})
}

// WithDebug logs every writer operation of a checkpoint at trace level.
func WithDebug() Option {
	return optionFunc(func(cfg *config) {
		cfg.debug = true
	})
}

// WithRetain sets how many recent checkpoints are kept in memory.
func WithRetain(n int) Option {
	return optionFunc(func(cfg *config) {
		cfg.retain = n
	})
}

// WithInterval writes a full checkpoint every d.
func WithInterval(d time.Duration) Option {
	return optionFunc(func(cfg *config) {
		cfg.interval = d
	})
}

// WithThreadStartCheckpoints writes a checkpoint describing every thread
// registered after Init.
func WithThreadStartCheckpoints() Option {
	return optionFunc(func(cfg *config) {
		cfg.trackThreads = true
	})
}

// WithStoreDir persists checkpoints in a badger database in dir. Defaults to
// the CHECKPOINT_STORE_DIR environment variable.
func WithStoreDir(dir string) Option {
	return optionFunc(func(cfg *config) {
		cfg.storeDir = dir
	})
}

// WithInMemoryStore keeps checkpoints in an in-memory store. It takes
// precedence over WithStoreDir and CHECKPOINT_STORE_DIR.
func WithInMemoryStore() Option {
	return optionFunc(func(cfg *config) {
		cfg.memoryStore = true
	})
}

// WithStoreRetain bounds the number of stored checkpoints. Zero keeps all of
// them.
func WithStoreRetain(n int) Option {
	return optionFunc(func(cfg *config) {
		cfg.storeRetain = n
	})
}

// WithMetrics registers the recorder metrics with r.
func WithMetrics(r prometheus.Registerer) Option {
	return optionFunc(func(cfg *config) {
		cfg.registerer = r
	})
}

// WithCaptureRate limits remote captures to limit per second with the given
// burst.
func WithCaptureRate(limit float64, burst int) Option {
	return optionFunc(func(cfg *config) {
		cfg.captureRate = rate.Limit(limit)
		cfg.captureBurst = burst
	})
}

// registry outlives Init/Stop cycles: threads register once.
var registry = threads.NewRegistry()

// DefaultRegistry returns the process thread registry.
func DefaultRegistry() *Registry {
	return registry
}

// Init starts recording. Init can be called again to restart with a new
// configuration.
func Init(ctx context.Context, opts ...Option) error {
	if err := singleton.start(ctx, opts...); err != nil {
		return fmt.Errorf("failed to start checkpoint recorder: %w", err)
	}
	return nil
}

// Stop stops recording. It is a no-op if Init() hasn't been called.
func Stop() {
	singleton.stop()
}

// Capture writes a checkpoint of the given kind and returns its bytes.
func Capture(ctx context.Context, kind Kind) ([]byte, error) {
	rec := singleton.recorder()
	if rec == nil {
		return nil, ErrNotStarted
	}
	c, err := rec.Checkpoint(ctx, kind)
	if err != nil {
		return nil, err
	}
	return c.Data, nil
}

// singleton is the instance manipulated by Init() / Stop().
var singleton = &instance{}

type instance struct {
	mu struct {
		sync.Mutex
		cfg   config
		rec   *recorder.Recorder
		store *store.Store
		conn  *serveconn.Conn
		// stopTicker stops the periodic capture goroutine.
		stopTicker chan struct{}
	}
	wg sync.WaitGroup
}

func (in *instance) recorder() *recorder.Recorder {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.mu.rec
}

func (in *instance) start(ctx context.Context, opts ...Option) error {
	in.stop()

	cfg := makeDefaultConfig()
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	log := logging.OrNull(cfg.logger)

	var st *store.Store
	if cfg.storeDir != "" || cfg.memoryStore {
		var err error
		inMemory := cfg.memoryStore || cfg.storeDir == ""
		dir := cfg.storeDir
		if inMemory {
			dir = ""
		}
		st, err = store.Open(store.Options{
			Dir:      dir,
			InMemory: inMemory,
			Retain:   cfg.storeRetain,
			Logger:   log,
		})
		if err != nil {
			return err
		}
	}
	rcfg := recorder.Config{
		InitialBuffer: cfg.initialBuffer,
		MaxBuffer:     cfg.maxBuffer,
		Retain:        cfg.retain,
		Debug:         cfg.debug,
		Logger:        log,
		Metrics:       metrics.NewRecorder(cfg.registerer),
	}
	if st != nil {
		rcfg.Sink = st
	}
	rec := recorder.New(registry, types.DefaultManager(registry), rcfg)
	if cfg.trackThreads {
		rec.TrackThreadStarts()
	}

	var conn *serveconn.Conn
	if cfg.listenAddr != "" {
		sopts := server.Options{Limit: cfg.captureRate, Burst: cfg.captureBurst, Logger: log}
		if st != nil {
			sopts.Store = st
		}
		conn = serveconn.New(cfg.errorLogger)
		if err := conn.Listen(cfg.listenAddr, server.New(rec, sopts)); err != nil {
			registry.OnStart(nil)
			if st != nil {
				_ = st.Close()
			}
			return err
		}
		log.Info("serving checkpoints", "addr", conn.Addr())
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	in.mu.cfg = cfg
	in.mu.rec = rec
	in.mu.store = st
	in.mu.conn = conn
	if cfg.interval > 0 {
		stop := make(chan struct{})
		in.mu.stopTicker = stop
		in.wg.Add(1)
		go in.periodic(rec, cfg, stop)
	}
	return nil
}

func (in *instance) periodic(rec *recorder.Recorder, cfg config, stop <-chan struct{}) {
	defer in.wg.Done()
	t := time.NewTicker(cfg.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if _, err := rec.Checkpoint(context.Background(), All); err != nil {
				cfg.errorLogger(fmt.Errorf("periodic checkpoint: %w", err))
			}
		case <-stop:
			return
		}
	}
}

func (in *instance) stop() {
	in.mu.Lock()
	rec, st, conn, stop, cfg := in.mu.rec, in.mu.store, in.mu.conn, in.mu.stopTicker, in.mu.cfg
	in.mu.rec, in.mu.store, in.mu.conn, in.mu.stopTicker = nil, nil, nil, nil
	in.mu.Unlock()
	if rec == nil {
		return
	}
	registry.OnStart(nil)
	if stop != nil {
		close(stop)
	}
	in.wg.Wait()
	if conn != nil {
		conn.Close()
	}
	if st != nil {
		if err := st.Close(); err != nil {
			cfg.errorLogger(err)
		}
	}
}
