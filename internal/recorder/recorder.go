// Package recorder drives checkpoint cycles. A cycle writes the checkpoint
// header, lets the type manager write the constant tables, and patches the
// header once the tables are known.
package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/DataExMachina-dev/checkpoint-go/internal/clock"
	"github.com/DataExMachina-dev/checkpoint-go/internal/fifo"
	"github.com/DataExMachina-dev/checkpoint-go/internal/framing"
	"github.com/DataExMachina-dev/checkpoint-go/internal/logging"
	"github.com/DataExMachina-dev/checkpoint-go/internal/metrics"
	"github.com/DataExMachina-dev/checkpoint-go/internal/threads"
	"github.com/DataExMachina-dev/checkpoint-go/internal/types"
	"github.com/DataExMachina-dev/checkpoint-go/internal/writer"
)

// ErrInvalidKind is returned for checkpoint kinds Checkpoint cannot write.
var ErrInvalidKind = errors.New("invalid checkpoint kind")

// maxCheckpointSize is the largest size the size slot can hold.
const maxCheckpointSize = 1<<(7*framing.SizeWidth) - 1

// Checkpoint is a written checkpoint.
type Checkpoint struct {
	// ID is the id assigned by the sink, if any.
	ID         string
	Recorder   uuid.UUID
	Sequence   uint64
	Kind       framing.Kind
	StartTicks uint64
	Duration   time.Duration
	Types      uint32
	Time       time.Time
	Data       []byte
}

// Sink receives every written checkpoint.
type Sink interface {
	Put(ctx context.Context, c Checkpoint) (id string, err error)
}

// Config configures a Recorder. The zero value is usable.
type Config struct {
	// InitialBuffer and MaxBuffer bound the checkpoint buffer in bytes.
	InitialBuffer int
	MaxBuffer     int
	// Retain is the number of recent checkpoints kept in memory.
	Retain int
	// Debug logs the writer operations of every cycle at trace level.
	Debug bool

	Clock   clock.Clock
	Logger  hclog.Logger
	Metrics *metrics.Recorder
	Sink    Sink
}

const (
	defaultInitialBuffer = 4 << 10
	defaultMaxBuffer     = 1 << 20
	defaultRetain        = 16
)

// Recorder writes checkpoints. Cycles are serialized: at most one checkpoint
// is being written at any time.
type Recorder struct {
	id    uuid.UUID
	reg   *threads.Registry
	types *types.Manager
	cfg   Config
	log   hclog.Logger

	recent *fifo.Ring[Checkpoint]

	mu struct {
		sync.Mutex
		seq uint64
	}
}

// New returns a recorder describing reg through the tables registered in mgr.
func New(reg *threads.Registry, mgr *types.Manager, cfg Config) *Recorder {
	if cfg.InitialBuffer <= 0 {
		cfg.InitialBuffer = defaultInitialBuffer
	}
	if cfg.MaxBuffer <= 0 {
		cfg.MaxBuffer = defaultMaxBuffer
	}
	if cfg.MaxBuffer > maxCheckpointSize {
		cfg.MaxBuffer = maxCheckpointSize
	}
	if cfg.Retain == 0 {
		cfg.Retain = defaultRetain
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Monotonic
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewRecorder(nil)
	}
	r := &Recorder{
		id:     uuid.New(),
		reg:    reg,
		types:  mgr,
		cfg:    cfg,
		log:    logging.OrNull(cfg.Logger).Named("recorder"),
		recent: fifo.NewRing[Checkpoint](cfg.Retain),
	}
	return r
}

// ID identifies the recorder instance in stored checkpoints.
func (r *Recorder) ID() uuid.UUID {
	return r.id
}

// Registry returns the thread registry the recorder describes.
func (r *Recorder) Registry() *threads.Registry {
	return r.reg
}

// Checkpoint writes a checkpoint of the given kind, which must be a
// combination of framing.KindStatics and framing.KindThreads. ctx only bounds
// the hand-off to the sink; writing the checkpoint is not cancellable.
func (r *Recorder) Checkpoint(ctx context.Context, kind framing.Kind) (Checkpoint, error) {
	if kind == 0 || kind&^framing.KindAll != 0 {
		return Checkpoint{}, fmt.Errorf("%w: %d", ErrInvalidKind, kind)
	}
	return r.cycle(ctx, kind, func(w *writer.Writer) uint32 {
		return r.types.WriteTypes(w, kind)
	})
}

// ThreadStarted writes a checkpoint describing th alone, with its thread
// group chain. Nothing is written if th exited in the meantime.
func (r *Recorder) ThreadStarted(ctx context.Context, th *threads.Thread) (Checkpoint, bool, error) {
	c, err := r.cycle(ctx, framing.KindThread, func(w *writer.Writer) uint32 {
		return types.WriteThread(w, r.reg, th)
	})
	if err != nil {
		return Checkpoint{}, false, err
	}
	return c, c.Types > 0, nil
}

// Recent returns the retained checkpoints, oldest first.
func (r *Recorder) Recent() []Checkpoint {
	return r.recent.Snapshot()
}

type header struct {
	size      writer.Reservation
	duration  writer.Reservation
	typeCount writer.Reservation
}

func writeHeader(w *writer.Writer, startTicks, seq uint64, kind framing.Kind) header {
	var h header
	h.size = w.Reserve(framing.SizeWidth)
	w.WriteUvarint(framing.EventCheckpoint)
	w.WriteUvarint(startTicks)
	h.duration = w.Reserve(framing.DurationWidth)
	w.WriteUvarint(seq)
	w.WriteUvarint(uint64(kind))
	h.typeCount = w.Reserve(framing.TypeCountWidth)
	return h
}

func (r *Recorder) cycle(
	ctx context.Context, kind framing.Kind, body func(w *writer.Writer) uint32,
) (Checkpoint, error) {
	label := metrics.KindLabel(kind)
	r.mu.Lock()
	c, dbg, err := func() (Checkpoint, string, error) {
		defer r.mu.Unlock()
		return r.writeLocked(kind, body)
	}()
	if dbg != "" {
		r.log.Trace("writer operations", "seq", c.Sequence, "ops", dbg)
	}
	if err != nil {
		r.cfg.Metrics.Failures.WithLabelValues(label).Inc()
		r.log.Error("checkpoint failed", "kind", label, "error", err)
		return Checkpoint{}, err
	}
	if kind == framing.KindThread && c.Types == 0 {
		return c, nil
	}

	r.cfg.Metrics.Checkpoints.WithLabelValues(label).Inc()
	r.cfg.Metrics.Bytes.Observe(float64(len(c.Data)))
	r.cfg.Metrics.Types.Observe(float64(c.Types))
	r.cfg.Metrics.Duration.Observe(c.Duration.Seconds())
	managed, native := r.reg.Len()
	r.cfg.Metrics.Threads.Set(float64(managed + native))
	r.log.Debug("checkpoint written",
		"seq", c.Sequence, "kind", label, "bytes", len(c.Data), "types", c.Types)

	var sinkErr error
	if r.cfg.Sink != nil {
		id, err := r.cfg.Sink.Put(ctx, c)
		if err != nil {
			r.cfg.Metrics.StoreFailures.Inc()
			sinkErr = fmt.Errorf("storing checkpoint %d: %w", c.Sequence, err)
		} else {
			r.cfg.Metrics.StoreWrites.Inc()
			r.log.Trace("checkpoint stored", "seq", c.Sequence, "id", id)
			c.ID = id
		}
	}
	r.recent.Push(c)
	return c, sinkErr
}

func (r *Recorder) writeLocked(
	kind framing.Kind, body func(w *writer.Writer) uint32,
) (_ Checkpoint, debugLog string, _ error) {
	w := writer.New(r.cfg.InitialBuffer, r.cfg.MaxBuffer)
	if r.cfg.Debug {
		w.EnableDebug()
		defer func() { debugLog = w.DebugLog() }()
	}
	seq := r.mu.seq + 1
	now := time.Now()
	start := r.cfg.Clock.Ticks()
	h := writeHeader(w, start, seq, kind)
	n := body(w)
	if err := w.Err(); err != nil {
		return Checkpoint{Sequence: seq}, "", fmt.Errorf("checkpoint %d: %w", seq, err)
	}
	if kind == framing.KindThread && n == 0 {
		return Checkpoint{Sequence: seq, Kind: kind}, "", nil
	}
	elapsed := r.cfg.Clock.Ticks() - start
	w.WriteCountAt(n, h.typeCount)
	w.PatchUvarint(elapsed, h.duration)
	w.PatchUvarint(uint64(w.Len()), h.size)

	r.mu.seq = seq
	return Checkpoint{
		Recorder:   r.id,
		Sequence:   seq,
		Kind:       kind,
		StartTicks: start,
		Duration:   time.Duration(elapsed),
		Types:      n,
		Time:       now,
		Data:       bytes.Clone(w.Bytes()),
	}, "", nil
}

// TrackThreadStarts makes every thread registered from now on produce a
// single-thread checkpoint. Failures are logged and counted.
func (r *Recorder) TrackThreadStarts() {
	r.reg.OnStart(func(th *threads.Thread) {
		_, _, _ = r.ThreadStarted(context.Background(), th)
	})
}
