// Package store persists checkpoints in badger. Every checkpoint is stored as
// a msgpack record under a ULID key, with a zstd compressed payload and a
// highwayhash checksum of the uncompressed bytes.
package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/hashicorp/go-hclog"
	"github.com/klauspost/compress/zstd"
	"github.com/minio/highwayhash"
	"github.com/oklog/ulid/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/DataExMachina-dev/checkpoint-go/internal/framing"
	"github.com/DataExMachina-dev/checkpoint-go/internal/logging"
	"github.com/DataExMachina-dev/checkpoint-go/internal/recorder"
)

var (
	ErrNotFound = errors.New("checkpoint not found")
	ErrCorrupt  = errors.New("checkpoint corrupt")
	ErrClosed   = errors.New("store closed")
)

const keyPrefix = "cp/"

// hashKey is the highwayhash key of payload checksums. It only has to be
// stable across versions.
var hashKey = [32]byte{
	0x63, 0x68, 0x65, 0x63, 0x6b, 0x70, 0x6f, 0x69,
	0x6e, 0x74, 0x2d, 0x67, 0x6f, 0x2f, 0x73, 0x74,
	0x6f, 0x72, 0x65, 0x2f, 0x63, 0x68, 0x65, 0x63,
	0x6b, 0x73, 0x75, 0x6d, 0x2f, 0x76, 0x31, 0x00,
}

// Meta describes a stored checkpoint.
type Meta struct {
	ID         string        `msgpack:"-"`
	Recorder   string        `msgpack:"recorder"`
	Sequence   uint64        `msgpack:"seq"`
	Kind       framing.Kind  `msgpack:"kind"`
	StartTicks uint64        `msgpack:"start_ticks"`
	Duration   time.Duration `msgpack:"duration"`
	Types      uint32        `msgpack:"types"`
	Time       time.Time     `msgpack:"time"`
	Size       int           `msgpack:"size"`
	Checksum   uint64        `msgpack:"checksum"`
}

type record struct {
	Meta    `msgpack:",inline"`
	Payload []byte `msgpack:"payload"`
}

// Options configures Open.
type Options struct {
	// Dir is the badger directory. It is ignored when InMemory is set.
	Dir      string
	InMemory bool
	// Retain bounds the number of stored checkpoints; older ones are
	// deleted on Put. Zero keeps everything.
	Retain int
	Logger hclog.Logger
}

// Store is a badger backed checkpoint store. It implements recorder.Sink.
type Store struct {
	db     *badger.DB
	retain int
	log    hclog.Logger

	enc *zstd.Encoder
	dec *zstd.Decoder

	mu struct {
		sync.Mutex
		entropy *ulid.MonotonicEntropy
		// last is the millisecond timestamp of the newest key. Keys never
		// go below it, so key order stays put order when the wall clock
		// steps back.
		last   uint64
		closed bool
	}
}

var _ recorder.Sink = (*Store)(nil)

func Open(opts Options) (*Store, error) {
	log := logging.OrNull(opts.Logger).Named("store")
	bopts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else if opts.Dir == "" {
		return nil, errors.New("store: dir is required")
	}
	bopts.Logger = logging.Badger{L: log.Named("badger")}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: zstd decoder: %w", err)
	}
	s := &Store{db: db, retain: opts.Retain, log: log, enc: enc, dec: dec}
	s.mu.entropy = ulid.Monotonic(rand.Reader, 0)
	last, err := s.newestTimestamp()
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("store: read newest key: %w", err)
	}
	s.mu.last = last
	log.Info("store opened", "dir", opts.Dir, "in_memory", opts.InMemory, "retain", opts.Retain)
	return s, nil
}

func (s *Store) newID(t time.Time) (ulid.ULID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mu.closed {
		return ulid.ULID{}, ErrClosed
	}
	ms := ulid.Timestamp(t)
	if ms < s.mu.last {
		ms = s.mu.last
	}
	id, err := ulid.New(ms, s.mu.entropy)
	if err != nil {
		return ulid.ULID{}, err
	}
	s.mu.last = ms
	return id, nil
}

// newestTimestamp returns the timestamp of the largest stored key, or 0 for
// an empty store.
func (s *Store) newestTimestamp() (uint64, error) {
	var ms uint64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		it.Seek([]byte(keyPrefix + "\xff"))
		if !it.ValidForPrefix([]byte(keyPrefix)) {
			return nil
		}
		key := strings.TrimPrefix(string(it.Item().Key()), keyPrefix)
		id, err := ulid.ParseStrict(key)
		if err != nil {
			return fmt.Errorf("%w: key %q", ErrCorrupt, key)
		}
		ms = id.Time()
		return nil
	})
	return ms, err
}

func checksum(data []byte) uint64 {
	return highwayhash.Sum64(data, hashKey[:])
}

// Put stores c and returns its id.
func (s *Store) Put(ctx context.Context, c recorder.Checkpoint) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t := c.Time
	if t.IsZero() {
		t = time.Now()
	}
	id, err := s.newID(t)
	if err != nil {
		return "", err
	}
	rec := record{
		Meta: Meta{
			Recorder:   c.Recorder.String(),
			Sequence:   c.Sequence,
			Kind:       c.Kind,
			StartTicks: c.StartTicks,
			Duration:   c.Duration,
			Types:      c.Types,
			Time:       t,
			Size:       len(c.Data),
			Checksum:   checksum(c.Data),
		},
		Payload: s.enc.EncodeAll(c.Data, nil),
	}
	val, err := msgpack.Marshal(&rec)
	if err != nil {
		return "", fmt.Errorf("store: encode record: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+id.String()), val)
	}); err != nil {
		return "", fmt.Errorf("store: put: %w", err)
	}
	if s.retain > 0 {
		if err := s.prune(s.retain); err != nil {
			s.log.Warn("prune failed", "error", err)
		}
	}
	return id.String(), nil
}

func (s *Store) decode(key, val []byte, withPayload bool) (Meta, []byte, error) {
	var rec record
	if err := msgpack.Unmarshal(val, &rec); err != nil {
		return Meta{}, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	rec.ID = strings.TrimPrefix(string(key), keyPrefix)
	if !withPayload {
		return rec.Meta, nil, nil
	}
	data, err := s.dec.DecodeAll(rec.Payload, nil)
	if err != nil {
		return Meta{}, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(data) != rec.Size || checksum(data) != rec.Checksum {
		return Meta{}, nil, fmt.Errorf("%w: checksum mismatch for %s", ErrCorrupt, rec.ID)
	}
	return rec.Meta, data, nil
}

// Get returns the checkpoint stored under id.
func (s *Store) Get(ctx context.Context, id string) (Meta, []byte, error) {
	if err := ctx.Err(); err != nil {
		return Meta{}, nil, err
	}
	if _, err := ulid.ParseStrict(id); err != nil {
		return Meta{}, nil, fmt.Errorf("%w: invalid id %q", ErrNotFound, id)
	}
	var (
		meta Meta
		data []byte
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		meta, data, err = s.decode(item.Key(), val, true)
		return err
	})
	return meta, data, err
}

// List returns the stored checkpoints oldest first. A positive limit returns
// only the most recent ones.
func (s *Store) List(ctx context.Context, limit int) ([]Meta, error) {
	var out []Meta
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			meta, _, err := s.decode(item.KeyCopy(nil), val, false)
			if err != nil {
				return err
			}
			out = append(out, meta)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// prune deletes the oldest checkpoints until at most keep remain.
func (s *Store) prune(keep int) error {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil || len(keys) <= keep {
		return err
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys[:len(keys)-keep] {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (s *Store) Close() error {
	s.mu.Lock()
	if s.mu.closed {
		s.mu.Unlock()
		return nil
	}
	s.mu.closed = true
	s.mu.Unlock()
	s.dec.Close()
	if err := s.enc.Close(); err != nil {
		s.log.Warn("closing zstd encoder", "error", err)
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close db: %w", err)
	}
	s.log.Info("store closed")
	return nil
}
