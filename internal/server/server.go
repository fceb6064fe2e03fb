// Package server implements the checkpoint gRPC service on top of a recorder
// and an optional store.
package server

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/DataExMachina-dev/checkpoint-go/internal/framing"
	"github.com/DataExMachina-dev/checkpoint-go/internal/logging"
	"github.com/DataExMachina-dev/checkpoint-go/internal/recorder"
	"github.com/DataExMachina-dev/checkpoint-go/internal/store"
	"github.com/DataExMachina-dev/checkpoint-go/internal/writer"
)

// Store is the part of the checkpoint store the server reads from. Captured
// checkpoints reach it through the recorder's sink.
type Store interface {
	Get(ctx context.Context, id string) (store.Meta, []byte, error)
	List(ctx context.Context, limit int) ([]store.Meta, error)
}

// Server implements CheckpointServiceServer.
type Server struct {
	rec     *recorder.Recorder
	store   Store
	limiter *rate.Limiter
	log     hclog.Logger

	// g coalesces concurrent captures of the same kind into one cycle.
	g singleflight.Group
}

var _ CheckpointServiceServer = (*Server)(nil)

// Options configures New.
type Options struct {
	// Store, when set, serves Get and List.
	Store Store
	// Limit and Burst rate limit Capture. A zero Limit disables limiting.
	Limit  rate.Limit
	Burst  int
	Logger hclog.Logger
}

func New(rec *recorder.Recorder, opts Options) *Server {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.Limit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(opts.Limit, burst)
	}
	return &Server{
		rec:     rec,
		store:   opts.Store,
		limiter: limiter,
		log:     logging.OrNull(opts.Logger).Named("server"),
	}
}

// Capture implements CheckpointServiceServer.
func (s *Server) Capture(ctx context.Context, req *wrapperspb.UInt32Value) (*wrapperspb.BytesValue, error) {
	kind := framing.Kind(req.GetValue())
	if kind == 0 {
		kind = framing.KindAll
	}
	if !s.limiter.Allow() {
		return nil, status.Error(codes.ResourceExhausted, "capture rate exceeded")
	}
	v, err, shared := s.g.Do(strconv.FormatUint(uint64(kind), 10), func() (interface{}, error) {
		// The cycle is shared by every waiter, so it must not be bound to the
		// first caller's context.
		return s.rec.Checkpoint(context.WithoutCancel(ctx), kind)
	})
	if err != nil {
		return nil, toStatus(err)
	}
	c := v.(recorder.Checkpoint)
	s.log.Debug("capture served", "seq", c.Sequence, "kind", kind, "shared", shared)
	md := metadata.Pairs(SequenceHeader, strconv.FormatUint(c.Sequence, 10))
	if c.ID != "" {
		md.Append(IDHeader, c.ID)
	}
	if err := grpc.SetHeader(ctx, md); err != nil {
		s.log.Warn("setting response header", "error", err)
	}
	return wrapperspb.Bytes(c.Data), nil
}

// Get implements CheckpointServiceServer.
func (s *Server) Get(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s.store == nil {
		return nil, status.Error(codes.FailedPrecondition, "no checkpoint store configured")
	}
	_, data, err := s.store.Get(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(data), nil
}

// List implements CheckpointServiceServer.
func (s *Server) List(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	if s.store == nil {
		return nil, status.Error(codes.FailedPrecondition, "no checkpoint store configured")
	}
	metas, err := s.store.List(ctx, 0)
	if err != nil {
		return nil, toStatus(err)
	}
	ids := make([]string, len(metas))
	for i, m := range metas {
		ids[i] = m.ID
	}
	return wrapperspb.String(strings.Join(ids, "\n")), nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, recorder.ErrInvalidKind):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, writer.ErrBufferFull):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, store.ErrCorrupt):
		return status.Error(codes.DataLoss, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
