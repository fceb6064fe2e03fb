package apiclient

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/DataExMachina-dev/checkpoint-go/internal/framing"
	"github.com/DataExMachina-dev/checkpoint-go/internal/server"
)

// headerServer answers Capture with fixed response headers.
type headerServer struct {
	md metadata.MD
}

func (h headerServer) Capture(ctx context.Context, _ *wrapperspb.UInt32Value) (*wrapperspb.BytesValue, error) {
	if err := grpc.SetHeader(ctx, h.md); err != nil {
		return nil, err
	}
	return wrapperspb.Bytes([]byte{1}), nil
}

func (headerServer) Get(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	return wrapperspb.Bytes(nil), nil
}

func (headerServer) List(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String(""), nil
}

func newTestClient(t *testing.T, srv server.CheckpointServiceServer) *APIClient {
	t.Helper()
	lis := bufconn.Listen(1 << 16)
	gs := grpc.NewServer()
	server.Register(gs, srv)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	c, err := NewAPIClient("bufnet:1", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestCaptureReadsHeaders(t *testing.T) {
	c := newTestClient(t, headerServer{md: metadata.Pairs(server.SequenceHeader, "42", server.IDHeader, "abc")})
	res, err := c.Capture(context.Background(), framing.KindAll)
	require.NoError(t, err)
	require.Equal(t, uint64(42), res.Sequence)
	require.Equal(t, "abc", res.ID)
	require.Equal(t, []byte{1}, res.Data)
}

func TestCaptureMalformedSequence(t *testing.T) {
	c := newTestClient(t, headerServer{md: metadata.Pairs(server.SequenceHeader, "forty-two")})
	_, err := c.Capture(context.Background(), framing.KindAll)
	require.ErrorContains(t, err, "malformed checkpoint-sequence header")
}

func TestTarget(t *testing.T) {
	target, opts, err := Target("localhost:7171")
	require.NoError(t, err)
	require.Equal(t, "passthrough:///localhost:7171", target)
	require.Len(t, opts, 1)

	target, _, err = Target("http://127.0.0.1:80")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:80", target)

	target, _, err = Target("https://checkpoints.internal")
	require.NoError(t, err)
	require.Equal(t, "dns:///checkpoints.internal", target)

	_, _, err = Target("localhost")
	require.Error(t, err)
	_, _, err = Target("ftp://host")
	require.Error(t, err)
}
