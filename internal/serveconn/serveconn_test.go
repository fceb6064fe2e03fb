package serveconn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/DataExMachina-dev/checkpoint-go/internal/recorder"
	"github.com/DataExMachina-dev/checkpoint-go/internal/server"
	"github.com/DataExMachina-dev/checkpoint-go/internal/threads"
	"github.com/DataExMachina-dev/checkpoint-go/internal/types"
)

func TestListenServeClose(t *testing.T) {
	reg := threads.NewRegistry()
	rec := recorder.New(reg, types.DefaultManager(reg), recorder.Config{})
	var errs []error
	c := New(func(err error) { errs = append(errs, err) })
	require.False(t, c.Serving())
	c.Close()

	require.NoError(t, c.Listen("127.0.0.1:0", server.New(rec, server.Options{})))
	require.True(t, c.Serving())
	require.NotEmpty(t, c.ProcessFingerprint())

	conn, err := grpc.NewClient(c.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	out := new(wrapperspb.BytesValue)
	require.NoError(t, conn.Invoke(context.Background(), server.CaptureMethod, wrapperspb.UInt32(0), out))
	require.NotEmpty(t, out.GetValue())

	c.Close()
	require.False(t, c.Serving())
	require.Empty(t, errs)

	// Serving again after Close works.
	require.NoError(t, c.Listen("127.0.0.1:0", server.New(rec, server.Options{})))
	c.Close()
}
