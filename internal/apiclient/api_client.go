package apiclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/DataExMachina-dev/checkpoint-go/internal/framing"
	"github.com/DataExMachina-dev/checkpoint-go/internal/server"
)

type APIClient struct {
	conn *grpc.ClientConn
}

// Target turns an address into a gRPC target and the transport credentials
// to use with it. The address is either host:port, which is dialed without
// TLS, or an http or https URL.
func Target(addr string) (string, []grpc.DialOption, error) {
	if !strings.Contains(addr, "://") {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return "", nil, fmt.Errorf("invalid checkpoint service address %q: %w", addr, err)
		}
		return "passthrough:///" + addr,
			[]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, nil
	}
	parsed, err := url.Parse(addr)
	if err != nil {
		return "", nil, err
	}
	switch parsed.Scheme {
	case "http":
		opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
		ip := net.ParseIP(parsed.Hostname())
		if ip != nil && parsed.Port() != "" {
			return net.JoinHostPort(ip.String(), parsed.Port()), opts, nil
		} else if ip != nil {
			return ip.String(), opts, nil
		}
		return fmt.Sprintf("dns:///%s", parsed.Host), opts, nil
	case "https":
		opts := []grpc.DialOption{grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{}))}
		return fmt.Sprintf("dns:///%s", parsed.Host), opts, nil
	default:
		return "", nil, fmt.Errorf("unsupported scheme %q in %q", parsed.Scheme, addr)
	}
}

// NewAPIClient creates a client for the checkpoint service at addr. Extra
// dial options are applied after the ones derived from the address.
//
// Close() needs to be called on the client when it is no longer needed to
// release resources.
func NewAPIClient(addr string, extra ...grpc.DialOption) (*APIClient, error) {
	target, dialOpts, err := Target(addr)
	if err != nil {
		return nil, err
	}
	dialOpts = append(dialOpts, extra...)
	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the checkpoint service: %w", err)
	}
	return &APIClient{conn: conn}, nil
}

// Close closes the client's network connection.
func (c *APIClient) Close() {
	_ /* err */ = c.conn.Close()
}

// CaptureResult describes a checkpoint captured on request.
type CaptureResult struct {
	// Sequence is the checkpoint's sequence number in its recorder.
	Sequence uint64
	// ID is the key the checkpoint was stored under. It is empty when the
	// service runs without a store.
	ID   string
	Data []byte
}

func (c *APIClient) Capture(ctx context.Context, kind framing.Kind) (CaptureResult, error) {
	var md metadata.MD
	out := new(wrapperspb.BytesValue)
	err := c.conn.Invoke(ctx, server.CaptureMethod, wrapperspb.UInt32(uint32(kind)), out, grpc.Header(&md))
	if err != nil {
		return CaptureResult{}, convertError(err)
	}
	res := CaptureResult{Data: out.GetValue()}
	if v := md.Get(server.SequenceHeader); len(v) > 0 {
		seq, err := strconv.ParseUint(v[0], 10, 64)
		if err != nil {
			return CaptureResult{}, fmt.Errorf("malformed %s header %q: %w", server.SequenceHeader, v[0], err)
		}
		res.Sequence = seq
	}
	if v := md.Get(server.IDHeader); len(v) > 0 {
		res.ID = v[0]
	}
	return res, nil
}

func (c *APIClient) Get(ctx context.Context, id string) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.conn.Invoke(ctx, server.GetMethod, wrapperspb.String(id), out); err != nil {
		return nil, convertError(err)
	}
	return out.GetValue(), nil
}

// List returns the ids of the stored checkpoints, oldest first.
func (c *APIClient) List(ctx context.Context) ([]string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.conn.Invoke(ctx, server.ListMethod, &emptypb.Empty{}, out); err != nil {
		return nil, convertError(err)
	}
	if out.GetValue() == "" {
		return nil, nil
	}
	return strings.Split(out.GetValue(), "\n"), nil
}

// convertError recognizes the service's status codes and turns them into
// typed errors.
func convertError(err error) error {
	s, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch s.Code() {
	case codes.InvalidArgument:
		return InvalidKindError{msg: s.Message()}
	case codes.ResourceExhausted:
		return RateLimitedError{msg: s.Message()}
	case codes.NotFound:
		return NotFoundError{}
	case codes.DataLoss:
		return CorruptError{msg: s.Message()}
	case codes.FailedPrecondition:
		return NoStoreError{}
	case codes.Unavailable:
		return fmt.Errorf("failed to connect to the checkpoint service: %w", err)
	}
	return err
}

// InvalidKindError is returned when the requested checkpoint kind is not one
// the service can write.
type InvalidKindError struct {
	msg string
}

var _ error = InvalidKindError{}

func (e InvalidKindError) Error() string {
	return e.msg
}

// RateLimitedError is returned when the service refused a capture because of
// its rate limit, or because the checkpoint did not fit in its buffer.
type RateLimitedError struct {
	msg string
}

var _ error = RateLimitedError{}

func (e RateLimitedError) Error() string {
	return e.msg
}

type NotFoundError struct{}

var _ error = NotFoundError{}

func (n NotFoundError) Error() string {
	return "checkpoint not found"
}

// CorruptError is returned when a stored checkpoint failed its checksum.
type CorruptError struct {
	msg string
}

var _ error = CorruptError{}

func (e CorruptError) Error() string {
	return e.msg
}

// NoStoreError is returned by Get and List when the service keeps no
// checkpoint store.
type NoStoreError struct{}

var _ error = NoStoreError{}

func (n NoStoreError) Error() string {
	return "service has no checkpoint store"
}
