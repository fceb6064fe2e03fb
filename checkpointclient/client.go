package checkpointclient

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/grpc"

	"github.com/DataExMachina-dev/checkpoint-go/internal/apiclient"
	"github.com/DataExMachina-dev/checkpoint-go/internal/framing"
)

// Client is a client for a process's checkpoint service.
type Client struct {
	client *apiclient.APIClient
}

const (
	ENV_SERVICE_ADDR = "CHECKPOINT_ADDR"
)

// NewClient creates a new Client. WithAddr or WithAddrFromEnv need to be
// specified as an option.
//
// Close() needs to be called on the client when it is no longer needed to
// release resources.
func NewClient(option ...ClientOption) (*Client, error) {
	opts := clientOpts{}
	for _, o := range option {
		if err := o.apply(&opts); err != nil {
			return nil, err
		}
	}
	if opts.addr == "" {
		return nil, fmt.Errorf("no checkpoint service address configured")
	}
	innerClient, err := apiclient.NewAPIClient(opts.addr, opts.dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{
		client: innerClient,
	}, nil
}

// Close closes the client's network connection.
func (c *Client) Close() {
	c.client.Close()
}

type clientOpts struct {
	addr     string
	dialOpts []grpc.DialOption
}

// ClientOption is the interface implemented by options for NewClient.
type ClientOption interface {
	apply(*clientOpts) error
}

// WithAddr is a string option for NewClient that specifies the address of
// the checkpoint service, either host:port or an http(s) URL.
type WithAddr string

var _ ClientOption = WithAddr("")

// apply implements the ClientOption interface.
func (a WithAddr) apply(opts *clientOpts) error {
	opts.addr = string(a)
	return nil
}

// WithAddrFromEnv is an option for NewClient that reads the service address
// from the CHECKPOINT_ADDR environment variable. If that variable is not set,
// NewClient will return an error.
type WithAddrFromEnv struct{}

var _ ClientOption = WithAddrFromEnv{}

// apply implements the ClientOption interface.
func (w WithAddrFromEnv) apply(opts *clientOpts) error {
	addr, ok := os.LookupEnv(ENV_SERVICE_ADDR)
	if !ok {
		return fmt.Errorf("%s environment variable required by WithAddrFromEnv is not set", ENV_SERVICE_ADDR)
	}
	opts.addr = addr
	return nil
}

// WithDialOptions adds gRPC dial options, for example a custom dialer.
type WithDialOptions []grpc.DialOption

var _ ClientOption = WithDialOptions(nil)

// apply implements the ClientOption interface.
func (d WithDialOptions) apply(opts *clientOpts) error {
	opts.dialOpts = append(opts.dialOpts, d...)
	return nil
}

type (
	Kind          = framing.Kind
	CaptureResult = apiclient.CaptureResult

	InvalidKindError = apiclient.InvalidKindError
	RateLimitedError = apiclient.RateLimitedError
	NotFoundError    = apiclient.NotFoundError
	CorruptError     = apiclient.CorruptError
	NoStoreError     = apiclient.NoStoreError
)

const (
	Statics = framing.KindStatics
	Threads = framing.KindThreads
	All     = framing.KindAll
)

// Capture asks the service to write a checkpoint of the given kind and
// returns it.
//
// Besides generic errors, Capture can return InvalidKindError or
// RateLimitedError.
func (c *Client) Capture(ctx context.Context, kind Kind) (CaptureResult, error) {
	return c.client.Capture(ctx, kind)
}

// Get fetches a stored checkpoint by id. It can return NotFoundError,
// CorruptError or NoStoreError.
func (c *Client) Get(ctx context.Context, id string) ([]byte, error) {
	return c.client.Get(ctx, id)
}

// List returns the ids of the checkpoints the service has stored, oldest
// first.
func (c *Client) List(ctx context.Context) ([]string, error) {
	return c.client.List(ctx)
}
