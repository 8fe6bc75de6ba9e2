package ledgerrpc

import (
	"context"
	"fmt"
	"time"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/ledger/blockchain"
	"xdao.co/ledger/cidutil"
	"xdao.co/ledger/storage"
)

// Client calls a remote node.
type Client struct {
	cc     *grpc.ClientConn
	client LedgerClient

	// Timeout applies per call when non-zero.
	Timeout time.Duration
}

type DialOptions struct {
	// MaxMsgBytes sets both send and receive limits when non-zero.
	MaxMsgBytes int
	// Extra is appended to the default dial options.
	Extra []grpc.DialOption
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts, grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
			grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
		))
	}
	dialOpts = append(dialOpts, opts.Extra...)
	cc, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc, client: NewLedgerClient(cc)}, nil
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout > 0 {
		return context.WithTimeout(parent, c.Timeout)
	}
	return context.WithCancel(parent)
}

// Submit sends signed envelope bytes and returns the transaction hash.
func (c *Client) Submit(ctx context.Context, raw []byte) (cid.Cid, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	out, err := c.client.Submit(ctx, wrapperspb.Bytes(raw))
	if err != nil {
		return cid.Undef, err
	}
	return cidutil.Parse(out.GetValue())
}

// Configuration fetches a configuration document and checks it against id.
func (c *Client) Configuration(ctx context.Context, id cid.Cid) ([]byte, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	out, err := c.client.Configuration(ctx, wrapperspb.String(id.String()))
	if err != nil {
		return nil, unmapErr(err)
	}
	b := out.GetValue()
	if !cidutil.Matches(id, b) {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

// ActiveConfiguration fetches the document active at h.
func (c *Client) ActiveConfiguration(ctx context.Context, h blockchain.Height) ([]byte, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	out, err := c.client.ActiveConfiguration(ctx, wrapperspb.UInt64(uint64(h)))
	if err != nil {
		return nil, unmapErr(err)
	}
	return out.GetValue(), nil
}

func unmapErr(err error) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, status.Convert(err).Message())
	}
	return err
}
