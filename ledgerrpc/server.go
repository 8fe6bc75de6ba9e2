package ledgerrpc

import (
	"context"
	"errors"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/ledger/blockchain"
	"xdao.co/ledger/cidutil"
	"xdao.co/ledger/node"
	"xdao.co/ledger/storage"
)

// Backend is what the server needs from a node. *node.Node implements it.
type Backend interface {
	Submit(ctx context.Context, raw []byte) (cid.Cid, error)
	ConfigurationBytes(hash cid.Cid) ([]byte, error)
	ActiveConfiguration(h blockchain.Height) (cid.Cid, []byte, error)
}

var _ Backend = (*node.Node)(nil)

type Server struct {
	UnimplementedLedgerServer
	Backend Backend
}

func (s *Server) Submit(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.Backend == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing backend")
	}
	hash, err := s.Backend.Submit(ctx, in.GetValue())
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.String(hash.String()), nil
}

func (s *Server) Configuration(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Backend == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing backend")
	}
	id, err := cidutil.Parse(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	b, err := s.Backend.ConfigurationBytes(id)
	if err != nil {
		return nil, mapErr(err)
	}
	if !cidutil.Matches(id, b) {
		return nil, status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) ActiveConfiguration(ctx context.Context, in *wrapperspb.UInt64Value) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Backend == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing backend")
	}
	_, b, err := s.Backend.ActiveConfiguration(blockchain.Height(in.GetValue()))
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bytes(b), nil
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case storage.IsNotFound(err):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, node.ErrDuplicate):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, node.ErrMempoolFull):
		return status.Error(codes.ResourceExhausted, err.Error())
	case blockchain.IsKind(err, blockchain.KindVerification):
		return status.Error(codes.Unauthenticated, err.Error())
	case blockchain.IsKind(err, blockchain.KindDecode):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, storage.ErrCIDMismatch):
		return status.Error(codes.DataLoss, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
