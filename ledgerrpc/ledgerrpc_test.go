package ledgerrpc

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/ledger/blockchain"
	"xdao.co/ledger/cidutil"
	"xdao.co/ledger/config/configtest"
	"xdao.co/ledger/keys"
	"xdao.co/ledger/node"
	"xdao.co/ledger/services/configupdater"
	"xdao.co/ledger/storage"
	"xdao.co/ledger/storage/memdb"
)

func startNode(t *testing.T) (*node.Node, *Client) {
	t.Helper()
	reg, err := blockchain.NewRegistry(configupdater.New())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	n := node.New(blockchain.New(memdb.New(), reg, nil), node.Options{})

	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterLedgerServer(srv, &Server{Backend: n})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }
	client, err := Dial("passthrough:///bufnet", DialOptions{Extra: []grpc.DialOption{grpc.WithContextDialer(dialer)}})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	client.Timeout = 2 * time.Second
	t.Cleanup(func() { _ = client.Close() })
	return n, client
}

func TestLedgerRPC_SubmitAndQuery(t *testing.T) {
	n, client := startNode(t)
	_, sk, err := keys.KeypairFromSeed(bytes.Repeat([]byte{1}, keys.SeedSize))
	if err != nil {
		t.Fatalf("KeypairFromSeed: %v", err)
	}
	doc := configtest.Bytes(t, 5, cid.Undef)
	env := configupdater.CreateSigned(doc, 5, sk)

	hash, err := client.Submit(context.Background(), env)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !hash.Equals(cidutil.MustSum(env)) {
		t.Fatalf("Submit returned %s, want envelope hash", hash)
	}
	if _, err := n.SealBlock(); err != nil {
		t.Fatalf("SealBlock: %v", err)
	}

	got, err := client.Configuration(context.Background(), cidutil.MustSum(doc))
	if err != nil {
		t.Fatalf("Configuration: %v", err)
	}
	if !bytes.Equal(got, doc) {
		t.Fatalf("Configuration returned different bytes")
	}

	active, err := client.ActiveConfiguration(context.Background(), 7)
	if err != nil {
		t.Fatalf("ActiveConfiguration: %v", err)
	}
	if !bytes.Equal(active, doc) {
		t.Fatalf("ActiveConfiguration returned different bytes")
	}
	if _, err := client.ActiveConfiguration(context.Background(), 4); !storage.IsNotFound(err) {
		t.Fatalf("ActiveConfiguration before activation: got %v, want ErrNotFound", err)
	}

	if _, err := client.Submit(context.Background(), env); status.Code(err) != codes.AlreadyExists {
		t.Fatalf("resubmit: got %v, want AlreadyExists", err)
	}
}

func TestLedgerRPC_ErrorCodes(t *testing.T) {
	_, client := startNode(t)

	if _, err := client.Submit(context.Background(), []byte("junk")); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("junk envelope: got %v, want Unauthenticated", err)
	}
	if _, err := client.Configuration(context.Background(), cidutil.MustSum([]byte("none"))); !storage.IsNotFound(err) {
		t.Fatalf("missing configuration: got %v, want ErrNotFound", err)
	}

	_, err := client.client.Configuration(context.Background(), wrapperspb.String("not-a-cid"))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("bad cid: got %v, want InvalidArgument", err)
	}
}
