package protocol

import (
	"errors"
	"testing"

	"github.com/Mauryavnshi/massa/core/types"
)

type gatewayFixture struct {
	peers     *PeerDB
	registry  *fakeRegistry
	tracker   *PropagationTracker
	consensus *fakeConsensus
	pool      *fakePool
	gateway   *Gateway
}

func newGatewayFixture(t *testing.T, currentPeriod uint64) *gatewayFixture {
	t.Helper()
	f := &gatewayFixture{
		peers:     NewPeerDB(nil),
		registry:  newFakeRegistry(),
		tracker:   NewPropagationTracker(64),
		consensus: newFakeConsensus(),
		pool:      &fakePool{},
	}
	f.gateway = NewGateway(f.peers, f.registry, f.tracker, f.consensus, f.pool,
		func() uint64 { return currentPeriod }, 4, nil)
	return f
}

func (f *gatewayFixture) admit(id PeerID) {
	f.registry.mu.Lock()
	f.registry.connected[id] = struct{}{}
	f.registry.mu.Unlock()
	f.peers.AddPeer(id)
	f.peers.Promote(id)
}

func TestGatewayAcceptsValidHeader(t *testing.T) {
	f := newGatewayFixture(t, 10)
	sender := testPeerID(t)
	f.admit(sender)
	header, id := signedHeader(t, 5, nil)

	if err := f.gateway.HandleHeader(sender, HeaderPayload{BlockID: id, Header: header}); err != nil {
		t.Fatalf("HandleHeader: %v", err)
	}
	if !f.consensus.hasHeader(id) {
		t.Fatal("header did not reach consensus")
	}
	if f.peers.IsBanned(sender) {
		t.Fatal("valid header banned the sender")
	}
	if got := f.tracker.Propagators(id); len(got) != 1 || got[0] != sender {
		t.Fatalf("propagators = %v, want [%s]", got, sender)
	}
	if f.peers.GetPeers()[sender].LastAnnounce != header {
		t.Fatal("announce not recorded")
	}
}

func TestGatewayBansHeaderIDMismatch(t *testing.T) {
	f := newGatewayFixture(t, 10)
	sender := testPeerID(t)
	f.admit(sender)
	header, _ := signedHeader(t, 5, nil)

	err := f.gateway.HandleHeader(sender, HeaderPayload{BlockID: types.BlockID{0xff}, Header: header})
	if !errors.Is(err, ErrIDMismatch) {
		t.Fatalf("err = %v, want ErrIDMismatch", err)
	}
	if !f.peers.IsBanned(sender) {
		t.Fatal("sender not banned")
	}
	if f.registry.shutdownCount(sender) != 1 {
		t.Fatal("connection not shut down")
	}
	if f.consensus.hasHeader(types.BlockID{0xff}) {
		t.Fatal("mismatched header reached consensus")
	}
}

func TestGatewayBansForgedHeaderSignature(t *testing.T) {
	f := newGatewayFixture(t, 10)
	sender := testPeerID(t)
	f.admit(sender)

	header, _ := signedHeader(t, 5, nil)
	header.Signature[10] ^= 0x01
	id, err := header.ID()
	if err != nil {
		t.Fatalf("header id: %v", err)
	}

	err = f.gateway.HandleHeader(sender, HeaderPayload{BlockID: id, Header: header})
	if err == nil || !IsViolation(err) {
		t.Fatalf("err = %v, want signature violation", err)
	}
	if !f.peers.IsBanned(sender) {
		t.Fatal("sender not banned")
	}
	if f.consensus.hasHeader(id) {
		t.Fatal("forged header reached consensus")
	}
}

func TestGatewayAcceptsValidOperations(t *testing.T) {
	f := newGatewayFixture(t, 10)
	sender := testPeerID(t)
	f.admit(sender)

	batch := OperationsPayload{Operations: []*types.Operation{
		signedOperation(t, 20),
		signedOperation(t, 30),
	}}
	if err := f.gateway.HandleOperations(sender, batch); err != nil {
		t.Fatalf("HandleOperations: %v", err)
	}
	if f.pool.batchCount() != 1 {
		t.Fatalf("pool received %d batches, want 1", f.pool.batchCount())
	}
	if f.peers.IsBanned(sender) {
		t.Fatal("valid batch banned the sender")
	}
}

func TestGatewayBatchFailsClosed(t *testing.T) {
	f := newGatewayFixture(t, 10)
	sender := testPeerID(t)
	f.admit(sender)

	bad := signedOperation(t, 20)
	bad.Fee++ // break the signature binding
	batch := OperationsPayload{Operations: []*types.Operation{
		signedOperation(t, 20),
		bad,
	}}

	err := f.gateway.HandleOperations(sender, batch)
	if err == nil || !IsViolation(err) {
		t.Fatalf("err = %v, want signature violation", err)
	}
	if !f.peers.IsBanned(sender) {
		t.Fatal("sender not banned")
	}
	if f.pool.batchCount() != 0 {
		t.Fatal("operations from a rejected batch reached the pool")
	}
}

func TestGatewayBansExpiredOperation(t *testing.T) {
	f := newGatewayFixture(t, 100)
	sender := testPeerID(t)
	f.admit(sender)

	err := f.gateway.HandleOperations(sender, OperationsPayload{
		Operations: []*types.Operation{signedOperation(t, 99)},
	})
	if !errors.Is(err, ErrOperationExpired) {
		t.Fatalf("err = %v, want ErrOperationExpired", err)
	}
	if !f.peers.IsBanned(sender) {
		t.Fatal("sender not banned")
	}
}

func TestGatewayBansOversizedBatch(t *testing.T) {
	f := newGatewayFixture(t, 10)
	sender := testPeerID(t)
	f.admit(sender)

	ops := make([]*types.Operation, 5)
	for i := range ops {
		ops[i] = signedOperation(t, 20)
	}
	err := f.gateway.HandleOperations(sender, OperationsPayload{Operations: ops})
	if !errors.Is(err, ErrBatchTooLarge) {
		t.Fatalf("err = %v, want ErrBatchTooLarge", err)
	}
	if !f.peers.IsBanned(sender) {
		t.Fatal("sender not banned")
	}
}

func TestGatewayDropsBlockInfoForUnknownBlock(t *testing.T) {
	f := newGatewayFixture(t, 10)
	sender := testPeerID(t)
	f.admit(sender)

	err := f.gateway.HandleBlockInfo(sender, BlockInfoPayload{BlockID: types.BlockID{0xaa}})
	if err != nil {
		t.Fatalf("HandleBlockInfo: %v", err)
	}
	if f.peers.IsBanned(sender) {
		t.Fatal("reply for an unknown block must not ban")
	}
}

func TestGatewayBansBlockInfoRootMismatch(t *testing.T) {
	f := newGatewayFixture(t, 10)
	sender := testPeerID(t)
	f.admit(sender)

	ops := []types.OperationID{{0x01}, {0x02}}
	header, id := signedHeader(t, 5, ops)
	f.tracker.RecordHeader(id, header, sender)

	err := f.gateway.HandleBlockInfo(sender, BlockInfoPayload{
		BlockID:      id,
		OperationIDs: []types.OperationID{{0x02}, {0x01}},
	})
	if !errors.Is(err, ErrCommitmentMismatch) {
		t.Fatalf("err = %v, want ErrCommitmentMismatch", err)
	}
	if !f.peers.IsBanned(sender) {
		t.Fatal("sender not banned")
	}
	if _, ok := f.consensus.blockOps(id); ok {
		t.Fatal("mismatched block info reached consensus")
	}
}

func TestGatewayAcceptsMatchingBlockInfo(t *testing.T) {
	f := newGatewayFixture(t, 10)
	sender := testPeerID(t)
	f.admit(sender)

	ops := []types.OperationID{{0x01}, {0x02}}
	header, id := signedHeader(t, 5, ops)
	f.tracker.RecordHeader(id, header, sender)

	if err := f.gateway.HandleBlockInfo(sender, BlockInfoPayload{BlockID: id, OperationIDs: ops}); err != nil {
		t.Fatalf("HandleBlockInfo: %v", err)
	}
	got, ok := f.consensus.blockOps(id)
	if !ok || len(got) != 2 {
		t.Fatalf("consensus block ops = %v, want 2 ids", got)
	}
	if f.peers.IsBanned(sender) {
		t.Fatal("matching reply banned the sender")
	}
	// The record stays live until consensus settles the block.
	if _, ok := f.tracker.Header(id); !ok {
		t.Fatal("propagation record dropped on block info accept")
	}
}
