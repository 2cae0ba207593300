package protocol

import (
	"errors"
	"sync"
	"testing"

	"github.com/Mauryavnshi/massa/core/types"
	"github.com/Mauryavnshi/massa/crypto"
)

func testKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func testPeerID(t *testing.T) PeerID {
	t.Helper()
	return testKey(t).PeerID()
}

func signedHeader(t *testing.T, period uint64, ops []types.OperationID) (*types.Header, types.BlockID) {
	t.Helper()
	header := &types.Header{
		Period:         period,
		Thread:         0,
		Timestamp:      1700000000,
		OperationsRoot: types.OperationsRoot(ops),
	}
	if err := header.Sign(testKey(t)); err != nil {
		t.Fatalf("sign header: %v", err)
	}
	id, err := header.ID()
	if err != nil {
		t.Fatalf("header id: %v", err)
	}
	return header, id
}

func signedOperation(t *testing.T, expire uint64) *types.Operation {
	t.Helper()
	op := &types.Operation{
		ExpirePeriod: expire,
		Fee:          10,
		Payload:      []byte("transfer"),
	}
	if err := op.Sign(testKey(t)); err != nil {
		t.Fatalf("sign operation: %v", err)
	}
	return op
}

type sentMsg struct {
	to  PeerID
	msg *Message
}

type fakeRegistry struct {
	mu        sync.Mutex
	connected map[PeerID]struct{}
	shutdowns []PeerID
	sent      []sentMsg
	failSend  map[PeerID]bool
}

func newFakeRegistry(peers ...PeerID) *fakeRegistry {
	reg := &fakeRegistry{connected: make(map[PeerID]struct{}), failSend: make(map[PeerID]bool)}
	for _, id := range peers {
		reg.connected[id] = struct{}{}
	}
	return reg
}

func (r *fakeRegistry) PeerIDsConnected() map[PeerID]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[PeerID]struct{}, len(r.connected))
	for id := range r.connected {
		out[id] = struct{}{}
	}
	return out
}

func (r *fakeRegistry) ShutdownConnection(id PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.connected, id)
	r.shutdowns = append(r.shutdowns, id)
}

func (r *fakeRegistry) Send(id PeerID, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSend[id] {
		return errors.New("send failed")
	}
	if _, ok := r.connected[id]; !ok {
		return errors.New("not connected")
	}
	r.sent = append(r.sent, sentMsg{to: id, msg: msg})
	return nil
}

func (r *fakeRegistry) sentTo(id PeerID) []sentMsg {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sentMsg
	for _, s := range r.sent {
		if s.to == id {
			out = append(out, s)
		}
	}
	return out
}

func (r *fakeRegistry) shutdownCount(id PeerID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, s := range r.shutdowns {
		if s == id {
			count++
		}
	}
	return count
}

func (r *fakeRegistry) sentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type fakeConsensus struct {
	mu      sync.Mutex
	headers map[types.BlockID]*types.Header
	blocks  map[types.BlockID][]types.OperationID
}

func newFakeConsensus() *fakeConsensus {
	return &fakeConsensus{
		headers: make(map[types.BlockID]*types.Header),
		blocks:  make(map[types.BlockID][]types.OperationID),
	}
}

func (c *fakeConsensus) RegisterBlockHeader(id types.BlockID, header *types.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[id] = header
}

func (c *fakeConsensus) RegisterBlock(id types.BlockID, header *types.Header, ops []types.OperationID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks[id] = ops
}

func (c *fakeConsensus) hasHeader(id types.BlockID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.headers[id]
	return ok
}

func (c *fakeConsensus) blockOps(id types.BlockID) ([]types.OperationID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ops, ok := c.blocks[id]
	return ops, ok
}

type fakePool struct {
	mu      sync.Mutex
	batches [][]*types.Operation
}

func (p *fakePool) AddOperations(ops []*types.Operation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, ops)
}

func (p *fakePool) batchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}
