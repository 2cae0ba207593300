package protocol

import (
	"github.com/Mauryavnshi/massa/core/types"
	"github.com/Mauryavnshi/massa/crypto"
)

// PeerID identifies a remote node.
type PeerID = crypto.PeerID

// ConsensusSink receives validated block data from the protocol layer.
type ConsensusSink interface {
	RegisterBlockHeader(id types.BlockID, header *types.Header)
	RegisterBlock(id types.BlockID, header *types.Header, ops []types.OperationID)
}

// OperationSink receives validated operation batches.
type OperationSink interface {
	AddOperations(ops []*types.Operation)
}

// ConnectionRegistry abstracts the live connection set. ShutdownConnection
// must not return until the peer is removed from the connected set.
type ConnectionRegistry interface {
	PeerIDsConnected() map[PeerID]struct{}
	ShutdownConnection(id PeerID)
	Send(id PeerID, msg *Message) error
}

// BlockProvider serves operation id lists for blocks this node holds. It is
// optional; a worker without one drops block-info asks.
type BlockProvider interface {
	BlockOperations(id types.BlockID) ([]types.OperationID, bool)
}
