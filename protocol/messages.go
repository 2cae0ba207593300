package protocol

import (
	"encoding/json"

	"github.com/Mauryavnshi/massa/core/types"
)

// Message is the generic structure for any data sent between nodes.
type Message struct {
	Type    byte
	Payload []byte
}

// Constants for the protocol message types.
const (
	MsgTypeHeader       byte = 0x01
	MsgTypeOperations   byte = 0x02
	MsgTypeAskHeader    byte = 0x03
	MsgTypeAskBlockInfo byte = 0x04
	MsgTypeBlockInfo    byte = 0x05
)

// HeaderPayload announces a candidate block header. The declared id must be
// the hash of the header content.
type HeaderPayload struct {
	BlockID types.BlockID `json:"blockId"`
	Header  *types.Header `json:"header"`
}

// OperationsPayload carries a batch of operations.
type OperationsPayload struct {
	Operations []*types.Operation `json:"operations"`
}

// AskHeaderPayload requests the header for a block id.
type AskHeaderPayload struct {
	BlockID types.BlockID `json:"blockId"`
}

// AskBlockInfoPayload requests the operation id list for an announced block.
type AskBlockInfoPayload struct {
	BlockID types.BlockID `json:"blockId"`
}

// BlockInfoPayload answers an ask with the block's operation id list.
type BlockInfoPayload struct {
	BlockID      types.BlockID       `json:"blockId"`
	OperationIDs []types.OperationID `json:"operationIds"`
}

// --- Message Creation Helpers ---

func NewHeaderMessage(id types.BlockID, header *types.Header) (*Message, error) {
	payload, err := json.Marshal(HeaderPayload{BlockID: id, Header: header})
	if err != nil {
		return nil, err
	}
	return &Message{Type: MsgTypeHeader, Payload: payload}, nil
}

func NewOperationsMessage(ops []*types.Operation) (*Message, error) {
	payload, err := json.Marshal(OperationsPayload{Operations: ops})
	if err != nil {
		return nil, err
	}
	return &Message{Type: MsgTypeOperations, Payload: payload}, nil
}

func NewAskHeaderMessage(id types.BlockID) (*Message, error) {
	payload, err := json.Marshal(AskHeaderPayload{BlockID: id})
	if err != nil {
		return nil, err
	}
	return &Message{Type: MsgTypeAskHeader, Payload: payload}, nil
}

func NewAskBlockInfoMessage(id types.BlockID) (*Message, error) {
	payload, err := json.Marshal(AskBlockInfoPayload{BlockID: id})
	if err != nil {
		return nil, err
	}
	return &Message{Type: MsgTypeAskBlockInfo, Payload: payload}, nil
}

func NewBlockInfoMessage(id types.BlockID, ops []types.OperationID) (*Message, error) {
	payload, err := json.Marshal(BlockInfoPayload{BlockID: id, OperationIDs: ops})
	if err != nil {
		return nil, err
	}
	return &Message{Type: MsgTypeBlockInfo, Payload: payload}, nil
}
