package types

import (
	"encoding/hex"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// HashSize is the byte length of every content identifier.
const HashSize = 32

// BlockID is the content hash of a block header.
type BlockID [HashSize]byte

// OperationID is the content hash of an operation.
type OperationID [HashSize]byte

func (id BlockID) Hex() string     { return "0x" + hex.EncodeToString(id[:]) }
func (id OperationID) Hex() string { return "0x" + hex.EncodeToString(id[:]) }

func (id BlockID) IsZero() bool { return id == BlockID{} }

// OperationsRoot commits to an ordered operation id list. A block-info reply is
// accepted only when the ids it carries hash back to the root declared in the
// block's header.
func OperationsRoot(ids []OperationID) [HashSize]byte {
	buf := make([]byte, 0, len(ids)*HashSize)
	for _, id := range ids {
		buf = append(buf, id[:]...)
	}
	var root [HashSize]byte
	copy(root[:], ethcrypto.Keccak256(buf))
	return root
}
