package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/Mauryavnshi/massa/crypto"
)

var (
	// ErrInvalidSignature marks a payload whose signature does not match the
	// declared creator public key.
	ErrInvalidSignature = errors.New("types: signature does not match creator key")
	// ErrMissingSignature marks an unsigned payload.
	ErrMissingSignature = errors.New("types: missing signature")
)

const signatureSize = 65

// Header is the signed, content-addressed descriptor of a candidate block. Its
// id is the keccak256 hash of the content; the signature covers the same hash.
type Header struct {
	ParentID       BlockID        `json:"parentId"`
	Period         uint64         `json:"period"`
	Thread         uint8          `json:"thread"`
	Timestamp      int64          `json:"timestamp"`
	OperationsRoot [HashSize]byte `json:"operationsRoot"`
	CreatorPubKey  []byte         `json:"creatorPubKey"`
	Signature      []byte         `json:"signature,omitempty"`
}

type headerContent struct {
	ParentID       BlockID        `json:"parentId"`
	Period         uint64         `json:"period"`
	Thread         uint8          `json:"thread"`
	Timestamp      int64          `json:"timestamp"`
	OperationsRoot [HashSize]byte `json:"operationsRoot"`
	CreatorPubKey  []byte         `json:"creatorPubKey"`
}

// Block is the assembled unit handed to the consensus sink: a validated header
// plus the operation ids matching its commitment.
type Block struct {
	Header       *Header
	OperationIDs []OperationID
}

func (h *Header) content() headerContent {
	return headerContent{
		ParentID:       h.ParentID,
		Period:         h.Period,
		Thread:         h.Thread,
		Timestamp:      h.Timestamp,
		OperationsRoot: h.OperationsRoot,
		CreatorPubKey:  h.CreatorPubKey,
	}
}

// ID returns the content hash identifying the block.
func (h *Header) ID() (BlockID, error) {
	encoded, err := json.Marshal(h.content())
	if err != nil {
		return BlockID{}, err
	}
	var id BlockID
	copy(id[:], ethcrypto.Keccak256(encoded))
	return id, nil
}

// Sign stamps the header with the creator key and signs the content hash.
func (h *Header) Sign(priv *crypto.PrivateKey) error {
	h.CreatorPubKey = ethcrypto.FromECDSAPub(priv.PubKey().PublicKey)
	id, err := h.ID()
	if err != nil {
		return err
	}
	sig, err := ethcrypto.Sign(id[:], priv.PrivateKey)
	if err != nil {
		return err
	}
	h.Signature = sig
	return nil
}

// Verify authenticates the header: the signature must recover to the declared
// creator public key over the content hash.
func (h *Header) Verify() error {
	if len(h.Signature) != signatureSize {
		return fmt.Errorf("%w: length %d", ErrMissingSignature, len(h.Signature))
	}
	id, err := h.ID()
	if err != nil {
		return err
	}
	recovered, err := ethcrypto.SigToPub(id[:], h.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !bytes.Equal(ethcrypto.FromECDSAPub(recovered), h.CreatorPubKey) {
		return ErrInvalidSignature
	}
	return nil
}

// Creator derives the peer identity of the header's creator key.
func (h *Header) Creator() (crypto.PeerID, error) {
	return crypto.PeerIDFromPubBytes(h.CreatorPubKey)
}
