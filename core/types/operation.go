package types

import (
	"bytes"
	"encoding/json"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/Mauryavnshi/massa/crypto"
)

// Operation is a signed, content-addressed, time-bounded unit propagated
// between peers and pooled until included in a block.
type Operation struct {
	ExpirePeriod  uint64 `json:"expirePeriod"`
	Fee           uint64 `json:"fee"`
	Payload       []byte `json:"payload"`
	CreatorPubKey []byte `json:"creatorPubKey"`
	Signature     []byte `json:"signature,omitempty"`
}

type operationContent struct {
	ExpirePeriod  uint64 `json:"expirePeriod"`
	Fee           uint64 `json:"fee"`
	Payload       []byte `json:"payload"`
	CreatorPubKey []byte `json:"creatorPubKey"`
}

func (op *Operation) content() operationContent {
	return operationContent{
		ExpirePeriod:  op.ExpirePeriod,
		Fee:           op.Fee,
		Payload:       op.Payload,
		CreatorPubKey: op.CreatorPubKey,
	}
}

// ID returns the content hash identifying the operation.
func (op *Operation) ID() (OperationID, error) {
	encoded, err := json.Marshal(op.content())
	if err != nil {
		return OperationID{}, err
	}
	var id OperationID
	copy(id[:], ethcrypto.Keccak256(encoded))
	return id, nil
}

// Sign stamps the operation with the creator key and signs the content hash.
func (op *Operation) Sign(priv *crypto.PrivateKey) error {
	op.CreatorPubKey = ethcrypto.FromECDSAPub(priv.PubKey().PublicKey)
	id, err := op.ID()
	if err != nil {
		return err
	}
	sig, err := ethcrypto.Sign(id[:], priv.PrivateKey)
	if err != nil {
		return err
	}
	op.Signature = sig
	return nil
}

// Verify authenticates the operation against its declared creator key.
func (op *Operation) Verify() error {
	if len(op.Signature) != signatureSize {
		return fmt.Errorf("%w: length %d", ErrMissingSignature, len(op.Signature))
	}
	id, err := op.ID()
	if err != nil {
		return err
	}
	recovered, err := ethcrypto.SigToPub(id[:], op.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !bytes.Equal(ethcrypto.FromECDSAPub(recovered), op.CreatorPubKey) {
		return ErrInvalidSignature
	}
	return nil
}

// Expired reports whether the operation can no longer be included as of the
// given period.
func (op *Operation) Expired(currentPeriod uint64) bool {
	return op.ExpirePeriod < currentPeriod
}
