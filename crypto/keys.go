package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// PeerIDPrefix is the human-readable part of every encoded peer identity.
const PeerIDPrefix = "peer"

// PeerID identifies a remote node. It is derived deterministically from the
// node's public key and is the universal key across the protocol core.
type PeerID string

func (id PeerID) String() string { return string(id) }

// PrivateKey wraps a secp256k1 private key.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

// PublicKey wraps a secp256k1 public key.
type PublicKey struct {
	*ecdsa.PublicKey
}

// GeneratePrivateKey creates a fresh secp256k1 key.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(ethcrypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return ethcrypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// PeerID derives the node identity for this key.
func (k *PrivateKey) PeerID() PeerID {
	return PeerIDFromPub(&k.PrivateKey.PublicKey)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := ethcrypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// PeerIDFromPub maps a public key to its peer identity: the trailing twenty
// bytes of the keccak256 hash of the uncompressed key, bech32-encoded.
func PeerIDFromPub(pub *ecdsa.PublicKey) PeerID {
	if pub == nil {
		return ""
	}
	pubBytes := ethcrypto.FromECDSAPub(pub)
	if len(pubBytes) == 0 {
		return ""
	}
	hash := ethcrypto.Keccak256(pubBytes[1:])
	conv, err := bech32.ConvertBits(hash[12:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(PeerIDPrefix, conv)
	if err != nil {
		panic(err)
	}
	return PeerID(encoded)
}

// PeerIDFromPubBytes parses an uncompressed public key and derives its PeerID.
func PeerIDFromPubBytes(pub []byte) (PeerID, error) {
	parsed, err := ethcrypto.UnmarshalPubkey(pub)
	if err != nil {
		return "", fmt.Errorf("parse public key: %w", err)
	}
	return PeerIDFromPub(parsed), nil
}

// ValidPeerID reports whether the value decodes as a peer identity.
func ValidPeerID(value string) bool {
	prefix, decoded, err := bech32.Decode(value)
	if err != nil {
		return false
	}
	if prefix != PeerIDPrefix {
		return false
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return false
	}
	return len(conv) == 20
}
