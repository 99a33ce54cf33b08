package crypto

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ECDSA_SECp256k1 is the only signing algorithm bridge authorities use.
const ECDSA_SECp256k1 = "ECDSA_SECp256k1"

// PublicKeyBytesLength is the size of a compressed secp256k1 public key.
const PublicKeyBytesLength = 33

var ErrInvalidPublicKey = errors.New("invalid authority public key")

// PublicKeyBytes is the compressed public key of a bridge authority. It is
// the authority's identity everywhere a map key or comparison is needed.
type PublicKeyBytes [PublicKeyBytesLength]byte

// PublicKeyBytesFromBytes validates b as a compressed secp256k1 point.
func PublicKeyBytesFromBytes(b []byte) (PublicKeyBytes, error) {
	var pk PublicKeyBytes
	if len(b) != PublicKeyBytesLength {
		return pk, fmt.Errorf("%w: length %d", ErrInvalidPublicKey, len(b))
	}
	if _, err := ethcrypto.DecompressPubkey(b); err != nil {
		return pk, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	copy(pk[:], b)
	return pk, nil
}

// PublicKeyBytesFromHex parses a 0x-prefixed or bare hex compressed key.
func PublicKeyBytesFromHex(s string) (PublicKeyBytes, error) {
	b, err := hexutil.Decode(withHexPrefix(s))
	if err != nil {
		return PublicKeyBytes{}, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return PublicKeyBytesFromBytes(b)
}

// PublicKeyBytesFromECDSA compresses an ecdsa public key.
func PublicKeyBytesFromECDSA(pub *ecdsa.PublicKey) PublicKeyBytes {
	var pk PublicKeyBytes
	copy(pk[:], ethcrypto.CompressPubkey(pub))
	return pk
}

func (p PublicKeyBytes) PublicKey() (*ecdsa.PublicKey, error) {
	pub, err := ethcrypto.DecompressPubkey(p[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return pub, nil
}

// ToEthAddress derives the 20-byte EVM address of the authority key, the
// form the EVM contract stores committee members in.
func (p PublicKeyBytes) ToEthAddress() (common.Address, error) {
	pub, err := p.PublicKey()
	if err != nil {
		return common.Address{}, err
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

func (p PublicKeyBytes) Algorithm() string { return ECDSA_SECp256k1 }

func (p PublicKeyBytes) Hex() string { return hexutil.Encode(p[:]) }

func (p PublicKeyBytes) String() string { return p.Hex() }

func (p PublicKeyBytes) MarshalText() ([]byte, error) {
	return []byte(p.Hex()), nil
}

func (p *PublicKeyBytes) UnmarshalText(text []byte) error {
	pk, err := PublicKeyBytesFromHex(string(text))
	if err != nil {
		return err
	}
	*p = pk
	return nil
}

// KeyPair is an authority signing key.
type KeyPair struct {
	priv *ecdsa.PrivateKey
	pub  PublicKeyBytes
}

func GenerateKeyPair() (*KeyPair, error) {
	priv, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate secp256k1 key: %w", err)
	}
	return NewKeyPair(priv), nil
}

func NewKeyPair(priv *ecdsa.PrivateKey) *KeyPair {
	return &KeyPair{priv: priv, pub: PublicKeyBytesFromECDSA(&priv.PublicKey)}
}

// KeyPairFromHex loads a raw hex encoded secp256k1 private key.
func KeyPairFromHex(s string) (*KeyPair, error) {
	priv, err := ethcrypto.HexToECDSA(trimHexPrefix(s))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return NewKeyPair(priv), nil
}

func (k *KeyPair) Algorithm() string { return ECDSA_SECp256k1 }

func (k *KeyPair) PublicKeyBytes() PublicKeyBytes { return k.pub }

func (k *KeyPair) PrivateKey() *ecdsa.PrivateKey { return k.priv }

// Sign hashes msg with Keccak256 and signs the 32-byte result.
func (k *KeyPair) Sign(msg []byte) (RecoverableSignature, error) {
	return k.SignDigest(Keccak256Digest(msg))
}

// SignDigest signs an already computed 32-byte digest.
func (k *KeyPair) SignDigest(digest [32]byte) (RecoverableSignature, error) {
	var sig RecoverableSignature
	raw, err := ethcrypto.Sign(digest[:], k.priv)
	if err != nil {
		return sig, fmt.Errorf("secp256k1 sign: %w", err)
	}
	copy(sig[:], raw)
	return sig, nil
}

func withHexPrefix(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s
	}
	return "0x" + s
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}
