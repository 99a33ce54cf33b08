package crypto

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// RecoverableSignatureLength is the size of an [R || S || V] signature.
const RecoverableSignatureLength = 65

var (
	ErrInvalidSignature = errors.New("invalid recoverable signature")
	ErrSignerMismatch   = errors.New("signature does not match claimed authority")
)

// RecoverableSignature is a secp256k1 signature in [R || S || V] form with V in {0, 1}.
type RecoverableSignature [RecoverableSignatureLength]byte

func RecoverableSignatureFromBytes(b []byte) (RecoverableSignature, error) {
	var sig RecoverableSignature
	if len(b) != RecoverableSignatureLength {
		return sig, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(b))
	}
	copy(sig[:], b)
	return sig, nil
}

// Recover returns the compressed key of whoever signed digest.
func (s RecoverableSignature) Recover(digest [32]byte) (PublicKeyBytes, error) {
	pub, err := ethcrypto.SigToPub(digest[:], s[:])
	if err != nil {
		return PublicKeyBytes{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return PublicKeyBytesFromECDSA(pub), nil
}

func (s RecoverableSignature) Hex() string { return hexutil.Encode(s[:]) }

func (s RecoverableSignature) MarshalText() ([]byte, error) {
	return []byte(s.Hex()), nil
}

func (s *RecoverableSignature) UnmarshalText(text []byte) error {
	b, err := hexutil.Decode(withHexPrefix(string(text)))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	sig, err := RecoverableSignatureFromBytes(b)
	if err != nil {
		return err
	}
	*s = sig
	return nil
}

// AuthoritySignInfo is one authority's signature over an action digest.
type AuthoritySignInfo struct {
	AuthorityPubKey PublicKeyBytes       `json:"authority_pub_key"`
	Signature       RecoverableSignature `json:"signature"`
}

// Verify checks that the signature over digest recovers to the claimed authority.
func (i AuthoritySignInfo) Verify(digest [32]byte) error {
	return VerifyRecoverable(i.AuthorityPubKey, i.Signature, digest)
}

// VerifyRecoverable recovers the signer of digest and compares it with pk.
func VerifyRecoverable(pk PublicKeyBytes, sig RecoverableSignature, digest [32]byte) error {
	recovered, err := sig.Recover(digest)
	if err != nil {
		return err
	}
	if recovered != pk {
		return fmt.Errorf("%w: recovered %s, claimed %s", ErrSignerMismatch, recovered, pk)
	}
	return nil
}
