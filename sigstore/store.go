// Package sigstore journals actions and the authority signatures collected
// for them, so certification can resume across runs.
package sigstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/rafnixschaf/iota-sub000/crypto"
	"github.com/rafnixschaf/iota-sub000/log"
	"github.com/rafnixschaf/iota-sub000/message"
	"github.com/rafnixschaf/iota-sub000/quorum"
)

var ErrNotFound = errors.New("action not found")

const (
	actionPrefix    = "a/"
	signaturePrefix = "s/"
)

type actionRecord struct {
	Digest  []byte    `bson:"digest"`
	Action  []byte    `bson:"action"`
	Created time.Time `bson:"created"`
}

type signatureRecord struct {
	Authority []byte    `bson:"authority"`
	Signature []byte    `bson:"signature"`
	Received  time.Time `bson:"received"`
}

type Store struct {
	db *leveldb.DB
}

func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open signature store %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func actionKey(d message.ActionDigest) []byte {
	return append([]byte(actionPrefix), d[:]...)
}

func signaturePrefixKey(d message.ActionDigest) []byte {
	key := append([]byte(signaturePrefix), d[:]...)
	return append(key, '/')
}

func signatureKey(d message.ActionDigest, pk crypto.PublicKeyBytes) []byte {
	return append(signaturePrefixKey(d), pk[:]...)
}

// PutAction stores action under its digest. Storing it again is a no-op.
func (s *Store) PutAction(action message.BridgeAction) (message.ActionDigest, error) {
	digest, err := message.Digest(action)
	if err != nil {
		return digest, err
	}
	if ok, err := s.db.Has(actionKey(digest), nil); err != nil {
		return digest, err
	} else if ok {
		return digest, nil
	}
	raw, err := message.MarshalJSONAction(action)
	if err != nil {
		return digest, err
	}
	bz, err := bson.Marshal(actionRecord{Digest: digest[:], Action: raw, Created: time.Now().UTC()})
	if err != nil {
		return digest, fmt.Errorf("bson.Marshal: %w", err)
	}
	if err := s.db.Put(actionKey(digest), bz, nil); err != nil {
		return digest, err
	}
	return digest, nil
}

// Action loads the action stored under digest.
func (s *Store) Action(digest message.ActionDigest) (message.BridgeAction, error) {
	bz, err := s.db.Get(actionKey(digest), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, digest)
	}
	if err != nil {
		return nil, err
	}
	var rec actionRecord
	if err := bson.Unmarshal(bz, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal action record: %w", err)
	}
	return message.UnmarshalJSONAction(rec.Action)
}

// PutSignature stores a signed action and its signature. Signatures that do
// not recover to the claimed authority are refused, so a stored valid record
// is only ever replaced by another valid one.
func (s *Store) PutSignature(signed quorum.SignedAction) error {
	digest, err := message.Digest(signed.Data)
	if err != nil {
		return err
	}
	if err := signed.Auth.Verify(digest); err != nil {
		return fmt.Errorf("%w: %w", quorum.ErrInvalidSignature, err)
	}
	if _, err := s.PutAction(signed.Data); err != nil {
		return err
	}
	pk := signed.Auth.AuthorityPubKey
	bz, err := bson.Marshal(signatureRecord{
		Authority: pk[:],
		Signature: signed.Auth.Signature[:],
		Received:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("bson.Marshal: %w", err)
	}
	return s.db.Put(signatureKey(digest, pk), bz, nil)
}

// Signatures returns every journaled signature for digest. Unreadable
// records are skipped.
func (s *Store) Signatures(digest message.ActionDigest) (map[crypto.PublicKeyBytes]crypto.RecoverableSignature, error) {
	out := make(map[crypto.PublicKeyBytes]crypto.RecoverableSignature)
	iter := s.db.NewIterator(util.BytesPrefix(signaturePrefixKey(digest)), nil)
	defer iter.Release()
	for iter.Next() {
		var rec signatureRecord
		if err := bson.Unmarshal(iter.Value(), &rec); err != nil {
			log.Warningf("skipping signature record %x: %v", iter.Key(), err)
			continue
		}
		pk, err := crypto.PublicKeyBytesFromBytes(rec.Authority)
		if err != nil {
			log.Warningf("skipping signature record %x: %v", iter.Key(), err)
			continue
		}
		sig, err := crypto.RecoverableSignatureFromBytes(rec.Signature)
		if err != nil {
			log.Warningf("skipping signature record %x: %v", iter.Key(), err)
			continue
		}
		out[pk] = sig
	}
	return out, iter.Error()
}

// Digests lists the digests of all stored actions.
func (s *Store) Digests() ([]message.ActionDigest, error) {
	var out []message.ActionDigest
	iter := s.db.NewIterator(util.BytesPrefix([]byte(actionPrefix)), nil)
	defer iter.Release()
	for iter.Next() {
		var d message.ActionDigest
		copy(d[:], iter.Key()[len(actionPrefix):])
		out = append(out, d)
	}
	return out, iter.Error()
}
