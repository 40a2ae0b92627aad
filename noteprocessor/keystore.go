package noteprocessor

import "github.com/aztecprotocol/aztec-go-client/common"

// KeyStore supplies the private key a NoteProcessor decrypts logs with.
// It is a thin seam over the (out-of-scope) wallet/keystore component;
// NoteProcessor never persists or logs the key itself.
type KeyStore interface {
	AccountPrivateKey() common.Hash
}

// staticKeyStore is the obvious KeyStore: a key fixed at construction
// time. Production deployments with hardware-backed keys or key
// rotation can supply their own implementation instead.
type staticKeyStore struct {
	key common.Hash
}

// NewStaticKeyStore wraps a fixed private key as a KeyStore.
func NewStaticKeyStore(key common.Hash) KeyStore {
	return staticKeyStore{key: key}
}

func (s staticKeyStore) AccountPrivateKey() common.Hash { return s.key }
