// Package noteengine defines the pluggable per-account decryption and
// per-contract nullifier-derivation capabilities NoteProcessor depends
// on. Per spec.md §9, computeNoteHashAndNullifier dispatch is modeled as
// an injected capability rather than a concrete routine, since the real
// cryptography (Aztec's note-encryption scheme and the contract-specific
// "compute note hash and nullifier" circuit) is an external collaborator
// out of this module's scope.
//
// This file also provides a concrete reference implementation so the
// end-to-end scenarios in spec.md §8 are actually exercisable in tests:
// it is explicitly NOT production Aztec cryptography, only a standalone
// AES-GCM scheme with the same shape (decrypt-with-recipient-private-key,
// fail on any other recipient).
package noteengine

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/aztecprotocol/aztec-go-client/common"
	"github.com/aztecprotocol/aztec-go-client/types"
	"golang.org/x/crypto/hkdf"
)

// ErrDecryptFailure is returned by NoteDecrypter.DecryptNote when the log
// is not addressed to the given private key, or the ciphertext is
// malformed. It is never fatal to a sync pass; the caller drops the log
// and counts it in stats.
var ErrDecryptFailure = errors.New("noteengine: decrypt failure")

// DecryptedNote is the plaintext a successful decrypt+interpret yields.
type DecryptedNote struct {
	ContractAddress common.Address
	StorageSlot     common.Hash
	Note            []common.Hash
}

// NoteDecrypter attempts to decrypt one encrypted log entry addressed to
// privateKey. Implementations must return ErrDecryptFailure (or a
// wrapped form of it) on any failure; NoteProcessor never treats a
// decrypt failure as fatal.
type NoteDecrypter interface {
	DecryptNote(log types.EncryptedLogEntry, privateKey common.Hash) (*DecryptedNote, error)
}

// NullifierComputer runs the contract-supplied "compute note hash and
// nullifier" routine for a decrypted note. A non-nil error aborts the
// NoteProcessor call that asked for it. When the returned noteHash does
// not appear among the transaction's commitments, NoteProcessor treats
// it as a NoteHashMismatch: the note is discarded.
type NullifierComputer interface {
	ComputeNoteHashAndNullifier(contract common.Address, storageSlot common.Hash, note []common.Hash) (noteHash common.Hash, siloedNullifier common.Hash, err error)
}

// ReferenceEngine is a self-contained NoteDecrypter + NullifierComputer
// used by tests and local development. Notes are "encrypted" with
// AES-256-GCM under a key derived via HKDF-SHA256 from a single 32-byte
// recipient key (there is no ephemeral sender key; the ciphertext is the
// GCM nonce followed by the sealed plaintext); nullifiers are derived with SHA-256 domain
// separation rather than the real Aztec Poseidon-based circuit.
type ReferenceEngine struct{}

// NewReferenceEngine returns a ready-to-use ReferenceEngine.
func NewReferenceEngine() *ReferenceEngine { return &ReferenceEngine{} }

// EncryptNote produces a ciphertext DecryptNote(privateKey) can open iff
// privateKey corresponds to recipientPub. It exists so tests can build
// EncryptedLogEntry fixtures without hand-rolling AES-GCM framing.
func (e *ReferenceEngine) EncryptNote(recipientPub common.Hash, note *DecryptedNote) ([]byte, error) {
	key, err := e.deriveKey(recipientPub)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	plain := encodePlaintext(note)
	ct := gcm.Seal(nil, nonce, plain, nil)
	return append(nonce, ct...), nil
}

func (e *ReferenceEngine) deriveKey(sharedSecret common.Hash) ([]byte, error) {
	key := make([]byte, 32)
	r := hkdf.New(newSHA256, sharedSecret.Bytes(), nil, []byte("aztec-go-client/note-encryption"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// DecryptNote implements NoteDecrypter. The reference scheme treats
// privateKey itself as the shared secret (a simplification of real ECDH)
// so that EncryptNote(pub, ...) is openable by the matching private key
// in tests without modeling curve arithmetic.
func (e *ReferenceEngine) DecryptNote(log types.EncryptedLogEntry, privateKey common.Hash) (*DecryptedNote, error) {
	key, err := e.deriveKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailure, err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailure, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailure, err)
	}
	if len(log.Ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryptFailure)
	}
	nonce, ct := log.Ciphertext[:gcm.NonceSize()], log.Ciphertext[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailure, err)
	}
	note, err := decodePlaintext(plain)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailure, err)
	}
	return note, nil
}

// ComputeNoteHashAndNullifier implements NullifierComputer with a
// deterministic, non-cryptographic placeholder: noteHash and nullifier
// are SHA-256 digests over the contract, slot, and note contents with
// distinct domain tags. Production code replaces this with the
// contract's own circuit.
func (e *ReferenceEngine) ComputeNoteHashAndNullifier(contract common.Address, storageSlot common.Hash, note []common.Hash) (common.Hash, common.Hash, error) {
	noteHash := domainHash("note-hash", contract, storageSlot, note)
	nullifier := domainHash("nullifier", contract, storageSlot, note)
	return noteHash, nullifier, nil
}
