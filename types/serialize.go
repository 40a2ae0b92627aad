package types

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/aztecprotocol/aztec-go-client/common"
)

// writeVector appends a Vector (GLOSSARY: u32 big-endian length followed
// by that many 32-byte elements) to buf.
func writeVector(buf *bytes.Buffer, elems []common.Hash) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(elems)))
	buf.Write(lenBuf[:])
	for _, e := range elems {
		buf.Write(e.Bytes())
	}
}

// readVector consumes a Vector of 32-byte elements from r, returning the
// elements (nil for an empty vector) and the bytes of r that follow it.
func readVector(r []byte) ([]common.Hash, []byte, error) {
	if len(r) < 4 {
		return nil, nil, fmt.Errorf("types: truncated vector length")
	}
	n := binary.BigEndian.Uint32(r[:4])
	r = r[4:]
	if n == 0 {
		return nil, r, nil
	}
	need := int(n) * common.HashLength
	if len(r) < need {
		return nil, nil, fmt.Errorf("types: truncated vector body, want %d bytes have %d", need, len(r))
	}
	out := make([]common.Hash, n)
	for i := 0; i < int(n); i++ {
		out[i] = common.BytesToHash(r[i*common.HashLength : (i+1)*common.HashLength])
	}
	return out, r[need:], nil
}

// ToBuffer serializes d per the wire format fixed by spec §6:
// publicKey(64B) ‖ note(vector) ‖ contractAddress(32B) ‖ storageSlot(32B)
// ‖ txHash(32B) ‖ txNullifier(32B) ‖ u32(len) ‖ len×commitment(32B) ‖
// u32(dataStartIndexForTx).
func (d *DeferredNoteDao) ToBuffer() []byte {
	var buf bytes.Buffer
	pk := d.PublicKey.Bytes()
	buf.Write(pk[:])
	writeVector(&buf, d.Note)
	buf.Write(d.ContractAddress.Bytes())
	buf.Write(d.StorageSlot.Bytes())
	buf.Write(d.TxHash.Bytes())
	buf.Write(d.TxNullifier.Bytes())
	writeVector(&buf, d.NewCommitments)
	var idxBuf [4]byte
	binary.BigEndian.PutUint32(idxBuf[:], uint32(d.DataStartIndexForTx))
	buf.Write(idxBuf[:])
	return buf.Bytes()
}

// DeferredNoteFromBuffer parses the wire format produced by ToBuffer.
// fromBuffer(toBuffer(d)) == d for every DeferredNoteDao whose
// DataStartIndexForTx fits in the u32 field (ToBuffer keeps only the low
// 32 bits of a larger value) and whose empty vectors are nil.
func DeferredNoteFromBuffer(b []byte) (*DeferredNoteDao, error) {
	if len(b) < 64 {
		return nil, fmt.Errorf("types: deferred note buffer too short for public key")
	}
	pk, err := common.PublicKeyFromBytes(b[:64])
	if err != nil {
		return nil, err
	}
	rest := b[64:]

	note, rest, err := readVector(rest)
	if err != nil {
		return nil, fmt.Errorf("types: deferred note: note: %w", err)
	}
	if len(rest) < 4*common.HashLength {
		return nil, fmt.Errorf("types: deferred note buffer truncated before fixed fields")
	}
	contractAddress := common.BytesToAddress(rest[0:32])
	storageSlot := common.BytesToHash(rest[32:64])
	txHash := common.BytesToHash(rest[64:96])
	txNullifier := common.BytesToHash(rest[96:128])
	rest = rest[128:]

	commitments, rest, err := readVector(rest)
	if err != nil {
		return nil, fmt.Errorf("types: deferred note: commitments: %w", err)
	}
	if len(rest) < 4 {
		return nil, fmt.Errorf("types: deferred note buffer truncated before dataStartIndexForTx")
	}
	dataStart := binary.BigEndian.Uint32(rest[:4])
	rest = rest[4:]
	if len(rest) != 0 {
		return nil, fmt.Errorf("types: deferred note buffer has %d trailing bytes", len(rest))
	}

	return &DeferredNoteDao{
		PublicKey:           pk,
		Note:                note,
		ContractAddress:     contractAddress,
		StorageSlot:         storageSlot,
		TxHash:              txHash,
		TxNullifier:         txNullifier,
		NewCommitments:      commitments,
		DataStartIndexForTx: uint64(dataStart),
	}, nil
}

// ToBuffer serializes a persisted NoteDao. The exact layout is not fixed
// by spec §6 (only DeferredNoteDao's is); we adopt the same Vector-based
// scheme for its own "note" payload and append the derived noteHash,
// siloedNullifier, txHash, and leafIndex (see SPEC_FULL.md §3).
func (n *NoteDao) ToBuffer() []byte {
	var buf bytes.Buffer
	pk := n.PublicKey.Bytes()
	buf.Write(pk[:])
	buf.Write(n.ContractAddress.Bytes())
	buf.Write(n.StorageSlot.Bytes())
	writeVector(&buf, n.Note)
	buf.Write(n.NoteHash.Bytes())
	buf.Write(n.SiloedNullifier.Bytes())
	buf.Write(n.TxHash.Bytes())
	var leafBuf [8]byte
	binary.BigEndian.PutUint64(leafBuf[:], n.LeafIndex)
	buf.Write(leafBuf[:])
	return buf.Bytes()
}

// NoteFromBuffer parses the wire format produced by NoteDao.ToBuffer.
func NoteFromBuffer(b []byte) (*NoteDao, error) {
	if len(b) < 64+32+32 {
		return nil, fmt.Errorf("types: note buffer too short for fixed prefix")
	}
	pk, err := common.PublicKeyFromBytes(b[:64])
	if err != nil {
		return nil, err
	}
	contractAddress := common.BytesToAddress(b[64:96])
	storageSlot := common.BytesToHash(b[96:128])
	rest := b[128:]

	note, rest, err := readVector(rest)
	if err != nil {
		return nil, fmt.Errorf("types: note: %w", err)
	}
	if len(rest) != 32+32+32+8 {
		return nil, fmt.Errorf("types: note buffer has wrong trailing length %d", len(rest))
	}
	noteHash := common.BytesToHash(rest[0:32])
	siloedNullifier := common.BytesToHash(rest[32:64])
	txHash := common.BytesToHash(rest[64:96])
	leafIndex := binary.BigEndian.Uint64(rest[96:104])

	return &NoteDao{
		PublicKey:       pk,
		ContractAddress: contractAddress,
		StorageSlot:     storageSlot,
		Note:            note,
		NoteHash:        noteHash,
		SiloedNullifier: siloedNullifier,
		TxHash:          txHash,
		LeafIndex:       leafIndex,
	}, nil
}
