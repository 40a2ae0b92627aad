package noteengine

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"

	"github.com/aztecprotocol/aztec-go-client/common"
)

func newSHA256() hash.Hash { return sha256.New() }

// encodePlaintext lays out a DecryptedNote as
// contractAddress(32B) ‖ storageSlot(32B) ‖ u32(len) ‖ len×32B so that
// EncryptNote/DecryptNote round-trip exactly.
func encodePlaintext(n *DecryptedNote) []byte {
	out := make([]byte, 0, 64+4+len(n.Note)*32)
	out = append(out, n.ContractAddress.Bytes()...)
	out = append(out, n.StorageSlot.Bytes()...)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(n.Note)))
	out = append(out, lenBuf[:]...)
	for _, e := range n.Note {
		out = append(out, e.Bytes()...)
	}
	return out
}

func decodePlaintext(b []byte) (*DecryptedNote, error) {
	if len(b) < 68 {
		return nil, fmt.Errorf("noteengine: plaintext too short")
	}
	contract := common.BytesToAddress(b[0:32])
	slot := common.BytesToHash(b[32:64])
	n := binary.BigEndian.Uint32(b[64:68])
	rest := b[68:]
	if len(rest) != int(n)*32 {
		return nil, fmt.Errorf("noteengine: plaintext length mismatch")
	}
	elems := make([]common.Hash, n)
	for i := 0; i < int(n); i++ {
		elems[i] = common.BytesToHash(rest[i*32 : (i+1)*32])
	}
	return &DecryptedNote{ContractAddress: contract, StorageSlot: slot, Note: elems}, nil
}

// domainHash hashes a domain-separation tag together with the contract,
// slot, and note elements, producing a 32-byte field-shaped digest.
func domainHash(domain string, contract common.Address, slot common.Hash, note []common.Hash) common.Hash {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write(contract.Bytes())
	h.Write(slot.Bytes())
	for _, e := range note {
		h.Write(e.Bytes())
	}
	return common.BytesToHash(h.Sum(nil))
}
