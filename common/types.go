// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package common holds the fixed-width field-element types shared by every
// other package: block roots, contract addresses, note hashes, nullifiers
// and public keys are all 32-byte big-endian values on the embedded curve,
// the same way go-ethereum's common package models 32-byte hashes and
// 20-byte addresses.
package common

import (
	"encoding/hex"
	"fmt"

	"github.com/holiman/uint256"
)

// HashLength is the expected length of a field element in bytes.
const HashLength = 32

// Hash represents a 32-byte big-endian field element: a note hash, a
// siloed nullifier, a storage slot, a tx hash, or one coordinate of a
// public key.
type Hash [HashLength]byte

// BytesToHash sets the bytes in the rightmost part of the returned hash.
// If b is larger than HashLength, b is cropped from the left.
func BytesToHash(b []byte) Hash {
	var h Hash
	h.SetBytes(b)
	return h
}

// HexToHash returns Hash with byte values of s, accepting an optional "0x" prefix.
func HexToHash(s string) Hash {
	return BytesToHash(FromHex(s))
}

// SetBytes sets the hash to the value of b, right-aligned.
func (h *Hash) SetBytes(b []byte) {
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
}

// Bytes returns the raw, big-endian bytes of the hash.
func (h Hash) Bytes() []byte { return h[:] }

// Hex returns the 0x-prefixed hex string form of the hash.
func (h Hash) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

// String implements fmt.Stringer.
func (h Hash) String() string { return h.Hex() }

// IsZero reports whether every byte of the hash is zero.
func (h Hash) IsZero() bool { return h == Hash{} }

// Cmp compares two hashes as big-endian 256-bit integers using the same
// fixed-width integer type the teacher's EVM interpreter uses for word
// arithmetic (holiman/uint256), since a field element is exactly a
// 256-bit word.
func (h Hash) Cmp(other Hash) int {
	a := new(uint256.Int).SetBytes(h[:])
	b := new(uint256.Int).SetBytes(other[:])
	return a.Cmp(b)
}

// Address is a contract or account address: a field element, same width
// as Hash. It is a distinct type so that function signatures document
// intent even though the underlying representation is identical.
type Address Hash

// BytesToAddress sets the bytes in the rightmost part of the returned address.
func BytesToAddress(b []byte) Address {
	return Address(BytesToHash(b))
}

// HexToAddress returns Address with byte values of s.
func HexToAddress(s string) Address {
	return Address(HexToHash(s))
}

// Bytes returns the raw, big-endian bytes of the address.
func (a Address) Bytes() []byte { return a[:] }

// Hex returns the 0x-prefixed hex string form of the address.
func (a Address) Hex() string { return Hash(a).Hex() }

// String implements fmt.Stringer.
func (a Address) String() string { return a.Hex() }

// IsZero reports whether every byte of the address is zero.
func (a Address) IsZero() bool { return a == Address{} }

// PublicKey is a point on the embedded (Grumpkin) curve: two field
// elements, 64 bytes total, matching the publicKey(64B) width fixed by
// the deferred-note wire format.
type PublicKey struct {
	X Hash
	Y Hash
}

// Bytes returns the 64-byte big-endian concatenation X‖Y.
func (k PublicKey) Bytes() [64]byte {
	var out [64]byte
	copy(out[:32], k.X[:])
	copy(out[32:], k.Y[:])
	return out
}

// PublicKeyFromBytes parses a 64-byte X‖Y concatenation.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	if len(b) != 64 {
		return PublicKey{}, fmt.Errorf("common: public key must be 64 bytes, got %d", len(b))
	}
	return PublicKey{X: BytesToHash(b[:32]), Y: BytesToHash(b[32:])}, nil
}

// String returns a short hex identifier suitable for map keys and logs.
func (k PublicKey) String() string {
	b := k.Bytes()
	return "0x" + hex.EncodeToString(b[:])
}

// FromHex returns the bytes represented by the hexadecimal string s,
// accepting an optional "0x" prefix.
func FromHex(s string) []byte {
	if len(s) >= 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		s = s[2:]
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}
