package noteengine

import (
	"testing"

	"github.com/aztecprotocol/aztec-go-client/common"
	"github.com/aztecprotocol/aztec-go-client/types"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	e := NewReferenceEngine()
	recipientKey := common.HexToHash("0xfeed")
	note := &DecryptedNote{
		ContractAddress: common.HexToAddress("0x01"),
		StorageSlot:     common.HexToHash("0x02"),
		Note:            []common.Hash{common.HexToHash("0x03"), common.HexToHash("0x04")},
	}

	ct, err := e.EncryptNote(recipientKey, note)
	require.NoError(t, err)

	got, err := e.DecryptNote(types.EncryptedLogEntry{Ciphertext: ct}, recipientKey)
	require.NoError(t, err)
	require.Equal(t, note, got)
}

func TestDecryptFailsForWrongKey(t *testing.T) {
	e := NewReferenceEngine()
	note := &DecryptedNote{
		ContractAddress: common.HexToAddress("0x01"),
		StorageSlot:     common.HexToHash("0x02"),
		Note:            []common.Hash{common.HexToHash("0x03")},
	}
	ct, err := e.EncryptNote(common.HexToHash("0xaaaa"), note)
	require.NoError(t, err)

	_, err = e.DecryptNote(types.EncryptedLogEntry{Ciphertext: ct}, common.HexToHash("0xbbbb"))
	require.ErrorIs(t, err, ErrDecryptFailure)
}

func TestDecryptFailsOnMalformedCiphertext(t *testing.T) {
	e := NewReferenceEngine()
	_, err := e.DecryptNote(types.EncryptedLogEntry{Ciphertext: []byte{1, 2, 3}}, common.HexToHash("0x01"))
	require.ErrorIs(t, err, ErrDecryptFailure)
}

func TestComputeNoteHashAndNullifierDeterministic(t *testing.T) {
	e := NewReferenceEngine()
	contract := common.HexToAddress("0x01")
	slot := common.HexToHash("0x02")
	note := []common.Hash{common.HexToHash("0x03")}

	h1, n1, err := e.ComputeNoteHashAndNullifier(contract, slot, note)
	require.NoError(t, err)
	h2, n2, err := e.ComputeNoteHashAndNullifier(contract, slot, note)
	require.NoError(t, err)

	require.Equal(t, h1, h2)
	require.Equal(t, n1, n2)
	require.NotEqual(t, h1, n1)
}
