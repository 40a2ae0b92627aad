package noteprocessor

import (
	"context"
	"testing"

	"github.com/aztecprotocol/aztec-go-client/common"
	"github.com/aztecprotocol/aztec-go-client/database/memorydb"
	"github.com/aztecprotocol/aztec-go-client/errs"
	"github.com/aztecprotocol/aztec-go-client/noteengine"
	"github.com/aztecprotocol/aztec-go-client/types"
	"github.com/stretchr/testify/require"
)

type fakeCodeProvider struct {
	known map[common.Address]bool
}

func newFakeCodeProvider() *fakeCodeProvider { return &fakeCodeProvider{known: map[common.Address]bool{}} }

func (f *fakeCodeProvider) HasCode(ctx context.Context, addr common.Address) (bool, error) {
	return f.known[addr], nil
}

func buildTx(t *testing.T, engine *noteengine.ReferenceEngine, recipientPub common.Hash, contract common.Address, slot common.Hash, note []common.Hash, txHash common.Hash) (types.Tx, types.EncryptedLogEntry) {
	noteHash, _, err := engine.ComputeNoteHashAndNullifier(contract, slot, note)
	require.NoError(t, err)

	ct, err := engine.EncryptNote(recipientPub, &noteengine.DecryptedNote{ContractAddress: contract, StorageSlot: slot, Note: note})
	require.NoError(t, err)

	tx := types.Tx{TxHash: txHash, TxNullifier: common.HexToHash("0xdead"), NewCommitments: []common.Hash{noteHash}}
	log := types.EncryptedLogEntry{TxIndex: 0, LogIndexInTx: 0, Ciphertext: ct}
	return tx, log
}

func TestProcessDecodesNoteWhenContractCodeKnown(t *testing.T) {
	db := memorydb.New()
	engine := noteengine.NewReferenceEngine()
	recipientKey := common.HexToHash("0x1234")
	contract := common.HexToAddress("0xc0")
	slot := common.HexToHash("0x01")
	note := []common.Hash{common.HexToHash("0xaa")}

	tx, log := buildTx(t, engine, recipientKey, contract, slot, note, common.HexToHash("0x01"))

	codeProvider := newFakeCodeProvider()
	codeProvider.known[contract] = true

	p := New(common.PublicKey{}, NewStaticKeyStore(recipientKey), db, engine, engine, codeProvider, 1)

	block := &types.L2Block{
		Number:         1,
		DataStartIndex: 0,
		Txs:            []types.Tx{tx},
		EncryptedLogs:  types.EncryptedLogBundle{BlockNumber: 1, Logs: []types.EncryptedLogEntry{log}},
	}
	bc := types.NewL2BlockContext(block, 0)

	err := p.Process(context.Background(), []types.L2BlockContext{bc}, []types.EncryptedLogBundle{block.EncryptedLogs})
	require.NoError(t, err)
	require.Equal(t, uint64(1), p.SyncedToBlock())
	require.EqualValues(t, 1, p.Stats().NotesDecoded)
	require.EqualValues(t, 0, p.Stats().NotesDeferred)

	size, err := db.EstimateSize(context.Background())
	require.NoError(t, err)
	require.Greater(t, size, uint64(0))
}

func TestProcessDefersNoteWhenContractCodeUnknown(t *testing.T) {
	db := memorydb.New()
	engine := noteengine.NewReferenceEngine()
	recipientKey := common.HexToHash("0x1234")
	contract := common.HexToAddress("0xc0")
	slot := common.HexToHash("0x01")
	note := []common.Hash{common.HexToHash("0xaa")}

	tx, log := buildTx(t, engine, recipientKey, contract, slot, note, common.HexToHash("0x01"))

	p := New(common.PublicKey{}, NewStaticKeyStore(recipientKey), db, engine, engine, newFakeCodeProvider(), 1)

	block := &types.L2Block{
		Number:         1,
		DataStartIndex: 0,
		Txs:            []types.Tx{tx},
		EncryptedLogs:  types.EncryptedLogBundle{BlockNumber: 1, Logs: []types.EncryptedLogEntry{log}},
	}
	bc := types.NewL2BlockContext(block, 0)

	err := p.Process(context.Background(), []types.L2BlockContext{bc}, []types.EncryptedLogBundle{block.EncryptedLogs})
	require.NoError(t, err)
	require.EqualValues(t, 1, p.Stats().NotesDeferred)

	deferred, err := db.GetDeferredNotesByContract(context.Background(), contract)
	require.NoError(t, err)
	require.Len(t, deferred, 1)
	require.Equal(t, tx.NewCommitments, deferred[0].NewCommitments)
}

func TestProcessSkipsUndecryptableLogs(t *testing.T) {
	db := memorydb.New()
	engine := noteengine.NewReferenceEngine()
	recipientKey := common.HexToHash("0x1234")

	p := New(common.PublicKey{}, NewStaticKeyStore(recipientKey), db, engine, engine, newFakeCodeProvider(), 1)

	block := &types.L2Block{
		Number:         1,
		DataStartIndex: 0,
		Txs:            []types.Tx{{TxHash: common.HexToHash("0x01")}},
		EncryptedLogs: types.EncryptedLogBundle{BlockNumber: 1, Logs: []types.EncryptedLogEntry{
			{TxIndex: 0, LogIndexInTx: 0, Ciphertext: []byte("not a real ciphertext at all")},
		}},
	}
	bc := types.NewL2BlockContext(block, 0)

	err := p.Process(context.Background(), []types.L2BlockContext{bc}, []types.EncryptedLogBundle{block.EncryptedLogs})
	require.NoError(t, err)
	require.EqualValues(t, 1, p.Stats().DecryptFailures)
	require.Equal(t, uint64(1), p.SyncedToBlock())
}

func TestProcessRejectsOutOfOrderBlocks(t *testing.T) {
	db := memorydb.New()
	engine := noteengine.NewReferenceEngine()
	p := New(common.PublicKey{}, NewStaticKeyStore(common.HexToHash("0x01")), db, engine, engine, newFakeCodeProvider(), 1)

	block := &types.L2Block{Number: 5, DataStartIndex: 0}
	bc := types.NewL2BlockContext(block, 0)

	err := p.Process(context.Background(), []types.L2BlockContext{bc}, []types.EncryptedLogBundle{{}})
	require.ErrorIs(t, err, errs.ErrProgrammerInvariant)
}

func TestProcessRejectsEmptyBatch(t *testing.T) {
	db := memorydb.New()
	engine := noteengine.NewReferenceEngine()
	p := New(common.PublicKey{}, NewStaticKeyStore(common.HexToHash("0x01")), db, engine, engine, newFakeCodeProvider(), 1)

	err := p.Process(context.Background(), nil, nil)
	require.ErrorIs(t, err, errs.ErrProgrammerInvariant)
}

func TestDecodeDeferredNotesDropsMismatchedCommitment(t *testing.T) {
	db := memorydb.New()
	engine := noteengine.NewReferenceEngine()
	contract := common.HexToAddress("0xc0")
	slot := common.HexToHash("0x01")
	note := []common.Hash{common.HexToHash("0xaa")}

	p := New(common.PublicKey{}, NewStaticKeyStore(common.HexToHash("0x01")), db, engine, engine, newFakeCodeProvider(), 1)

	deferred := []*types.DeferredNoteDao{{
		ContractAddress: contract,
		StorageSlot:     slot,
		Note:            note,
		TxHash:          common.HexToHash("0x02"),
		NewCommitments:  []common.Hash{common.HexToHash("0xdeadbeef")}, // does not match the real noteHash
	}}

	out, err := p.DecodeDeferredNotes(deferred)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestDecodeDeferredNotesDecodesMatchingCommitment(t *testing.T) {
	db := memorydb.New()
	engine := noteengine.NewReferenceEngine()
	contract := common.HexToAddress("0xc0")
	slot := common.HexToHash("0x01")
	note := []common.Hash{common.HexToHash("0xaa")}
	noteHash, _, err := engine.ComputeNoteHashAndNullifier(contract, slot, note)
	require.NoError(t, err)

	p := New(common.PublicKey{}, NewStaticKeyStore(common.HexToHash("0x01")), db, engine, engine, newFakeCodeProvider(), 1)

	deferred := []*types.DeferredNoteDao{{
		ContractAddress: contract,
		StorageSlot:     slot,
		Note:            note,
		TxHash:          common.HexToHash("0x02"),
		NewCommitments:  []common.Hash{noteHash},
	}}

	out, err := p.DecodeDeferredNotes(deferred)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, noteHash, out[0].NoteHash)
}

func TestIsSynchronized(t *testing.T) {
	db := memorydb.New()
	engine := noteengine.NewReferenceEngine()
	p := New(common.PublicKey{}, NewStaticKeyStore(common.HexToHash("0x01")), db, engine, engine, newFakeCodeProvider(), 1)

	require.False(t, p.IsSynchronized(context.Background(), 10))

	block := &types.L2Block{Number: 1, DataStartIndex: 0}
	bc := types.NewL2BlockContext(block, 0)
	require.NoError(t, p.Process(context.Background(), []types.L2BlockContext{bc}, []types.EncryptedLogBundle{{}}))

	require.True(t, p.IsSynchronized(context.Background(), 1))
	require.False(t, p.IsSynchronized(context.Background(), 2))
}
