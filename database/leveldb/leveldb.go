// Package leveldb is the production Database implementation, backed by
// syndtr/goleveldb — the teacher's own canonical embedded key-value
// store (go-ethereum's "leveldb" ethdb backend). Keys follow the same
// short-prefix-plus-identifier convention as the teacher's core/rawdb
// schema (see core/rawdb/schema_test.go in the retrieval pack): a single
// ASCII prefix byte selects the "table", followed by a fixed-width
// identifier.
package leveldb

import (
	"context"
	"encoding/binary"

	"github.com/aztecprotocol/aztec-go-client/common"
	"github.com/aztecprotocol/aztec-go-client/database"
	"github.com/aztecprotocol/aztec-go-client/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Key prefixes, one ASCII byte each, mirroring core/rawdb's schema.go
// convention of a short prefix selecting a logical table.
const (
	prefixBlockCursor  = 'c' // -> rlp(blockNumber, header)
	prefixNote         = 'n' // + pubkey(64) + txHash(32) + noteHash(32) -> note.ToBuffer()
	prefixDeferredNote = 'd' // + contract(32) + seq(8) -> deferred.ToBuffer()
	prefixAccount      = 'a' // + pubkey(64) -> rlp(AccountRegistration)
	prefixAddress      = 'r' // + address(32) -> rlp(CompleteAddress)
	prefixDeferredSeq  = 's' // + contract(32) -> next sequence counter
)

// DB is a goleveldb-backed Database.
type DB struct {
	ldb *leveldb.DB
}

// Open opens (creating if absent) the leveldb store at path.
func Open(path string) (*DB, error) {
	ldb, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &DB{ldb: ldb}, nil
}

// Close releases the underlying leveldb handle.
func (d *DB) Close() error { return d.ldb.Close() }

type blockCursor struct {
	BlockNumber uint64
	Header      types.BlockHeader
}

func (d *DB) GetBlockNumber(ctx context.Context) (uint64, bool, error) {
	raw, err := d.ldb.Get([]byte{prefixBlockCursor}, nil)
	if err == leveldb.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var cur blockCursor
	if err := rlp.DecodeBytes(raw, &cur); err != nil {
		return 0, false, err
	}
	return cur.BlockNumber, true, nil
}

func (d *DB) SetBlockData(ctx context.Context, blockNumber uint64, header types.BlockHeader) error {
	raw, err := rlp.EncodeToBytes(blockCursor{BlockNumber: blockNumber, Header: header})
	if err != nil {
		return err
	}
	return d.ldb.Put([]byte{prefixBlockCursor}, raw, nil)
}

func noteDBKey(n *types.NoteDao) []byte {
	pk := n.PublicKey.Bytes()
	key := make([]byte, 0, 1+64+32+32)
	key = append(key, prefixNote)
	key = append(key, pk[:]...)
	key = append(key, n.TxHash.Bytes()...)
	key = append(key, n.NoteHash.Bytes()...)
	return key
}

func (d *DB) AddNotes(ctx context.Context, notes []*types.NoteDao) error {
	batch := new(leveldb.Batch)
	for _, n := range notes {
		batch.Put(noteDBKey(n), n.ToBuffer())
	}
	return d.ldb.Write(batch, nil)
}

func (d *DB) RemoveNullifiedNotes(ctx context.Context, nullifiers []common.Hash, publicKey common.PublicKey) ([]*types.NoteDao, error) {
	set := make(map[common.Hash]struct{}, len(nullifiers))
	for _, n := range nullifiers {
		set[n] = struct{}{}
	}

	pk := publicKey.Bytes()
	prefix := append([]byte{prefixNote}, pk[:]...)

	iter := d.ldb.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var removed []*types.NoteDao
	batch := new(leveldb.Batch)
	for iter.Next() {
		note, err := types.NoteFromBuffer(iter.Value())
		if err != nil {
			return nil, err
		}
		if _, ok := set[note.SiloedNullifier]; ok {
			removed = append(removed, note)
			batch.Delete(append([]byte{}, iter.Key()...))
		}
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	if batch.Len() > 0 {
		if err := d.ldb.Write(batch, nil); err != nil {
			return nil, err
		}
	}
	return removed, nil
}

// PersistBlockBatch writes both newNotes and deferred in a single
// leveldb batch so the two halves of spec.md §4.5 step 2 can never
// diverge on a write failure.
func (d *DB) PersistBlockBatch(ctx context.Context, notes []*types.NoteDao, deferred []*types.DeferredNoteDao) error {
	batch := new(leveldb.Batch)
	for _, n := range notes {
		batch.Put(noteDBKey(n), n.ToBuffer())
	}
	for _, n := range deferred {
		seq, err := d.nextDeferredSeq(n.ContractAddress)
		if err != nil {
			return err
		}
		key := make([]byte, 0, 1+32+8)
		key = append(key, prefixDeferredNote)
		key = append(key, n.ContractAddress.Bytes()...)
		var seqBuf [8]byte
		binary.BigEndian.PutUint64(seqBuf[:], seq)
		key = append(key, seqBuf[:]...)
		batch.Put(key, n.ToBuffer())
	}
	return d.ldb.Write(batch, nil)
}

func (d *DB) nextDeferredSeq(contract common.Address) (uint64, error) {
	key := append([]byte{prefixDeferredSeq}, contract.Bytes()...)
	raw, err := d.ldb.Get(key, nil)
	var seq uint64
	if err == nil {
		seq = binary.BigEndian.Uint64(raw)
	} else if err != leveldb.ErrNotFound {
		return 0, err
	}
	var next [8]byte
	binary.BigEndian.PutUint64(next[:], seq+1)
	if err := d.ldb.Put(key, next[:], nil); err != nil {
		return 0, err
	}
	return seq, nil
}

func (d *DB) AddDeferredNotes(ctx context.Context, notes []*types.DeferredNoteDao) error {
	batch := new(leveldb.Batch)
	for _, n := range notes {
		seq, err := d.nextDeferredSeq(n.ContractAddress)
		if err != nil {
			return err
		}
		key := make([]byte, 0, 1+32+8)
		key = append(key, prefixDeferredNote)
		key = append(key, n.ContractAddress.Bytes()...)
		var seqBuf [8]byte
		binary.BigEndian.PutUint64(seqBuf[:], seq)
		key = append(key, seqBuf[:]...)
		batch.Put(key, n.ToBuffer())
	}
	return d.ldb.Write(batch, nil)
}

func (d *DB) deferredNotesIter(addr common.Address) ([]*types.DeferredNoteDao, [][]byte, error) {
	prefix := append([]byte{prefixDeferredNote}, addr.Bytes()...)
	iter := d.ldb.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var notes []*types.DeferredNoteDao
	var keys [][]byte
	for iter.Next() {
		n, err := types.DeferredNoteFromBuffer(iter.Value())
		if err != nil {
			return nil, nil, err
		}
		notes = append(notes, n)
		keys = append(keys, append([]byte{}, iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		return nil, nil, err
	}
	return notes, keys, nil
}

func (d *DB) GetDeferredNotesByContract(ctx context.Context, addr common.Address) ([]*types.DeferredNoteDao, error) {
	notes, _, err := d.deferredNotesIter(addr)
	return notes, err
}

func (d *DB) RemoveDeferredNotesByContract(ctx context.Context, addr common.Address) ([]*types.DeferredNoteDao, error) {
	notes, keys, err := d.deferredNotesIter(addr)
	if err != nil {
		return nil, err
	}
	batch := new(leveldb.Batch)
	for _, k := range keys {
		batch.Delete(k)
	}
	if batch.Len() > 0 {
		if err := d.ldb.Write(batch, nil); err != nil {
			return nil, err
		}
	}
	return notes, nil
}

func (d *DB) GetCompleteAddress(ctx context.Context, addr common.Address) (*types.CompleteAddress, bool, error) {
	key := append([]byte{prefixAddress}, addr.Bytes()...)
	raw, err := d.ldb.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var ca types.CompleteAddress
	if err := rlp.DecodeBytes(raw, &ca); err != nil {
		return nil, false, err
	}
	return &ca, true, nil
}

// FindCompleteAddressByPublicKey scans the address table for a
// registration matching publicKey. The address table is expected to stay
// small (one entry per account/contract this client has ever learned
// about), so a linear scan is preferred over maintaining a second index.
func (d *DB) FindCompleteAddressByPublicKey(ctx context.Context, publicKey common.PublicKey) (*types.CompleteAddress, bool, error) {
	iter := d.ldb.NewIterator(util.BytesPrefix([]byte{prefixAddress}), nil)
	defer iter.Release()

	for iter.Next() {
		var ca types.CompleteAddress
		if err := rlp.DecodeBytes(iter.Value(), &ca); err != nil {
			return nil, false, err
		}
		if ca.PublicKey == publicKey {
			return &ca, true, nil
		}
	}
	return nil, false, iter.Error()
}

// RegisterCompleteAddress persists the public registration for addr. It
// is exposed for the surrounding client's account registry to call when
// a contract becomes known, mirroring MemoryDB.RegisterCompleteAddress.
func (d *DB) RegisterCompleteAddress(ca types.CompleteAddress) error {
	raw, err := rlp.EncodeToBytes(ca)
	if err != nil {
		return err
	}
	key := append([]byte{prefixAddress}, ca.Address.Bytes()...)
	return d.ldb.Put(key, raw, nil)
}

func (d *DB) AddAccount(ctx context.Context, reg database.AccountRegistration) error {
	raw, err := rlp.EncodeToBytes(reg)
	if err != nil {
		return err
	}
	pk := reg.PublicKey.Bytes()
	key := append([]byte{prefixAccount}, pk[:]...)
	return d.ldb.Put(key, raw, nil)
}

func (d *DB) ListAccounts(ctx context.Context) ([]database.AccountRegistration, error) {
	iter := d.ldb.NewIterator(util.BytesPrefix([]byte{prefixAccount}), nil)
	defer iter.Release()

	var out []database.AccountRegistration
	for iter.Next() {
		var reg database.AccountRegistration
		if err := rlp.DecodeBytes(iter.Value(), &reg); err != nil {
			return nil, err
		}
		out = append(out, reg)
	}
	return out, iter.Error()
}

func (d *DB) CountNotes(ctx context.Context, publicKey common.PublicKey) (uint64, error) {
	pk := publicKey.Bytes()
	prefix := append([]byte{prefixNote}, pk[:]...)

	iter := d.ldb.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var count uint64
	for iter.Next() {
		count++
	}
	return count, iter.Error()
}

func (d *DB) EstimateSize(ctx context.Context) (uint64, error) {
	var stats leveldb.DBStats
	if err := d.ldb.Stats(&stats); err != nil {
		return 0, err
	}
	var total uint64
	for _, lvl := range stats.LevelSizes {
		total += uint64(lvl)
	}
	return total, nil
}
