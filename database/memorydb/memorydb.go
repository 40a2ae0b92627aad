// Package memorydb is an in-memory Database implementation used by this
// module's tests. It exercises exactly the same contract as the
// goleveldb-backed production store in database/leveldb, just without
// persistence.
package memorydb

import (
	"context"
	"sync"

	"github.com/aztecprotocol/aztec-go-client/common"
	"github.com/aztecprotocol/aztec-go-client/database"
	"github.com/aztecprotocol/aztec-go-client/types"
)

type noteKey struct {
	publicKey string
	txHash    common.Hash
	noteHash  common.Hash
}

// MemoryDB implements database.Database over plain Go maps guarded by a
// mutex.
type MemoryDB struct {
	mu sync.Mutex

	haveBlock   bool
	blockNumber uint64
	header      types.BlockHeader

	notes         map[noteKey]*types.NoteDao
	deferredNotes map[common.Address][]*types.DeferredNoteDao
	accounts      map[string]database.AccountRegistration
	addresses     map[common.Address]types.CompleteAddress
}

// New returns an empty MemoryDB.
func New() *MemoryDB {
	return &MemoryDB{
		notes:         make(map[noteKey]*types.NoteDao),
		deferredNotes: make(map[common.Address][]*types.DeferredNoteDao),
		accounts:      make(map[string]database.AccountRegistration),
		addresses:     make(map[common.Address]types.CompleteAddress),
	}
}

func (m *MemoryDB) GetBlockNumber(ctx context.Context) (uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blockNumber, m.haveBlock, nil
}

func (m *MemoryDB) SetBlockData(ctx context.Context, blockNumber uint64, header types.BlockHeader) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockNumber = blockNumber
	m.header = header
	m.haveBlock = true
	return nil
}

func (m *MemoryDB) AddNotes(ctx context.Context, notes []*types.NoteDao) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range notes {
		key := noteKey{publicKey: n.PublicKey.String(), txHash: n.TxHash, noteHash: n.NoteHash}
		m.notes[key] = n
	}
	return nil
}

func (m *MemoryDB) RemoveNullifiedNotes(ctx context.Context, nullifiers []common.Hash, publicKey common.PublicKey) ([]*types.NoteDao, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := make(map[common.Hash]struct{}, len(nullifiers))
	for _, n := range nullifiers {
		set[n] = struct{}{}
	}
	pk := publicKey.String()

	var removed []*types.NoteDao
	for key, note := range m.notes {
		if key.publicKey != pk {
			continue
		}
		if _, ok := set[note.SiloedNullifier]; ok {
			removed = append(removed, note)
			delete(m.notes, key)
		}
	}
	return removed, nil
}

func (m *MemoryDB) PersistBlockBatch(ctx context.Context, notes []*types.NoteDao, deferred []*types.DeferredNoteDao) error {
	if err := m.AddNotes(ctx, notes); err != nil {
		return err
	}
	return m.AddDeferredNotes(ctx, deferred)
}

func (m *MemoryDB) AddDeferredNotes(ctx context.Context, notes []*types.DeferredNoteDao) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range notes {
		m.deferredNotes[n.ContractAddress] = append(m.deferredNotes[n.ContractAddress], n)
	}
	return nil
}

func (m *MemoryDB) GetDeferredNotesByContract(ctx context.Context, addr common.Address) ([]*types.DeferredNoteDao, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.DeferredNoteDao, len(m.deferredNotes[addr]))
	copy(out, m.deferredNotes[addr])
	return out, nil
}

func (m *MemoryDB) RemoveDeferredNotesByContract(ctx context.Context, addr common.Address) ([]*types.DeferredNoteDao, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.deferredNotes[addr]
	delete(m.deferredNotes, addr)
	return out, nil
}

func (m *MemoryDB) GetCompleteAddress(ctx context.Context, addr common.Address) (*types.CompleteAddress, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ca, ok := m.addresses[addr]
	if !ok {
		return nil, false, nil
	}
	return &ca, true, nil
}

func (m *MemoryDB) FindCompleteAddressByPublicKey(ctx context.Context, publicKey common.PublicKey) (*types.CompleteAddress, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ca := range m.addresses {
		if ca.PublicKey == publicKey {
			ca := ca
			return &ca, true, nil
		}
	}
	return nil, false, nil
}

// RegisterCompleteAddress is a test/setup helper mimicking what the
// (out-of-scope) account/keystore registry would do when a contract's
// code becomes known locally.
func (m *MemoryDB) RegisterCompleteAddress(ca types.CompleteAddress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addresses[ca.Address] = ca
}

func (m *MemoryDB) AddAccount(ctx context.Context, reg database.AccountRegistration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[reg.PublicKey.String()] = reg
	return nil
}

func (m *MemoryDB) ListAccounts(ctx context.Context) ([]database.AccountRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]database.AccountRegistration, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	return out, nil
}

func (m *MemoryDB) CountNotes(ctx context.Context, publicKey common.PublicKey) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk := publicKey.String()
	var count uint64
	for key := range m.notes {
		if key.publicKey == pk {
			count++
		}
	}
	return count, nil
}

func (m *MemoryDB) EstimateSize(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var size uint64
	for _, n := range m.notes {
		size += uint64(len(n.ToBuffer()))
	}
	for _, notes := range m.deferredNotes {
		for _, n := range notes {
			size += uint64(len(n.ToBuffer()))
		}
	}
	return size, nil
}
