package nodeclient

import (
	"context"
	"sync"

	"github.com/aztecprotocol/aztec-go-client/types"
)

// MemoryNode is an in-memory NodeClient: an append-only chain of blocks
// with their attached encrypted/unencrypted log bundles, plus a set of
// nullifiers considered spent. It is used by this module's own tests and
// is a reasonable stand-in for local development against a simulated L2.
type MemoryNode struct {
	mu sync.RWMutex

	blocks      []*types.L2Block
	header      types.BlockHeader
	nullifiers  map[[32]byte]uint64 // nullifier -> leaf index
	failNext    map[string]error    // method name -> error to return once
}

// NewMemoryNode returns an empty MemoryNode.
func NewMemoryNode() *MemoryNode {
	return &MemoryNode{
		nullifiers: make(map[[32]byte]uint64),
		failNext:   make(map[string]error),
	}
}

// AppendBlock adds block (and its already-attached log bundles) as the
// new chain head. Blocks must be appended in increasing order by number.
func (m *MemoryNode) AppendBlock(block *types.L2Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks = append(m.blocks, block)
}

// SetHeader sets the header GetBlockHeader returns.
func (m *MemoryNode) SetHeader(h types.BlockHeader) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.header = h
}

// MarkNullified records that nullifier now appears in the nullifier tree
// at leafIndex, so a subsequent FindLeafIndex call finds it.
func (m *MemoryNode) MarkNullified(nullifier [32]byte, leafIndex uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nullifiers[nullifier] = leafIndex
}

// FailNextCall arms method to return err exactly once on its next
// invocation, then resume normal behavior. Used to exercise
// TransientNodeError recovery (spec.md §8 scenario S5).
func (m *MemoryNode) FailNextCall(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext[method] = err
}

func (m *MemoryNode) takeFailure(method string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err, ok := m.failNext[method]
	if ok {
		delete(m.failNext, method)
	}
	return err
}

func (m *MemoryNode) GetBlockNumber(ctx context.Context) (uint64, error) {
	if err := m.takeFailure("GetBlockNumber"); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.blocks) == 0 {
		return 0, nil
	}
	return m.blocks[len(m.blocks)-1].Number, nil
}

func (m *MemoryNode) GetBlockHeader(ctx context.Context) (types.BlockHeader, error) {
	if err := m.takeFailure("GetBlockHeader"); err != nil {
		return types.BlockHeader{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.header, nil
}

func (m *MemoryNode) GetBlocks(ctx context.Context, from uint64, limit uint64) ([]*types.L2Block, error) {
	if err := m.takeFailure("GetBlocks"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.slice(from, limit), nil
}

func (m *MemoryNode) GetLogs(ctx context.Context, from uint64, limit uint64, kind types.LogKind) ([]types.EncryptedLogBundle, error) {
	if err := m.takeFailure("GetLogs"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	blocks := m.slice(from, limit)
	out := make([]types.EncryptedLogBundle, 0, len(blocks))
	for _, b := range blocks {
		if kind == types.EncryptedLogs {
			out = append(out, b.EncryptedLogs)
		} else {
			out = append(out, b.UnencryptedLogs)
		}
	}
	return out, nil
}

func (m *MemoryNode) FindLeafIndex(ctx context.Context, snapshot types.Snapshot, tree types.TreeID, leaf [32]byte) (uint64, bool, error) {
	if err := m.takeFailure("FindLeafIndex"); err != nil {
		return 0, false, err
	}
	if tree != types.NullifierTree {
		return 0, false, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.nullifiers[leaf]
	return idx, ok, nil
}

// slice returns the contiguous run of blocks with number in
// [from, from+limit) present in m.blocks, assuming m.blocks is sorted
// ascending with no gaps (as AppendBlock guarantees for sequential use).
func (m *MemoryNode) slice(from uint64, limit uint64) []*types.L2Block {
	var out []*types.L2Block
	for _, b := range m.blocks {
		if b.Number < from {
			continue
		}
		if b.Number >= from+limit {
			break
		}
		out = append(out, b)
	}
	return out
}
