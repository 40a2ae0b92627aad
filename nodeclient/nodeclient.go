// Package nodeclient defines the NodeClient contract the synchronizer
// consumes (spec.md §4.3): block, log, and nullifier-tree lookups against
// a remote L2 node. The production JSON-RPC transport is an external
// collaborator out of this module's scope (spec.md §1); this package
// only fixes the interface and ships an in-memory reference
// implementation for tests and local development, the same separation
// the teacher draws between ethclient (transport) and the code that
// consumes it.
package nodeclient

import (
	"context"

	"github.com/aztecprotocol/aztec-go-client/types"
)

// NodeClient is implemented by anything capable of answering the
// synchronizer's questions about remote L2 chain state. Every method may
// return a transient error (timeout, 5xx) which callers treat as
// spec.md §7's TransientNodeError: logged, causing the current tick to
// retry after the configured interval.
type NodeClient interface {
	// GetBlockNumber returns the latest known L2 block height.
	GetBlockNumber(ctx context.Context) (uint64, error)

	// GetBlockHeader returns the latest tree roots.
	GetBlockHeader(ctx context.Context) (types.BlockHeader, error)

	// GetBlocks returns blocks in [from, from+limit) that exist, in
	// ascending order, with no gaps in the prefix returned. It may
	// return fewer than limit blocks, including zero.
	GetBlocks(ctx context.Context, from uint64, limit uint64) ([]*types.L2Block, error)

	// GetLogs returns per-block log bundles aligned by block number for
	// [from, from+limit), in ascending order with no gaps in the prefix
	// returned. It may return fewer than limit bundles, including zero.
	GetLogs(ctx context.Context, from uint64, limit uint64, kind types.LogKind) ([]types.EncryptedLogBundle, error)

	// FindLeafIndex looks up leaf in the given tree at snapshot,
	// returning its index if present.
	FindLeafIndex(ctx context.Context, snapshot types.Snapshot, tree types.TreeID, leaf [32]byte) (uint64, bool, error)
}
