package synchronizer

import (
	"context"
	"fmt"

	"github.com/aztecprotocol/aztec-go-client/common"
	"github.com/aztecprotocol/aztec-go-client/errs"
	"github.com/aztecprotocol/aztec-go-client/noteprocessor"
	"github.com/aztecprotocol/aztec-go-client/types"
)

// SyncStatus is a point-in-time read of the synchronizer's progress:
// the global cursor persisted in the database, every registered
// account's NoteProcessor position (active or still catching up), and
// the number of notes persisted per account (spec.md §6: `getSyncStatus()
// -> { blocks: u64, notes: map<publicKeyString, u64> }`).
type SyncStatus struct {
	BlockNumber uint64
	Processors  []types.NoteProcessorStatus
	Notes       map[string]uint64
	// DBSize is database.EstimateSize at the moment of this read, so
	// operators can watch DB growth alongside sync progress
	// (SPEC_FULL.md §4.6).
	DBSize uint64
}

// GetSyncStatus reports the current global block cursor, every
// registered account's sync position, its persisted note count, and the
// database's on-disk size, read-only (spec.md §4.6, SPEC_FULL.md §4.6).
func (s *Synchronizer) GetSyncStatus(ctx context.Context) (SyncStatus, error) {
	v, err := s.queue.Submit(func(ctx context.Context) (any, error) {
		blockNumber, _, err := s.db.GetBlockNumber(ctx)
		if err != nil {
			return nil, err
		}
		dbSize, err := s.db.EstimateSize(ctx)
		if err != nil {
			return nil, err
		}
		statuses := make([]types.NoteProcessorStatus, 0, len(s.active)+len(s.catchUp))
		notes := make(map[string]uint64, len(s.active)+len(s.catchUp))
		for _, group := range [][]*noteprocessor.NoteProcessor{s.active, s.catchUp} {
			for _, p := range group {
				statuses = append(statuses, types.NoteProcessorStatus{PublicKey: p.PublicKey, SyncedToBlock: p.SyncedToBlock()})
				count, err := s.db.CountNotes(ctx, p.PublicKey)
				if err != nil {
					return nil, err
				}
				notes[p.PublicKey.String()] = count
			}
		}
		return SyncStatus{BlockNumber: blockNumber, Processors: statuses, Notes: notes, DBSize: dbSize}, nil
	})
	if err != nil {
		return SyncStatus{}, err
	}
	return v.(SyncStatus), nil
}

// IsGlobalStateSynchronized reports whether the global cursor has caught
// up to the node's current block number.
func (s *Synchronizer) IsGlobalStateSynchronized(ctx context.Context) (bool, error) {
	v, err := s.queue.Submit(func(ctx context.Context) (any, error) {
		dbBlock, _, err := s.db.GetBlockNumber(ctx)
		if err != nil {
			return nil, err
		}
		nodeBlock, err := s.node.GetBlockNumber(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrTransientNode, err)
		}
		return dbBlock >= nodeBlock, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// IsAccountStateSynchronized reports whether publicKey's NoteProcessor
// (active or catching up) has caught up to the node's current block
// number. It raises ErrProgrammerInvariant if no such processor is
// registered — whether because the account was never added, or because
// it is known only as a note recipient via a CompleteAddress
// registration with no NoteProcessor of its own (spec.md §4.6).
func (s *Synchronizer) IsAccountStateSynchronized(ctx context.Context, publicKey common.PublicKey) (bool, error) {
	v, err := s.queue.Submit(func(ctx context.Context) (any, error) {
		p := s.findProcessor(publicKey)
		if p == nil {
			if _, recipientOnly, dbErr := s.db.FindCompleteAddressByPublicKey(ctx, publicKey); dbErr == nil && recipientOnly {
				return nil, fmt.Errorf("%w: %w: pubkey %s", errs.ErrProgrammerInvariant, errs.ErrRecipientOnlyAccount, publicKey.String())
			}
			return nil, fmt.Errorf("%w: %w: pubkey %s", errs.ErrProgrammerInvariant, errs.ErrUnregisteredAccount, publicKey.String())
		}
		nodeBlock, err := s.node.GetBlockNumber(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrTransientNode, err)
		}
		return p.IsSynchronized(ctx, nodeBlock), nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}
