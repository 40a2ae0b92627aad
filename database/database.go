// Package database defines the Database facade the synchronizer
// consumes (spec.md §4.4): durable storage of the block header mirror,
// decoded and deferred notes, and account registrations. Every operation
// is atomic and is only ever called from inside a queue.SerialQueue task
// (spec.md §5), so implementations need no internal locking beyond what
// their backing store already provides for a single concurrent caller.
package database

import (
	"context"
	"errors"

	"github.com/aztecprotocol/aztec-go-client/common"
	"github.com/aztecprotocol/aztec-go-client/types"
)

// ErrNotFound names the not-found condition. The Database
// implementations in this module do not return it: their lookups report
// a missing entry through a false boolean result.
var ErrNotFound = errors.New("database: not found")

// AccountRegistration is the persisted record of an addAccount call, so
// that registered accounts and their startingBlock survive a restart
// (SPEC_FULL.md §4.4).
type AccountRegistration struct {
	PublicKey     common.PublicKey
	CompleteAddr  types.CompleteAddress
	StartingBlock uint64
}

// Database is the storage contract the synchronizer and note processors
// share. All methods are atomic; DatabaseError (spec.md §7) propagates as
// a plain Go error from any of them.
type Database interface {
	// GetBlockNumber returns the highest block number fully ingested,
	// and false if no block has been written yet.
	GetBlockNumber(ctx context.Context) (uint64, bool, error)

	// SetBlockData persists the header for blockNumber as the new
	// global cursor.
	SetBlockData(ctx context.Context, blockNumber uint64, header types.BlockHeader) error

	// AddNotes persists newly decoded notes.
	AddNotes(ctx context.Context, notes []*types.NoteDao) error

	// RemoveNullifiedNotes deletes every NoteDao belonging to publicKey
	// whose siloedNullifier appears in nullifiers, returning the
	// removed notes.
	RemoveNullifiedNotes(ctx context.Context, nullifiers []common.Hash, publicKey common.PublicKey) ([]*types.NoteDao, error)

	// AddDeferredNotes persists notes awaiting their contract's code.
	AddDeferredNotes(ctx context.Context, notes []*types.DeferredNoteDao) error

	// PersistBlockBatch atomically persists the notes decoded from a
	// single block together with the notes deferred from it, so that a
	// mid-write failure can never leave one half durable without the
	// other (spec.md §4.5 step 2: "persist newNotes and any deferred
	// notes ... in a single submission").
	PersistBlockBatch(ctx context.Context, notes []*types.NoteDao, deferred []*types.DeferredNoteDao) error

	// GetDeferredNotesByContract returns every deferred note for addr
	// without removing them.
	GetDeferredNotesByContract(ctx context.Context, addr common.Address) ([]*types.DeferredNoteDao, error)

	// RemoveDeferredNotesByContract deletes and returns every deferred
	// note for addr.
	RemoveDeferredNotesByContract(ctx context.Context, addr common.Address) ([]*types.DeferredNoteDao, error)

	// GetCompleteAddress looks up the public registration for addr.
	GetCompleteAddress(ctx context.Context, addr common.Address) (*types.CompleteAddress, bool, error)

	// FindCompleteAddressByPublicKey looks up a registration by the
	// account's public key rather than its address, so callers that
	// only have a public key (e.g. isAccountStateSynchronized) can tell
	// a recipient-only registration apart from an unregistered account
	// (spec.md §6: RECIPIENT_ONLY_ACCOUNT vs UNREGISTERED_ACCOUNT).
	FindCompleteAddressByPublicKey(ctx context.Context, publicKey common.PublicKey) (*types.CompleteAddress, bool, error)

	// AddAccount persists a new account registration (SPEC_FULL.md
	// addition; the original spec is silent on restart durability).
	AddAccount(ctx context.Context, reg AccountRegistration) error

	// ListAccounts returns every persisted account registration, so the
	// owning client can rehydrate NoteProcessors after a restart.
	ListAccounts(ctx context.Context) ([]AccountRegistration, error)

	// EstimateSize reports approximate on-disk size in bytes, for
	// observability only.
	EstimateSize(ctx context.Context) (uint64, error)

	// CountNotes reports the number of NoteDaos currently persisted for
	// publicKey, surfaced on getSyncStatus's notes map (spec.md §6/§8 S1).
	CountNotes(ctx context.Context, publicKey common.PublicKey) (uint64, error)
}
