// Package noteprocessor implements the per-account note-scanning state
// machine: given a contiguous run of L2BlockContexts and their attached
// encrypted logs, it decrypts every log addressed to its account,
// defers notes whose contract code is not yet known, and persists the
// rest as NoteDaos (spec.md §4.5).
package noteprocessor

import (
	"context"
	"fmt"

	"github.com/aztecprotocol/aztec-go-client/common"
	"github.com/aztecprotocol/aztec-go-client/database"
	"github.com/aztecprotocol/aztec-go-client/errs"
	"github.com/aztecprotocol/aztec-go-client/log"
	"github.com/aztecprotocol/aztec-go-client/noteengine"
	"github.com/aztecprotocol/aztec-go-client/types"
)

// NoteProcessor is the scanning state machine for one registered
// account's public key. It is not safe for concurrent use; callers run
// it exclusively from inside a queue.SerialQueue task (spec.md §5).
type NoteProcessor struct {
	PublicKey common.PublicKey

	keyStore     KeyStore
	db           database.Database
	decrypter    noteengine.NoteDecrypter
	nullifiers   noteengine.NullifierComputer
	contractCode ContractCodeProvider

	syncedToBlock uint64
	stats         types.Stats
	log           log.Logger
}

// New constructs a NoteProcessor starting at startingBlock − 1, so the
// first block it will accept is startingBlock.
func New(
	publicKey common.PublicKey,
	keyStore KeyStore,
	db database.Database,
	decrypter noteengine.NoteDecrypter,
	nullifiers noteengine.NullifierComputer,
	contractCode ContractCodeProvider,
	startingBlock uint64,
) *NoteProcessor {
	return &NoteProcessor{
		PublicKey:     publicKey,
		keyStore:      keyStore,
		db:            db,
		decrypter:     decrypter,
		nullifiers:    nullifiers,
		contractCode:  contractCode,
		syncedToBlock: startingBlock - 1,
		log:           log.New("pubkey", publicKey.String()),
	}
}

// SyncedToBlock returns the highest block number this processor has
// fully ingested.
func (p *NoteProcessor) SyncedToBlock() uint64 { return p.syncedToBlock }

// Stats returns a snapshot of this processor's running counters.
func (p *NoteProcessor) Stats() types.Stats { return p.stats }

// Process ingests a contiguous run of blocks in order (spec.md §4.5).
// blockContexts must be non-empty, encryptedLogs must have the same
// length, and blockContexts[i].BlockNumber must equal
// p.syncedToBlock+1+i; violating either is an internal invariant error,
// never a data-dependent one.
func (p *NoteProcessor) Process(ctx context.Context, blockContexts []types.L2BlockContext, encryptedLogs []types.EncryptedLogBundle) error {
	if len(blockContexts) == 0 {
		return fmt.Errorf("%w: noteprocessor.Process called with no blocks", errs.ErrProgrammerInvariant)
	}
	if len(blockContexts) != len(encryptedLogs) {
		return fmt.Errorf("%w: blockContexts/encryptedLogs length mismatch (%d vs %d)", errs.ErrProgrammerInvariant, len(blockContexts), len(encryptedLogs))
	}

	privateKey := p.keyStore.AccountPrivateKey()

	for i, bc := range blockContexts {
		if bc.BlockNumber != p.syncedToBlock+1+uint64(i) {
			return fmt.Errorf("%w: block %d out of order for processor synced to %d", errs.ErrProgrammerInvariant, bc.BlockNumber, p.syncedToBlock)
		}

		newNotes, deferred, blockStats, err := p.processBlock(ctx, bc, encryptedLogs[i], privateKey)
		if err != nil {
			return err
		}

		if err := p.db.PersistBlockBatch(ctx, newNotes, deferred); err != nil {
			return fmt.Errorf("noteprocessor: persist block %d: %w", bc.BlockNumber, err)
		}

		p.syncedToBlock = bc.Block.Number
		blockStats.BlocksProcessed = 1
		p.stats.Add(blockStats)
	}
	return nil
}

// processBlock runs step 1 of spec.md §4.5's algorithm for a single
// block, without persisting anything; Process owns the single-submission
// persist in step 2.
func (p *NoteProcessor) processBlock(ctx context.Context, bc types.L2BlockContext, logs types.EncryptedLogBundle, privateKey common.Hash) ([]*types.NoteDao, []*types.DeferredNoteDao, types.Stats, error) {
	var (
		newNotes []*types.NoteDao
		deferred []*types.DeferredNoteDao
		stats    types.Stats
	)

	logsByTx := make(map[int][]types.EncryptedLogEntry)
	for _, l := range logs.Logs {
		logsByTx[l.TxIndex] = append(logsByTx[l.TxIndex], l)
	}

	firstNoteHashIndex := bc.Block.DataStartIndex
	for txIdx, tx := range bc.Block.Txs {
		txFirstNoteHashIndex := firstNoteHashIndex
		firstNoteHashIndex += types.MaxNoteHashesPerTx

		for _, l := range logsByTx[txIdx] {
			stats.LogsSeen++

			decrypted, err := p.decrypter.DecryptNote(l, privateKey)
			if err != nil {
				stats.DecryptFailures++
				p.log.Debug("note decrypt failed", "block", bc.BlockNumber, "tx", tx.TxHash.Hex(), "err", err)
				continue
			}

			hasCode, err := p.contractCode.HasCode(ctx, decrypted.ContractAddress)
			if err != nil {
				return nil, nil, types.Stats{}, fmt.Errorf("noteprocessor: contract code lookup: %w", err)
			}
			if !hasCode {
				deferred = append(deferred, &types.DeferredNoteDao{
					PublicKey:           p.PublicKey,
					Note:                decrypted.Note,
					ContractAddress:     decrypted.ContractAddress,
					StorageSlot:         decrypted.StorageSlot,
					TxHash:              tx.TxHash,
					TxNullifier:         tx.TxNullifier,
					NewCommitments:      tx.NewCommitments,
					DataStartIndexForTx: txFirstNoteHashIndex,
				})
				stats.NotesDeferred++
				continue
			}

			note, deferredOnFail, err := p.interpret(decrypted, tx, txFirstNoteHashIndex)
			if err != nil {
				return nil, nil, types.Stats{}, err
			}
			if note != nil {
				newNotes = append(newNotes, note)
			} else if deferredOnFail {
				stats.NoteHashMismatches++
			}
			stats.NotesDecoded++
		}
	}

	return newNotes, deferred, stats, nil
}

// interpret runs the contract-supplied compute-note-hash-and-nullifier
// routine and locates the resulting noteHash among the tx's
// newCommitments (spec.md §4.5 step 1.c). A nil *NoteDao with
// mismatched=true means the note was discarded as spoofed or
// contract-mismatched; both are non-fatal.
func (p *NoteProcessor) interpret(decrypted *noteengine.DecryptedNote, tx types.Tx, txFirstNoteHashIndex uint64) (*types.NoteDao, bool, error) {
	noteHash, siloedNullifier, err := p.nullifiers.ComputeNoteHashAndNullifier(decrypted.ContractAddress, decrypted.StorageSlot, decrypted.Note)
	if err != nil {
		return nil, false, fmt.Errorf("noteprocessor: compute note hash and nullifier: %w", err)
	}

	pos := -1
	for j, commitment := range tx.NewCommitments {
		if commitment == noteHash {
			if pos != -1 {
				return nil, false, fmt.Errorf("%w: noteHash %s appears more than once in tx %s", errs.ErrProgrammerInvariant, noteHash.Hex(), tx.TxHash.Hex())
			}
			pos = j
		}
	}
	if pos == -1 {
		p.log.Debug("note hash not found in tx commitments, discarding", "tx", tx.TxHash.Hex(), "noteHash", noteHash.Hex())
		return nil, true, nil
	}

	return &types.NoteDao{
		PublicKey:       p.PublicKey,
		ContractAddress: decrypted.ContractAddress,
		StorageSlot:     decrypted.StorageSlot,
		Note:            decrypted.Note,
		NoteHash:        noteHash,
		SiloedNullifier: siloedNullifier,
		TxHash:          tx.TxHash,
		LeafIndex:       txFirstNoteHashIndex + uint64(pos),
	}, false, nil
}

// DecodeDeferredNotes interprets previously deferred notes now that
// their contract code is guaranteed present; it is identical to the
// per-log interpretation step of Process but never re-defers. Notes for
// which interpretation fails (spoofed or mismatched commitment) are
// dropped (spec.md §4.5's decodeDeferredNotes).
func (p *NoteProcessor) DecodeDeferredNotes(deferred []*types.DeferredNoteDao) ([]*types.NoteDao, error) {
	var out []*types.NoteDao
	for _, d := range deferred {
		decrypted := &noteengine.DecryptedNote{
			ContractAddress: d.ContractAddress,
			StorageSlot:     d.StorageSlot,
			Note:            d.Note,
		}
		tx := types.Tx{
			TxHash:         d.TxHash,
			TxNullifier:    d.TxNullifier,
			NewCommitments: d.NewCommitments,
		}
		note, _, err := p.interpret(decrypted, tx, d.DataStartIndexForTx)
		if err != nil {
			return nil, err
		}
		if note != nil {
			out = append(out, note)
		}
	}
	return out, nil
}

// IsSynchronized reports whether this processor has caught up to the
// node's current block number.
func (p *NoteProcessor) IsSynchronized(ctx context.Context, currentNodeBlock uint64) bool {
	return p.syncedToBlock >= currentNodeBlock
}
