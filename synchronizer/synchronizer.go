// Package synchronizer implements the control plane that drives every
// registered NoteProcessor forward against a remote node: the global
// block cursor, the forward/catch-up scheduling split, and the
// serialized access to the database every tick and foreground operation
// shares (spec.md §4.6, §5).
package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aztecprotocol/aztec-go-client/common"
	"github.com/aztecprotocol/aztec-go-client/database"
	"github.com/aztecprotocol/aztec-go-client/errs"
	"github.com/aztecprotocol/aztec-go-client/event"
	"github.com/aztecprotocol/aztec-go-client/log"
	"github.com/aztecprotocol/aztec-go-client/nodeclient"
	"github.com/aztecprotocol/aztec-go-client/noteengine"
	"github.com/aztecprotocol/aztec-go-client/noteprocessor"
	"github.com/aztecprotocol/aztec-go-client/queue"
	"github.com/aztecprotocol/aztec-go-client/ticker"
	"github.com/aztecprotocol/aztec-go-client/types"
	"golang.org/x/sync/errgroup"
)

// Synchronizer is the single logical worker described in spec.md §5: a
// SerialQueue onto which every database-touching operation (ticks,
// foreground queries, deferred-note reprocessing) is submitted, plus a
// PeriodicTicker that drives forward/catch-up sync.
type Synchronizer struct {
	db           database.Database
	node         nodeclient.NodeClient
	decrypter    noteengine.NoteDecrypter
	nullifiers   noteengine.NullifierComputer
	contractCode noteprocessor.ContractCodeProvider

	queue  *queue.SerialQueue
	ticker *ticker.PeriodicTicker

	active  []*noteprocessor.NoteProcessor
	catchUp []*noteprocessor.NoteProcessor

	initialSyncBlockNumber uint64
	running                bool

	events event.FeedOf[Event]
	scope  event.SubscriptionScope
	log    log.Logger
}

// New constructs a Synchronizer. decrypter, nullifiers, and contractCode
// are shared by every NoteProcessor the synchronizer creates via
// AddAccount. instance is an optional suffix for the synchronizer's debug
// logs (spec.md §6 Observability), useful when a process runs more than
// one Synchronizer; the zero value omits the suffix.
func New(
	db database.Database,
	node nodeclient.NodeClient,
	decrypter noteengine.NoteDecrypter,
	nullifiers noteengine.NullifierComputer,
	contractCode noteprocessor.ContractCodeProvider,
	instance ...string,
) *Synchronizer {
	logCtx := []any{"component", "synchronizer"}
	if len(instance) > 0 && instance[0] != "" {
		logCtx = append(logCtx, "instance", instance[0])
	}
	return &Synchronizer{
		db:           db,
		node:         node,
		decrypter:    decrypter,
		nullifiers:   nullifiers,
		contractCode: contractCode,
		queue:        queue.New(),
		log:          log.New(logCtx...),
	}
}

// Events returns the feed of observability events this synchronizer
// publishes: NoteProcessorCaughtUp and the periodic NoteProcessorStats.
func (s *Synchronizer) Events() *event.FeedOf[Event] { return &s.events }

// Start is idempotent: it runs initialSync to completion, then starts
// the periodic forward/catch-up loop (spec.md §4.6).
func (s *Synchronizer) Start(ctx context.Context, limit uint64, retryInterval time.Duration) error {
	if s.running {
		return nil
	}
	if _, err := s.queue.Submit(func(ctx context.Context) (any, error) {
		return nil, s.initialSync(ctx)
	}); err != nil {
		return err
	}

	eventCh := make(chan Event, 16)
	sub := s.scope.Track(s.events.Subscribe(eventCh))
	go s.logEvents(eventCh, sub)

	s.running = true
	s.ticker = ticker.New(func(ctx context.Context) (bool, error) {
		return s.sync(ctx, limit)
	}, retryInterval)
	s.ticker.Start()
	return nil
}

// Stop marks the synchronizer not-running, stops the ticker (waiting for
// any in-flight tick to finish), drains the serial queue, and tears down
// the synchronizer's own internal event consumer started in Start.
func (s *Synchronizer) Stop() {
	s.running = false
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.queue.End()
	s.scope.Close()
}

// logEvents is the synchronizer's own consumer of its observability feed,
// started in Start and torn down via scope.Close in Stop: it turns every
// published Event into a debug log line. ch is never closed by the feed
// (event.FeedOf only closes the subscription's error channel), so this
// loop exits on sub.Err() closing rather than on ch closing.
func (s *Synchronizer) logEvents(ch <-chan Event, sub event.Subscription) {
	for {
		select {
		case ev := <-ch:
			s.log.Debug("synchronizer event", "kind", ev.Kind, "pubkey", ev.PublicKey.String(), "duration", ev.Duration, "dbSize", ev.DBSize)
		case <-sub.Err():
			return
		}
	}
}

// initialSync reads the node's current head and persists it as the
// global cursor, so forward sync starts from "now" rather than replaying
// history; per-account catch-up is unaffected and still starts from each
// account's own startingBlock (spec.md §4.6).
func (s *Synchronizer) initialSync(ctx context.Context) error {
	blockNumber, err := s.node.GetBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTransientNode, err)
	}
	header, err := s.node.GetBlockHeader(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTransientNode, err)
	}
	if err := s.db.SetBlockData(ctx, blockNumber, header); err != nil {
		return err
	}
	s.initialSyncBlockNumber = blockNumber
	s.log.Info("initial sync complete", "blockNumber", blockNumber)
	return nil
}

// sync is the PeriodicTicker's Fn: it submits exactly one forward-or-
// catch-up step to the serial queue and returns whether it made
// progress. The ticker itself supplies the "continue while true" inner
// loop (spec.md §4.6) by calling sync again immediately on a true
// return; because each call is its own queue.Submit, the queue's single
// exclusive slot is released between iterations, letting foreground
// tasks (GetSyncStatus, AddAccount's registration write,
// ReprocessDeferredNotesForContract) interleave rather than being
// starved for an entire multi-batch sync burst (spec.md §1, §5).
func (s *Synchronizer) sync(ctx context.Context, limit uint64) (bool, error) {
	if !s.running {
		return false, nil
	}
	v, err := s.queue.Submit(func(ctx context.Context) (any, error) {
		if len(s.catchUp) > 0 {
			return s.workNoteProcessorCatchUp(ctx, limit)
		}
		return s.work(ctx, limit)
	})
	if err != nil {
		if errors.Is(err, errs.ErrProgrammerInvariant) {
			return false, err
		}
		s.log.Warn("sync tick failed", "err", err)
		return false, nil
	}
	return v.(bool), nil
}

// emitEvent snapshots the database's on-disk size and publishes kind for
// publicKey on the synchronizer's event feed, with duration measured from
// started (spec.md §6: `{publicKey, duration_ms, dbSize, ...stats}`). A
// failed size estimate is logged and treated as zero, since this feed is
// diagnostic only and must never fail a sync step.
func (s *Synchronizer) emitEvent(ctx context.Context, kind EventKind, publicKey common.PublicKey, started time.Time, stats types.Stats) {
	dbSize, err := s.db.EstimateSize(ctx)
	if err != nil {
		s.log.Warn("estimateSize failed for event", "kind", kind, "err", err)
	}
	s.events.Send(Event{
		Kind:      kind,
		PublicKey: publicKey,
		Duration:  time.Since(started),
		DBSize:    dbSize,
		Stats:     stats,
	})
}

// work runs one forward-mode iteration: fetch the next batch of logs and
// blocks past the global cursor, feed every active NoteProcessor, and
// advance the cursor (spec.md §4.6 step-by-step).
func (s *Synchronizer) work(ctx context.Context, limit uint64) (bool, error) {
	started := time.Now()
	from, err := s.nextForwardBlock(ctx)
	if err != nil {
		return false, err
	}

	encLogs, err := s.node.GetLogs(ctx, from, limit, types.EncryptedLogs)
	if err != nil {
		return false, logTransient(s.log, "getLogs(encrypted)", err)
	}
	if len(encLogs) == 0 {
		return false, nil
	}

	// An empty unencrypted-log fetch is legal here — it is treated as
	// []·len(blocks), not as end-of-stream, since the unencrypted log
	// stream otherwise carries no information this processor acts on.
	// Only an empty encrypted-log or block fetch ends a batch.
	unLogs, err := s.node.GetLogs(ctx, from, limit, types.UnencryptedLogs)
	if err != nil {
		return false, logTransient(s.log, "getLogs(unencrypted)", err)
	}

	blocks, err := s.node.GetBlocks(ctx, from, uint64(len(encLogs)))
	if err != nil {
		return false, logTransient(s.log, "getBlocks", err)
	}
	if len(blocks) == 0 {
		return false, nil
	}

	if len(encLogs) > len(blocks) {
		encLogs = encLogs[:len(blocks)]
	}
	if len(unLogs) > len(blocks) {
		unLogs = unLogs[:len(blocks)]
	}

	blockContexts := make([]types.L2BlockContext, 0, len(blocks))
	batchLogs := make([]types.EncryptedLogBundle, 0, len(blocks))
	for i, b := range blocks {
		if b.Number < from {
			continue
		}
		blockContexts = append(blockContexts, types.NewL2BlockContext(b, b.DataStartIndex))
		batchLogs = append(batchLogs, encLogs[i])
	}
	if len(blockContexts) == 0 {
		return false, nil
	}

	last := blocks[len(blocks)-1]
	if last.Number >= s.initialSyncBlockNumber {
		header, err := s.node.GetBlockHeader(ctx)
		if err != nil {
			return false, logTransient(s.log, "getBlockHeader", err)
		}
		if err := s.db.SetBlockData(ctx, last.Number, header); err != nil {
			return false, err
		}
	}

	for _, p := range s.active {
		if err := p.Process(ctx, blockContexts, batchLogs); err != nil {
			return false, fmt.Errorf("active processor %s: %w", p.PublicKey.String(), err)
		}
		s.emitEvent(ctx, NoteProcessorStats, p.PublicKey, started, p.Stats())
	}

	return true, nil
}

// nextForwardBlock computes work's "from": one past the persisted global
// cursor, or one past initialSyncBlockNumber if nothing has been
// persisted yet.
func (s *Synchronizer) nextForwardBlock(ctx context.Context) (uint64, error) {
	blockNumber, ok, err := s.db.GetBlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		blockNumber = s.initialSyncBlockNumber
	}
	return blockNumber + 1, nil
}

// workNoteProcessorCatchUp drives catchUp[0] one step: promote it to
// active if it has reached the global cursor, else fetch and feed it the
// next bounded batch (spec.md §4.6).
func (s *Synchronizer) workNoteProcessorCatchUp(ctx context.Context, limit uint64) (bool, error) {
	if len(s.catchUp) == 0 {
		return false, nil
	}
	started := time.Now()
	p := s.catchUp[0]

	to, _, err := s.db.GetBlockNumber(ctx)
	if err != nil {
		return false, err
	}

	if p.SyncedToBlock() >= to {
		s.catchUp = s.catchUp[1:]
		s.active = append(s.active, p)
		s.emitEvent(ctx, NoteProcessorCaughtUp, p.PublicKey, started, p.Stats())
		s.log.Info("note processor caught up", "pubkey", p.PublicKey.String(), "blockNumber", to)
		return true, nil
	}

	from := p.SyncedToBlock() + 1
	batchLimit := limit
	if max := to - from + 1; batchLimit > max {
		batchLimit = max
	}
	if batchLimit < 1 {
		return false, fmt.Errorf("%w: catch-up limit %d below one (from=%d, to=%d)", errs.ErrProgrammerInvariant, batchLimit, from, to)
	}

	encLogs, err := s.node.GetLogs(ctx, from, batchLimit, types.EncryptedLogs)
	if err != nil {
		return false, logTransient(s.log, "catchup getLogs", err)
	}
	blocks, err := s.node.GetBlocks(ctx, from, batchLimit)
	if err != nil {
		return false, logTransient(s.log, "catchup getBlocks", err)
	}
	if len(encLogs) == 0 || len(blocks) == 0 {
		return false, fmt.Errorf("%w: catch-up fetch for pubkey %s returned no data in [%d,%d)", errs.ErrMalformedBatch, p.PublicKey.String(), from, from+batchLimit)
	}

	n := len(blocks)
	if len(encLogs) < n {
		n = len(encLogs)
	}
	blocks = blocks[:n]
	encLogs = encLogs[:n]

	blockContexts := make([]types.L2BlockContext, 0, n)
	for _, b := range blocks {
		blockContexts = append(blockContexts, types.NewL2BlockContext(b, b.DataStartIndex))
	}

	if err := p.Process(ctx, blockContexts, encLogs); err != nil {
		return false, fmt.Errorf("catch-up processor %s: %w", p.PublicKey.String(), err)
	}

	if p.SyncedToBlock() == to {
		s.catchUp = s.catchUp[1:]
		s.active = append(s.active, p)
		s.emitEvent(ctx, NoteProcessorCaughtUp, p.PublicKey, started, p.Stats())
		s.log.Info("note processor caught up", "pubkey", p.PublicKey.String(), "blockNumber", to)
	}

	return true, nil
}

// AddAccount registers publicKey for scanning, starting from
// startingBlock. It is idempotent: the new NoteProcessor is appended to
// the catch-up list and only becomes visible to sync starting on the
// next tick (spec.md §4.6). The registration is additionally persisted,
// fire-and-forget, through the serial queue so a restarted process can
// rehydrate it via LoadAccounts (SPEC_FULL.md §4.4). AddAccount does not
// wait for that write to run, but handing it to the queue blocks until
// the queue's worker takes it, which happens only after any task the
// worker is already running has finished.
func (s *Synchronizer) AddAccount(publicKey common.PublicKey, keyStore noteprocessor.KeyStore, startingBlock uint64) {
	if s.findProcessor(publicKey) != nil {
		return
	}
	p := noteprocessor.New(publicKey, keyStore, s.db, s.decrypter, s.nullifiers, s.contractCode, startingBlock)
	s.catchUp = append(s.catchUp, p)

	reg := database.AccountRegistration{PublicKey: publicKey, StartingBlock: startingBlock}
	s.queue.Put(func(ctx context.Context) (any, error) {
		return nil, s.db.AddAccount(ctx, reg)
	})
}

// LoadAccounts rehydrates every persisted account registration into the
// catch-up list, so a restarted process resumes scanning each
// previously-registered account from its original startingBlock instead
// of forgetting it (SPEC_FULL.md §4.4). keyStoreFor resolves the
// out-of-scope wallet/keystore private key for each recovered public
// key, since this module never persists key material itself.
func (s *Synchronizer) LoadAccounts(ctx context.Context, keyStoreFor func(common.PublicKey) noteprocessor.KeyStore) error {
	v, err := s.queue.Submit(func(ctx context.Context) (any, error) {
		return s.db.ListAccounts(ctx)
	})
	if err != nil {
		return err
	}
	for _, reg := range v.([]database.AccountRegistration) {
		s.AddAccount(reg.PublicKey, keyStoreFor(reg.PublicKey), reg.StartingBlock)
	}
	return nil
}

func (s *Synchronizer) findProcessor(publicKey common.PublicKey) *noteprocessor.NoteProcessor {
	for _, p := range s.active {
		if p.PublicKey == publicKey {
			return p
		}
	}
	for _, p := range s.catchUp {
		if p.PublicKey == publicKey {
			return p
		}
	}
	return nil
}

// ReprocessDeferredNotesForContract finishes interpreting every note
// deferred against address, now that its code is known, and closes the
// spend race described in spec.md §4.6 step 5: after persisting the
// newly-decoded notes it checks the nullifier tree for each of them and
// removes those already nullified.
func (s *Synchronizer) ReprocessDeferredNotesForContract(ctx context.Context, address common.Address) error {
	_, err := s.queue.Submit(func(ctx context.Context) (any, error) {
		return nil, s.reprocessDeferredNotesForContract(ctx, address)
	})
	return err
}

func (s *Synchronizer) reprocessDeferredNotesForContract(ctx context.Context, address common.Address) error {
	deferred, err := s.db.GetDeferredNotesByContract(ctx, address)
	if err != nil {
		return err
	}
	if len(deferred) == 0 {
		return nil
	}

	byTx := make(map[common.Hash][]*types.DeferredNoteDao)
	var txOrder []common.Hash
	for _, d := range deferred {
		if _, seen := byTx[d.TxHash]; !seen {
			txOrder = append(txOrder, d.TxHash)
		}
		byTx[d.TxHash] = append(byTx[d.TxHash], d)
	}

	perProcessor := make(map[*noteprocessor.NoteProcessor][]*types.DeferredNoteDao, len(s.active))
	for _, txHash := range txOrder {
		for _, d := range byTx[txHash] {
			for _, p := range s.active {
				if d.PublicKey == p.PublicKey {
					perProcessor[p] = append(perProcessor[p], d)
				}
			}
		}
	}

	// Each processor hashes and locates its own slice of deferred notes
	// (already decrypted when they were deferred) independently, so the
	// decode fans out across processors rather
	// than running them one at a time.
	var g errgroup.Group
	decodedByProcessor := make([][]*types.NoteDao, len(s.active))
	for i, p := range s.active {
		forThisProcessor := perProcessor[p]
		if len(forThisProcessor) == 0 {
			continue
		}
		i, p, forThisProcessor := i, p, forThisProcessor
		g.Go(func() error {
			decoded, err := p.DecodeDeferredNotes(forThisProcessor)
			if err != nil {
				return err
			}
			decodedByProcessor[i] = decoded
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var newNotes []*types.NoteDao
	for _, decoded := range decodedByProcessor {
		newNotes = append(newNotes, decoded...)
	}

	if _, err := s.db.RemoveDeferredNotesByContract(ctx, address); err != nil {
		return err
	}
	if err := s.db.AddNotes(ctx, newNotes); err != nil {
		return err
	}

	byPublicKey := make(map[common.PublicKey][]*types.NoteDao)
	var pkOrder []common.PublicKey
	for _, n := range newNotes {
		if _, seen := byPublicKey[n.PublicKey]; !seen {
			pkOrder = append(pkOrder, n.PublicKey)
		}
		byPublicKey[n.PublicKey] = append(byPublicKey[n.PublicKey], n)
	}

	for _, pk := range pkOrder {
		notes := byPublicKey[pk]
		var relevantNullifiers []common.Hash
		for _, n := range notes {
			_, found, err := s.node.FindLeafIndex(ctx, types.LatestSnapshot, types.NullifierTree, n.SiloedNullifier)
			if err != nil {
				return fmt.Errorf("%w: %v", errs.ErrTransientNode, err)
			}
			if found {
				relevantNullifiers = append(relevantNullifiers, n.SiloedNullifier)
			}
		}
		if len(relevantNullifiers) == 0 {
			continue
		}
		if _, err := s.db.RemoveNullifiedNotes(ctx, relevantNullifiers, pk); err != nil {
			return err
		}
	}

	return nil
}

func logTransient(l log.Logger, op string, err error) error {
	l.Warn("node call failed, will retry", "op", op, "err", err)
	return fmt.Errorf("%w: %s: %v", errs.ErrTransientNode, op, err)
}
