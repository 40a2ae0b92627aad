package synchronizer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aztecprotocol/aztec-go-client/common"
	"github.com/aztecprotocol/aztec-go-client/database"
	"github.com/aztecprotocol/aztec-go-client/database/memorydb"
	"github.com/aztecprotocol/aztec-go-client/errs"
	"github.com/aztecprotocol/aztec-go-client/log"
	"github.com/aztecprotocol/aztec-go-client/noteengine"
	"github.com/aztecprotocol/aztec-go-client/noteprocessor"
	"github.com/aztecprotocol/aztec-go-client/types"
	"github.com/stretchr/testify/require"
)

// fakeNode is a hand-built NodeClient that lets tests independently
// control the block list, the two log streams, and injected failures —
// including deliberately mismatched log/block counts (spec.md §8
// scenario S6), which the append-only nodeclient.MemoryNode cannot
// produce since it derives logs from the blocks it stores.
type fakeNode struct {
	mu sync.Mutex

	blockNumber uint64
	header      types.BlockHeader
	blocks      []*types.L2Block
	encLogs     []types.EncryptedLogBundle
	unLogs      []types.EncryptedLogBundle
	nullifiers  map[common.Hash]uint64
	failNext    map[string]error
	maxBlocks   int // 0 means unbounded
}

func newFakeNode() *fakeNode {
	return &fakeNode{nullifiers: map[common.Hash]uint64{}, failNext: map[string]error{}}
}

func (n *fakeNode) appendBlock(block *types.L2Block, enc, un types.EncryptedLogBundle) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.blocks = append(n.blocks, block)
	n.encLogs = append(n.encLogs, enc)
	n.unLogs = append(n.unLogs, un)
	if block.Number > n.blockNumber {
		n.blockNumber = block.Number
	}
}

func (n *fakeNode) failOnce(method string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failNext[method] = err
}

func (n *fakeNode) take(method string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	err, ok := n.failNext[method]
	if ok {
		delete(n.failNext, method)
	}
	return err
}

func (n *fakeNode) GetBlockNumber(ctx context.Context) (uint64, error) {
	if err := n.take("GetBlockNumber"); err != nil {
		return 0, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.blockNumber, nil
}

func (n *fakeNode) GetBlockHeader(ctx context.Context) (types.BlockHeader, error) {
	if err := n.take("GetBlockHeader"); err != nil {
		return types.BlockHeader{}, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.header, nil
}

func (n *fakeNode) GetBlocks(ctx context.Context, from uint64, limit uint64) ([]*types.L2Block, error) {
	if err := n.take("GetBlocks"); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []*types.L2Block
	for _, b := range n.blocks {
		if b.Number < from || b.Number >= from+limit {
			continue
		}
		if n.maxBlocks > 0 && len(out) >= n.maxBlocks {
			break
		}
		out = append(out, b)
	}
	return out, nil
}

func (n *fakeNode) GetLogs(ctx context.Context, from uint64, limit uint64, kind types.LogKind) ([]types.EncryptedLogBundle, error) {
	if err := n.take("GetLogs"); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	src := n.encLogs
	if kind == types.UnencryptedLogs {
		src = n.unLogs
	}
	var out []types.EncryptedLogBundle
	for _, b := range src {
		if b.BlockNumber < from || b.BlockNumber >= from+limit {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (n *fakeNode) FindLeafIndex(ctx context.Context, snapshot types.Snapshot, tree types.TreeID, leaf [32]byte) (uint64, bool, error) {
	if err := n.take("FindLeafIndex"); err != nil {
		return 0, false, err
	}
	if tree != types.NullifierTree {
		return 0, false, nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	idx, ok := n.nullifiers[leaf]
	return idx, ok, nil
}

type fakeCodeProvider struct {
	mu    sync.Mutex
	known map[common.Address]bool
}

func newFakeCodeProvider() *fakeCodeProvider {
	return &fakeCodeProvider{known: map[common.Address]bool{}}
}

func (c *fakeCodeProvider) setKnown(addr common.Address, known bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.known[addr] = known
}

func (c *fakeCodeProvider) HasCode(ctx context.Context, addr common.Address) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.known[addr], nil
}

// buildBlock constructs a single-tx block carrying one encrypted log
// addressed to recipientKey, and the matching empty unencrypted bundle.
func buildBlock(t *testing.T, engine *noteengine.ReferenceEngine, number uint64, recipientKey common.Hash, contract common.Address, slot common.Hash, note []common.Hash) (*types.L2Block, types.EncryptedLogBundle, types.EncryptedLogBundle) {
	noteHash, _, err := engine.ComputeNoteHashAndNullifier(contract, slot, note)
	require.NoError(t, err)
	ct, err := engine.EncryptNote(recipientKey, &noteengine.DecryptedNote{ContractAddress: contract, StorageSlot: slot, Note: note})
	require.NoError(t, err)

	tx := types.Tx{
		TxHash:         common.BytesToHash([]byte{byte(number)}),
		TxNullifier:    common.BytesToHash([]byte{0xff, byte(number)}),
		NewCommitments: []common.Hash{noteHash},
	}
	block := &types.L2Block{
		Number:         number,
		DataStartIndex: number * 1000,
		Txs:            []types.Tx{tx},
	}
	enc := types.EncryptedLogBundle{BlockNumber: number, Logs: []types.EncryptedLogEntry{{TxIndex: 0, LogIndexInTx: 0, Ciphertext: ct}}}
	un := types.EncryptedLogBundle{BlockNumber: number}
	return block, enc, un
}

func newTestSynchronizer(node *fakeNode, code *fakeCodeProvider) (*Synchronizer, database.Database) {
	db := memorydb.New()
	engine := noteengine.NewReferenceEngine()
	s := New(db, node, engine, engine, code)
	return s, db
}

func TestInitialSyncPersistsNodeHead(t *testing.T) {
	node := newFakeNode()
	node.blockNumber = 7
	node.header = types.BlockHeader{BlockNumber: 7}
	s, db := newTestSynchronizer(node, newFakeCodeProvider())

	require.NoError(t, s.initialSync(context.Background()))
	require.Equal(t, uint64(7), s.initialSyncBlockNumber)

	got, ok, err := db.GetBlockNumber(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(7), got)
}

// S1: single account, linear sync from genesis.
func TestSingleAccountLinearSync(t *testing.T) {
	node := newFakeNode()
	code := newFakeCodeProvider()
	contract := common.HexToAddress("0xc0")
	code.setKnown(contract, true)

	recipientKey := common.HexToHash("0xaccount-a")
	for i := uint64(1); i <= 3; i++ {
		block, enc, un := buildBlock(t, noteengine.NewReferenceEngine(), i, recipientKey, contract, common.HexToHash("0x01"), []common.Hash{common.BytesToHash([]byte{byte(i)})})
		node.appendBlock(block, enc, un)
	}

	s, db := newTestSynchronizer(node, code)
	require.NoError(t, s.initialSync(context.Background()))

	s.AddAccount(common.PublicKey{X: common.HexToHash("0xA")}, noteprocessor.NewStaticKeyStore(recipientKey), 1)
	require.Len(t, s.catchUp, 1)

	for {
		more, err := s.workNoteProcessorCatchUp(context.Background(), 1)
		require.NoError(t, err)
		if !more {
			break
		}
		if len(s.catchUp) == 0 {
			break
		}
	}

	require.Empty(t, s.catchUp)
	require.Len(t, s.active, 1)
	require.Equal(t, uint64(3), s.active[0].SyncedToBlock())

	pubKey := common.PublicKey{X: common.HexToHash("0xA")}
	status, err := s.GetSyncStatus(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(3), status.BlockNumber)
	require.Len(t, status.Processors, 1)
	require.Equal(t, uint64(3), status.Processors[0].SyncedToBlock)
	require.Equal(t, uint64(3), status.Notes[pubKey.String()], "one note per block should have been persisted")
	defer s.queue.End()

	def, err := db.GetDeferredNotesByContract(context.Background(), contract)
	require.NoError(t, err)
	require.Empty(t, def, "no note should have been deferred since the contract was known throughout")

	size, err := db.EstimateSize(context.Background())
	require.NoError(t, err)
	require.Greater(t, size, uint64(0))
}

// sync must submit exactly one forward-sync batch per invocation and
// then return, rather than looping internally until the backlog is
// drained: each invocation is its own queue.Submit, so the serial
// queue's one exclusive slot is released between batches and foreground
// operations (GetSyncStatus, AddAccount's registration write,
// ReprocessDeferredNotesForContract) can interleave (spec.md §1, §5,
// "each iteration re-takes the serial-queue lock").
func TestSyncSubmitsOneBatchPerInvocation(t *testing.T) {
	node := newFakeNode()
	code := newFakeCodeProvider()
	contract := common.HexToAddress("0xc0")
	code.setKnown(contract, true)

	s, db := newTestSynchronizer(node, code)
	require.NoError(t, s.initialSync(context.Background()))
	s.running = true
	defer s.queue.End()

	recipientKey := common.HexToHash("0xaccount-sync")
	pubKey := common.PublicKey{X: common.HexToHash("0xsync")}
	s.AddAccount(pubKey, noteprocessor.NewStaticKeyStore(recipientKey), 1)

	// Promote the new account off the catch-up list immediately: the
	// node has no blocks yet, so it is already caught up to the
	// (empty) global cursor. This isolates the rest of the test to
	// forward-mode work(), which is what actually exercises the bug
	// under review.
	more, err := s.workNoteProcessorCatchUp(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, more)
	require.Empty(t, s.catchUp)
	require.Len(t, s.active, 1)

	for i := uint64(1); i <= 3; i++ {
		block, enc, un := buildBlock(t, noteengine.NewReferenceEngine(), i, recipientKey, contract, common.HexToHash("0x01"), []common.Hash{common.BytesToHash([]byte{byte(i)})})
		node.appendBlock(block, enc, un)
	}

	for want := uint64(1); want <= 3; want++ {
		more, err := s.sync(context.Background(), 1)
		require.NoError(t, err)
		require.True(t, more)

		got, ok, err := db.GetBlockNumber(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, got, "a single sync() invocation must advance the cursor by exactly one batch, not drain the whole backlog")
	}

	more, err = s.sync(context.Background(), 1)
	require.NoError(t, err)
	require.False(t, more, "no blocks remain past the cursor")
}

// sync must be a no-op while the synchronizer is not running, so a tick
// that starts after Stop() has flipped running to false returns without
// submitting a batch.
func TestSyncNoopWhenNotRunning(t *testing.T) {
	node := newFakeNode()
	s, _ := newTestSynchronizer(node, newFakeCodeProvider())
	require.NoError(t, s.initialSync(context.Background()))
	defer s.queue.End()

	more, err := s.sync(context.Background(), 1)
	require.NoError(t, err)
	require.False(t, more)
}

// S2: late-registered account catches up and emits exactly one
// caught-up event when it is promoted to active.
func TestLateRegisteredAccountCatchesUpAndEmitsEvent(t *testing.T) {
	node := newFakeNode()
	code := newFakeCodeProvider()
	contract := common.HexToAddress("0xc0")
	code.setKnown(contract, true)

	recipientKey := common.HexToHash("0xaccount-b")
	for i := uint64(1); i <= 5; i++ {
		block, enc, un := buildBlock(t, noteengine.NewReferenceEngine(), i, recipientKey, contract, common.HexToHash("0x01"), []common.Hash{common.BytesToHash([]byte{byte(i)})})
		node.appendBlock(block, enc, un)
	}

	s, _ := newTestSynchronizer(node, code)
	require.NoError(t, s.initialSync(context.Background()))
	defer s.queue.End()

	eventsCh := make(chan Event, 4)
	sub := s.Events().Subscribe(eventsCh)
	defer sub.Unsubscribe()

	s.AddAccount(common.PublicKey{X: common.HexToHash("0xB")}, noteprocessor.NewStaticKeyStore(recipientKey), 2)

	for len(s.catchUp) > 0 {
		_, err := s.workNoteProcessorCatchUp(context.Background(), 2)
		require.NoError(t, err)
	}

	require.Len(t, s.active, 1)
	require.Equal(t, uint64(5), s.active[0].SyncedToBlock())

	select {
	case ev := <-eventsCh:
		require.Equal(t, NoteProcessorCaughtUp, ev.Kind)
	default:
		t.Fatal("expected a note-processor-caught-up event")
	}
	select {
	case <-eventsCh:
		t.Fatal("expected exactly one caught-up event")
	default:
	}
}

// S3: a deferred note is fully decoded once its contract registers.
func TestDeferredNoteResolvedOnReprocess(t *testing.T) {
	node := newFakeNode()
	code := newFakeCodeProvider() // contract starts unknown
	contract := common.HexToAddress("0xc0")

	recipientKey := common.HexToHash("0xaccount-c")
	block, enc, un := buildBlock(t, noteengine.NewReferenceEngine(), 1, recipientKey, contract, common.HexToHash("0x01"), []common.Hash{common.HexToHash("0xnote")})
	node.appendBlock(block, enc, un)

	s, db := newTestSynchronizer(node, code)
	require.NoError(t, s.initialSync(context.Background()))
	defer s.queue.End()

	s.AddAccount(common.PublicKey{X: common.HexToHash("0xC")}, noteprocessor.NewStaticKeyStore(recipientKey), 1)
	for len(s.catchUp) > 0 {
		_, err := s.workNoteProcessorCatchUp(context.Background(), 1)
		require.NoError(t, err)
	}

	deferred, err := db.GetDeferredNotesByContract(context.Background(), contract)
	require.NoError(t, err)
	require.Len(t, deferred, 1)

	code.setKnown(contract, true)
	require.NoError(t, s.reprocessDeferredNotesForContract(context.Background(), contract))

	deferred, err = db.GetDeferredNotesByContract(context.Background(), contract)
	require.NoError(t, err)
	require.Empty(t, deferred)
}

// S4: same as S3, but the note's nullifier appears on-chain before
// reprocessing runs, so the freshly-decoded note is immediately removed.
func TestDeferredNoteRemovedIfAlreadyNullified(t *testing.T) {
	node := newFakeNode()
	code := newFakeCodeProvider()
	contract := common.HexToAddress("0xc0")
	slot := common.HexToHash("0x01")
	note := []common.Hash{common.HexToHash("0xnote")}

	recipientKey := common.HexToHash("0xaccount-d")
	engine := noteengine.NewReferenceEngine()
	block, enc, un := buildBlock(t, engine, 1, recipientKey, contract, slot, note)
	node.appendBlock(block, enc, un)

	s, db := newTestSynchronizer(node, code)
	require.NoError(t, s.initialSync(context.Background()))
	defer s.queue.End()

	s.AddAccount(common.PublicKey{X: common.HexToHash("0xD")}, noteprocessor.NewStaticKeyStore(recipientKey), 1)
	for len(s.catchUp) > 0 {
		_, err := s.workNoteProcessorCatchUp(context.Background(), 1)
		require.NoError(t, err)
	}

	_, nullifier, err := engine.ComputeNoteHashAndNullifier(contract, slot, note)
	require.NoError(t, err)
	node.nullifiers[nullifier] = 42

	code.setKnown(contract, true)
	require.NoError(t, s.reprocessDeferredNotesForContract(context.Background(), contract))

	pk := s.active[0].PublicKey
	notes, err := db.RemoveNullifiedNotes(context.Background(), []common.Hash{nullifier}, pk)
	require.NoError(t, err)
	require.Empty(t, notes, "the note should already have been removed by reprocessing's nullifier scan")
}

// S5: a transient node failure on the first attempt is retried cleanly
// with no block processed twice.
func TestTransientNodeFailureRetriedWithoutDoubleProcessing(t *testing.T) {
	node := newFakeNode()
	code := newFakeCodeProvider()
	contract := common.HexToAddress("0xc0")
	code.setKnown(contract, true)

	recipientKey := common.HexToHash("0xaccount-e")
	block, enc, un := buildBlock(t, noteengine.NewReferenceEngine(), 1, recipientKey, contract, common.HexToHash("0x01"), []common.Hash{common.HexToHash("0xnote")})
	node.appendBlock(block, enc, un)
	node.blockNumber = 1
	node.header = types.BlockHeader{BlockNumber: 1}

	s, db := newTestSynchronizer(node, code)
	require.NoError(t, s.db.SetBlockData(context.Background(), 0, types.BlockHeader{}))
	s.initialSyncBlockNumber = 0

	node.failOnce("GetLogs", errors.New("boom"))

	more, err := s.work(context.Background(), 1)
	require.ErrorIs(t, err, errs.ErrTransientNode)
	require.False(t, more)

	got, _, err := db.GetBlockNumber(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(0), got, "a failed attempt must not advance the cursor")

	more, err = s.work(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, more)

	got, _, err = db.GetBlockNumber(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(1), got)

	more, err = s.work(context.Background(), 1)
	require.NoError(t, err)
	require.False(t, more, "block 1 must not be processed a second time")
}

// S6: the node reports more logs than blocks; both log lists are
// truncated to the block count, and the remainder is left for the next
// tick.
func TestMismatchedLogAndBlockCountsAreTruncated(t *testing.T) {
	node := newFakeNode()
	node.maxBlocks = 3
	code := newFakeCodeProvider()
	contract := common.HexToAddress("0xc0")
	code.setKnown(contract, true)

	recipientKey := common.HexToHash("0xaccount-f")
	for i := uint64(1); i <= 5; i++ {
		block, enc, un := buildBlock(t, noteengine.NewReferenceEngine(), i, recipientKey, contract, common.HexToHash("0x01"), []common.Hash{common.BytesToHash([]byte{byte(i)})})
		node.appendBlock(block, enc, un)
	}
	node.blockNumber = 5
	node.header = types.BlockHeader{BlockNumber: 5}

	s, db := newTestSynchronizer(node, code)
	require.NoError(t, s.db.SetBlockData(context.Background(), 0, types.BlockHeader{}))
	s.initialSyncBlockNumber = 0

	more, err := s.work(context.Background(), 5)
	require.NoError(t, err)
	require.True(t, more)

	got, _, err := db.GetBlockNumber(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(3), got, "only the 3 blocks actually returned should be processed")

	more, err = s.work(context.Background(), 5)
	require.NoError(t, err)
	require.True(t, more, "the remaining 2 blocks are fetched on the next tick")

	got, _, err = db.GetBlockNumber(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(5), got)
}

func TestCatchUpRejectsInvariantViolationOnZeroLimit(t *testing.T) {
	node := newFakeNode()
	code := newFakeCodeProvider()
	s, _ := newTestSynchronizer(node, code)

	p := noteprocessor.New(common.PublicKey{X: common.HexToHash("0xZ")}, noteprocessor.NewStaticKeyStore(common.HexToHash("0x01")), s.db, noteengine.NewReferenceEngine(), noteengine.NewReferenceEngine(), code, 5)
	s.catchUp = append(s.catchUp, p)
	require.NoError(t, s.db.SetBlockData(context.Background(), 10, types.BlockHeader{}))

	_, err := s.workNoteProcessorCatchUp(context.Background(), 0)
	require.ErrorIs(t, err, errs.ErrProgrammerInvariant)
}

func TestIsAccountStateSynchronizedUnknownAccountErrors(t *testing.T) {
	node := newFakeNode()
	code := newFakeCodeProvider()
	s, _ := newTestSynchronizer(node, code)
	defer s.queue.End()

	_, err := s.IsAccountStateSynchronized(context.Background(), common.PublicKey{X: common.HexToHash("0xnope")})
	require.ErrorIs(t, err, errs.ErrProgrammerInvariant)
}

func TestIsAccountStateSynchronizedRecipientOnlyAccountErrors(t *testing.T) {
	node := newFakeNode()
	code := newFakeCodeProvider()
	s, db := newTestSynchronizer(node, code)
	defer s.queue.End()

	pk := common.PublicKey{X: common.HexToHash("0xrecipient")}
	db.(*memorydb.MemoryDB).RegisterCompleteAddress(types.CompleteAddress{
		Address:   common.HexToAddress("0xcontract"),
		PublicKey: pk,
	})

	_, err := s.IsAccountStateSynchronized(context.Background(), pk)
	require.ErrorIs(t, err, errs.ErrProgrammerInvariant)
	require.ErrorIs(t, err, errs.ErrRecipientOnlyAccount)
	require.NotErrorIs(t, err, errs.ErrUnregisteredAccount)
}

func TestAddAccountPersistsRegistrationForRestartRehydration(t *testing.T) {
	node := newFakeNode()
	code := newFakeCodeProvider()
	s, db := newTestSynchronizer(node, code)

	pk := common.PublicKey{X: common.HexToHash("0xrestart")}
	keyStore := noteprocessor.NewStaticKeyStore(common.HexToHash("0x01"))
	s.AddAccount(pk, keyStore, 5)
	s.queue.End()

	regs, err := db.ListAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, regs, 1)
	require.Equal(t, pk, regs[0].PublicKey)
	require.Equal(t, uint64(5), regs[0].StartingBlock)

	s2 := New(db, node, noteengine.NewReferenceEngine(), noteengine.NewReferenceEngine(), code)
	defer s2.queue.End()
	require.NoError(t, s2.LoadAccounts(context.Background(), func(common.PublicKey) noteprocessor.KeyStore {
		return keyStore
	}))
	require.NotNil(t, s2.findProcessor(pk))
}

func TestStartAndStopLifecycle(t *testing.T) {
	node := newFakeNode()
	node.blockNumber = 0
	code := newFakeCodeProvider()
	s, _ := newTestSynchronizer(node, code)

	require.NoError(t, s.Start(context.Background(), 1, 5*time.Millisecond))
	require.True(t, s.running)

	// Start is idempotent.
	require.NoError(t, s.Start(context.Background(), 1, 5*time.Millisecond))

	s.Stop()
	require.False(t, s.running)
}

// Start wires an internal consumer of the synchronizer's own event feed
// into its SubscriptionScope, and Stop tears it down — the scope must
// never be left holding a subscription past Stop.
func TestStartTracksAndStopClosesInternalSubscription(t *testing.T) {
	node := newFakeNode()
	code := newFakeCodeProvider()
	s, _ := newTestSynchronizer(node, code)

	require.NoError(t, s.Start(context.Background(), 1, 5*time.Millisecond))
	require.Equal(t, 1, s.scope.Count(), "Start must track its internal event subscriber in scope")

	s.Stop()
	require.Equal(t, 0, s.scope.Count(), "Stop must close the scope, unsubscribing the internal consumer")
}

// work must emit a note-processor-stats event per active processor on
// every successful forward-sync batch — the periodic status event
// SPEC_FULL.md promises alongside note-processor-caught-up.
func TestWorkEmitsNoteProcessorStatsForActiveProcessors(t *testing.T) {
	node := newFakeNode()
	code := newFakeCodeProvider()
	contract := common.HexToAddress("0xc0")
	code.setKnown(contract, true)

	s, _ := newTestSynchronizer(node, code)
	require.NoError(t, s.initialSync(context.Background()))
	defer s.queue.End()

	recipientKey := common.HexToHash("0xaccount-stats")
	pubKey := common.PublicKey{X: common.HexToHash("0xstats")}
	s.AddAccount(pubKey, noteprocessor.NewStaticKeyStore(recipientKey), 1)
	more, err := s.workNoteProcessorCatchUp(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, more)
	require.Len(t, s.active, 1)

	eventsCh := make(chan Event, 4)
	sub := s.Events().Subscribe(eventsCh)
	defer sub.Unsubscribe()

	block, enc, un := buildBlock(t, noteengine.NewReferenceEngine(), 1, recipientKey, contract, common.HexToHash("0x01"), []common.Hash{common.HexToHash("0xnote")})
	node.appendBlock(block, enc, un)

	more, err = s.work(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, more)

	select {
	case ev := <-eventsCh:
		require.Equal(t, NoteProcessorStats, ev.Kind)
		require.Equal(t, pubKey, ev.PublicKey)
		require.EqualValues(t, 1, ev.Stats.NotesDecoded)
	default:
		t.Fatal("expected a note-processor-stats event")
	}
}

// recordingLogger captures the key-value context passed to New, to
// verify New's optional instance suffix without depending on the real
// handler's output formatting.
type recordingLogger struct {
	newArgs []any
}

func (r *recordingLogger) Trace(msg string, ctx ...any) {}
func (r *recordingLogger) Debug(msg string, ctx ...any) {}
func (r *recordingLogger) Info(msg string, ctx ...any)  {}
func (r *recordingLogger) Warn(msg string, ctx ...any)  {}
func (r *recordingLogger) Error(msg string, ctx ...any) {}
func (r *recordingLogger) New(ctx ...any) log.Logger {
	r.newArgs = ctx
	return r
}

func TestNewAppendsOptionalInstanceSuffixToLogContext(t *testing.T) {
	restore := log.New()
	defer log.SetDefault(restore)

	rec := &recordingLogger{}
	log.SetDefault(rec)

	New(memorydb.New(), newFakeNode(), noteengine.NewReferenceEngine(), noteengine.NewReferenceEngine(), newFakeCodeProvider(), "east-1")

	require.Equal(t, []any{"component", "synchronizer", "instance", "east-1"}, rec.newArgs)
}

func TestNewOmitsInstanceSuffixWhenNotGiven(t *testing.T) {
	restore := log.New()
	defer log.SetDefault(restore)

	rec := &recordingLogger{}
	log.SetDefault(rec)

	New(memorydb.New(), newFakeNode(), noteengine.NewReferenceEngine(), noteengine.NewReferenceEngine(), newFakeCodeProvider())

	require.Equal(t, []any{"component", "synchronizer"}, rec.newArgs)
}
