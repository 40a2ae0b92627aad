// Package types holds the data model the synchronizer operates on: block
// headers, encrypted log bundles, decoded and deferred notes, and the
// per-account sync status. It is the Go analogue of the teacher's
// core/types package (block headers, transactions, logs), adapted from
// 20-byte Ethereum addresses and Keccak state roots to the 32-byte
// field-element roots and addresses of a note-based UTXO chain.
package types

import "github.com/aztecprotocol/aztec-go-client/common"

// InitialL2BlockNum is the number of the rollup's genesis L2 block. The
// global cursor starts one below it until initialSync runs; a
// NoteProcessor starts one below its own startingBlock instead.
const InitialL2BlockNum uint64 = 1

// MaxNoteHashesPerTx bounds how many note-hash leaves a single
// transaction may insert; it is used to compute the cumulative
// firstNoteHashIndex of a transaction within its block.
const MaxNoteHashesPerTx uint64 = 64

// TreeID identifies one of the rollup's Merkle trees, passed to
// NodeClient.FindLeafIndex.
type TreeID int

const (
	NoteHashTree TreeID = iota
	NullifierTree
	ContractTree
	L1ToL2MessageTree
	ArchiveTree
	PublicDataTree
)

// LogKind selects which of a block's two log streams NodeClient.GetLogs
// returns.
type LogKind int

const (
	EncryptedLogs LogKind = iota
	UnencryptedLogs
)

// Snapshot selects which view of a tree NodeClient.FindLeafIndex
// searches. Only "latest" is used by this module today; the type exists
// so the node contract can grow historical snapshots without an API
// break.
type Snapshot string

// LatestSnapshot is the only snapshot this module ever requests.
const LatestSnapshot Snapshot = "latest"

// BlockHeader mirrors the six tree roots plus the hash of the block's
// global variables that every downstream query/simulation component
// needs to see a consistent view of chain state.
type BlockHeader struct {
	BlockNumber         uint64
	NoteHashTreeRoot    common.Hash
	NullifierTreeRoot   common.Hash
	ContractTreeRoot    common.Hash
	L1ToL2MessagesRoot  common.Hash
	ArchiveRoot         common.Hash
	PublicDataTreeRoot  common.Hash
	GlobalVariablesHash common.Hash
}

// EncryptedLogEntry is one encrypted log payload, addressable within its
// block by (TxIndex, LogIndexInTx).
type EncryptedLogEntry struct {
	TxIndex      int
	LogIndexInTx int
	Ciphertext   []byte
}

// EncryptedLogBundle is the flat list of encrypted log entries the node
// attaches to a single block.
type EncryptedLogBundle struct {
	BlockNumber uint64
	Logs        []EncryptedLogEntry
}

// Tx is the subset of on-chain transaction data the note processor
// needs: the commitments it inserted and the nullifier it consumed.
type Tx struct {
	TxHash         common.Hash
	TxNullifier    common.Hash
	NewCommitments []common.Hash
}

// L2Block is a single rollup block: its number, the data-insertion
// offset for its first transaction, and its ordered transactions.
type L2Block struct {
	Number          uint64
	DataStartIndex  uint64
	Txs             []Tx
	EncryptedLogs   EncryptedLogBundle
	UnencryptedLogs EncryptedLogBundle
}

// L2BlockContext is the transient per-batch wrapper NoteProcessor.Process
// consumes: the block itself, its number (duplicated for convenience),
// and the cumulative note-hash leaf count preceding it.
type L2BlockContext struct {
	Block              *L2Block
	BlockNumber        uint64
	FirstNoteHashIndex uint64
}

// NewL2BlockContext constructs the context for block, given the
// cumulative note-hash count of every block strictly before it.
func NewL2BlockContext(block *L2Block, firstNoteHashIndex uint64) L2BlockContext {
	return L2BlockContext{
		Block:              block,
		BlockNumber:        block.Number,
		FirstNoteHashIndex: firstNoteHashIndex,
	}
}

// NoteDao is a decoded, persisted note: created only after successful
// decrypt+interpret, deleted once its siloed nullifier is observed
// on-chain.
type NoteDao struct {
	PublicKey       common.PublicKey
	ContractAddress common.Address
	StorageSlot     common.Hash
	Note            []common.Hash
	NoteHash        common.Hash
	SiloedNullifier common.Hash
	TxHash          common.Hash
	LeafIndex       uint64
}

// DeferredNoteDao is a decrypted note whose originating contract code is
// not yet known locally. It carries everything NoteProcessor needs to
// finish interpreting it once the contract registers.
type DeferredNoteDao struct {
	PublicKey           common.PublicKey
	Note                []common.Hash
	ContractAddress     common.Address
	StorageSlot         common.Hash
	TxHash              common.Hash
	TxNullifier         common.Hash
	NewCommitments      []common.Hash
	DataStartIndexForTx uint64
}

// NoteProcessorStatus reports one account's sync progress.
type NoteProcessorStatus struct {
	PublicKey     common.PublicKey
	SyncedToBlock uint64
}

// CompleteAddress is the public information required to nullify or
// derive from an account: its public key, a partial address, and a
// version tag distinguishing account-contract revisions.
type CompleteAddress struct {
	Address        common.Address
	PublicKey      common.PublicKey
	PartialAddress common.Hash
	Version        uint8
}

// Stats accumulates per-processor counters surfaced on observability
// events; all fields are monotonically increasing for the lifetime of a
// NoteProcessor.
type Stats struct {
	LogsSeen           uint64
	DecryptFailures    uint64
	NotesDecoded       uint64
	NotesDeferred      uint64
	NoteHashMismatches uint64
	BlocksProcessed    uint64
}

// Add accumulates delta's counters into s.
func (s *Stats) Add(delta Stats) {
	s.LogsSeen += delta.LogsSeen
	s.DecryptFailures += delta.DecryptFailures
	s.NotesDecoded += delta.NotesDecoded
	s.NotesDeferred += delta.NotesDeferred
	s.NoteHashMismatches += delta.NoteHashMismatches
	s.BlocksProcessed += delta.BlocksProcessed
}
