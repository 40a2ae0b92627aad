package synchronizer

import (
	"time"

	"github.com/aztecprotocol/aztec-go-client/common"
	"github.com/aztecprotocol/aztec-go-client/types"
)

// EventKind identifies the kind of observability event the synchronizer
// publishes on its Events feed.
type EventKind string

const (
	// NoteProcessorCaughtUp fires exactly once per account, the tick its
	// NoteProcessor is promoted from the catch-up list to the active list
	// (spec.md §4.6 workNoteProcessorCatchUp step 1).
	NoteProcessorCaughtUp EventKind = "note-processor-caught-up"

	// NoteProcessorStats fires once per successful forward-sync batch,
	// for every active NoteProcessor, carrying a snapshot of its running
	// counters. This is the periodic status event SPEC_FULL.md §4.5/§4.6
	// promises alongside NoteProcessorCaughtUp, so operators can watch
	// ingestion health between catch-up completions without polling
	// GetSyncStatus.
	NoteProcessorStats EventKind = "note-processor-stats"
)

// Event is the payload delivered on the synchronizer's event.FeedOf
// (spec.md §6 Observability: `{publicKey, duration_ms, dbSize,
// ...stats}`). Duration, DBSize, and Stats are populated for every kind
// this package currently emits.
type Event struct {
	Kind      EventKind
	PublicKey common.PublicKey
	Duration  time.Duration
	DBSize    uint64
	Stats     types.Stats
}
