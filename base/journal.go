// Package base defines the contracts between the replication sink and its collaborators:
// the local journal implementations it writes into and the consumer handles it hands out.
package base

// Journal is the surface of a local journal the sink delegates to.
// The storage engine behind it is a black box; the sink only appends incoming
// excerpts and reads back its resume position.
type Journal interface {
	// Name identifies the journal, e.g. its directory path
	Name() string

	// Size returns the number of excerpts stored
	Size() int64

	// LastWrittenIndex returns the index of the last appended excerpt, or -1 when empty
	LastWrittenIndex() int64

	// Clear removes all stored excerpts
	Clear()

	// Close releases the journal; errors at close time are reported but not recoverable
	Close() error
}

// IndexedJournal is a journal addressed by a contiguous index: Size() always equals the
// index of the next excerpt to be appended
type IndexedJournal interface {
	Journal

	// DataBlockSize returns the block-padding alignment unit in bytes
	DataBlockSize() int

	// CreateAppender creates the single writer used by the sink to apply incoming excerpts
	CreateAppender() (IndexedAppender, error)

	// CreateTailer creates a sequential reader over locally stored excerpts
	CreateTailer() (JournalTailer, error)
}

// CycleJournal is a journal partitioned into time-bucketed cycles: the high bits of an index
// encode the cycle and the low bits the position within it. Indices are not contiguous.
type CycleJournal interface {
	Journal

	// LastIndex returns the last index durably applied, or -1 when empty
	LastIndex() int64

	// EntriesForCycleBits returns the right-shift distance used to derive a cycle from an index
	EntriesForCycleBits() uint

	// CreateAppender creates the single writer used by the sink to apply incoming excerpts
	CreateAppender() (CycleAppender, error)

	// CreateTailer creates a sequential reader over locally stored excerpts
	CreateTailer() (JournalTailer, error)
}

// IndexedAppender appends excerpts to an indexed journal.
//
// StartExcerpt begins an excerpt of the given capacity and discards any unfinished one, so a
// partially streamed excerpt abandoned on a lost connection leaves no trace. Finish commits.
type IndexedAppender interface {
	StartExcerpt(capacity int) error
	Write(p []byte) (int, error)
	Finish() error
}

// CycleAppender appends excerpts to a cycle journal, placing each one in an explicit cycle.
// Within-cycle ordering is handled by the journal itself.
type CycleAppender interface {
	StartExcerpt(capacity int, cycle int64) error
	Write(p []byte) (int, error)
	Finish() error
}

// JournalTailer reads locally stored excerpts in index order.
//
// NextIndex moves to the next excerpt if one exists; Bytes is the payload of the current
// excerpt and stays valid until Finish. MoveToIndex positions on a stored excerpt, with -1
// meaning "before the first". The sink wraps one of these per persistent handle.
type JournalTailer interface {
	NextIndex() bool
	MoveToIndex(index int64) bool
	Index() int64
	Bytes() []byte
	Finish()
	Close()
}
