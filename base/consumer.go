package base

// Consumer is the capability set shared by every sink handle: advance to the next replicated
// excerpt, inspect it, and release it.
//
// Advance returns (false, nil) when no new excerpt is available right now - a heartbeat was
// received, or the connection dropped and will be reopened transparently on the next call.
// A non-nil error is fatal (stream corruption); the handle must then be closed.
//
// Bytes returns the current excerpt payload. The slice stays valid only until Finish is
// called; memory-mode handles expose the receive buffer itself without copying.
type Consumer interface {
	Advance() (bool, error)
	Index() int64
	Bytes() []byte
	Finish()
	Close()
}

// Tailer is a sequential consumer handle that can also be repositioned.
//
// In memory mode ToStart and ToEnd are shorthands for MoveToIndex with the corresponding
// request sentinel. Persistent handles serve them from the local journal: ToStart rewinds
// before the first local excerpt and ToEnd positions on the last one. Repositioning reports (false, nil) when the source could not confirm the position.
type Tailer interface {
	Consumer

	ToStart() (bool, error)
	ToEnd() (bool, error)
	MoveToIndex(index int64) (bool, error)
}

// ExcerptComparator compares the current excerpt payload against a search target:
// negative for before the target, zero for a match, positive for after
type ExcerptComparator func(payload []byte) int

// Excerpt is a random-access consumer handle. Search operations are served by the local
// journal when it supports them and fail as unsupported otherwise, notably in memory mode.
type Excerpt interface {
	Tailer

	// FindMatch returns the index of an excerpt matching the comparator, or -1
	FindMatch(cmp ExcerptComparator) (int64, error)

	// FindRange returns the first and one-past-last indices of the excerpts matching the
	// comparator
	FindRange(cmp ExcerptComparator) (int64, int64, error)
}

// JournalSearcher is optionally implemented by a JournalTailer to serve Excerpt search
// operations in persistent mode
type JournalSearcher interface {
	FindMatch(cmp ExcerptComparator) int64
	FindRange(cmp ExcerptComparator) (int64, int64)
}
