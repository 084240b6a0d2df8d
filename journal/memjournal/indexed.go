// Package memjournal provides volatile, in-memory implementations of the journal contracts
// consumed by the sink. They back the test suites and the CLI's soak-testing mode; a real
// deployment plugs in persistent engines of the same shape.
package memjournal

import (
	"fmt"
	"sync"

	"github.com/relex/journal-sink/base"
)

type excerptRecord struct {
	data     []byte
	capacity int
	padding  bool
}

// Indexed is an in-memory indexed journal: excerpts occupy contiguous indices and Size()
// always equals the index of the next excerpt to be appended.
//
// Following the block-padding convention, an excerpt of capacity dataBlockSize-1 finished
// without any written byte is recorded as padding: it occupies an index but is skipped by
// tailers.
type Indexed struct {
	name      string
	blockSize int
	mu        sync.Mutex
	records   []excerptRecord
}

// NewIndexed creates an empty indexed journal with the given block-padding alignment unit
func NewIndexed(name string, dataBlockSize int) *Indexed {
	return &Indexed{
		name:      name,
		blockSize: dataBlockSize,
		records:   nil,
	}
}

// Name identifies the journal
func (j *Indexed) Name() string {
	return j.name
}

// Size returns the number of stored excerpts, which equals the next index to be appended
func (j *Indexed) Size() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return int64(len(j.records))
}

// LastWrittenIndex returns the index of the last appended excerpt, or -1 when empty
func (j *Indexed) LastWrittenIndex() int64 {
	return j.Size() - 1
}

// Clear removes all stored excerpts
func (j *Indexed) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = nil
}

// Close releases the journal
func (j *Indexed) Close() error {
	return nil
}

// DataBlockSize returns the block-padding alignment unit in bytes
func (j *Indexed) DataBlockSize() int {
	return j.blockSize
}

// CreateAppender creates an appender; the sink uses a single one per handle
func (j *Indexed) CreateAppender() (base.IndexedAppender, error) {
	return &indexedAppender{journal: j}, nil
}

// CreateTailer creates a sequential reader positioned before the first excerpt
func (j *Indexed) CreateTailer() (base.JournalTailer, error) {
	return &indexedTailer{journal: j, cursor: -1}, nil
}

// PayloadAt returns a copy-free view of the stored excerpt payload, for verification
func (j *Indexed) PayloadAt(index int64) ([]byte, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if index < 0 || index >= int64(len(j.records)) {
		return nil, false
	}
	return j.records[index].data, true
}

// IsPadding tells whether the excerpt at the given index is a padding entry
func (j *Indexed) IsPadding(index int64) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return index >= 0 && index < int64(len(j.records)) && j.records[index].padding
}

func (j *Indexed) commit(rec excerptRecord) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, rec)
}

// indexedAppender writes one pending excerpt at a time. StartExcerpt discards any unfinished
// excerpt so a partially streamed one abandoned on connection loss leaves no trace.
type indexedAppender struct {
	journal  *Indexed
	pending  []byte
	capacity int
	started  bool
}

func (a *indexedAppender) StartExcerpt(capacity int) error {
	if capacity < 0 {
		return fmt.Errorf("negative excerpt capacity %d", capacity)
	}
	a.pending = a.pending[:0]
	a.capacity = capacity
	a.started = true
	return nil
}

func (a *indexedAppender) Write(p []byte) (int, error) {
	if !a.started {
		return 0, fmt.Errorf("no excerpt started")
	}
	if len(a.pending)+len(p) > a.capacity {
		return 0, fmt.Errorf("excerpt overflow: %d+%d exceeds capacity %d", len(a.pending), len(p), a.capacity)
	}
	a.pending = append(a.pending, p...)
	return len(p), nil
}

func (a *indexedAppender) Finish() error {
	if !a.started {
		return fmt.Errorf("no excerpt started")
	}
	a.started = false
	a.journal.commit(excerptRecord{
		data:     append([]byte(nil), a.pending...),
		capacity: a.capacity,
		padding:  len(a.pending) == 0 && a.capacity == a.journal.blockSize-1,
	})
	return nil
}

// indexedTailer reads committed excerpts in index order, skipping padding entries
type indexedTailer struct {
	journal *Indexed
	cursor  int64
	current []byte
}

func (t *indexedTailer) NextIndex() bool {
	t.journal.mu.Lock()
	defer t.journal.mu.Unlock()
	next := t.cursor + 1
	for next < int64(len(t.journal.records)) && t.journal.records[next].padding {
		next++
	}
	if next >= int64(len(t.journal.records)) {
		return false
	}
	t.cursor = next
	t.current = t.journal.records[next].data
	return true
}

func (t *indexedTailer) MoveToIndex(index int64) bool {
	if index == -1 {
		t.cursor = -1
		t.current = nil
		return true
	}
	t.journal.mu.Lock()
	defer t.journal.mu.Unlock()
	if index < 0 || index >= int64(len(t.journal.records)) {
		return false
	}
	t.cursor = index
	t.current = t.journal.records[index].data
	return true
}

func (t *indexedTailer) Index() int64 {
	return t.cursor
}

func (t *indexedTailer) Bytes() []byte {
	return t.current
}

func (t *indexedTailer) Finish() {
	t.current = nil
}

func (t *indexedTailer) Close() {
}

// FindMatch returns the index of the first excerpt matching the comparator, or -1
func (t *indexedTailer) FindMatch(cmp base.ExcerptComparator) int64 {
	t.journal.mu.Lock()
	defer t.journal.mu.Unlock()
	for i, rec := range t.journal.records {
		if rec.padding {
			continue
		}
		if cmp(rec.data) == 0 {
			return int64(i)
		}
	}
	return -1
}

// FindRange returns the first and one-past-last indices of the excerpts matching the
// comparator, or (-1, -1) when none match
func (t *indexedTailer) FindRange(cmp base.ExcerptComparator) (int64, int64) {
	t.journal.mu.Lock()
	defer t.journal.mu.Unlock()
	first := int64(-1)
	last := int64(-1)
	for i, rec := range t.journal.records {
		if rec.padding || cmp(rec.data) != 0 {
			continue
		}
		if first == -1 {
			first = int64(i)
		}
		last = int64(i) + 1
	}
	return first, last
}
