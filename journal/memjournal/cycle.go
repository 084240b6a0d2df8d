package memjournal

import (
	"fmt"
	"sort"
	"sync"

	"github.com/relex/journal-sink/base"
)

// Cycle is an in-memory cycle-partitioned journal: each excerpt lives in an explicit cycle
// and its index is (cycle << entriesForCycleBits) | within-cycle position. Indices are not
// contiguous across cycles.
type Cycle struct {
	name      string
	bits      uint
	mu        sync.Mutex
	cycles    map[int64][][]byte
	lastIndex int64
	total     int64
}

// NewCycle creates an empty cycle journal with the given cycle shift distance
func NewCycle(name string, entriesForCycleBits uint) *Cycle {
	return &Cycle{
		name:      name,
		bits:      entriesForCycleBits,
		cycles:    make(map[int64][][]byte),
		lastIndex: -1,
	}
}

// Name identifies the journal
func (j *Cycle) Name() string {
	return j.name
}

// Size returns the total number of stored excerpts across all cycles
func (j *Cycle) Size() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.total
}

// LastWrittenIndex returns the last index durably applied, or -1 when empty
func (j *Cycle) LastWrittenIndex() int64 {
	return j.LastIndex()
}

// LastIndex returns the last index durably applied, or -1 when empty
func (j *Cycle) LastIndex() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastIndex
}

// EntriesForCycleBits returns the right-shift distance used to derive a cycle from an index
func (j *Cycle) EntriesForCycleBits() uint {
	return j.bits
}

// Clear removes all stored excerpts
func (j *Cycle) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cycles = make(map[int64][][]byte)
	j.lastIndex = -1
	j.total = 0
}

// Close releases the journal
func (j *Cycle) Close() error {
	return nil
}

// CreateAppender creates an appender; the sink uses a single one per handle
func (j *Cycle) CreateAppender() (base.CycleAppender, error) {
	return &cycleAppender{journal: j}, nil
}

// CreateTailer creates a sequential reader positioned before the first excerpt
func (j *Cycle) CreateTailer() (base.JournalTailer, error) {
	return &cycleTailer{journal: j, cursor: -1}, nil
}

// PayloadAt returns the stored excerpt payload at the given index, for verification
func (j *Cycle) PayloadAt(index int64) ([]byte, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	records, ok := j.cycles[index>>j.bits]
	pos := index & (int64(1)<<j.bits - 1)
	if !ok || pos >= int64(len(records)) {
		return nil, false
	}
	return records[pos], true
}

func (j *Cycle) commit(cycle int64, data []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	pos := int64(len(j.cycles[cycle]))
	j.cycles[cycle] = append(j.cycles[cycle], data)
	j.total++
	index := cycle<<j.bits | pos
	if index > j.lastIndex {
		j.lastIndex = index
	}
}

func (j *Cycle) sortedCycles() []int64 {
	keys := make([]int64, 0, len(j.cycles))
	for c := range j.cycles {
		keys = append(keys, c)
	}
	sort.Slice(keys, func(i, k int) bool { return keys[i] < keys[k] })
	return keys
}

type cycleAppender struct {
	journal  *Cycle
	pending  []byte
	capacity int
	cycle    int64
	started  bool
}

func (a *cycleAppender) StartExcerpt(capacity int, cycle int64) error {
	if capacity < 0 {
		return fmt.Errorf("negative excerpt capacity %d", capacity)
	}
	if cycle < 0 {
		return fmt.Errorf("negative cycle %d", cycle)
	}
	a.pending = a.pending[:0]
	a.capacity = capacity
	a.cycle = cycle
	a.started = true
	return nil
}

func (a *cycleAppender) Write(p []byte) (int, error) {
	if !a.started {
		return 0, fmt.Errorf("no excerpt started")
	}
	if len(a.pending)+len(p) > a.capacity {
		return 0, fmt.Errorf("excerpt overflow: %d+%d exceeds capacity %d", len(a.pending), len(p), a.capacity)
	}
	a.pending = append(a.pending, p...)
	return len(p), nil
}

func (a *cycleAppender) Finish() error {
	if !a.started {
		return fmt.Errorf("no excerpt started")
	}
	a.started = false
	a.journal.commit(a.cycle, append([]byte(nil), a.pending...))
	return nil
}

// cycleTailer reads excerpts in index order: ascending cycles, ascending positions within
type cycleTailer struct {
	journal *Cycle
	cursor  int64
	current []byte
}

func (t *cycleTailer) NextIndex() bool {
	t.journal.mu.Lock()
	defer t.journal.mu.Unlock()

	if t.cursor >= 0 {
		cycle := t.cursor >> t.journal.bits
		pos := t.cursor&(int64(1)<<t.journal.bits-1) + 1
		if records := t.journal.cycles[cycle]; pos < int64(len(records)) {
			t.cursor = cycle<<t.journal.bits | pos
			t.current = records[pos]
			return true
		}
	}

	// first record of the next non-empty cycle
	currentCycle := int64(-1)
	if t.cursor >= 0 {
		currentCycle = t.cursor >> t.journal.bits
	}
	for _, cycle := range t.journal.sortedCycles() {
		if cycle <= currentCycle {
			continue
		}
		if records := t.journal.cycles[cycle]; len(records) > 0 {
			t.cursor = cycle << t.journal.bits
			t.current = records[0]
			return true
		}
	}
	return false
}

func (t *cycleTailer) MoveToIndex(index int64) bool {
	if index == -1 {
		t.cursor = -1
		t.current = nil
		return true
	}
	t.journal.mu.Lock()
	defer t.journal.mu.Unlock()
	if index < 0 {
		return false
	}
	records, ok := t.journal.cycles[index>>t.journal.bits]
	pos := index & (int64(1)<<t.journal.bits - 1)
	if !ok || pos >= int64(len(records)) {
		return false
	}
	t.cursor = index
	t.current = records[pos]
	return true
}

func (t *cycleTailer) Index() int64 {
	return t.cursor
}

func (t *cycleTailer) Bytes() []byte {
	return t.current
}

func (t *cycleTailer) Finish() {
	t.current = nil
}

func (t *cycleTailer) Close() {
}
