package memjournal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCycleAppendAndDeriveIndices(t *testing.T) {
	journal := NewCycle("test", 2) // 4 entries per cycle
	assert.Equal(t, int64(-1), journal.LastIndex())
	assert.Equal(t, uint(2), journal.EntriesForCycleBits())

	appender, err := journal.CreateAppender()
	assert.NoError(t, err)
	appendOne := func(payload string, cycle int64) {
		assert.NoError(t, appender.StartExcerpt(len(payload), cycle))
		_, werr := appender.Write([]byte(payload))
		assert.NoError(t, werr)
		assert.NoError(t, appender.Finish())
	}

	appendOne("a0", 0)
	appendOne("a1", 0)
	appendOne("b0", 1)

	assert.Equal(t, int64(3), journal.Size())
	assert.Equal(t, int64(1<<2), journal.LastIndex(), "last index encodes cycle 1 position 0")

	payload, ok := journal.PayloadAt(1)
	assert.True(t, ok)
	assert.Equal(t, "a1", string(payload))
	payload, ok = journal.PayloadAt(4)
	assert.True(t, ok)
	assert.Equal(t, "b0", string(payload))
	_, ok = journal.PayloadAt(2)
	assert.False(t, ok)
}

func TestCycleTailerOrder(t *testing.T) {
	journal := NewCycle("test", 2)
	appender, _ := journal.CreateAppender()
	for _, entry := range []struct {
		payload string
		cycle   int64
	}{{"a0", 0}, {"a1", 0}, {"b0", 2}, {"b1", 2}} {
		appender.StartExcerpt(len(entry.payload), entry.cycle)
		appender.Write([]byte(entry.payload))
		appender.Finish()
	}

	tailer, _ := journal.CreateTailer()
	var indices []int64
	var payloads []string
	for tailer.NextIndex() {
		indices = append(indices, tailer.Index())
		payloads = append(payloads, string(tailer.Bytes()))
		tailer.Finish()
	}
	assert.Equal(t, []int64{0, 1, 8, 9}, indices)
	assert.Equal(t, []string{"a0", "a1", "b0", "b1"}, payloads)
}

func TestCycleMoveToIndex(t *testing.T) {
	journal := NewCycle("test", 2)
	appender, _ := journal.CreateAppender()
	appender.StartExcerpt(2, 3)
	appender.Write([]byte("c0"))
	appender.Finish()

	tailer, _ := journal.CreateTailer()
	assert.True(t, tailer.MoveToIndex(3<<2))
	assert.Equal(t, "c0", string(tailer.Bytes()))
	assert.False(t, tailer.MoveToIndex(3<<2|1))
	assert.False(t, tailer.MoveToIndex(1))

	assert.True(t, tailer.MoveToIndex(-1))
	assert.True(t, tailer.NextIndex())
	assert.Equal(t, int64(3<<2), tailer.Index())
}

func TestCycleClear(t *testing.T) {
	journal := NewCycle("test", 2)
	appender, _ := journal.CreateAppender()
	appender.StartExcerpt(1, 0)
	appender.Write([]byte("x"))
	appender.Finish()

	journal.Clear()
	assert.Equal(t, int64(0), journal.Size())
	assert.Equal(t, int64(-1), journal.LastIndex())
}
