package memjournal

import (
	"testing"

	"github.com/relex/journal-sink/base"
	"github.com/stretchr/testify/assert"
)

func TestIndexedAppendAndTail(t *testing.T) {
	journal := NewIndexed("test", 64)
	assert.Equal(t, int64(0), journal.Size())
	assert.Equal(t, int64(-1), journal.LastWrittenIndex())

	appender, err := journal.CreateAppender()
	assert.NoError(t, err)
	for _, payload := range []string{"A", "BB", "CCC"} {
		assert.NoError(t, appender.StartExcerpt(len(payload)))
		_, werr := appender.Write([]byte(payload))
		assert.NoError(t, werr)
		assert.NoError(t, appender.Finish())
	}
	assert.Equal(t, int64(3), journal.Size())
	assert.Equal(t, int64(2), journal.LastWrittenIndex())

	tailer, err := journal.CreateTailer()
	assert.NoError(t, err)
	for i, expected := range []string{"A", "BB", "CCC"} {
		assert.True(t, tailer.NextIndex())
		assert.Equal(t, int64(i), tailer.Index())
		assert.Equal(t, expected, string(tailer.Bytes()))
		tailer.Finish()
	}
	assert.False(t, tailer.NextIndex())
}

func TestIndexedPaddingConvention(t *testing.T) {
	journal := NewIndexed("test", 64)
	appender, _ := journal.CreateAppender()

	assert.NoError(t, appender.StartExcerpt(1))
	appender.Write([]byte("x"))
	assert.NoError(t, appender.Finish())

	// a block-sized excerpt finished without any written byte is padding
	assert.NoError(t, appender.StartExcerpt(63))
	assert.NoError(t, appender.Finish())

	assert.NoError(t, appender.StartExcerpt(1))
	appender.Write([]byte("y"))
	assert.NoError(t, appender.Finish())

	assert.Equal(t, int64(3), journal.Size())
	assert.True(t, journal.IsPadding(1))

	tailer, _ := journal.CreateTailer()
	assert.True(t, tailer.NextIndex())
	assert.Equal(t, int64(0), tailer.Index())
	assert.True(t, tailer.NextIndex())
	assert.Equal(t, int64(2), tailer.Index(), "tailer skips the padding entry")
	assert.False(t, tailer.NextIndex())
}

func TestIndexedStartExcerptDiscardsUnfinished(t *testing.T) {
	journal := NewIndexed("test", 64)
	appender, _ := journal.CreateAppender()

	assert.NoError(t, appender.StartExcerpt(10))
	appender.Write([]byte("partial"))
	// abandoned without Finish, e.g. lost connection mid-record
	assert.NoError(t, appender.StartExcerpt(5))
	appender.Write([]byte("whole"))
	assert.NoError(t, appender.Finish())

	assert.Equal(t, int64(1), journal.Size())
	payload, ok := journal.PayloadAt(0)
	assert.True(t, ok)
	assert.Equal(t, "whole", string(payload))
}

func TestIndexedAppenderOverflow(t *testing.T) {
	journal := NewIndexed("test", 64)
	appender, _ := journal.CreateAppender()

	assert.NoError(t, appender.StartExcerpt(2))
	_, err := appender.Write([]byte("abc"))
	assert.Error(t, err)
}

func TestIndexedMoveToIndex(t *testing.T) {
	journal := NewIndexed("test", 64)
	appender, _ := journal.CreateAppender()
	for _, payload := range []string{"A", "BB"} {
		appender.StartExcerpt(len(payload))
		appender.Write([]byte(payload))
		appender.Finish()
	}

	tailer, _ := journal.CreateTailer()
	assert.True(t, tailer.MoveToIndex(1))
	assert.Equal(t, "BB", string(tailer.Bytes()))
	assert.False(t, tailer.MoveToIndex(2))

	assert.True(t, tailer.MoveToIndex(-1))
	assert.True(t, tailer.NextIndex())
	assert.Equal(t, int64(0), tailer.Index())
}

func TestIndexedFindMatch(t *testing.T) {
	journal := NewIndexed("test", 64)
	appender, _ := journal.CreateAppender()
	for _, payload := range []string{"aa", "bb", "bb", "cc"} {
		appender.StartExcerpt(len(payload))
		appender.Write([]byte(payload))
		appender.Finish()
	}

	tailer, _ := journal.CreateTailer()
	searcher := tailer.(base.JournalSearcher)

	matchBB := func(payload []byte) int {
		switch {
		case string(payload) < "bb":
			return -1
		case string(payload) > "bb":
			return 1
		}
		return 0
	}
	assert.Equal(t, int64(1), searcher.FindMatch(matchBB))
	first, last := searcher.FindRange(matchBB)
	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(3), last)
}

func TestIndexedClear(t *testing.T) {
	journal := NewIndexed("test", 64)
	appender, _ := journal.CreateAppender()
	appender.StartExcerpt(1)
	appender.Write([]byte("x"))
	appender.Finish()

	journal.Clear()
	assert.Equal(t, int64(0), journal.Size())
	assert.Equal(t, int64(-1), journal.LastWrittenIndex())
}
