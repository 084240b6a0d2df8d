package sink

import (
	"testing"
	"time"

	"github.com/relex/journal-sink/journal/memjournal"
	"github.com/relex/journal-sink/testsource"
	"github.com/stretchr/testify/assert"
)

func TestSinkRejectsAppending(t *testing.T) {
	snk := newTestSink(t, nil, "localhost:1")
	defer snk.Close()

	appender, err := snk.CreateAppender()
	assert.Nil(t, appender)
	assert.ErrorIs(t, err, ErrAppendNotSupported)
}

func TestSinkAllowsSinglePersistentHandle(t *testing.T) {
	journal := memjournal.NewIndexed(t.Name(), 64)
	snk := newTestSink(t, journal, "localhost:1")
	defer snk.Close()

	tailer, err := snk.CreateTailer()
	assert.NoError(t, err)

	_, err = snk.CreateExcerpt()
	assert.ErrorIs(t, err, ErrHandleExists)
	_, err = snk.CreateTailer()
	assert.ErrorIs(t, err, ErrHandleExists)

	// closing the handle frees the slot
	tailer.Close()
	excerpt, err := snk.CreateExcerpt()
	assert.NoError(t, err)
	excerpt.Close()
}

func TestSinkCloseIsIdempotent(t *testing.T) {
	journal := memjournal.NewIndexed(t.Name(), 64)
	snk := newTestSink(t, journal, "localhost:1")

	tailer, err := snk.CreateTailer()
	assert.NoError(t, err)

	snk.Close()
	snk.Close()

	snk.mu.Lock()
	assert.Empty(t, snk.handles, "registry is empty after close")
	snk.mu.Unlock()

	ok, aerr := tailer.Advance()
	assert.NoError(t, aerr)
	assert.False(t, ok)

	_, cerr := snk.CreateTailer()
	assert.ErrorIs(t, cerr, ErrSinkClosed)
}

func TestSinkCloseWakesReconnectWait(t *testing.T) {
	// nothing listens on the address: the handle keeps retrying until the sink is closed
	journal := memjournal.NewIndexed(t.Name(), 64)
	snk := newTestSink(t, journal, "localhost:1")

	tailer, _ := snk.CreateTailer()
	advanced := make(chan bool, 1)
	go func() {
		ok, _ := tailer.Advance()
		advanced <- ok
	}()

	time.Sleep(50 * time.Millisecond)
	snk.Close()

	select {
	case ok := <-advanced:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Advance did not return after close")
	}
}

func TestSinkDelegatesToJournal(t *testing.T) {
	journal := memjournal.NewIndexed(t.Name(), 64)
	appender, _ := journal.CreateAppender()
	for _, payload := range []string{"A", "B"} {
		appender.StartExcerpt(len(payload))
		appender.Write([]byte(payload))
		appender.Finish()
	}

	snk := newTestSink(t, journal, "localhost:1")
	defer snk.Close()

	assert.Equal(t, t.Name(), snk.Name())
	assert.Equal(t, int64(2), snk.Size())
	assert.Equal(t, int64(1), snk.LastWrittenIndex())

	snk.Clear()
	assert.Equal(t, int64(0), snk.Size())
}

func TestSinkMemoryModeDefaults(t *testing.T) {
	snk := newTestSink(t, nil, "localhost:1")
	defer snk.Close()

	assert.Equal(t, "localhost:1", snk.Name())
	assert.Equal(t, int64(0), snk.Size())
	assert.Equal(t, int64(-1), snk.LastWrittenIndex())
	snk.Clear() // no-op
}

func TestSinkRejectsInvalidConfig(t *testing.T) {
	_, err := New(testLogger(t), Config{}, nil, testMetricFactory)
	assert.Error(t, err)

	_, err = New(testLogger(t), Config{Address: "not-an-address"}, nil, testMetricFactory)
	assert.Error(t, err)
}

func TestMemorySearchIsUnsupported(t *testing.T) {
	snk := newTestSink(t, nil, "localhost:1")
	defer snk.Close()

	excerpt, err := snk.CreateExcerpt()
	assert.NoError(t, err)

	_, err = excerpt.FindMatch(func([]byte) int { return 0 })
	assert.ErrorIs(t, err, ErrSearchNotSupported)
	_, _, err = excerpt.FindRange(func([]byte) int { return 0 })
	assert.ErrorIs(t, err, ErrSearchNotSupported)
}

func TestPersistentSearchDelegatesToJournal(t *testing.T) {
	journal := memjournal.NewIndexed(t.Name(), 64)
	appender, _ := journal.CreateAppender()
	for _, payload := range []string{"aa", "bb", "cc"} {
		appender.StartExcerpt(len(payload))
		appender.Write([]byte(payload))
		appender.Finish()
	}

	snk := newTestSink(t, journal, "localhost:1")
	defer snk.Close()

	excerpt, err := snk.CreateExcerpt()
	assert.NoError(t, err)

	index, err := excerpt.FindMatch(func(payload []byte) int {
		switch {
		case string(payload) < "bb":
			return -1
		case string(payload) > "bb":
			return 1
		}
		return 0
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), index)
}

func TestSinkCloseClosesAllMemoryHandles(t *testing.T) {
	srv := launchTestSource(t, testsource.Config{})
	defer srv.Shutdown()
	srv.Publish([]byte("record-A"), []byte("record-B"))

	snk := newTestSink(t, nil, srv.Addr().String())
	tailer, err := snk.CreateTailer()
	assert.NoError(t, err)

	ok, err := tailer.ToStart()
	assert.NoError(t, err)
	assert.True(t, ok)

	snk.Close()

	snk.mu.Lock()
	assert.Empty(t, snk.handles)
	snk.mu.Unlock()

	ok, err = tailer.Advance()
	assert.NoError(t, err)
	assert.False(t, ok)
}
