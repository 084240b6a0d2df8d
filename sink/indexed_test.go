package sink

import (
	"errors"
	"testing"

	"github.com/relex/journal-sink/journal/memjournal"
	"github.com/relex/journal-sink/testsource"
	"github.com/stretchr/testify/assert"
)

func TestIndexedCleanStartup(t *testing.T) {
	srv := launchTestSource(t, testsource.Config{})
	defer srv.Shutdown()
	srv.Publish([]byte("record-A"), []byte("record-BB"), []byte("record-CCC"))

	journal := memjournal.NewIndexed(t.Name(), 64)
	snk := newTestSink(t, journal, srv.Addr().String())
	defer snk.Close()

	tailer, err := snk.CreateTailer()
	assert.NoError(t, err)

	for i, expected := range []string{"record-A", "record-BB", "record-CCC"} {
		mustAdvance(t, tailer)
		assert.Equal(t, int64(i), tailer.Index())
		assert.Equal(t, expected, string(tailer.Bytes()))
		tailer.Finish()
	}
	assert.Equal(t, int64(3), journal.Size())
}

func TestIndexedHeartbeatMakesNoProgress(t *testing.T) {
	srv := launchTestSource(t, testsource.Config{})
	defer srv.Shutdown()
	srv.InjectHeartbeat()

	journal := memjournal.NewIndexed(t.Name(), 64)
	snk := newTestSink(t, journal, srv.Addr().String())
	defer snk.Close()

	tailer, _ := snk.CreateTailer()
	ok, err := tailer.Advance()
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(0), journal.Size())
}

func TestIndexedPaddingAdvancesBlock(t *testing.T) {
	srv := launchTestSource(t, testsource.Config{})
	defer srv.Shutdown()

	journal := memjournal.NewIndexed(t.Name(), 64)
	snk := newTestSink(t, journal, srv.Addr().String())
	defer snk.Close()

	tailer, _ := snk.CreateTailer()

	srv.Publish([]byte("record-A"))
	mustAdvance(t, tailer)
	assert.Equal(t, "record-A", string(tailer.Bytes()))
	tailer.Finish()

	srv.InjectPadding()
	srv.Publish([]byte("record-B"))

	// the padding frame advances the journal without producing a record
	mustAdvance(t, tailer)
	assert.Equal(t, int64(2), tailer.Index(), "data after padding lands past the block boundary")
	assert.Equal(t, "record-B", string(tailer.Bytes()))
	tailer.Finish()

	assert.Equal(t, int64(3), journal.Size())
	assert.True(t, journal.IsPadding(1))
}

func TestIndexedMidRecordDisconnect(t *testing.T) {
	srv := launchTestSource(t, testsource.Config{})
	defer srv.Shutdown()

	journal := memjournal.NewIndexed(t.Name(), 64)
	snk := newTestSink(t, journal, srv.Addr().String())
	defer snk.Close()

	tailer, _ := snk.CreateTailer()

	srv.Publish([]byte("record-A"))
	mustAdvance(t, tailer)
	tailer.Finish()

	// the next record is cut off mid-payload; the sink must reconnect, resume from its last
	// written index and apply the replayed record exactly once
	srv.InjectCut(10)
	payload := []byte("a-long-enough-record-to-cut-val!")
	srv.Publish(payload)

	mustAdvance(t, tailer)
	assert.Equal(t, int64(1), tailer.Index())
	assert.Equal(t, string(payload), string(tailer.Bytes()))
	tailer.Finish()

	assert.Equal(t, int64(2), journal.Size())
	stored, ok := journal.PayloadAt(1)
	assert.True(t, ok)
	assert.Equal(t, string(payload), string(stored))
}

func TestIndexedRestartResumesWithoutDuplicates(t *testing.T) {
	srv := launchTestSource(t, testsource.Config{})
	defer srv.Shutdown()
	srv.Publish([]byte("record-A"), []byte("record-B"))

	journal := memjournal.NewIndexed(t.Name(), 64)

	firstSink := newTestSink(t, journal, srv.Addr().String())
	tailer, _ := firstSink.CreateTailer()
	mustAdvance(t, tailer)
	tailer.Finish()
	mustAdvance(t, tailer)
	tailer.Finish()
	firstSink.Close()
	assert.Equal(t, int64(2), journal.Size())

	// restart with the populated journal: no additional writes until the source has news
	secondSink := newTestSink(t, journal, srv.Addr().String())
	defer secondSink.Close()
	tailer2, _ := secondSink.CreateTailer()

	// the handle serves the local journal first; move past the records already held
	ok, err := tailer2.ToEnd()
	assert.NoError(t, err)
	assert.True(t, ok)

	srv.InjectHeartbeat()
	ok, err = tailer2.Advance()
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(2), journal.Size())

	srv.Publish([]byte("record-C"))
	mustAdvance(t, tailer2)
	assert.Equal(t, int64(2), tailer2.Index())
	assert.Equal(t, "record-C", string(tailer2.Bytes()))
	tailer2.Finish()
	assert.Equal(t, int64(3), journal.Size())
}

func TestIndexedCorruptSizeIsFatal(t *testing.T) {
	srv := launchTestSource(t, testsource.Config{})
	defer srv.Shutdown()
	srv.InjectCorrupt(200000000)

	journal := memjournal.NewIndexed(t.Name(), 64)
	snk := newTestSink(t, journal, srv.Addr().String())
	defer snk.Close()

	tailer, _ := snk.CreateTailer()
	ok, err := tailer.Advance()
	assert.False(t, ok)
	var corruptErr *CorruptedStreamError
	assert.True(t, errors.As(err, &corruptErr))
	assert.Equal(t, int64(0), journal.Size())

	// the handle stays poisoned
	_, err2 := tailer.Advance()
	assert.Equal(t, err, err2)
}

func TestIndexedIndexMismatchIsFatal(t *testing.T) {
	// a source replaying the last acknowledged record breaks the size()==index invariant of
	// the indexed journal
	srv := launchTestSource(t, testsource.Config{ReplayLast: true})
	defer srv.Shutdown()
	srv.Publish([]byte("record-A"), []byte("record-B"))

	journal := memjournal.NewIndexed(t.Name(), 64)
	appender, _ := journal.CreateAppender()
	for _, payload := range []string{"record-A", "record-B"} {
		appender.StartExcerpt(len(payload))
		appender.Write([]byte(payload))
		appender.Finish()
	}

	snk := newTestSink(t, journal, srv.Addr().String())
	defer snk.Close()

	tailer, _ := snk.CreateTailer()
	mustAdvance(t, tailer) // local record A
	tailer.Finish()
	mustAdvance(t, tailer) // local record B
	tailer.Finish()

	_, err := tailer.Advance()
	var corruptErr *CorruptedStreamError
	assert.True(t, errors.As(err, &corruptErr))
	assert.Equal(t, int64(2), journal.Size())
}
