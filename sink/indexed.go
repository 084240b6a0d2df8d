package sink

import (
	"github.com/relex/journal-sink/base"
	"github.com/relex/journal-sink/util"
	"github.com/relex/journal-sink/wire"
)

// indexedSinkExcerpt replicates into an indexed journal, whose Size() always equals the next
// expected source index. A data frame arriving with any other index is stream corruption.
type indexedSinkExcerpt struct {
	persistentExcerpt
	journal  base.IndexedJournal
	appender base.IndexedAppender
}

func newIndexedSinkExcerpt(s *Sink, journal base.IndexedJournal) (*indexedSinkExcerpt, error) {
	appender, err := journal.CreateAppender()
	if err != nil {
		return nil, err
	}
	local, err := journal.CreateTailer()
	if err != nil {
		return nil, err
	}

	x := &indexedSinkExcerpt{
		journal:  journal,
		appender: appender,
	}
	x.initPersistent(s, "indexed-sink", local, journal.LastWrittenIndex)
	x.readNextExcerpt = x.applyNextFrame
	x.closeOnce = util.NewRunOnce(func() {
		x.connector.Close()
		x.sink.deregister(x)
		x.local.Close()
	})
	return x, nil
}

// applyNextFrame decodes one frame and applies it to the journal.
//
// The read requires the header plus 8 bytes of look-ahead so a heartbeat is never mistaken
// for a stalled partial frame.
func (x *indexedSinkExcerpt) applyNextFrame() (bool, error) {
	if x.sink.closeSignal.Peek() {
		return false, nil
	}
	if !x.connector.ReadAtLeast(wire.HeaderSize, wire.HeaderSize+8) {
		return false, nil
	}

	hdr := wire.DecodeHeader(x.connector.Consume(wire.HeaderSize))
	switch hdr.Kind() {
	case wire.KindHeartbeat:
		x.sink.metrics.OnHeartbeat()
		return false, nil

	case wire.KindPadding:
		// advance past a journal block boundary with a block-sized filler excerpt
		x.sink.metrics.OnPadding()
		if err := x.appender.StartExcerpt(x.journal.DataBlockSize() - 1); err != nil {
			return false, err
		}
		if err := x.appender.Finish(); err != nil {
			return false, err
		}
		return true, nil

	case wire.KindSyncAck:
		// resume acknowledgement, transparent to the caller
		return x.applyNextFrame()

	case wire.KindCorrupt:
		return false, newCorruptSizeError(hdr.Size)
	}

	size := int(hdr.Size)
	if expected := x.journal.Size(); hdr.Index != expected {
		return false, newIndexMismatchError(expected, hdr.Index)
	}

	if err := x.appender.StartExcerpt(size); err != nil {
		return false, err
	}
	ok, err := x.streamPayload(size, x.appender.Write)
	if err != nil {
		return false, err
	}
	if !ok {
		// lost mid-record; the abandoned excerpt is replayed after reconnection
		return true, nil
	}
	if err := x.appender.Finish(); err != nil {
		return false, err
	}
	x.sink.metrics.OnApplied(size)
	return true, nil
}
