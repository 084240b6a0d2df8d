package sink

import (
	"github.com/relex/journal-sink/base"
	"github.com/relex/journal-sink/util"
	"github.com/relex/journal-sink/wire"
)

// cycleSinkExcerpt replicates into a cycle-partitioned journal. The cycle of each excerpt is
// derived from the high bits of its index; within-cycle ordering is left to the journal.
//
// There is no gap check here: after resumption the source may retransmit the last
// acknowledged excerpt, which must be consumed and discarded rather than applied twice.
type cycleSinkExcerpt struct {
	persistentExcerpt
	journal  base.CycleJournal
	appender base.CycleAppender
}

func newCycleSinkExcerpt(s *Sink, journal base.CycleJournal) (*cycleSinkExcerpt, error) {
	appender, err := journal.CreateAppender()
	if err != nil {
		return nil, err
	}
	local, err := journal.CreateTailer()
	if err != nil {
		return nil, err
	}

	x := &cycleSinkExcerpt{
		journal:  journal,
		appender: appender,
	}
	x.initPersistent(s, "cycle-sink", local, journal.LastIndex)
	x.readNextExcerpt = x.applyNextFrame
	x.closeOnce = util.NewRunOnce(func() {
		x.connector.Close()
		x.sink.deregister(x)
		x.local.Close()
	})
	return x, nil
}

func (x *cycleSinkExcerpt) applyNextFrame() (bool, error) {
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
		// block padding has no meaning in a cycle journal; do not advance
		x.logger.Warn("ignored padding frame on cycle journal")
		return false, nil

	case wire.KindSyncAck:
		return x.applyNextFrame()

	case wire.KindCorrupt:
		return false, newCorruptSizeError(hdr.Size)
	}

	size := int(hdr.Size)
	if hdr.Index == x.lastLocalIndex {
		// replay of the last acknowledged excerpt after resumption; skip its payload
		x.sink.metrics.OnReplaySkipped()
		if !x.connector.Discard(size) {
			return true, nil
		}
		return x.applyNextFrame()
	}

	cycle := int64(uint64(hdr.Index) >> x.journal.EntriesForCycleBits())
	if err := x.appender.StartExcerpt(size, cycle); err != nil {
		return false, err
	}
	ok, err := x.streamPayload(size, x.appender.Write)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	if err := x.appender.Finish(); err != nil {
		return false, err
	}
	x.sink.metrics.OnApplied(size)
	return true, nil
}
