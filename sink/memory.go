package sink

import (
	"errors"

	"github.com/relex/gotils/logger"
	"github.com/relex/journal-sink/base"
	"github.com/relex/journal-sink/defs"
	"github.com/relex/journal-sink/util"
	"github.com/relex/journal-sink/wire"
)

// memoryTailer exposes replicated excerpts without local persistence: Bytes() is a view into
// the receive buffer itself, valid until Finish.
//
// The buffer is refilled only at the head of Advance and during repositioning, never between
// Advance and Finish, so an unfinished view is never invalidated. Finish is the sole point at
// which the read cursor moves past the current payload.
type memoryTailer struct {
	logger    logger.Logger
	sink      *Sink
	connector *sinkConnector
	index     int64
	lastSize  int
	view      []byte
	finished  bool
	fatalErr  error
	closeOnce func() bool
}

func newMemoryTailer(s *Sink) *memoryTailer {
	x := &memoryTailer{
		logger:   s.logger.WithField(defs.LabelPart, "memory-tailer"),
		sink:     s,
		index:    -1,
		lastSize: 0,
		view:     nil,
		finished: true,
		fatalErr: nil,
	}
	x.connector = newSinkConnector(x.logger, s.cfg, s.closeSignal, &s.metrics)
	x.closeOnce = util.NewRunOnce(func() {
		x.connector.Close()
		x.sink.deregister(x)
	})
	return x
}

// Advance exposes the next replicated excerpt, reconnecting and repositioning on the current
// index first if the connection was lost
func (x *memoryTailer) Advance() (bool, error) {
	if x.fatalErr != nil {
		return false, x.fatalErr
	}
	if !x.connector.IsOpen() {
		return x.MoveToIndex(x.index)
	}

	if !x.connector.ReadAtLeast(wire.HeaderSize+8, wire.HeaderSize+8) {
		return false, nil
	}
	hdr := wire.DecodeHeader(x.connector.Consume(wire.HeaderSize))
	switch hdr.Kind() {
	case wire.KindHeartbeat:
		x.sink.metrics.OnHeartbeat()
		return false, nil
	case wire.KindPadding:
		return false, nil
	case wire.KindSyncAck:
		return false, nil
	case wire.KindCorrupt:
		return false, x.fail(newCorruptSizeError(hdr.Size))
	}

	size := int(hdr.Size)
	if x.connector.Buffered() < size {
		if !x.connector.EnsureBuffered(size) {
			return false, nil
		}
	}

	x.index = hdr.Index
	x.view = x.connector.Pending()[:size]
	x.lastSize = size
	x.finished = false
	x.sink.metrics.OnApplied(size)
	return true, nil
}

// Index returns the index of the current excerpt, or the last requested position
func (x *memoryTailer) Index() int64 {
	return x.index
}

// Bytes returns the current excerpt payload as a view into the receive buffer
func (x *memoryTailer) Bytes() []byte {
	return x.view
}

// Finish releases the current excerpt and advances the read cursor past its payload
func (x *memoryTailer) Finish() {
	if !x.finished {
		if x.lastSize > 0 {
			x.connector.Skip(x.lastSize)
		}
		x.view = nil
		x.finished = true
	}
}

// ToStart repositions to the beginning of the source stream
func (x *memoryTailer) ToStart() (bool, error) {
	return x.MoveToIndex(wire.RequestFromStart)
}

// ToEnd repositions to the current end of the source stream
func (x *memoryTailer) ToEnd() (bool, error) {
	return x.MoveToIndex(wire.RequestFromEnd)
}

// MoveToIndex opens the connection if needed, sends a resume request for the given position
// and reads until the source confirms it with a sync acknowledgement. Data frames arriving
// before the acknowledgement are skipped in place.
func (x *memoryTailer) MoveToIndex(index int64) (bool, error) {
	if x.fatalErr != nil {
		return false, x.fatalErr
	}
	x.index = index
	x.lastSize = 0
	x.view = nil
	x.finished = true

	if !x.connector.IsOpen() {
		if !x.connector.Open() {
			return false, nil
		}
	}
	if !x.connector.WriteFull(wire.EncodeResumeRequest(index)) {
		return false, nil
	}

	for x.connector.ReadAtLeast(wire.HeaderSize, wire.HeaderSize) {
		hdr := wire.DecodeHeader(x.connector.Consume(wire.HeaderSize))
		switch hdr.Kind() {
		case wire.KindSyncAck:
			switch {
			case index == wire.RequestFromStart:
				return hdr.Index == wire.RequestFromStart, nil
			case index == wire.RequestFromEnd:
				return x.advanceFinished()
			case hdr.Index == index:
				return x.advanceFinished()
			default:
				return false, nil
			}
		case wire.KindHeartbeat, wire.KindPadding:
			return false, nil
		case wire.KindCorrupt:
			return false, x.fail(newCorruptSizeError(hdr.Size))
		}
		if !x.connector.Discard(int(hdr.Size)) {
			return false, nil
		}
	}
	return false, nil
}

// FindMatch is unsupported in memory mode
func (x *memoryTailer) FindMatch(base.ExcerptComparator) (int64, error) {
	return -1, ErrSearchNotSupported
}

// FindRange is unsupported in memory mode
func (x *memoryTailer) FindRange(base.ExcerptComparator) (int64, int64, error) {
	return -1, -1, ErrSearchNotSupported
}

// Close closes the connector and deregisters the handle
func (x *memoryTailer) Close() {
	x.closeOnce()
}

// advanceFinished confirms a position by advancing to the immediate next excerpt and
// releasing it right away
func (x *memoryTailer) advanceFinished() (bool, error) {
	ok, err := x.Advance()
	if err != nil || !ok {
		return false, err
	}
	x.Finish()
	return true, nil
}

func (x *memoryTailer) fail(err error) error {
	x.fatalErr = err
	var corruptErr *CorruptedStreamError
	if errors.As(err, &corruptErr) {
		x.sink.metrics.OnCorruption()
	}
	x.logger.Errorf("aborting replication: %s", err.Error())
	x.connector.Close()
	return err
}
