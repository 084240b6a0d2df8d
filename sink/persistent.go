package sink

import (
	"errors"

	"github.com/relex/gotils/logger"
	"github.com/relex/journal-sink/base"
	"github.com/relex/journal-sink/defs"
	"github.com/relex/journal-sink/wire"
)

// persistentExcerpt is the machinery shared by the indexed and cycle sink handles: a wrapped
// tailer over the local journal plus the network pull that feeds it.
//
// Advance serves from the local journal first and only pulls from the source when the local
// journal is exhausted, so a freshly restarted sink replays its own journal before touching
// the network. Transient I/O failures never escape; corruption does and poisons the handle.
type persistentExcerpt struct {
	logger          logger.Logger
	sink            *Sink
	connector       *sinkConnector
	local           base.JournalTailer
	resumeFrom      func() int64         // last index durably applied, the resume request payload
	readNextExcerpt func() (bool, error) // variant-specific frame application
	lastLocalIndex  int64
	fatalErr        error
	closeOnce       func() bool
}

func (x *persistentExcerpt) initPersistent(s *Sink, part string, local base.JournalTailer, resumeFrom func() int64) {
	x.logger = s.logger.WithField(defs.LabelPart, part)
	x.sink = s
	x.connector = newSinkConnector(x.logger, s.cfg, s.closeSignal, &s.metrics)
	x.local = local
	x.resumeFrom = resumeFrom
	x.lastLocalIndex = -1
	x.fatalErr = nil
}

// Advance moves to the next replicated excerpt: local journal first, then one network pull
func (x *persistentExcerpt) Advance() (bool, error) {
	if x.fatalErr != nil {
		return false, x.fatalErr
	}
	if x.local.NextIndex() {
		return true, nil
	}
	progress, err := x.readNext()
	if err != nil {
		return false, x.fail(err)
	}
	if !progress {
		return false, nil
	}
	return x.local.NextIndex(), nil
}

// MoveToIndex positions on the given local index, attempting one network pull if the excerpt
// has not arrived yet
func (x *persistentExcerpt) MoveToIndex(index int64) (bool, error) {
	if x.fatalErr != nil {
		return false, x.fatalErr
	}
	if x.local.MoveToIndex(index) {
		return true, nil
	}
	if index < 0 {
		return false, nil
	}
	progress, err := x.readNext()
	if err != nil {
		return false, x.fail(err)
	}
	if !progress {
		return false, nil
	}
	return x.local.MoveToIndex(index), nil
}

// ToStart rewinds before the first local excerpt
func (x *persistentExcerpt) ToStart() (bool, error) {
	if x.fatalErr != nil {
		return false, x.fatalErr
	}
	x.local.MoveToIndex(-1)
	return true, nil
}

// ToEnd positions on the last locally applied excerpt
func (x *persistentExcerpt) ToEnd() (bool, error) {
	if x.fatalErr != nil {
		return false, x.fatalErr
	}
	return x.local.MoveToIndex(x.resumeFrom()), nil
}

// Index returns the index of the current excerpt
func (x *persistentExcerpt) Index() int64 {
	return x.local.Index()
}

// Bytes returns the payload of the current excerpt, valid until Finish
func (x *persistentExcerpt) Bytes() []byte {
	return x.local.Bytes()
}

// Finish releases the current excerpt
func (x *persistentExcerpt) Finish() {
	x.local.Finish()
}

// FindMatch searches the local journal when it supports searching
func (x *persistentExcerpt) FindMatch(cmp base.ExcerptComparator) (int64, error) {
	if searcher, ok := x.local.(base.JournalSearcher); ok {
		return searcher.FindMatch(cmp), nil
	}
	return -1, ErrSearchNotSupported
}

// FindRange searches the local journal when it supports searching
func (x *persistentExcerpt) FindRange(cmp base.ExcerptComparator) (int64, int64, error) {
	if searcher, ok := x.local.(base.JournalSearcher); ok {
		first, last := searcher.FindRange(cmp)
		return first, last, nil
	}
	return -1, -1, ErrSearchNotSupported
}

// Close closes the connector, deregisters the handle and releases the local tailer
func (x *persistentExcerpt) Close() {
	x.closeOnce()
}

// readNext (re)opens the connection if necessary, resending the resume request, then applies
// the next incoming frame
func (x *persistentExcerpt) readNext() (bool, error) {
	if !x.connector.IsOpen() {
		if !x.connector.Open() {
			return false, nil
		}
		lastIndex := x.resumeFrom()
		if !x.connector.WriteFull(wire.EncodeResumeRequest(lastIndex)) {
			return false, nil
		}
		x.lastLocalIndex = lastIndex
	}
	return x.readNextExcerpt()
}

// streamPayload copies size payload bytes from the receive buffer into the appender,
// refilling from the socket as needed.
//
// (false, nil) means the connection was lost mid-record: the socket is closed and the
// unfinished excerpt is abandoned, to be replayed after resumption. A non-nil error is a
// journal write failure and fatal.
func (x *persistentExcerpt) streamPayload(size int, write func(p []byte) (int, error)) (bool, error) {
	remaining := size

	first := x.connector.Buffered()
	if first > remaining {
		first = remaining
	}
	if first > 0 {
		if _, err := write(x.connector.Consume(first)); err != nil {
			return false, err
		}
		remaining -= first
	}

	for remaining > 0 {
		n, ferr := x.connector.FillPayload(remaining)
		if ferr != nil {
			x.logger.Infof("lost connection mid-excerpt, retrying: %s", ferr.Error())
			x.sink.metrics.OnNetworkError()
			x.connector.Close()
			return false, nil
		}
		if _, err := write(x.connector.Consume(n)); err != nil {
			return false, err
		}
		remaining -= n
	}
	return true, nil
}

func (x *persistentExcerpt) fail(err error) error {
	x.fatalErr = err
	var corruptErr *CorruptedStreamError
	if errors.As(err, &corruptErr) {
		x.sink.metrics.OnCorruption()
	}
	x.logger.Errorf("aborting replication: %s", err.Error())
	x.connector.Close()
	return err
}
