// Package sink implements the consuming side of the journal replication protocol: a Sink
// keeps a long-lived TCP session to one source, resumes from its locally recorded position
// after restarts and lost connections, and applies the incoming excerpt stream either to a
// local journal of the same shape or straight out of the receive buffer in memory mode.
package sink

import (
	"fmt"
	"sync"

	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/journal-sink/base"
	"github.com/relex/journal-sink/defs"
)

// Sink replicates a remote journal over TCP.
//
// With a local IndexedJournal or CycleJournal every incoming excerpt is persisted and the
// sink survives restarts without losing or duplicating records. With no journal the sink
// works in memory mode: records are exposed directly from the receive buffer.
//
// A Sink never accepts local writes and talks to exactly one source address.
type Sink struct {
	logger      logger.Logger
	cfg         Config
	journal     base.Journal // nil in memory mode
	metrics     sinkMetrics
	closeSignal *channels.SignalAwaitable
	mu          sync.Mutex
	handles     []base.Consumer
	closed      bool
}

// New creates a Sink replicating from the configured source address into the given journal,
// or in memory mode when journal is nil. The journal must be a base.IndexedJournal or a
// base.CycleJournal.
func New(parentLogger logger.Logger, cfg Config, journal base.Journal, metricCreator promreg.MetricCreator) (*Sink, error) {
	if err := cfg.VerifyConfig(); err != nil {
		return nil, err
	}

	switch journal.(type) {
	case nil, base.IndexedJournal, base.CycleJournal:
	default:
		return nil, fmt.Errorf("unsupported journal type %T", journal)
	}

	return &Sink{
		logger: parentLogger.WithFields(logger.Fields{
			defs.LabelComponent: "JournalSink",
			defs.LabelRemote:    cfg.Address,
		}),
		cfg:         cfg,
		journal:     journal,
		metrics:     newSinkMetrics(metricCreator, cfg.Address),
		closeSignal: channels.NewSignalAwaitable(),
		handles:     nil,
		closed:      false,
	}, nil
}

// Closed returns an Awaitable signaled when the sink is closed
func (s *Sink) Closed() channels.Awaitable {
	return s.closeSignal
}

// Name identifies the sink: the local journal's name, or the source address in memory mode
func (s *Sink) Name() string {
	if s.journal != nil {
		return s.journal.Name()
	}
	return s.cfg.Address
}

// CreateExcerpt creates a random-access read handle.
//
// Persistent mode allows a single live handle; memory mode returns an Excerpt whose search
// operations are unsupported.
func (s *Sink) CreateExcerpt() (base.Excerpt, error) {
	return s.createHandle()
}

// CreateTailer creates a sequential read handle
func (s *Sink) CreateTailer() (base.Tailer, error) {
	return s.createHandle()
}

// CreateAppender always fails: a sink does not accept local writes
func (s *Sink) CreateAppender() (base.IndexedAppender, error) {
	return nil, ErrAppendNotSupported
}

// Size delegates to the underlying journal, or 0 in memory mode
func (s *Sink) Size() int64 {
	if s.journal != nil {
		return s.journal.Size()
	}
	return 0
}

// LastWrittenIndex delegates to the underlying journal, or -1 in memory mode
func (s *Sink) LastWrittenIndex() int64 {
	if s.journal != nil {
		return s.journal.LastWrittenIndex()
	}
	return -1
}

// Clear delegates to the underlying journal; no-op in memory mode
func (s *Sink) Clear() {
	if s.journal != nil {
		s.journal.Clear()
	}
}

// Close shuts the sink down: it wakes any reconnect wait, closes every registered handle and
// finally the underlying journal. Errors from the journal close are logged, not propagated.
// Close may be called more than once.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	liveHandles := append([]base.Consumer(nil), s.handles...)
	s.mu.Unlock()

	s.closeSignal.Signal()
	for _, handle := range liveHandles {
		handle.Close()
	}

	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.logger.Warnf("error closing journal: %s", err.Error())
		}
	}
	s.logger.Info("closed")
}

func (s *Sink) createHandle() (base.Excerpt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSinkClosed
	}

	if s.journal == nil {
		handle := newMemoryTailer(s)
		s.handles = append(s.handles, handle)
		return handle, nil
	}

	if len(s.handles) > 0 {
		return nil, ErrHandleExists
	}

	var handle base.Excerpt
	var err error
	switch journal := s.journal.(type) {
	case base.IndexedJournal:
		handle, err = newIndexedSinkExcerpt(s, journal)
	case base.CycleJournal:
		handle, err = newCycleSinkExcerpt(s, journal)
	}
	if err != nil {
		return nil, err
	}
	s.handles = append(s.handles, handle)
	return handle, nil
}

func (s *Sink) deregister(handle base.Consumer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, h := range s.handles {
		if h == handle {
			s.handles = append(s.handles[:i], s.handles[i+1:]...)
			break
		}
	}
}
