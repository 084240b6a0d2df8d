// Package testsource provides an in-process journal source speaking the replication wire
// protocol, for sink tests and local experiments. It keeps published records in memory,
// honours resume requests from connecting sinks and can inject control frames, corrupt
// frames and mid-record disconnects on demand.
package testsource

import (
	"io"
	"net"
	"sync"

	"github.com/relex/gotils/logger"
	"github.com/relex/journal-sink/defs"
	"github.com/relex/journal-sink/util"
	"github.com/relex/journal-sink/wire"
)

// Config defines the behavior of a test source
type Config struct {
	Address    string // listen address, e.g. "localhost:0"
	ReplayLast bool   // retransmit the excerpt at the requested resume index, like a source recovering a possibly half-sent record
}

type injectionKind int

const (
	injectHeartbeat injectionKind = iota
	injectPadding
	injectCorrupt
	injectCut
)

type injection struct {
	kind        injectionKind
	corruptSize int32
	cutBytes    int
}

type connState struct {
	conn       net.Conn
	cursor     int64
	pendingReq *int64
	dead       bool
}

// Server is a running test source. All exported methods are safe for concurrent use.
type Server struct {
	logger      logger.Logger
	listener    net.Listener
	replayLast  bool
	mu          sync.Mutex
	cond        *sync.Cond
	records     [][]byte
	injections  []injection
	conns       map[*connState]struct{}
	shutdown    bool
	taskCounter sync.WaitGroup
}

// LaunchServer starts a test source listening on the configured address, which may use port
// zero to let the OS assign one. Returns the server and the bound address.
func LaunchServer(parentLogger logger.Logger, cfg Config) (*Server, net.Addr) {
	socket, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		logger.Panicf("failed to listen on %s: %s", cfg.Address, err.Error())
	}

	srv := &Server{
		logger: parentLogger.WithFields(logger.Fields{
			defs.LabelComponent: "TestSource",
			defs.LabelLocal:     socket.Addr().String(),
		}),
		listener:   socket,
		replayLast: cfg.ReplayLast,
		conns:      make(map[*connState]struct{}),
	}
	srv.cond = sync.NewCond(&srv.mu)

	srv.taskCounter.Add(1)
	go srv.runAcceptLoop()
	return srv, socket.Addr()
}

// Addr returns the bound listener address
func (srv *Server) Addr() net.Addr {
	return srv.listener.Addr()
}

// Publish appends records to the source journal, assigning sequential indices, and wakes any
// waiting connection
func (srv *Server) Publish(payloads ...[]byte) {
	srv.mu.Lock()
	for _, p := range payloads {
		srv.records = append(srv.records, append([]byte(nil), p...))
	}
	srv.mu.Unlock()
	srv.cond.Broadcast()
}

// NumRecords returns the number of published records
func (srv *Server) NumRecords() int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return len(srv.records)
}

// InjectHeartbeat queues one in-sync heartbeat frame ahead of any unsent records
func (srv *Server) InjectHeartbeat() {
	srv.addInjection(injection{kind: injectHeartbeat})
}

// InjectPadding queues one block padding frame
func (srv *Server) InjectPadding() {
	srv.addInjection(injection{kind: injectPadding})
}

// InjectCorrupt queues one frame with the given illegal size
func (srv *Server) InjectCorrupt(size int32) {
	srv.addInjection(injection{kind: injectCorrupt, corruptSize: size})
}

// InjectCut makes the serving connection send only the first cutBytes payload bytes of the
// next record and then drop the connection, simulating a mid-record network failure
func (srv *Server) InjectCut(cutBytes int) {
	srv.addInjection(injection{kind: injectCut, cutBytes: cutBytes})
}

// KillConnections drops every established connection; sinks observe EOF and reconnect
func (srv *Server) KillConnections() {
	srv.mu.Lock()
	for st := range srv.conns {
		st.dead = true
		st.conn.Close()
	}
	srv.mu.Unlock()
	srv.cond.Broadcast()
}

// Shutdown stops the listener and all connections and waits for their goroutines to end
func (srv *Server) Shutdown() {
	srv.mu.Lock()
	srv.shutdown = true
	srv.listener.Close()
	for st := range srv.conns {
		st.dead = true
		st.conn.Close()
	}
	srv.mu.Unlock()
	srv.cond.Broadcast()
	srv.taskCounter.Wait()
	srv.logger.Info("shut down")
}

func (srv *Server) addInjection(inj injection) {
	srv.mu.Lock()
	srv.injections = append(srv.injections, inj)
	srv.mu.Unlock()
	srv.cond.Broadcast()
}

func (srv *Server) runAcceptLoop() {
	defer srv.taskCounter.Done()
	for {
		conn, err := srv.listener.Accept()
		if err != nil {
			srv.mu.Lock()
			stopping := srv.shutdown
			srv.mu.Unlock()
			if !stopping && !util.IsNetworkClosed(err) {
				srv.logger.Error("accept() error: ", err)
			}
			return
		}
		srv.logger.Infof("accepted connection from %s", conn.RemoteAddr())
		srv.taskCounter.Add(1)
		go srv.runConnection(conn)
	}
}

func (srv *Server) runConnection(conn net.Conn) {
	defer srv.taskCounter.Done()
	defer conn.Close()

	connLogger := srv.logger.WithField(defs.LabelRemote, conn.RemoteAddr().String())

	st := &connState{conn: conn, cursor: 0}
	srv.mu.Lock()
	if srv.shutdown {
		srv.mu.Unlock()
		return
	}
	srv.conns[st] = struct{}{}
	srv.mu.Unlock()

	defer func() {
		srv.mu.Lock()
		delete(srv.conns, st)
		srv.mu.Unlock()
	}()

	// every (re)connecting sink leads with a resume request; later repositioning requests
	// arrive on the same connection and are picked up by the request reader
	firstReq, ok := readResumeRequest(conn)
	if !ok {
		return
	}
	writer := util.WrapNetConn(conn, 0, defs.TestReadTimeout)

	srv.mu.Lock()
	srv.applyResumeRequest(st, firstReq)
	srv.mu.Unlock()
	if !srv.sendSyncAck(connLogger, writer, firstReq) {
		return
	}

	srv.taskCounter.Add(1)
	go srv.runRequestReader(st)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	for {
		switch {
		case srv.shutdown || st.dead:
			return

		case st.pendingReq != nil:
			req := *st.pendingReq
			st.pendingReq = nil
			srv.applyResumeRequest(st, req)
			srv.mu.Unlock()
			ok := srv.sendSyncAck(connLogger, writer, req)
			srv.mu.Lock()
			if !ok {
				st.dead = true
			}

		case len(srv.injections) > 0 && (srv.injections[0].kind != injectCut || st.cursor < int64(len(srv.records))):
			// a queued cut waits until there is a record to cut
			inj := srv.injections[0]
			srv.injections = srv.injections[1:]
			if !srv.sendInjection(connLogger, writer, st, inj) {
				st.dead = true
			}

		case st.cursor < int64(len(srv.records)):
			index := st.cursor
			payload := srv.records[index]
			st.cursor++
			srv.mu.Unlock()
			err := writeFrame(writer, wire.Header{Size: int32(len(payload)), Index: index}, payload)
			srv.mu.Lock()
			if err != nil {
				connLogger.Infof("stopped serving: %s", err.Error())
				st.dead = true
			}

		default:
			srv.cond.Wait()
		}
	}
}

// runRequestReader picks up repositioning requests sent on an established connection
func (srv *Server) runRequestReader(st *connState) {
	defer srv.taskCounter.Done()
	for {
		req, ok := readResumeRequest(st.conn)
		srv.mu.Lock()
		if !ok {
			st.dead = true
			st.conn.Close()
			srv.mu.Unlock()
			srv.cond.Broadcast()
			return
		}
		st.pendingReq = &req
		srv.mu.Unlock()
		srv.cond.Broadcast()
	}
}

// applyResumeRequest repositions the serving cursor; the caller must hold the lock
func (srv *Server) applyResumeRequest(st *connState, req int64) {
	switch {
	case req == wire.RequestFromStart:
		st.cursor = 0
	case req == wire.RequestFromEnd:
		st.cursor = int64(len(srv.records))
	default:
		st.cursor = req + 1
		if srv.replayLast && req < int64(len(srv.records)) {
			st.cursor = req
		}
		if st.cursor > int64(len(srv.records)) {
			st.cursor = int64(len(srv.records))
		}
	}
}

func (srv *Server) sendSyncAck(connLogger logger.Logger, writer io.Writer, req int64) bool {
	replyIndex := req
	if req == wire.RequestFromEnd {
		srv.mu.Lock()
		replyIndex = int64(len(srv.records)) - 1
		srv.mu.Unlock()
	}
	if err := writeFrame(writer, wire.Header{Size: wire.SyncIdxLen, Index: replyIndex}, nil); err != nil {
		connLogger.Infof("failed to acknowledge request %d: %s", req, err.Error())
		return false
	}
	return true
}

// sendInjection emits one queued control/fault frame; the caller must hold the lock, which is
// released around the writes
func (srv *Server) sendInjection(connLogger logger.Logger, writer io.Writer, st *connState, inj injection) bool {
	switch inj.kind {
	case injectHeartbeat:
		srv.mu.Unlock()
		err := writeFrame(writer, wire.Header{Size: wire.InSyncLen, Index: 0}, nil)
		srv.mu.Lock()
		return err == nil

	case injectPadding:
		srv.mu.Unlock()
		err := writeFrame(writer, wire.Header{Size: wire.PaddedLen, Index: 0}, nil)
		srv.mu.Lock()
		return err == nil

	case injectCorrupt:
		srv.mu.Unlock()
		err := writeFrame(writer, wire.Header{Size: inj.corruptSize, Index: 0}, nil)
		srv.mu.Lock()
		return err == nil

	case injectCut:
		if st.cursor >= int64(len(srv.records)) {
			connLogger.Error("no record to cut")
			return true
		}
		index := st.cursor
		payload := srv.records[index]
		cut := inj.cutBytes
		if cut > len(payload) {
			cut = len(payload)
		}
		srv.mu.Unlock()
		err := writeFrame(writer, wire.Header{Size: int32(len(payload)), Index: index}, payload[:cut])
		srv.mu.Lock()
		if err != nil {
			connLogger.Infof("failed to send cut record: %s", err.Error())
		}
		// drop the connection mid-record; the sink reconnects and the record is resent whole
		st.dead = true
		st.conn.Close()
		return false
	}
	return true
}

func readResumeRequest(conn net.Conn) (int64, bool) {
	var b [8]byte
	if _, err := io.ReadFull(conn, b[:]); err != nil {
		return 0, false
	}
	return wire.DecodeResumeRequest(b[:]), true
}

func writeFrame(writer io.Writer, hdr wire.Header, payload []byte) error {
	frame := wire.AppendHeader(make([]byte, 0, wire.HeaderSize+len(payload)), hdr)
	frame = append(frame, payload...)
	for len(frame) > 0 {
		n, err := writer.Write(frame)
		if err != nil {
			return err
		}
		frame = frame[n:]
	}
	return nil
}
