package resp

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/salviati-labs/cuckoofilter/cuckoo"
	"github.com/salviati-labs/cuckoofilter/internal/cluster"
	"github.com/salviati-labs/cuckoofilter/internal/logging"
)

// Server is a RESP server exposing PUT/CONTAINS/DEL/COUNT/STATS/
// LOADFACTOR commands against a single shared cuckoo.Filter. When a
// cluster.Broadcaster is configured, successful PUT/DEL commands are
// broadcast to every other replica holding the same filter.
type Server struct {
	address     string
	filter      *cuckoo.Filter
	broadcaster cluster.Broadcaster
	nodeID      string

	listener net.Listener
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	running  atomic.Bool

	connMu      sync.Mutex
	connections map[net.Conn]struct{}

	commandsProcessed atomic.Uint64
	errorsEncountered atomic.Uint64
}

// NewServer constructs a server. If broadcaster is non-nil, Start also
// launches a goroutine that applies inbound replicated mutations to
// filter.
func NewServer(address string, filter *cuckoo.Filter, broadcaster cluster.Broadcaster, nodeID string) *Server {
	return &Server{
		address:     address,
		filter:      filter,
		broadcaster: broadcaster,
		nodeID:      nodeID,
		connections: make(map[net.Conn]struct{}),
	}
}

// Start binds the listener and begins accepting connections. It returns
// once the listener is bound; connection handling runs in the
// background until Stop is called or ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("resp: server already running")
	}

	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("resp: listen on %s: %w", s.address, err)
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	if s.broadcaster != nil {
		s.wg.Add(1)
		go s.applyRemoteMutations()
	}

	logging.Info(s.ctx, logging.ComponentRESP, logging.ActionStart, "resp server listening",
		map[string]interface{}{"address": s.address})
	return nil
}

// Stop closes the listener and every open connection, then waits for
// background goroutines to exit.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return fmt.Errorf("resp: server not running")
	}
	s.cancel()
	s.listener.Close()

	s.connMu.Lock()
	for conn := range s.connections {
		conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}
			continue
		}

		s.connMu.Lock()
		s.connections[conn] = struct{}{}
		s.connMu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.connMu.Lock()
		delete(s.connections, conn)
		s.connMu.Unlock()
	}()

	reader := NewReader(conn)
	var reply Reply

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		value, err := reader.ReadValue()
		if err != nil {
			return
		}

		cmd, err := AsCommand(value)
		if err != nil {
			conn.Write(reply.Error(err.Error()))
			s.errorsEncountered.Add(1)
			continue
		}

		response, err := s.dispatch(cmd)
		if err != nil {
			conn.Write(reply.Error(err.Error()))
			s.errorsEncountered.Add(1)
		} else {
			conn.Write(response)
		}
		s.commandsProcessed.Add(1)
	}
}

func (s *Server) dispatch(cmd Command) ([]byte, error) {
	var reply Reply
	switch cmd.Verb {
	case "PUT":
		return s.handlePut(cmd, reply)
	case "CONTAINS":
		return s.handleContains(cmd, reply)
	case "DEL":
		return s.handleDel(cmd, reply)
	case "COUNT":
		return s.handleCount(cmd, reply)
	case "STATS":
		return s.handleStats(cmd, reply)
	case "LOADFACTOR":
		return s.handleLoadFactor(cmd, reply)
	case "PING":
		return reply.OK(), nil
	default:
		return nil, fmt.Errorf("unknown command %q", cmd.Verb)
	}
}

func (s *Server) handlePut(cmd Command, reply Reply) ([]byte, error) {
	if len(cmd.Args) != 1 {
		return nil, fmt.Errorf("PUT requires exactly one argument")
	}
	item := []byte(cmd.Args[0])

	if !s.filter.Put(item) {
		logging.Warn(s.ctx, logging.ComponentFilter, logging.ActionEviction,
			"put rejected: both candidate buckets are full and the victim slot is already occupied",
			map[string]interface{}{"load_factor": s.filter.GetLoadFactor()})
		return reply.Integer(0), nil
	}
	s.broadcastMutation(cluster.OpPut, item)
	return reply.Integer(1), nil
}

func (s *Server) handleContains(cmd Command, reply Reply) ([]byte, error) {
	if len(cmd.Args) != 1 {
		return nil, fmt.Errorf("CONTAINS requires exactly one argument")
	}
	if s.filter.MightContain([]byte(cmd.Args[0])) {
		return reply.Integer(1), nil
	}
	return reply.Integer(0), nil
}

func (s *Server) handleDel(cmd Command, reply Reply) ([]byte, error) {
	if len(cmd.Args) != 1 {
		return nil, fmt.Errorf("DEL requires exactly one argument")
	}
	item := []byte(cmd.Args[0])

	if !s.filter.Delete(item) {
		return reply.Integer(0), nil
	}
	s.broadcastMutation(cluster.OpDelete, item)
	return reply.Integer(1), nil
}

func (s *Server) handleCount(cmd Command, reply Reply) ([]byte, error) {
	if len(cmd.Args) != 1 {
		return nil, fmt.Errorf("COUNT requires exactly one argument")
	}
	return reply.Integer(int64(s.filter.ApproximateCount([]byte(cmd.Args[0])))), nil
}

func (s *Server) handleStats(cmd Command, reply Reply) ([]byte, error) {
	stats := fmt.Sprintf(
		"count:%d capacity:%d load_factor:%.4f storage_bits:%d algorithm:%s commands_processed:%d errors:%d",
		s.filter.GetCount(), s.filter.GetActualCapacity(), s.filter.GetLoadFactor(),
		s.filter.GetStorageSize(), s.filter.AlgorithmID(), s.commandsProcessed.Load(), s.errorsEncountered.Load())
	return reply.BulkString(stats), nil
}

func (s *Server) handleLoadFactor(cmd Command, reply Reply) ([]byte, error) {
	return reply.BulkString(strconv.FormatFloat(s.filter.GetLoadFactor(), 'f', 6, 64)), nil
}

func (s *Server) broadcastMutation(op cluster.MutationOp, item []byte) {
	if s.broadcaster == nil {
		return
	}
	correlationID := logging.NewCorrelationID()
	event := cluster.MutationEvent{Op: op, Item: item, CorrelationID: correlationID, OriginNodeID: s.nodeID}
	if err := s.broadcaster.Broadcast(s.ctx, event); err != nil {
		logging.Warn(s.ctx, logging.ComponentRESP, logging.ActionReplication,
			"failed to broadcast mutation", map[string]interface{}{"error": err.Error()})
	}
}

// applyRemoteMutations consumes mutations broadcast by other replicas
// and applies them to the local filter, so every node converges on the
// same logical contents.
func (s *Server) applyRemoteMutations() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case mutation, ok := <-s.broadcaster.Mutations():
			if !ok {
				return
			}
			switch mutation.Op {
			case cluster.OpPut:
				s.filter.Put(mutation.Item)
			case cluster.OpDelete:
				s.filter.Delete(mutation.Item)
			}
		}
	}
}
