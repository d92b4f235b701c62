package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/poorlydefinedbehaviour/netcode-go/src/mapx"
	"github.com/poorlydefinedbehaviour/netcode-go/src/types"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var ErrHandshake = errors.New("handshake failed")

type connection struct {
	id      types.ClientID
	conn    net.Conn
	writeMu sync.Mutex
}

func (connection *connection) write(kind frameKind, payload []byte) error {
	connection.writeMu.Lock()
	defer connection.writeMu.Unlock()

	return writeFrame(connection.conn, kind, payload)
}

type role uint8

const (
	roleNone role = iota
	roleServer
	roleClient
)

// TCP implements types.Transport over TCP. Every delivery mode is reliable
// and ordered. Each connection has a reader goroutine feeding the event
// queue; PollEvent never blocks.
type TCP struct {
	address     string
	dialTimeout time.Duration
	logger      *zap.SugaredLogger

	mu           sync.Mutex
	role         role
	listener     net.Listener
	connections  map[types.ClientID]*connection
	nextClientID types.ClientID
	localID      types.ClientID
	events       []types.TransportEvent
	shutdown     bool

	wg sync.WaitGroup
}

var _ types.Transport = (*TCP)(nil)

func NewTCP(address string, dialTimeout time.Duration, logger *zap.SugaredLogger) *TCP {
	return &TCP{
		address:      address,
		dialTimeout:  dialTimeout,
		logger:       logger,
		connections:  make(map[types.ClientID]*connection),
		nextClientID: types.ServerClientID + 1,
	}
}

// The address the server listens on. Useful when listening on port 0.
func (tcp *TCP) Address() string {
	tcp.mu.Lock()
	defer tcp.mu.Unlock()

	if tcp.listener == nil {
		return tcp.address
	}
	return tcp.listener.Addr().String()
}

func (tcp *TCP) StartServer() error {
	tcp.mu.Lock()
	defer tcp.mu.Unlock()

	if tcp.role != roleNone || tcp.shutdown {
		return fmt.Errorf("starting tcp server: %w", types.ErrAlreadyStarted)
	}

	listener, err := net.Listen("tcp", tcp.address)
	if err != nil {
		return fmt.Errorf("starting tcp server: address=%s %w", tcp.address, err)
	}

	tcp.role = roleServer
	tcp.listener = listener
	tcp.localID = types.ServerClientID

	tcp.wg.Add(1)
	go tcp.acceptLoop(listener)

	tcp.logger.Debugw("tcp server listening", "address", listener.Addr().String())

	return nil
}

func (tcp *TCP) acceptLoop(listener net.Listener) {
	defer tcp.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			tcp.logger.Debugw("tcp accept loop stopped", "err", err)
			return
		}

		tcp.mu.Lock()
		if tcp.shutdown {
			tcp.mu.Unlock()
			_ = conn.Close()
			return
		}
		id := tcp.nextClientID
		tcp.nextClientID++
		client := &connection{id: id, conn: conn}
		tcp.mu.Unlock()

		var accept [8]byte
		binary.LittleEndian.PutUint64(accept[:], id)
		if err := client.write(frameAccept, accept[:]); err != nil {
			tcp.logger.Debugw("tcp accept handshake failed", "clientID", id, "err", err)
			_ = conn.Close()
			continue
		}

		tcp.mu.Lock()
		if tcp.shutdown {
			tcp.mu.Unlock()
			_ = conn.Close()
			return
		}
		tcp.connections[id] = client
		tcp.events = append(tcp.events, types.TransportEvent{Type: types.Connect, ClientID: id})
		tcp.mu.Unlock()

		tcp.wg.Add(1)
		go tcp.readLoop(client, bufio.NewReader(conn))
	}
}

func (tcp *TCP) StartClient() error {
	tcp.mu.Lock()
	if tcp.role != roleNone || tcp.shutdown {
		tcp.mu.Unlock()
		return fmt.Errorf("starting tcp client: %w", types.ErrAlreadyStarted)
	}
	tcp.role = roleClient
	tcp.mu.Unlock()

	conn, err := net.DialTimeout("tcp", tcp.address, tcp.dialTimeout)
	if err != nil {
		tcp.resetRole()
		return fmt.Errorf("starting tcp client: address=%s %w", tcp.address, err)
	}

	reader := bufio.NewReader(conn)

	if tcp.dialTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(tcp.dialTimeout))
	}
	kind, payload, err := readFrame(reader)
	if err == nil && (kind != frameAccept || len(payload) != 8) {
		err = fmt.Errorf("kind=%d size=%d %w", kind, len(payload), ErrHandshake)
	}
	if err != nil {
		_ = conn.Close()
		tcp.resetRole()
		return fmt.Errorf("starting tcp client: reading accept: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	server := &connection{id: types.ServerClientID, conn: conn}

	tcp.mu.Lock()
	tcp.localID = binary.LittleEndian.Uint64(payload)
	tcp.connections[types.ServerClientID] = server
	tcp.events = append(tcp.events, types.TransportEvent{Type: types.Connect, ClientID: types.ServerClientID})
	tcp.mu.Unlock()

	tcp.wg.Add(1)
	go tcp.readLoop(server, reader)

	return nil
}

// Lets a client whose connection attempt failed try again.
func (tcp *TCP) resetRole() {
	tcp.mu.Lock()
	defer tcp.mu.Unlock()

	tcp.role = roleNone
}

func (tcp *TCP) readLoop(connection *connection, reader *bufio.Reader) {
	defer tcp.wg.Done()

	for {
		kind, payload, err := readFrame(reader)
		if err != nil {
			tcp.logger.Debugw("tcp connection closed", "clientID", connection.id, "err", err)
			break
		}
		if kind != frameData {
			tcp.logger.Debugw("unexpected tcp frame", "clientID", connection.id, "kind", kind)
			continue
		}

		tcp.mu.Lock()
		tcp.events = append(tcp.events, types.TransportEvent{Type: types.Data, ClientID: connection.id, Payload: payload})
		tcp.mu.Unlock()
	}

	tcp.mu.Lock()
	defer tcp.mu.Unlock()

	// Connections closed locally already reported their disconnect.
	if current, ok := tcp.connections[connection.id]; ok && current == connection {
		delete(tcp.connections, connection.id)
		_ = connection.conn.Close()
		tcp.events = append(tcp.events, types.TransportEvent{Type: types.Disconnect, ClientID: connection.id})
	}
}

func (tcp *TCP) Send(clientID types.ClientID, payload []byte, delivery types.NetworkDelivery) error {
	tcp.mu.Lock()
	currentRole := tcp.role
	connection, ok := tcp.connections[clientID]
	tcp.mu.Unlock()

	switch {
	case currentRole == roleNone:
		return fmt.Errorf("sending tcp message: %w", types.ErrNotStarted)
	case currentRole == roleClient && !ok:
		if clientID != types.ServerClientID {
			return fmt.Errorf("sending tcp message: clientID=%d %w", clientID, types.ErrUnknownClient)
		}
		return fmt.Errorf("sending tcp message: %w", types.ErrNotConnected)
	case !ok:
		return fmt.Errorf("sending tcp message: clientID=%d %w", clientID, types.ErrUnknownClient)
	}

	if err := connection.write(frameData, payload); err != nil {
		return fmt.Errorf("sending tcp message: clientID=%d delivery=%s %w", clientID, delivery, err)
	}

	return nil
}

func (tcp *TCP) PollEvent() (types.TransportEvent, bool) {
	tcp.mu.Lock()
	defer tcp.mu.Unlock()

	if len(tcp.events) == 0 {
		return types.TransportEvent{}, false
	}

	event := tcp.events[0]
	tcp.events[0] = types.TransportEvent{}
	tcp.events = tcp.events[1:]

	return event, true
}

func (tcp *TCP) closeConnection(clientID types.ClientID) error {
	tcp.mu.Lock()
	defer tcp.mu.Unlock()

	connection, ok := tcp.connections[clientID]
	if !ok {
		return types.ErrUnknownClient
	}

	delete(tcp.connections, clientID)
	tcp.events = append(tcp.events, types.TransportEvent{Type: types.Disconnect, ClientID: clientID})

	return connection.conn.Close()
}

func (tcp *TCP) currentRole() role {
	tcp.mu.Lock()
	defer tcp.mu.Unlock()

	return tcp.role
}

func (tcp *TCP) DisconnectRemoteClient(clientID types.ClientID) error {
	if tcp.currentRole() != roleServer {
		return fmt.Errorf("disconnecting remote tcp client: %w", types.ErrNotStarted)
	}
	if err := tcp.closeConnection(clientID); err != nil {
		return fmt.Errorf("disconnecting remote tcp client: clientID=%d %w", clientID, err)
	}
	return nil
}

func (tcp *TCP) DisconnectLocalClient() error {
	if tcp.currentRole() != roleClient {
		return fmt.Errorf("disconnecting local tcp client: %w", types.ErrNotStarted)
	}
	if err := tcp.closeConnection(types.ServerClientID); err != nil {
		if errors.Is(err, types.ErrUnknownClient) {
			return fmt.Errorf("disconnecting local tcp client: %w", types.ErrNotConnected)
		}
		return fmt.Errorf("disconnecting local tcp client: %w", err)
	}
	return nil
}

func (tcp *TCP) ServerClientID() types.ClientID {
	return types.ServerClientID
}

func (tcp *TCP) LocalClientID() types.ClientID {
	tcp.mu.Lock()
	defer tcp.mu.Unlock()

	return tcp.localID
}

// Closes the listener and every connection, then waits for the reader
// goroutines to exit.
func (tcp *TCP) Shutdown() error {
	tcp.mu.Lock()
	if tcp.shutdown {
		tcp.mu.Unlock()
		return nil
	}
	tcp.shutdown = true

	var err error
	if tcp.listener != nil {
		err = multierr.Append(err, tcp.listener.Close())
	}
	for _, id := range mapx.SortedKeys(tcp.connections) {
		err = multierr.Append(err, tcp.connections[id].conn.Close())
		delete(tcp.connections, id)
	}
	tcp.mu.Unlock()

	tcp.wg.Wait()

	if err != nil {
		return fmt.Errorf("shutting down tcp transport: %w", err)
	}
	return nil
}
