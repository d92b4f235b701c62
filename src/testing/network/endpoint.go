package network

import (
	"fmt"

	"github.com/poorlydefinedbehaviour/netcode-go/src/ringbuffer"
	"github.com/poorlydefinedbehaviour/netcode-go/src/set"
	"github.com/poorlydefinedbehaviour/netcode-go/src/types"
)

type packetKind uint8

const (
	packetConnectRequest packetKind = iota
	packetConnectAccept
	packetDisconnect
	packetData
)

func (kind packetKind) String() string {
	switch kind {
	case packetConnectRequest:
		return "ConnectRequest"
	case packetConnectAccept:
		return "ConnectAccept"
	case packetDisconnect:
		return "Disconnect"
	default:
		return "Data"
	}
}

type packet struct {
	kind     packetKind
	delivery types.NetworkDelivery
	// Position in the packet's channel. Zero for unsequenced packets.
	sequence uint64
	payload  []byte
}

// Control packets are always reliable.
func (packet packet) isReliable() bool {
	return packet.kind != packetData || packet.delivery.IsReliable()
}

// Control packets travel on their own ordered channel.
const controlChannel uint8 = 255

func (packet packet) channel() uint8 {
	if packet.kind != packetData {
		return controlChannel
	}
	if packet.delivery == types.ReliableFragmentedSequenced {
		return uint8(types.ReliableSequenced)
	}
	return uint8(packet.delivery)
}

func (packet packet) isOrdered() bool {
	return packet.kind != packetData || packet.delivery.IsSequenced()
}

type channelKey struct {
	peer    types.ClientID
	channel uint8
}

type channelState struct {
	nextSendSequence uint64
	// Next sequence to hand to the application on reliable channels.
	nextExpected uint64
	// Last sequence handed to the application on unreliable channels.
	lastDelivered uint64
	heldBack      map[uint64]packet
}

type receiveResult uint8

const (
	resultDelivered receiveResult = iota
	// The endpoint cannot take the packet right now.
	resultRetry
	resultDiscarded
)

type role uint8

const (
	roleNone role = iota
	roleServer
	roleClient
)

type clientState uint8

const (
	clientConnecting clientState = iota
	clientConnected
	clientDisconnected
)

// Endpoint is one participant of a simulated Network. It implements
// types.Transport.
type Endpoint struct {
	network *Network

	id   types.ClientID
	role role

	// Client side.
	state clientState

	// Server side.
	peers *set.T[types.ClientID]

	events *ringbuffer.RingBuffer[types.TransportEvent]

	channels     map[channelKey]*channelState
	channelOrder []channelKey

	shutdown bool
}

var _ types.Transport = (*Endpoint)(nil)

func newEndpoint(network *Network, maxEventQueueSize int) (*Endpoint, error) {
	events, err := ringbuffer.New[types.TransportEvent](maxEventQueueSize)
	if err != nil {
		return nil, fmt.Errorf("creating endpoint event queue: %w", err)
	}

	return &Endpoint{
		network:  network,
		peers:    set.New[types.ClientID](),
		events:   events,
		channels: make(map[channelKey]*channelState),
	}, nil
}

func (endpoint *Endpoint) StartServer() error {
	if endpoint.role != roleNone || endpoint.shutdown {
		return fmt.Errorf("starting server: %w", types.ErrAlreadyStarted)
	}
	if _, ok := endpoint.network.endpoints[types.ServerClientID]; ok {
		return fmt.Errorf("starting server: %w", ErrServerAlreadyStarted)
	}

	endpoint.role = roleServer
	endpoint.id = types.ServerClientID
	endpoint.network.register(endpoint)

	return nil
}

func (endpoint *Endpoint) StartClient() error {
	if endpoint.role != roleNone || endpoint.shutdown {
		return fmt.Errorf("starting client: %w", types.ErrAlreadyStarted)
	}

	endpoint.role = roleClient
	endpoint.id = endpoint.network.allocateClientID()
	endpoint.state = clientConnecting
	endpoint.network.register(endpoint)

	endpoint.sendPacket(types.ServerClientID, packet{kind: packetConnectRequest})

	return nil
}

func (endpoint *Endpoint) ServerClientID() types.ClientID {
	return types.ServerClientID
}

func (endpoint *Endpoint) LocalClientID() types.ClientID {
	return endpoint.id
}

func (endpoint *Endpoint) Send(clientID types.ClientID, payload []byte, delivery types.NetworkDelivery) error {
	switch endpoint.role {
	case roleNone:
		return fmt.Errorf("sending message: %w", types.ErrNotStarted)

	case roleServer:
		if !endpoint.peers.Contains(clientID) {
			return fmt.Errorf("sending message: clientID=%d %w", clientID, types.ErrUnknownClient)
		}

	case roleClient:
		if clientID != types.ServerClientID {
			return fmt.Errorf("sending message: clientID=%d %w", clientID, types.ErrUnknownClient)
		}
		if endpoint.state != clientConnected {
			return fmt.Errorf("sending message: %w", types.ErrNotConnected)
		}
	}

	endpoint.sendPacket(clientID, packet{
		kind:     packetData,
		delivery: delivery,
		payload:  append([]byte(nil), payload...),
	})

	return nil
}

func (endpoint *Endpoint) PollEvent() (types.TransportEvent, bool) {
	return endpoint.events.Pop()
}

func (endpoint *Endpoint) DisconnectRemoteClient(clientID types.ClientID) error {
	if endpoint.role != roleServer {
		return fmt.Errorf("disconnecting remote client: %w", ErrNotServer)
	}
	if !endpoint.peers.Contains(clientID) {
		return fmt.Errorf("disconnecting remote client: clientID=%d %w", clientID, types.ErrUnknownClient)
	}
	if err := endpoint.events.Push(types.TransportEvent{Type: types.Disconnect, ClientID: clientID}); err != nil {
		return fmt.Errorf("disconnecting remote client: clientID=%d %w", clientID, ErrEndpointQueueIsFull)
	}

	endpoint.peers.Remove(clientID)
	endpoint.sendPacket(clientID, packet{kind: packetDisconnect})

	return nil
}

func (endpoint *Endpoint) DisconnectLocalClient() error {
	if endpoint.role != roleClient {
		return fmt.Errorf("disconnecting local client: %w", ErrNotClient)
	}
	if endpoint.state == clientDisconnected {
		return fmt.Errorf("disconnecting local client: %w", types.ErrNotConnected)
	}
	if err := endpoint.events.Push(types.TransportEvent{Type: types.Disconnect, ClientID: types.ServerClientID}); err != nil {
		return fmt.Errorf("disconnecting local client: %w", ErrEndpointQueueIsFull)
	}

	endpoint.state = clientDisconnected
	endpoint.sendPacket(types.ServerClientID, packet{kind: packetDisconnect})

	return nil
}

// Leaves the network. Connected peers are told about it.
func (endpoint *Endpoint) Shutdown() error {
	if endpoint.shutdown {
		return nil
	}

	switch endpoint.role {
	case roleServer:
		for _, peer := range endpoint.peers.Members() {
			endpoint.sendPacket(peer, packet{kind: packetDisconnect})
			endpoint.peers.Remove(peer)
		}
	case roleClient:
		if endpoint.state != clientDisconnected {
			endpoint.sendPacket(types.ServerClientID, packet{kind: packetDisconnect})
			endpoint.state = clientDisconnected
		}
	}

	if endpoint.role != roleNone {
		endpoint.network.unregister(endpoint)
	}
	endpoint.shutdown = true

	return nil
}

func (endpoint *Endpoint) channelFor(key channelKey) *channelState {
	state, ok := endpoint.channels[key]
	if !ok {
		state = &channelState{nextExpected: 1, heldBack: make(map[uint64]packet)}
		endpoint.channels[key] = state
		endpoint.channelOrder = append(endpoint.channelOrder, key)
	}
	return state
}

func (endpoint *Endpoint) sendPacket(to types.ClientID, packet packet) {
	if packet.isOrdered() {
		state := endpoint.channelFor(channelKey{peer: to, channel: packet.channel()})
		state.nextSendSequence++
		packet.sequence = state.nextSendSequence
	}

	endpoint.network.send(endpoint.id, to, packet)
}

func (endpoint *Endpoint) hasHeldBackPackets() bool {
	for _, state := range endpoint.channels {
		if len(state.heldBack) > 0 {
			return true
		}
	}
	return false
}

// Hands held back packets to the application once there is room for them.
func (endpoint *Endpoint) flushHeldBackPackets() {
	for _, key := range endpoint.channelOrder {
		endpoint.drain(key.peer, endpoint.channels[key])
	}
}

func (endpoint *Endpoint) drain(from types.ClientID, state *channelState) {
	for {
		next, ok := state.heldBack[state.nextExpected]
		if !ok {
			return
		}
		if endpoint.process(from, next) == resultRetry {
			return
		}
		delete(state.heldBack, state.nextExpected)
		state.nextExpected++
	}
}

func (endpoint *Endpoint) receive(from types.ClientID, packet packet) receiveResult {
	if !packet.isOrdered() {
		return endpoint.process(from, packet)
	}

	state := endpoint.channelFor(channelKey{peer: from, channel: packet.channel()})

	if !packet.isReliable() {
		if packet.sequence <= state.lastDelivered {
			return resultDiscarded
		}
		result := endpoint.process(from, packet)
		if result == resultDelivered {
			state.lastDelivered = packet.sequence
		}
		return result
	}

	if packet.sequence < state.nextExpected {
		return resultDiscarded
	}

	state.heldBack[packet.sequence] = packet
	endpoint.drain(from, state)

	return resultDelivered
}

func (endpoint *Endpoint) push(event types.TransportEvent) receiveResult {
	if err := endpoint.events.Push(event); err != nil {
		return resultRetry
	}
	return resultDelivered
}

func (endpoint *Endpoint) process(from types.ClientID, incoming packet) receiveResult {
	if endpoint.events.IsFull() {
		return resultRetry
	}

	switch incoming.kind {
	case packetConnectRequest:
		if endpoint.role != roleServer || endpoint.peers.Contains(from) {
			return resultDiscarded
		}
		endpoint.peers.Insert(from)
		endpoint.sendPacket(from, packet{kind: packetConnectAccept})
		return endpoint.push(types.TransportEvent{Type: types.Connect, ClientID: from})

	case packetConnectAccept:
		if endpoint.role != roleClient || endpoint.state != clientConnecting {
			return resultDiscarded
		}
		endpoint.state = clientConnected
		return endpoint.push(types.TransportEvent{Type: types.Connect, ClientID: types.ServerClientID})

	case packetDisconnect:
		switch endpoint.role {
		case roleServer:
			if !endpoint.peers.Remove(from) {
				return resultDiscarded
			}
			return endpoint.push(types.TransportEvent{Type: types.Disconnect, ClientID: from})
		case roleClient:
			if endpoint.state == clientDisconnected {
				return resultDiscarded
			}
			endpoint.state = clientDisconnected
			return endpoint.push(types.TransportEvent{Type: types.Disconnect, ClientID: types.ServerClientID})
		}
		return resultDiscarded

	default:
		switch endpoint.role {
		case roleServer:
			if !endpoint.peers.Contains(from) {
				return resultDiscarded
			}
		case roleClient:
			// The accept may still be on its way.
			if endpoint.state == clientConnecting {
				return resultRetry
			}
			if endpoint.state == clientDisconnected {
				return resultDiscarded
			}
		default:
			return resultDiscarded
		}
		return endpoint.push(types.TransportEvent{Type: types.Data, ClientID: from, Payload: incoming.payload})
	}
}
