package types

import (
	"errors"
	"fmt"
)

var (
	ErrNotStarted     = errors.New("transport has not been started")
	ErrAlreadyStarted = errors.New("transport has already been started")
	ErrUnknownClient  = errors.New("unknown client")
	ErrNotConnected   = errors.New("not connected")
)

type ClientID = uint64

// The server is always reachable by clients at this id.
const ServerClientID ClientID = 0

type NetworkEvent uint8

const (
	Nothing NetworkEvent = iota
	Connect
	Disconnect
	Data
)

func (event NetworkEvent) String() string {
	switch event {
	case Nothing:
		return "Nothing"
	case Connect:
		return "Connect"
	case Disconnect:
		return "Disconnect"
	case Data:
		return "Data"
	default:
		return fmt.Sprintf("NetworkEvent(%d)", uint8(event))
	}
}

type NetworkDelivery uint8

const (
	Unreliable NetworkDelivery = iota
	UnreliableSequenced
	Reliable
	ReliableSequenced
	// Fragmentation is left to the transport. Delivered like ReliableSequenced.
	ReliableFragmentedSequenced
)

func (delivery NetworkDelivery) IsReliable() bool {
	return delivery == Reliable || delivery == ReliableSequenced || delivery == ReliableFragmentedSequenced
}

func (delivery NetworkDelivery) IsSequenced() bool {
	return delivery == UnreliableSequenced || delivery == ReliableSequenced || delivery == ReliableFragmentedSequenced
}

func (delivery NetworkDelivery) String() string {
	switch delivery {
	case Unreliable:
		return "Unreliable"
	case UnreliableSequenced:
		return "UnreliableSequenced"
	case Reliable:
		return "Reliable"
	case ReliableSequenced:
		return "ReliableSequenced"
	case ReliableFragmentedSequenced:
		return "ReliableFragmentedSequenced"
	default:
		return fmt.Sprintf("NetworkDelivery(%d)", uint8(delivery))
	}
}

type TransportEvent struct {
	Type     NetworkEvent
	ClientID ClientID
	Payload  []byte
}

// Transport moves opaque payloads between a server and its clients.
// PollEvent never blocks.
type Transport interface {
	StartServer() error
	StartClient() error

	Send(clientID ClientID, payload []byte, delivery NetworkDelivery) error

	// Returns the next pending event, if any.
	PollEvent() (TransportEvent, bool)

	// Called by the server to kick a client.
	DisconnectRemoteClient(clientID ClientID) error

	// Called by a client to leave the server.
	DisconnectLocalClient() error

	ServerClientID() ClientID

	// The id the server assigned to this endpoint. ServerClientID on the server.
	LocalClientID() ClientID

	Shutdown() error
}
