package network

import (
	"container/heap"
	"errors"
	"fmt"

	"github.com/poorlydefinedbehaviour/netcode-go/src/assert"
	"github.com/poorlydefinedbehaviour/netcode-go/src/mapx"
	"github.com/poorlydefinedbehaviour/netcode-go/src/rand"
	"github.com/poorlydefinedbehaviour/netcode-go/src/types"
	"go.uber.org/zap"
)

var (
	ErrInvalidConfig        = errors.New("invalid network config")
	ErrServerAlreadyStarted = errors.New("network already has a server")
	ErrNotServer            = errors.New("endpoint is not a server")
	ErrNotClient            = errors.New("endpoint is not a client")
	ErrEndpointQueueIsFull  = errors.New("endpoint event queue is full")
)

const defaultMaxEventQueueSize = 1024

type NetworkConfig struct {
	PathClogProbability      float64
	MessageReplayProbability float64
	DropMessageProbability   float64
	MaxNetworkPathClogTicks  uint64
	MaxMessageDelayTicks     uint64
	// Capacity of each endpoint's receive queue. Defaults to 1024.
	MaxEventQueueSize int
}

func (config NetworkConfig) Validate() error {
	probabilities := map[string]float64{
		"PathClogProbability":      config.PathClogProbability,
		"MessageReplayProbability": config.MessageReplayProbability,
		"DropMessageProbability":   config.DropMessageProbability,
	}
	for _, name := range mapx.SortedKeys(probabilities) {
		p := probabilities[name]
		if !(p >= 0 && p <= 1) {
			return fmt.Errorf("%s must be in [0, 1]: got=%v %w", name, p, ErrInvalidConfig)
		}
	}
	if config.MaxEventQueueSize < 0 {
		return fmt.Errorf("MaxEventQueueSize must not be negative: got=%d %w", config.MaxEventQueueSize, ErrInvalidConfig)
	}
	return nil
}

// Network simulates a star of endpoints: one server and any number of
// clients. Messages are delayed, reordered, clogged, dropped and replayed
// according to the config, deterministically for a given rand seed.
type Network struct {
	config NetworkConfig

	rand rand.Random

	logger *zap.SugaredLogger

	ticks uint64

	// Used to break ties between messages due on the same tick.
	sequence uint64

	nextClientID types.ClientID

	endpoints map[types.ClientID]*Endpoint

	// The network path from endpoint A to endpoint B, in creation order.
	networkPaths []*NetworkPath
	pathIndex    map[pathKey]*NetworkPath

	// Messages that need to be delivered to an endpoint.
	sendMessageQueue PriorityQueue
}

type pathKey struct {
	from types.ClientID
	to   types.ClientID
}

type NetworkPath struct {
	from                   types.ClientID
	to                     types.ClientID
	makeReachableAfterTick uint64
}

type MessageToSend struct {
	CanBeDeliveredAtTick uint64
	Sequence             uint64
	From                 types.ClientID
	To                   types.ClientID
	packet               packet
	Index                int
}

// Message is an application payload still travelling through the network.
type Message struct {
	Payload  []byte
	Delivery types.NetworkDelivery
}

func New(config NetworkConfig, rand rand.Random, logger *zap.SugaredLogger) (*Network, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("creating network: %w", err)
	}
	if config.MaxEventQueueSize == 0 {
		config.MaxEventQueueSize = defaultMaxEventQueueSize
	}

	return &Network{
		config:           config,
		rand:             rand,
		logger:           logger,
		nextClientID:     types.ServerClientID + 1,
		endpoints:        make(map[types.ClientID]*Endpoint),
		pathIndex:        make(map[pathKey]*NetworkPath),
		sendMessageQueue: make(PriorityQueue, 0),
	}, nil
}

// Returns an endpoint that becomes reachable once it is started as a server
// or as a client.
func (network *Network) NewEndpoint() (*Endpoint, error) {
	return newEndpoint(network, network.config.MaxEventQueueSize)
}

func (network *Network) Ticks() uint64 {
	return network.ticks
}

func (network *Network) debug(message string, keysAndValues ...interface{}) {
	network.logger.Debugw("NETWORK: "+message, append([]interface{}{"tick", network.ticks}, keysAndValues...)...)
}

func (network *Network) register(endpoint *Endpoint) {
	_, exists := network.endpoints[endpoint.id]
	assert.True(!exists, "endpoint registered twice: id=%d", endpoint.id)
	network.endpoints[endpoint.id] = endpoint
}

func (network *Network) unregister(endpoint *Endpoint) {
	delete(network.endpoints, endpoint.id)
}

func (network *Network) allocateClientID() types.ClientID {
	id := network.nextClientID
	network.nextClientID++
	return id
}

// Messages from `from` to `to` that may be delivered in the future.
func (network *Network) MessagesFromTo(from, to types.ClientID) []Message {
	messages := make([]Message, 0)

	for _, message := range network.sendMessageQueue {
		if message.From == from && message.To == to && message.packet.kind == packetData {
			messages = append(messages, Message{
				Payload:  message.packet.payload,
				Delivery: message.packet.delivery,
			})
		}
	}

	return messages
}

func (network *Network) send(from, to types.ClientID, packet packet) {
	assert.True(from != to, "endpoint cannot send message to itself: id=%d", from)

	network.debug("SEND", "from", from, "to", to, "kind", packet.kind, "delivery", packet.delivery)

	network.schedule(from, to, packet, network.randomDelay())
}

func (network *Network) schedule(from, to types.ClientID, packet packet, atTick uint64) {
	network.sequence++
	heap.Push(&network.sendMessageQueue, &MessageToSend{
		CanBeDeliveredAtTick: atTick,
		Sequence:             network.sequence,
		From:                 from,
		To:                   to,
		packet:               packet,
	})
}

func (network *Network) randomDelay() uint64 {
	return network.ticks + network.rand.GenBetween(0, network.config.MaxMessageDelayTicks) + 1
}

// Returns `true` when there are messages in the network, or held back by an
// endpoint, that will be delivered some time in the future.
func (network *Network) HasPendingMessages() bool {
	if len(network.sendMessageQueue) > 0 {
		return true
	}
	for _, endpoint := range network.endpoints {
		if endpoint.hasHeldBackPackets() {
			return true
		}
	}
	return false
}

func (network *Network) Tick() {
	network.ticks++

	for _, path := range network.networkPaths {
		shouldMakeUnreachable := network.rand.GenBool(network.config.PathClogProbability)
		if shouldMakeUnreachable {
			path.makeReachableAfterTick = network.ticks + network.rand.GenBetween(0, network.config.MaxNetworkPathClogTicks)
			network.debug("UNREACHABLE", "untilTick", path.makeReachableAfterTick, "from", path.from, "to", path.to)
		}
	}

	for _, id := range mapx.SortedKeys(network.endpoints) {
		network.endpoints[id].flushHeldBackPackets()
	}

	for {
		oldestMessage, ok := network.sendMessageQueue.Peek()
		if !ok || oldestMessage.CanBeDeliveredAtTick > network.ticks {
			return
		}
		heap.Pop(&network.sendMessageQueue)

		network.deliver(oldestMessage)
	}
}

func (network *Network) deliver(message *MessageToSend) {
	reliable := message.packet.isReliable()

	networkPath := network.findPath(message.From, message.To)
	if networkPath.makeReachableAfterTick > network.ticks {
		if reliable {
			network.debug("UNREACHABLE DELAY", "from", message.From, "to", message.To, "untilTick", networkPath.makeReachableAfterTick)
			network.schedule(message.From, message.To, message.packet, networkPath.makeReachableAfterTick)
			return
		}
		network.debug("UNREACHABLE DROP", "from", message.From, "to", message.To)
		return
	}

	if !reliable && network.rand.GenBool(network.config.DropMessageProbability) {
		network.debug("DROP", "from", message.From, "to", message.To)
		return
	}

	endpoint, ok := network.endpoints[message.To]
	if !ok {
		network.debug("NO ENDPOINT DROP", "from", message.From, "to", message.To)
		return
	}

	switch endpoint.receive(message.From, message.packet) {
	case resultRetry:
		if reliable {
			network.schedule(message.From, message.To, message.packet, network.ticks+1)
			return
		}
		network.debug("QUEUE FULL DROP", "from", message.From, "to", message.To)
		return

	case resultDiscarded:
		network.debug("DISCARD", "from", message.From, "to", message.To, "sequence", message.packet.sequence)
		return

	case resultDelivered:
		network.debug("DELIVER", "from", message.From, "to", message.To)
	}

	if !reliable && network.rand.GenBool(network.config.MessageReplayProbability) {
		network.debug("REPLAY", "from", message.From, "to", message.To)
		network.send(message.From, message.To, message.packet)
	}
}

func (network *Network) findPath(from, to types.ClientID) *NetworkPath {
	key := pathKey{from: from, to: to}

	path, ok := network.pathIndex[key]
	if !ok {
		path = &NetworkPath{from: from, to: to}
		network.pathIndex[key] = path
		network.networkPaths = append(network.networkPaths, path)
	}

	return path
}
