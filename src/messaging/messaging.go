package messaging

import (
	"errors"
	"fmt"
	"sync"

	"github.com/poorlydefinedbehaviour/netcode-go/src/codec"
	"github.com/poorlydefinedbehaviour/netcode-go/src/metrics"
	"github.com/poorlydefinedbehaviour/netcode-go/src/networktime"
	"github.com/poorlydefinedbehaviour/netcode-go/src/set"
	"github.com/poorlydefinedbehaviour/netcode-go/src/types"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	ErrNoTargets        = errors.New("message has no targets")
	ErrEmptyName        = errors.New("message name is empty")
	ErrMalformedMessage = errors.New("malformed message")
)

type Config struct {
	// Compression applied to payloads of at least CompressionThreshold bytes.
	Compression          codec.Compression
	CompressionThreshold int
}

// Message is what handlers receive.
type Message struct {
	Sender types.ClientID
	// The sender's local time when the message was sent.
	SentAt  networktime.NetworkTime
	Payload []byte
}

type Handler func(Message)

// Sender is the part of a transport messaging needs.
type Sender interface {
	Send(clientID types.ClientID, payload []byte, delivery types.NetworkDelivery) error
}

type namedHandler struct {
	name    string
	handler Handler
}

// Messaging sends named and unnamed messages on top of a transport.
// Handlers may be registered from any goroutine.
type Messaging struct {
	mu sync.Mutex

	config  Config
	sender  Sender
	metrics *metrics.Dispatcher
	now     func() networktime.NetworkTime
	logger  *zap.SugaredLogger

	namedHandlers  map[NameHash]namedHandler
	unnamedHandler Handler
}

func New(config Config, sender Sender, dispatcher *metrics.Dispatcher, now func() networktime.NetworkTime, logger *zap.SugaredLogger) *Messaging {
	return &Messaging{
		config:        config,
		sender:        sender,
		metrics:       dispatcher,
		now:           now,
		logger:        logger,
		namedHandlers: make(map[NameHash]namedHandler),
	}
}

func (messaging *Messaging) RegisterNamedMessageHandler(name string, handler Handler) error {
	if name == "" {
		return fmt.Errorf("registering named message handler: %w", ErrEmptyName)
	}

	messaging.mu.Lock()
	defer messaging.mu.Unlock()

	messaging.namedHandlers[HashName(name)] = namedHandler{name: name, handler: handler}

	return nil
}

func (messaging *Messaging) UnregisterNamedMessageHandler(name string) error {
	if name == "" {
		return fmt.Errorf("unregistering named message handler: %w", ErrEmptyName)
	}

	messaging.mu.Lock()
	defer messaging.mu.Unlock()

	delete(messaging.namedHandlers, HashName(name))

	return nil
}

// Replaces the handler for unnamed messages. nil stops handling them.
func (messaging *Messaging) OnUnnamedMessage(handler Handler) {
	messaging.mu.Lock()
	defer messaging.mu.Unlock()

	messaging.unnamedHandler = handler
}

func (messaging *Messaging) SendNamedMessage(name string, targets []types.ClientID, payload []byte, delivery types.NetworkDelivery) error {
	if name == "" {
		return fmt.Errorf("sending named message: %w", ErrEmptyName)
	}

	err := messaging.send(kindNamed, HashName(name), name, targets, payload, delivery)
	if err != nil {
		return fmt.Errorf("sending named message: name=%s %w", name, err)
	}

	return nil
}

func (messaging *Messaging) SendUnnamedMessage(targets []types.ClientID, payload []byte, delivery types.NetworkDelivery) error {
	if err := messaging.send(kindUnnamed, 0, "", targets, payload, delivery); err != nil {
		return fmt.Errorf("sending unnamed message: %w", err)
	}

	return nil
}

func (messaging *Messaging) send(kind messageKind, nameHash NameHash, name string, targets []types.ClientID, payload []byte, delivery types.NetworkDelivery) error {
	if len(targets) == 0 {
		return ErrNoTargets
	}

	data, err := encodeEnvelope(kind, nameHash, messaging.now(), payload, messaging.config)
	if err != nil {
		return err
	}

	bytesCount := messageBytesCount(kind, payload)

	var sendErr error
	for _, target := range set.New(targets...).Members() {
		if err := messaging.sender.Send(target, data, delivery); err != nil {
			sendErr = multierr.Append(sendErr, fmt.Errorf("target=%d %w", target, err))
			continue
		}

		messaging.metrics.Track(metrics.Event{
			Type:         metrics.NetworkMessageSent,
			Name:         kind.metricName(),
			ConnectionID: target,
			BytesCount:   bytesCount,
		})

		metricType := metrics.UnnamedMessageSent
		if kind == kindNamed {
			metricType = metrics.NamedMessageSent
		}
		messaging.metrics.Track(metrics.Event{
			Type:         metricType,
			Name:         name,
			ConnectionID: target,
			BytesCount:   bytesCount,
		})
	}

	return sendErr
}

func messageBytesCount(kind messageKind, payload []byte) uint64 {
	if kind == kindNamed {
		return NameHashSize + uint64(len(payload))
	}
	return uint64(len(payload))
}

// HandleIncoming decodes a message that arrived from the transport and
// hands it to the matching handler.
func (messaging *Messaging) HandleIncoming(sender types.ClientID, data []byte) error {
	decoded, sentAt, err := decodeEnvelope(data)
	if err != nil {
		return fmt.Errorf("handling incoming message: sender=%d %w", sender, err)
	}

	message := Message{Sender: sender, SentAt: sentAt, Payload: decoded.Payload}
	bytesCount := messageBytesCount(decoded.Kind, decoded.Payload)

	messaging.mu.Lock()
	named, hasNamedHandler := messaging.namedHandlers[decoded.NameHash]
	unnamedHandler := messaging.unnamedHandler
	messaging.mu.Unlock()

	switch decoded.Kind {
	case kindNamed:
		if !hasNamedHandler {
			messaging.logger.Debugw("no handler for named message",
				"sender", sender,
				"nameHash", decoded.NameHash,
			)
			return nil
		}

		messaging.metrics.Track(metrics.Event{
			Type:         metrics.NetworkMessageReceived,
			Name:         decoded.Kind.metricName(),
			ConnectionID: sender,
			BytesCount:   bytesCount,
		})
		messaging.metrics.Track(metrics.Event{
			Type:         metrics.NamedMessageReceived,
			Name:         named.name,
			ConnectionID: sender,
			BytesCount:   bytesCount,
		})

		named.handler(message)

	case kindUnnamed:
		messaging.metrics.Track(metrics.Event{
			Type:         metrics.NetworkMessageReceived,
			Name:         decoded.Kind.metricName(),
			ConnectionID: sender,
			BytesCount:   bytesCount,
		})
		messaging.metrics.Track(metrics.Event{
			Type:         metrics.UnnamedMessageReceived,
			ConnectionID: sender,
			BytesCount:   bytesCount,
		})

		if unnamedHandler != nil {
			unnamedHandler(message)
		}
	}

	return nil
}
