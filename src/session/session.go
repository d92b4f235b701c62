package session

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/poorlydefinedbehaviour/netcode-go/src/config"
	"github.com/poorlydefinedbehaviour/netcode-go/src/messaging"
	"github.com/poorlydefinedbehaviour/netcode-go/src/metrics"
	"github.com/poorlydefinedbehaviour/netcode-go/src/networktime"
	"github.com/poorlydefinedbehaviour/netcode-go/src/set"
	"github.com/poorlydefinedbehaviour/netcode-go/src/ticksystem"
	"github.com/poorlydefinedbehaviour/netcode-go/src/timeout"
	"github.com/poorlydefinedbehaviour/netcode-go/src/types"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var ErrConnectTimeout = errors.New("timed out connecting to server")

type Config struct {
	TickRate int
	// Zero waits forever.
	ConnectTimeoutTicks uint64
	Messaging           messaging.Config
}

func ConfigFrom(cfg config.Config) (Config, error) {
	messagingConfig, err := cfg.MessagingSettings()
	if err != nil {
		return Config{}, fmt.Errorf("building session config: %w", err)
	}

	return Config{
		TickRate:            cfg.TickRate,
		ConnectTimeoutTicks: cfg.Transport.ConnectTimeoutTicks,
		Messaging:           messagingConfig,
	}, nil
}

type role uint8

const (
	roleNone role = iota
	roleServer
	roleClient
)

type ConnectionCallback func(clientID types.ClientID)

// Session drives a transport from a tick system: every tick it drains
// transport events, feeds data to messaging and publishes metrics.
// Not safe for concurrent use, except for registering message handlers.
type Session struct {
	id     uuid.UUID
	config Config
	logger *zap.SugaredLogger

	transport  types.Transport
	tickSystem *ticksystem.TickSystem
	messaging  *messaging.Messaging
	metrics    *metrics.Dispatcher

	role           role
	connecting     bool
	connectTimeout timeout.T
	connected      *set.T[types.ClientID]

	onConnect    []ConnectionCallback
	onDisconnect []ConnectionCallback
}

func New(config Config, transport types.Transport, logger *zap.SugaredLogger) (*Session, error) {
	tickSystem, err := ticksystem.New(config.TickRate, 0, logger)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	id := uuid.New()
	logger = logger.With("session", id.String())

	dispatcher := metrics.NewDispatcher()

	session := &Session{
		id:         id,
		config:     config,
		logger:     logger,
		transport:  transport,
		tickSystem: tickSystem,
		metrics:    dispatcher,
		messaging:  messaging.New(config.Messaging, transport, dispatcher, tickSystem.LocalTime, logger),
		connected:  set.New[types.ClientID](),
	}

	tickSystem.OnTick(session.onTick)

	return session, nil
}

func (session *Session) ID() uuid.UUID {
	return session.id
}

func (session *Session) StartServer() error {
	if err := session.transport.StartServer(); err != nil {
		return fmt.Errorf("starting server session: %w", err)
	}
	session.role = roleServer

	session.logger.Infow("server started", "tickRate", session.config.TickRate)

	return nil
}

func (session *Session) StartClient() error {
	if err := session.transport.StartClient(); err != nil {
		return fmt.Errorf("starting client session: %w", err)
	}
	session.role = roleClient
	session.connecting = true

	session.connectTimeout = timeout.New(session.config.ConnectTimeoutTicks)
	if session.config.ConnectTimeoutTicks == 0 {
		session.connectTimeout.Stop()
	}

	session.logger.Infow("client started", "tickRate", session.config.TickRate)

	return nil
}

func (session *Session) OnConnect(callback ConnectionCallback) {
	session.onConnect = append(session.onConnect, callback)
}

func (session *Session) OnDisconnect(callback ConnectionCallback) {
	session.onDisconnect = append(session.onDisconnect, callback)
}

// Advances local time by deltaSeconds, running a session tick for every
// tick boundary crossed.
func (session *Session) Update(deltaSeconds float64) error {
	if err := session.tickSystem.Advance(deltaSeconds); err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	return nil
}

func (session *Session) AdvanceTo(target networktime.NetworkTime) error {
	if err := session.tickSystem.AdvanceTo(target); err != nil {
		return fmt.Errorf("advancing session: %w", err)
	}
	return nil
}

func (session *Session) onTick(now networktime.NetworkTime) error {
	for {
		event, ok := session.transport.PollEvent()
		if !ok {
			break
		}
		session.handleEvent(event)
	}

	if session.connecting {
		session.connectTimeout.Tick()
		if session.connectTimeout.Fired() {
			session.connecting = false
			session.connectTimeout.Stop()
			session.logger.Warnw("connect timeout fired", "ticks", session.connectTimeout.Ticks())
			return fmt.Errorf("tick=%d after=%d %w", now.Tick(), session.connectTimeout.After(), ErrConnectTimeout)
		}
	}

	session.metrics.Dispatch(now)

	return nil
}

func (session *Session) handleEvent(event types.TransportEvent) {
	switch event.Type {
	case types.Connect:
		session.connected.Insert(event.ClientID)
		if session.role == roleClient {
			session.connecting = false
			session.connectTimeout.Stop()
		}
		session.logger.Debugw("connected", "clientID", event.ClientID)
		for _, callback := range session.onConnect {
			callback(event.ClientID)
		}

	case types.Disconnect:
		session.connected.Remove(event.ClientID)
		session.logger.Debugw("disconnected", "clientID", event.ClientID)
		for _, callback := range session.onDisconnect {
			callback(event.ClientID)
		}

	case types.Data:
		if err := session.messaging.HandleIncoming(event.ClientID, event.Payload); err != nil {
			session.logger.Warnw("dropping incoming message", "clientID", event.ClientID, "err", err)
		}

	default:
		session.logger.Debugw("ignoring transport event", "type", event.Type.String())
	}
}

func (session *Session) LocalTime() networktime.NetworkTime {
	return session.tickSystem.LocalTime()
}

func (session *Session) LocalClientID() types.ClientID {
	return session.transport.LocalClientID()
}

func (session *Session) IsServer() bool {
	return session.role == roleServer
}

// Clients connected to a server, or the server for a connected client.
func (session *Session) ConnectedClients() []types.ClientID {
	return session.connected.Members()
}

func (session *Session) IsConnected() bool {
	switch session.role {
	case roleServer:
		return true
	case roleClient:
		return session.connected.Contains(session.transport.ServerClientID())
	default:
		return false
	}
}

func (session *Session) Messaging() *messaging.Messaging {
	return session.messaging
}

func (session *Session) Metrics() *metrics.Dispatcher {
	return session.metrics
}

func (session *Session) Shutdown() error {
	var err error

	if session.role == roleClient && session.IsConnected() {
		err = multierr.Append(err, session.transport.DisconnectLocalClient())
	}
	err = multierr.Append(err, session.transport.Shutdown())

	session.connected.Retain(func(*types.ClientID) bool { return false })
	session.connecting = false

	if err != nil {
		return fmt.Errorf("shutting down session: %w", err)
	}

	session.logger.Infow("session shut down", "metrics", session.metrics)

	return nil
}
