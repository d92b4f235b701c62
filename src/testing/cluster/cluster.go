package testingcluster

import (
	"fmt"

	"github.com/poorlydefinedbehaviour/netcode-go/src/clock"
	"github.com/poorlydefinedbehaviour/netcode-go/src/mapx"
	"github.com/poorlydefinedbehaviour/netcode-go/src/messaging"
	"github.com/poorlydefinedbehaviour/netcode-go/src/rand"
	"github.com/poorlydefinedbehaviour/netcode-go/src/session"
	"github.com/poorlydefinedbehaviour/netcode-go/src/testing/network"
	"go.uber.org/zap"
)

type ClusterConfig struct {
	Seed                uint64
	TickRate            int
	NumClients          int
	ConnectTimeoutTicks uint64
	Network             network.NetworkConfig
	Messaging           messaging.Config
}

// Cluster is one server session and a number of client sessions talking
// over a simulated network, all driven by the same clock.
type Cluster struct {
	Server  *session.Session
	Clients []*session.Session
	Network *network.Network
	Clock   *clock.FixedStep
	Rand    rand.Random
}

func (cluster *Cluster) Sessions() []*session.Session {
	return append([]*session.Session{cluster.Server}, cluster.Clients...)
}

func (cluster *Cluster) Tick() error {
	cluster.Clock.Tick()
	cluster.Network.Tick()

	now := cluster.Clock.Now()

	for _, session := range cluster.Sessions() {
		if err := session.AdvanceTo(now); err != nil {
			return fmt.Errorf("ticking cluster: session=%s %w", session.ID(), err)
		}
	}

	return nil
}

// Ticks until a whole tick starts and ends with nothing in flight. Sessions
// may answer the messages they drain, so one quiet network is not enough.
func (cluster *Cluster) TickUntilEveryMessageIsDelivered() error {
	const maxTicks = 100_000

	for i := 0; i < maxTicks; i++ {
		pending := cluster.Network.HasPendingMessages()

		if err := cluster.Tick(); err != nil {
			return err
		}

		if !pending && !cluster.Network.HasPendingMessages() {
			return nil
		}
	}

	return fmt.Errorf("messages still pending after %d ticks", maxTicks)
}

func (cluster *Cluster) MustWaitForConnections() {
	const maxTicks = 10_000

	for i := 0; i < maxTicks; i++ {
		if cluster.allConnected() {
			return
		}
		if err := cluster.Tick(); err != nil {
			panic(err)
		}
	}

	panic("clients did not connect in time")
}

func (cluster *Cluster) allConnected() bool {
	if len(cluster.Server.ConnectedClients()) != len(cluster.Clients) {
		return false
	}
	for _, client := range cluster.Clients {
		if !client.IsConnected() {
			return false
		}
	}
	return true
}

// The smallest local tick among all sessions.
func (cluster *Cluster) MinTick() int64 {
	ticks := make(map[int]int64)
	for i, session := range cluster.Sessions() {
		ticks[i] = session.LocalTime().Tick()
	}

	minTick, _ := mapx.MinValue(ticks)

	return minTick
}

func (cluster *Cluster) Shutdown() error {
	for _, session := range cluster.Sessions() {
		if err := session.Shutdown(); err != nil {
			return err
		}
	}
	return nil
}

func Setup(config ClusterConfig, logger *zap.SugaredLogger) (*Cluster, error) {
	random := rand.NewRand(config.Seed)

	net, err := network.New(config.Network, random, logger)
	if err != nil {
		return nil, fmt.Errorf("setting up cluster: %w", err)
	}

	fixedStep, err := clock.NewFixedStep(config.TickRate, 0)
	if err != nil {
		return nil, fmt.Errorf("setting up cluster: %w", err)
	}

	sessionConfig := session.Config{
		TickRate:            config.TickRate,
		ConnectTimeoutTicks: config.ConnectTimeoutTicks,
		Messaging:           config.Messaging,
	}

	newSession := func() (*session.Session, error) {
		endpoint, err := net.NewEndpoint()
		if err != nil {
			return nil, err
		}
		return session.New(sessionConfig, endpoint, logger)
	}

	server, err := newSession()
	if err != nil {
		return nil, fmt.Errorf("setting up cluster server: %w", err)
	}
	if err := server.StartServer(); err != nil {
		return nil, fmt.Errorf("setting up cluster server: %w", err)
	}

	clients := make([]*session.Session, 0, config.NumClients)
	for i := 0; i < config.NumClients; i++ {
		client, err := newSession()
		if err != nil {
			return nil, fmt.Errorf("setting up cluster client: %w", err)
		}
		if err := client.StartClient(); err != nil {
			return nil, fmt.Errorf("setting up cluster client: %w", err)
		}
		clients = append(clients, client)
	}

	return &Cluster{
		Server:  server,
		Clients: clients,
		Network: net,
		Clock:   fixedStep,
		Rand:    random,
	}, nil
}
