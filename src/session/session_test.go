package session

import (
	"errors"
	"testing"

	"github.com/poorlydefinedbehaviour/netcode-go/src/config"
	"github.com/poorlydefinedbehaviour/netcode-go/src/messaging"
	"github.com/poorlydefinedbehaviour/netcode-go/src/metrics"
	"github.com/poorlydefinedbehaviour/netcode-go/src/networktime"
	"github.com/poorlydefinedbehaviour/netcode-go/src/rand"
	"github.com/poorlydefinedbehaviour/netcode-go/src/testing/network"
	"github.com/poorlydefinedbehaviour/netcode-go/src/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const tickRate = 30

func newNetwork(t *testing.T) *network.Network {
	net, err := network.New(network.NetworkConfig{MaxMessageDelayTicks: 2}, rand.NewRand(0), zap.NewNop().Sugar())
	require.NoError(t, err)
	return net
}

func newSession(t *testing.T, net *network.Network, connectTimeoutTicks uint64) *Session {
	endpoint, err := net.NewEndpoint()
	require.NoError(t, err)

	session, err := New(Config{TickRate: tickRate, ConnectTimeoutTicks: connectTimeoutTicks}, endpoint, zap.NewNop().Sugar())
	require.NoError(t, err)

	return session
}

func step(t *testing.T, net *network.Network, sessions ...*Session) {
	net.Tick()
	for _, session := range sessions {
		require.NoError(t, session.Update(1.0/tickRate))
	}
}

func TestConnectAndExchangeMessages(t *testing.T) {
	t.Parallel()

	net := newNetwork(t)
	server := newSession(t, net, 0)
	client := newSession(t, net, 100)

	connectedOnServer := make([]types.ClientID, 0)
	server.OnConnect(func(clientID types.ClientID) {
		connectedOnServer = append(connectedOnServer, clientID)
	})

	require.NoError(t, server.StartServer())
	require.NoError(t, client.StartClient())
	assert.True(t, server.IsServer())
	assert.False(t, client.IsConnected())

	for i := 0; i < 20 && !client.IsConnected(); i++ {
		step(t, net, server, client)
	}

	require.True(t, client.IsConnected())
	assert.Equal(t, []types.ClientID{client.LocalClientID()}, connectedOnServer)
	assert.Equal(t, []types.ClientID{client.LocalClientID()}, server.ConnectedClients())
	assert.Equal(t, []types.ClientID{types.ServerClientID}, client.ConnectedClients())

	received := make([]messaging.Message, 0)
	require.NoError(t, server.Messaging().RegisterNamedMessageHandler("ping", func(message messaging.Message) {
		received = append(received, message)
	}))

	sentAt := client.LocalTime()
	require.NoError(t, client.Messaging().SendNamedMessage("ping", []types.ClientID{types.ServerClientID}, []byte("hello"), types.ReliableSequenced))

	snapshots := make([]metrics.Snapshot, 0)
	server.Metrics().Observe(func(snapshot metrics.Snapshot) {
		snapshots = append(snapshots, snapshot)
	})

	for i := 0; i < 20 && len(received) == 0; i++ {
		step(t, net, server, client)
	}

	require.Len(t, received, 1)
	assert.Equal(t, []byte("hello"), received[0].Payload)
	assert.Equal(t, client.LocalClientID(), received[0].Sender)
	assert.Equal(t, 0, sentAt.Compare(received[0].SentAt))

	assert.NotEmpty(t, snapshots)
	assert.Equal(t, uint64(1), server.Metrics().Total(metrics.NamedMessageReceived))
	assert.Equal(t, uint64(1), client.Metrics().Total(metrics.NamedMessageSent))
}

func TestConnectTimeout(t *testing.T) {
	t.Parallel()

	net := newNetwork(t)
	client := newSession(t, net, 5)
	require.NoError(t, client.StartClient())

	var err error
	for i := 0; i < 10 && err == nil; i++ {
		net.Tick()
		err = client.Update(1.0 / tickRate)
	}

	assert.True(t, errors.Is(err, ErrConnectTimeout))
	assert.False(t, client.IsConnected())

	// The timeout fires once.
	for i := 0; i < 10; i++ {
		assert.NoError(t, client.Update(1.0/tickRate))
	}
}

func TestDisconnectCallbacks(t *testing.T) {
	t.Parallel()

	net := newNetwork(t)
	server := newSession(t, net, 0)
	client := newSession(t, net, 0)

	disconnected := make([]types.ClientID, 0)
	server.OnDisconnect(func(clientID types.ClientID) {
		disconnected = append(disconnected, clientID)
	})

	require.NoError(t, server.StartServer())
	require.NoError(t, client.StartClient())

	for i := 0; i < 20 && !client.IsConnected(); i++ {
		step(t, net, server, client)
	}
	require.True(t, client.IsConnected())

	clientID := client.LocalClientID()
	require.NoError(t, client.Shutdown())
	assert.False(t, client.IsConnected())

	for i := 0; i < 20 && len(disconnected) == 0; i++ {
		step(t, net, server)
	}

	assert.Equal(t, []types.ClientID{clientID}, disconnected)
	assert.Empty(t, server.ConnectedClients())
}

func TestAdvanceTo(t *testing.T) {
	t.Parallel()

	net := newNetwork(t)
	server := newSession(t, net, 0)
	require.NoError(t, server.StartServer())

	snapshots := 0
	server.Metrics().Observe(func(metrics.Snapshot) { snapshots++ })

	require.NoError(t, server.AdvanceTo(networktime.MustNew(tickRate, 1)))
	assert.Equal(t, tickRate, snapshots)
	assert.Equal(t, int64(tickRate), server.LocalTime().Tick())

	err := server.AdvanceTo(networktime.MustNew(tickRate, 0.5))
	assert.Error(t, err)
}

func TestConfigFrom(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.TickRate = 60
	cfg.Messaging.Compression = "lz4"

	sessionConfig, err := ConfigFrom(cfg)
	require.NoError(t, err)
	assert.Equal(t, 60, sessionConfig.TickRate)
	assert.Equal(t, cfg.Transport.ConnectTimeoutTicks, sessionConfig.ConnectTimeoutTicks)
	assert.Equal(t, "lz4", sessionConfig.Messaging.Compression.String())

	_, err = New(Config{TickRate: 0}, nil, zap.NewNop().Sugar())
	assert.True(t, errors.Is(err, networktime.ErrInvalidConfiguration))
}

func TestRepliesAreStampedWithTheProcessingTick(t *testing.T) {
	t.Parallel()

	net := newNetwork(t)
	server := newSession(t, net, 0)
	client := newSession(t, net, 0)

	require.NoError(t, server.StartServer())
	require.NoError(t, client.StartClient())

	var tick int64
	advance := func() {
		net.Tick()
		tick++
		now, err := networktime.FromTick(tickRate, tick, 0)
		require.NoError(t, err)
		require.NoError(t, server.AdvanceTo(now))
		require.NoError(t, client.AdvanceTo(now))
	}

	for i := 0; i < 20 && !client.IsConnected(); i++ {
		advance()
	}
	require.True(t, client.IsConnected())

	var processedAt int64
	require.NoError(t, server.Messaging().RegisterNamedMessageHandler("ping", func(message messaging.Message) {
		processedAt = server.LocalTime().Tick()
		assert.NoError(t, server.Messaging().SendNamedMessage("pong", []types.ClientID{message.Sender}, message.Payload, types.ReliableSequenced))
	}))

	pongs := make([]messaging.Message, 0)
	require.NoError(t, client.Messaging().RegisterNamedMessageHandler("pong", func(message messaging.Message) {
		pongs = append(pongs, message)
	}))

	require.NoError(t, client.Messaging().SendNamedMessage("ping", []types.ClientID{types.ServerClientID}, []byte{1}, types.ReliableSequenced))

	for i := 0; i < 20 && len(pongs) == 0; i++ {
		advance()
	}

	require.Len(t, pongs, 1)
	assert.NotZero(t, processedAt)
	assert.Equal(t, processedAt, pongs[0].SentAt.Tick())
}
