// netcode runs a tick driven session over TCP, or a whole simulated
// cluster in memory.
//
//	netcode --transport tcp --mode server --address 127.0.0.1:7777
//	netcode --transport tcp --mode client --address 127.0.0.1:7777 --ticks 600
//	netcode --clients 4 --ticks 10000 --seed 42
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/poorlydefinedbehaviour/netcode-go/src/cmpx"
	"github.com/poorlydefinedbehaviour/netcode-go/src/config"
	"github.com/poorlydefinedbehaviour/netcode-go/src/logging"
	"github.com/poorlydefinedbehaviour/netcode-go/src/messaging"
	"github.com/poorlydefinedbehaviour/netcode-go/src/metrics"
	"github.com/poorlydefinedbehaviour/netcode-go/src/session"
	"github.com/poorlydefinedbehaviour/netcode-go/src/slicesx"
	testingcluster "github.com/poorlydefinedbehaviour/netcode-go/src/testing/cluster"
	"github.com/poorlydefinedbehaviour/netcode-go/src/testing/network"
	"github.com/poorlydefinedbehaviour/netcode-go/src/transport"
	"github.com/poorlydefinedbehaviour/netcode-go/src/types"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// A stalled process catches up at most this much time per frame.
const maxFrameSeconds = 0.25

const (
	modeServer   = "server"
	modeClient   = "client"
	modeSimulate = "simulate"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type arguments struct {
	configPath string
	mode       string
	transport  string
	address    string
	ticks      int64
	clients    int
	seed       uint64
}

func run() error {
	var args arguments

	flagSet := pflag.NewFlagSet("netcode", pflag.ContinueOnError)
	flagSet.StringVar(&args.configPath, "config", os.Getenv("NETCODE_CONFIG"), "path to a yaml or jsonc config file (env NETCODE_CONFIG)")
	flagSet.StringVar(&args.mode, "mode", "", "one of server, client or simulate (default: simulate for the simulated transport, server for tcp)")
	flagSet.StringVar(&args.transport, "transport", "", "simulated or tcp, overrides the config")
	flagSet.StringVar(&args.address, "address", "", "tcp address to listen on or dial, overrides the config")
	flagSet.Int64Var(&args.ticks, "ticks", 0, "stop after this many ticks, 0 runs until interrupted (simulate defaults to 10000)")
	flagSet.IntVar(&args.clients, "clients", 3, "number of simulated clients")
	flagSet.Uint64Var(&args.seed, "seed", 0, "simulated network seed, overrides the config")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg := config.Default()
	if args.configPath != "" {
		loaded, err := config.Load(args.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if args.address != "" {
		cfg.Transport.Address = args.address
	}
	if flagSet.Changed("seed") {
		cfg.Network.Seed = args.seed
	}
	if args.transport != "" {
		cfg.Transport.Kind = args.transport
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	mode, err := resolveMode(cfg.Transport.Kind, args.mode)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch mode {
	case modeSimulate:
		ticks := args.ticks
		if ticks == 0 {
			ticks = 10_000
		}
		return simulate(ctx, cfg, args.clients, ticks, logger)
	case modeServer, modeClient:
		return serve(ctx, cfg, mode, args.ticks, logger)
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

// Picks the mode the configured transport kind supports. The simulated
// network lives inside one process, so it only runs whole clusters.
func resolveMode(kind string, mode string) (string, error) {
	switch kind {
	case config.TransportSimulated:
		if mode == "" || mode == modeSimulate {
			return modeSimulate, nil
		}
		return "", fmt.Errorf("mode %q needs transport kind %q: got=%q", mode, config.TransportTCP, kind)
	case config.TransportTCP:
		switch mode {
		case "":
			return modeServer, nil
		case modeServer, modeClient:
			return mode, nil
		default:
			return "", fmt.Errorf("mode %q needs transport kind %q: got=%q", mode, config.TransportSimulated, kind)
		}
	default:
		return "", fmt.Errorf("unknown transport kind %q", kind)
	}
}

func encodeCounter(counter uint64) []byte {
	buffer := make([]byte, 8)
	binary.LittleEndian.PutUint64(buffer, counter)
	return buffer
}

// Servers answer every ping with a pong carrying the same payload.
func registerPingPong(server *session.Session, logger *zap.SugaredLogger) error {
	return server.Messaging().RegisterNamedMessageHandler("ping", func(message messaging.Message) {
		err := server.Messaging().SendNamedMessage("pong", []types.ClientID{message.Sender}, message.Payload, types.ReliableSequenced)
		if err != nil {
			logger.Warnw("sending pong", "clientID", message.Sender, "err", err)
		}
	})
}

func registerPongLogger(client *session.Session, logger *zap.SugaredLogger) error {
	return client.Messaging().RegisterNamedMessageHandler("pong", func(message messaging.Message) {
		rtt := client.LocalTime().Time() - message.SentAt.Time()
		logger.Debugw("pong", "sentAt", message.SentAt, "rtt", rtt)
	})
}

func simulate(ctx context.Context, cfg config.Config, numClients int, ticks int64, logger *zap.SugaredLogger) error {
	messagingConfig, err := cfg.MessagingSettings()
	if err != nil {
		return err
	}

	cluster, err := testingcluster.Setup(testingcluster.ClusterConfig{
		Seed:                cfg.Network.Seed,
		TickRate:            cfg.TickRate,
		NumClients:          numClients,
		ConnectTimeoutTicks: cfg.Transport.ConnectTimeoutTicks,
		Network: network.NetworkConfig{
			PathClogProbability:      cfg.Network.PathClogProbability,
			MessageReplayProbability: cfg.Network.MessageReplayProbability,
			DropMessageProbability:   cfg.Network.DropMessageProbability,
			MaxNetworkPathClogTicks:  cfg.Network.MaxNetworkPathClogTicks,
			MaxMessageDelayTicks:     cfg.Network.MaxMessageDelayTicks,
			MaxEventQueueSize:        cfg.Transport.MaxEventQueueSize,
		},
		Messaging: messagingConfig,
	}, logger)
	if err != nil {
		return err
	}

	if err := registerPingPong(cluster.Server, logger); err != nil {
		return err
	}
	for _, client := range cluster.Clients {
		if err := registerPongLogger(client, logger); err != nil {
			return err
		}
	}

	var counter uint64
	for i := int64(0); i < ticks && ctx.Err() == nil; i++ {
		if cluster.Clock.CurrentTick()%int64(cfg.TickRate) == 0 {
			connected := slicesx.Filter(cluster.Clients, func(client **session.Session) bool {
				return (*client).IsConnected()
			})
			for _, client := range connected {
				counter++
				if err := client.Messaging().SendNamedMessage("ping", []types.ClientID{types.ServerClientID}, encodeCounter(counter), types.ReliableSequenced); err != nil {
					return err
				}
			}
		}

		if err := cluster.Tick(); err != nil {
			return err
		}
	}

	if err := cluster.TickUntilEveryMessageIsDelivered(); err != nil {
		return err
	}

	logger.Infow("simulation finished",
		"seed", cfg.Network.Seed,
		"ticks", cluster.Clock.CurrentTick(),
		"networkTicks", cluster.Network.Ticks(),
		"pings", counter,
		"pongs", cluster.Server.Metrics().Total(metrics.NamedMessageSent),
		"server", cluster.Server.Metrics(),
	)

	return cluster.Shutdown()
}

func serve(ctx context.Context, cfg config.Config, mode string, ticks int64, logger *zap.SugaredLogger) error {
	sessionConfig, err := session.ConfigFrom(cfg)
	if err != nil {
		return err
	}

	tcp := transport.NewTCP(cfg.Transport.Address, 5*time.Second, logger)

	s, err := session.New(sessionConfig, tcp, logger)
	if err != nil {
		return err
	}

	s.OnConnect(func(clientID types.ClientID) { logger.Infow("connected", "clientID", clientID) })
	s.OnDisconnect(func(clientID types.ClientID) { logger.Infow("disconnected", "clientID", clientID) })

	if mode == modeServer {
		if err := registerPingPong(s, logger); err != nil {
			return err
		}
		if err := s.StartServer(); err != nil {
			return err
		}
		logger.Infow("listening", "address", tcp.Address())
	} else {
		if err := registerPongLogger(s, logger); err != nil {
			return err
		}
		if err := s.StartClient(); err != nil {
			return err
		}
	}

	err = loop(ctx, s, mode, ticks, cfg.TickRate)

	return multierr.Append(err, s.Shutdown())
}

// Runs the session in real time until ctx is done or ticks ticks passed.
func loop(ctx context.Context, s *session.Session, mode string, ticks int64, tickRate int) error {
	ticker := time.NewTicker(time.Second / time.Duration(tickRate))
	defer ticker.Stop()

	last := time.Now()
	var counter uint64

	for ticks == 0 || s.LocalTime().Tick() < ticks {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if err := s.Update(cmpx.Min(now.Sub(last).Seconds(), maxFrameSeconds)); err != nil {
				return err
			}
			last = now
		}

		if mode == modeClient && s.IsConnected() && s.LocalTime().Tick()/int64(tickRate) > int64(counter) {
			counter++
			if err := s.Messaging().SendNamedMessage("ping", []types.ClientID{types.ServerClientID}, encodeCounter(counter), types.ReliableSequenced); err != nil {
				return err
			}
		}
	}

	return nil
}
