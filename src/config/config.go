package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/poorlydefinedbehaviour/netcode-go/src/codec"
	"github.com/poorlydefinedbehaviour/netcode-go/src/messaging"
	"github.com/poorlydefinedbehaviour/netcode-go/src/networktime"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrUnknownFormat = errors.New("unknown config format")
)

type Format string

const (
	FormatYAML  Format = "yaml"
	FormatJSONC Format = "jsonc"
)

const (
	TransportSimulated = "simulated"
	TransportTCP       = "tcp"
)

type Config struct {
	TickRate  int             `yaml:"tick_rate"`
	Transport TransportConfig `yaml:"transport"`
	Network   NetworkConfig   `yaml:"network"`
	Messaging MessagingConfig `yaml:"messaging"`
	Log       LogConfig       `yaml:"log"`
}

type TransportConfig struct {
	// "simulated" or "tcp".
	Kind    string `yaml:"kind"`
	Address string `yaml:"address"`
	// A client gives up connecting after this many ticks.
	ConnectTimeoutTicks uint64 `yaml:"connect_timeout_ticks"`
	MaxEventQueueSize   int    `yaml:"max_event_queue_size"`
}

// Parameters of the simulated network.
type NetworkConfig struct {
	PathClogProbability      float64 `yaml:"path_clog_probability"`
	MessageReplayProbability float64 `yaml:"message_replay_probability"`
	DropMessageProbability   float64 `yaml:"drop_message_probability"`
	MaxNetworkPathClogTicks  uint64  `yaml:"max_network_path_clog_ticks"`
	MaxMessageDelayTicks     uint64  `yaml:"max_message_delay_ticks"`
	Seed                     uint64  `yaml:"seed"`
}

type MessagingConfig struct {
	// "none", "lz4" or "zstd".
	Compression          string `yaml:"compression"`
	CompressionThreshold int    `yaml:"compression_threshold"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func Default() Config {
	return Config{
		TickRate: networktime.DefaultTickRate,
		Transport: TransportConfig{
			Kind:                TransportSimulated,
			Address:             "127.0.0.1:7777",
			ConnectTimeoutTicks: 10 * networktime.DefaultTickRate,
			MaxEventQueueSize:   1024,
		},
		Network: NetworkConfig{
			MaxNetworkPathClogTicks: 5,
			MaxMessageDelayTicks:    3,
		},
		Messaging: MessagingConfig{
			Compression:          codec.None.String(),
			CompressionThreshold: 256,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json", ".jsonc":
		return FormatJSONC, nil
	default:
		return "", fmt.Errorf("path=%s %w", path, ErrUnknownFormat)
	}
}

// Load reads a config file. Fields missing from the file keep their
// default values.
func Load(path string) (Config, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return Config{}, fmt.Errorf("loading config: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading %s: %w", path, err)
	}

	config, err := Parse(data, format)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}

	return config, nil
}

func Parse(data []byte, format Format) (Config, error) {
	switch format {
	case FormatYAML:
	case FormatJSONC:
		// JSON is valid YAML, so both formats share the strict decoder.
		data = jsonc.ToJSON(data)
	default:
		return Config{}, fmt.Errorf("parsing config: format=%s %w", format, ErrUnknownFormat)
	}

	config := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

func (config Config) Validate() error {
	if err := networktime.ValidateTickRate(config.TickRate); err != nil {
		return fmt.Errorf("tick_rate: %w %w", ErrInvalidConfig, err)
	}

	switch config.Transport.Kind {
	case TransportSimulated, TransportTCP:
	default:
		return fmt.Errorf("transport.kind must be %q or %q: got=%q %w",
			TransportSimulated, TransportTCP, config.Transport.Kind, ErrInvalidConfig)
	}
	if config.Transport.MaxEventQueueSize <= 0 {
		return fmt.Errorf("transport.max_event_queue_size must be positive: got=%d %w",
			config.Transport.MaxEventQueueSize, ErrInvalidConfig)
	}

	probabilities := []struct {
		name  string
		value float64
	}{
		{name: "network.path_clog_probability", value: config.Network.PathClogProbability},
		{name: "network.message_replay_probability", value: config.Network.MessageReplayProbability},
		{name: "network.drop_message_probability", value: config.Network.DropMessageProbability},
	}
	for _, p := range probabilities {
		if !(p.value >= 0 && p.value <= 1) {
			return fmt.Errorf("%s must be in [0, 1]: got=%v %w", p.name, p.value, ErrInvalidConfig)
		}
	}

	if _, err := codec.ParseCompression(config.Messaging.Compression); err != nil {
		return fmt.Errorf("messaging.compression: %w %w", ErrInvalidConfig, err)
	}
	if config.Messaging.CompressionThreshold < 0 {
		return fmt.Errorf("messaging.compression_threshold must not be negative: got=%d %w",
			config.Messaging.CompressionThreshold, ErrInvalidConfig)
	}

	return nil
}

// MessagingSettings converts the messaging section for messaging.New.
func (config Config) MessagingSettings() (messaging.Config, error) {
	compression, err := codec.ParseCompression(config.Messaging.Compression)
	if err != nil {
		return messaging.Config{}, fmt.Errorf("messaging.compression: %w %w", ErrInvalidConfig, err)
	}

	return messaging.Config{
		Compression:          compression,
		CompressionThreshold: config.Messaging.CompressionThreshold,
	}, nil
}
