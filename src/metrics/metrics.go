package metrics

import (
	"fmt"
	"sync"

	"github.com/poorlydefinedbehaviour/netcode-go/src/networktime"
	"github.com/poorlydefinedbehaviour/netcode-go/src/types"
	"go.uber.org/atomic"
	"go.uber.org/zap/zapcore"
)

type MetricType uint8

const (
	NetworkMessageSent MetricType = iota
	NetworkMessageReceived
	NamedMessageSent
	NamedMessageReceived
	UnnamedMessageSent
	UnnamedMessageReceived
	numMetricTypes
)

func (metricType MetricType) String() string {
	switch metricType {
	case NetworkMessageSent:
		return "NetworkMessageSent"
	case NetworkMessageReceived:
		return "NetworkMessageReceived"
	case NamedMessageSent:
		return "NamedMessageSent"
	case NamedMessageReceived:
		return "NamedMessageReceived"
	case UnnamedMessageSent:
		return "UnnamedMessageSent"
	case UnnamedMessageReceived:
		return "UnnamedMessageReceived"
	default:
		return fmt.Sprintf("MetricType(%d)", uint8(metricType))
	}
}

type Event struct {
	Type         MetricType
	Name         string
	ConnectionID types.ClientID
	BytesCount   uint64
}

// Snapshot holds every event tracked during one tick.
type Snapshot struct {
	At     networktime.NetworkTime
	Events []Event
}

type Observer func(Snapshot)

// Dispatcher buffers metric events and publishes them to observers once per
// tick. Safe for concurrent use.
type Dispatcher struct {
	mu        sync.Mutex
	buffer    []Event
	observers []Observer

	counts [numMetricTypes]atomic.Uint64
	bytes  [numMetricTypes]atomic.Uint64
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{buffer: make([]Event, 0)}
}

func (dispatcher *Dispatcher) Observe(observer Observer) {
	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()

	dispatcher.observers = append(dispatcher.observers, observer)
}

func (dispatcher *Dispatcher) Track(event Event) {
	if event.Type < numMetricTypes {
		dispatcher.counts[event.Type].Inc()
		dispatcher.bytes[event.Type].Add(event.BytesCount)
	}

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()

	dispatcher.buffer = append(dispatcher.buffer, event)
}

// Publishes the buffered events and clears the buffer. Observers are
// called even when nothing was tracked.
func (dispatcher *Dispatcher) Dispatch(at networktime.NetworkTime) Snapshot {
	dispatcher.mu.Lock()
	snapshot := Snapshot{At: at, Events: dispatcher.buffer}
	dispatcher.buffer = make([]Event, 0)
	observers := append([]Observer(nil), dispatcher.observers...)
	dispatcher.mu.Unlock()

	for _, observer := range observers {
		observer(snapshot)
	}

	return snapshot
}

// Number of events of a type tracked since the dispatcher was created.
func (dispatcher *Dispatcher) Total(metricType MetricType) uint64 {
	if metricType >= numMetricTypes {
		return 0
	}
	return dispatcher.counts[metricType].Load()
}

func (dispatcher *Dispatcher) TotalBytes(metricType MetricType) uint64 {
	if metricType >= numMetricTypes {
		return 0
	}
	return dispatcher.bytes[metricType].Load()
}

func (dispatcher *Dispatcher) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	for metricType := MetricType(0); metricType < numMetricTypes; metricType++ {
		encoder.AddUint64(metricType.String(), dispatcher.Total(metricType))
		encoder.AddUint64(metricType.String()+"Bytes", dispatcher.TotalBytes(metricType))
	}
	return nil
}
