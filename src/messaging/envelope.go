package messaging

import (
	"fmt"

	"github.com/poorlydefinedbehaviour/netcode-go/src/codec"
	"github.com/poorlydefinedbehaviour/netcode-go/src/networktime"
)

type messageKind uint8

const (
	kindNamed   messageKind = 1
	kindUnnamed messageKind = 2
)

func (kind messageKind) metricName() string {
	if kind == kindNamed {
		return "NamedMessage"
	}
	return "UnnamedMessage"
}

type envelope struct {
	Kind        messageKind `cbor:"1,keyasint"`
	NameHash    NameHash    `cbor:"2,keyasint,omitempty"`
	TickRate    int         `cbor:"3,keyasint"`
	Time        float64     `cbor:"4,keyasint"`
	Compression uint8       `cbor:"5,keyasint,omitempty"`
	Size        int         `cbor:"6,keyasint"`
	Payload     []byte      `cbor:"7,keyasint"`
}

func encodeEnvelope(kind messageKind, nameHash NameHash, sentAt networktime.NetworkTime, payload []byte, config Config) ([]byte, error) {
	body, compression := payload, codec.None
	if config.Compression != codec.None && len(payload) >= config.CompressionThreshold {
		var err error
		body, compression, err = codec.Compress(payload, config.Compression)
		if err != nil {
			return nil, fmt.Errorf("compressing payload: %w", err)
		}
	}

	data, err := codec.Marshal(envelope{
		Kind:        kind,
		NameHash:    nameHash,
		TickRate:    sentAt.TickRate(),
		Time:        sentAt.Time(),
		Compression: uint8(compression),
		Size:        len(payload),
		Payload:     body,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}

	return data, nil
}

// Returns the envelope with its payload decompressed along with the time
// the sender stamped it with.
func decodeEnvelope(data []byte) (envelope, networktime.NetworkTime, error) {
	var decoded envelope
	if err := codec.Unmarshal(data, &decoded); err != nil {
		return envelope{}, networktime.NetworkTime{}, fmt.Errorf("decoding envelope: %v %w", err, ErrMalformedMessage)
	}

	if decoded.Kind != kindNamed && decoded.Kind != kindUnnamed {
		return envelope{}, networktime.NetworkTime{}, fmt.Errorf("decoding envelope: kind=%d %w", decoded.Kind, ErrMalformedMessage)
	}

	sentAt, err := networktime.New(decoded.TickRate, decoded.Time)
	if err != nil {
		return envelope{}, networktime.NetworkTime{}, fmt.Errorf("decoding envelope time: %v %w", err, ErrMalformedMessage)
	}

	payload, err := codec.Decompress(decoded.Payload, codec.Compression(decoded.Compression), decoded.Size)
	if err != nil {
		return envelope{}, networktime.NetworkTime{}, fmt.Errorf("decoding envelope payload: %v %w", err, ErrMalformedMessage)
	}
	decoded.Payload = payload

	return decoded, sentAt, nil
}
