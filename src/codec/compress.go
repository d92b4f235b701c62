package codec

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/poorlydefinedbehaviour/netcode-go/src/cmpx"
)

// The largest payload Decompress accepts. Matches the largest frame the TCP
// transport carries.
const MaxDecompressedSize = 16 << 20

// An lz4 block never expands by much more than this factor.
const lz4MaxRatio = 255

// Capacity reserved up front for zstd output, per compressed byte. Larger
// payloads grow the buffer as they decode.
const zstdReserveRatio = 8

var (
	ErrUnknownCompression = errors.New("unknown compression")
	ErrCorrupted          = errors.New("corrupted payload")
	errIncompressible     = errors.New("data is incompressible")
)

// Compression tags travel inside message envelopes. Changing the values
// breaks compatibility with older peers.
type Compression uint8

const (
	None Compression = 0
	LZ4  Compression = 1
	Zstd Compression = 2
)

func (compression Compression) String() string {
	switch compression {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(compression))
	}
}

func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none", "":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	default:
		return 0, fmt.Errorf("parsing compression: name=%q %w", name, ErrUnknownCompression)
	}
}

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("codec: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(2*MaxDecompressedSize))
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

// Compress returns the compressed data and the compression that was
// actually applied. Data that does not shrink is returned as is, tagged None.
func Compress(data []byte, compression Compression) ([]byte, Compression, error) {
	var (
		compressed []byte
		err        error
	)

	switch compression {
	case None:
		return data, None, nil
	case LZ4:
		compressed, err = compressLZ4(data)
	case Zstd:
		compressed, err = compressZstd(data)
	default:
		return nil, 0, fmt.Errorf("compressing: compression=%d %w", compression, ErrUnknownCompression)
	}

	if errors.Is(err, errIncompressible) {
		return data, None, nil
	}
	if err != nil {
		return nil, 0, err
	}

	return compressed, compression, nil
}

// Decompress reverses Compress. The result must be exactly uncompressedSize
// bytes long.
func Decompress(data []byte, compression Compression, uncompressedSize int) ([]byte, error) {
	if uncompressedSize < 0 || uncompressedSize > MaxDecompressedSize {
		return nil, fmt.Errorf("decompressing: uncompressedSize=%d max=%d %w", uncompressedSize, MaxDecompressedSize, ErrCorrupted)
	}

	switch compression {
	case None:
		if len(data) != uncompressedSize {
			return nil, fmt.Errorf("decompressing: size=%d expected=%d %w", len(data), uncompressedSize, ErrCorrupted)
		}
		return data, nil
	case LZ4:
		return decompressLZ4(data, uncompressedSize)
	case Zstd:
		return decompressZstd(data, uncompressedSize)
	default:
		return nil, fmt.Errorf("decompressing: compression=%d %w", compression, ErrUnknownCompression)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))

	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}

	// Zero means lz4 gave up on the block.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}

	return destination[:written], nil
}

func decompressLZ4(compressed []byte, uncompressedSize int) ([]byte, error) {
	if uncompressedSize > (len(compressed)+1)*lz4MaxRatio {
		return nil, fmt.Errorf("lz4 decompress: size=%d compressed=%d %w", uncompressedSize, len(compressed), ErrCorrupted)
	}

	destination := make([]byte, uncompressedSize)

	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %v %w", err, ErrCorrupted)
	}
	if read != uncompressedSize {
		return nil, fmt.Errorf("lz4 decompress: size=%d expected=%d %w", read, uncompressedSize, ErrCorrupted)
	}

	return destination, nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, uncompressedSize int) ([]byte, error) {
	reserve := cmpx.Min(uncompressedSize, len(compressed)*zstdReserveRatio)

	result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, reserve))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %v %w", err, ErrCorrupted)
	}
	if len(result) != uncompressedSize {
		return nil, fmt.Errorf("zstd decompress: size=%d expected=%d %w", len(result), uncompressedSize, ErrCorrupted)
	}
	return result, nil
}
