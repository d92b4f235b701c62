package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestMarshalIsDeterministic(t *testing.T) {
	t.Parallel()

	value := map[string]uint64{"b": 2, "a": 1, "c": 3}

	first, err := Marshal(value)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := Marshal(value)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	var decoded map[string]uint64
	require.NoError(t, Unmarshal(first, &decoded))
	assert.Equal(t, value, decoded)
}

func TestUnmarshalRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	type wide struct {
		A int `cbor:"a"`
		B int `cbor:"b"`
	}
	type narrow struct {
		A int `cbor:"a"`
	}

	data, err := Marshal(wide{A: 1, B: 2})
	require.NoError(t, err)

	var decoded narrow
	assert.Error(t, Unmarshal(data, &decoded))
}

func TestParseCompression(t *testing.T) {
	t.Parallel()

	for _, compression := range []Compression{None, LZ4, Zstd} {
		parsed, err := ParseCompression(compression.String())
		require.NoError(t, err)
		assert.Equal(t, compression, parsed)
	}

	_, err := ParseCompression("brotli")
	assert.True(t, errors.Is(err, ErrUnknownCompression))
	assert.Equal(t, "unknown(9)", Compression(9).String())
}

func TestCompressFallsBackWhenIncompressible(t *testing.T) {
	t.Parallel()

	data := []byte{0x42}

	for _, compression := range []Compression{LZ4, Zstd} {
		compressed, applied, err := Compress(data, compression)
		require.NoError(t, err)
		assert.Equal(t, None, applied)
		assert.Equal(t, data, compressed)
	}
}

func TestCompressShrinksRepetitiveData(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("tick "), 1_000)

	for _, compression := range []Compression{LZ4, Zstd} {
		compressed, applied, err := Compress(data, compression)
		require.NoError(t, err)
		assert.Equal(t, compression, applied)
		assert.Less(t, len(compressed), len(data))

		decompressed, err := Decompress(compressed, applied, len(data))
		require.NoError(t, err)
		assert.Equal(t, data, decompressed)

		_, err = Decompress(compressed, applied, len(data)+1)
		assert.True(t, errors.Is(err, ErrCorrupted))
	}
}

func TestDecompressErrors(t *testing.T) {
	t.Parallel()

	_, err := Decompress([]byte{1, 2, 3}, None, 2)
	assert.True(t, errors.Is(err, ErrCorrupted))

	_, err = Decompress([]byte{1, 2, 3}, Compression(7), 3)
	assert.True(t, errors.Is(err, ErrUnknownCompression))

	_, err = Decompress([]byte{1, 2, 3}, None, -1)
	assert.True(t, errors.Is(err, ErrCorrupted))

	_, _, err = Compress([]byte{1}, Compression(7))
	assert.True(t, errors.Is(err, ErrUnknownCompression))
}

func TestDecompressRejectsHostileSizes(t *testing.T) {
	t.Parallel()

	compressed := []byte{0x10, 0x61, 0x00}

	for _, compression := range []Compression{None, LZ4, Zstd} {
		for _, size := range []int{1 << 62, MaxDecompressedSize + 1, 1_000_000} {
			assert.NotPanics(t, func() {
				_, err := Decompress(compressed, compression, size)
				assert.Truef(t, errors.Is(err, ErrCorrupted), "compression=%s size=%d", compression, size)
			})
		}
	}
}

func TestDecompressAcceptsTheLargestPayload(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte{7}, MaxDecompressedSize)

	for _, compression := range []Compression{LZ4, Zstd} {
		compressed, applied, err := Compress(data, compression)
		require.NoError(t, err)
		require.Equal(t, compression, applied)

		decompressed, err := Decompress(compressed, applied, len(data))
		require.NoError(t, err)
		assert.Equal(t, len(data), len(decompressed))
	}
}

func TestCompressDecompress(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOf(rapid.ByteRange(0, 3)).Draw(t, "data")
		compression := rapid.SampledFrom([]Compression{None, LZ4, Zstd}).Draw(t, "compression")

		compressed, applied, err := Compress(data, compression)
		require.NoError(t, err)

		decompressed, err := Decompress(compressed, applied, len(data))
		require.NoError(t, err)
		assert.True(t, bytes.Equal(data, decompressed))
	})
}
