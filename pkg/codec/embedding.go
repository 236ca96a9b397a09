// Package codec encodes and decodes embedding vectors for storage in the
// key-value layer.
package codec

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrCorruptEmbedding is returned when decoding a byte string whose length
// is not a multiple of 4 (the width of an encoded float32).
var ErrCorruptEmbedding = errors.New("corrupt embedding: length is not a multiple of 4")

// EncodeEmbedding serializes a float32 vector to 4*len(v) bytes, little-endian.
func EncodeEmbedding(v []float32) []byte {
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

// DecodeEmbedding reverses EncodeEmbedding. It rejects inputs whose length
// is not a multiple of 4 with ErrCorruptEmbedding.
func DecodeEmbedding(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, ErrCorruptEmbedding
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}
