package codec

import (
	"errors"
	"math"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	vectors := [][]float32{
		{},
		{0},
		{1.5, -2.25, 0, 3.14159},
		{float32(math.Inf(1)), float32(math.Inf(-1))},
		{1e-30, -1e30},
	}
	for _, v := range vectors {
		encoded := EncodeEmbedding(v)
		if len(encoded) != 4*len(v) {
			t.Fatalf("EncodeEmbedding(%v) length = %d, want %d", v, len(encoded), 4*len(v))
		}
		decoded, err := DecodeEmbedding(encoded)
		if err != nil {
			t.Fatalf("DecodeEmbedding: %v", err)
		}
		if len(decoded) != len(v) {
			t.Fatalf("decoded length = %d, want %d", len(decoded), len(v))
		}
		for i := range v {
			if decoded[i] != v[i] {
				t.Errorf("decoded[%d] = %v, want %v", i, decoded[i], v[i])
			}
		}
	}
}

func TestDecodeRejectsBadLength(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 6, 7} {
		_, err := DecodeEmbedding(make([]byte, n))
		if !errors.Is(err, ErrCorruptEmbedding) {
			t.Errorf("DecodeEmbedding(%d bytes) error = %v, want ErrCorruptEmbedding", n, err)
		}
	}
}

func TestDecodeEmptyIsEmpty(t *testing.T) {
	decoded, err := DecodeEmbedding(nil)
	if err != nil {
		t.Fatalf("DecodeEmbedding(nil): %v", err)
	}
	if len(decoded) != 0 {
		t.Errorf("decoded = %v, want empty", decoded)
	}
}
