package archive

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
)

// decodeFloats turns a raw array object into float64 values.
func decodeFloats(ref *ArrayRef, raw []byte) ([]float64, error) {
	raw, err := decompress(ref, raw)
	if err != nil {
		return nil, err
	}
	n := ref.size()
	out := make([]float64, n)
	switch ref.DType {
	case Float32:
		if len(raw) != 4*n {
			return nil, fmt.Errorf("%s: %d bytes for %d float32 values", ref.Object, len(raw), n)
		}
		for i := range out {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:])))
		}
	case Float64:
		if len(raw) != 8*n {
			return nil, fmt.Errorf("%s: %d bytes for %d float64 values", ref.Object, len(raw), n)
		}
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
		}
	default:
		return nil, fmt.Errorf("%s: unsupported dtype %q", ref.Object, ref.DType)
	}
	return out, nil
}

// decodeFloat32s is decodeFloats for cubes, which stay single precision.
func decodeFloat32s(ref *ArrayRef, raw []byte) ([]float32, error) {
	if ref.DType != Float32 {
		vals, err := decodeFloats(ref, raw)
		if err != nil {
			return nil, err
		}
		out := make([]float32, len(vals))
		for i, v := range vals {
			out[i] = float32(v)
		}
		return out, nil
	}
	raw, err := decompress(ref, raw)
	if err != nil {
		return nil, err
	}
	n := ref.size()
	if len(raw) != 4*n {
		return nil, fmt.Errorf("%s: %d bytes for %d float32 values", ref.Object, len(raw), n)
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out, nil
}

func encodeFloat32s(vals []float32) []byte {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func encodeFloat64s(vals []float64) []byte {
	buf := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

func decompress(ref *ArrayRef, raw []byte) ([]byte, error) {
	switch ref.Compression {
	case CompressionNone:
		return raw, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		out, err := dec.DecodeAll(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("%s: zstd: %w", ref.Object, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s: unsupported compression %q", ref.Object, ref.Compression)
	}
}

func compress(codec string, raw []byte) ([]byte, error) {
	switch codec {
	case CompressionNone:
		return raw, nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
	default:
		return nil, fmt.Errorf("unsupported compression %q", codec)
	}
}
