// Package quant implements the linear int8 quantization and sign-bit
// binary packing that the embedding Oracle contract (spec §4.1) requires
// of its three co-registered precisions. It is used by bvdb.BaseOracle
// to derive int8 and packed-binary vectors from a float vector.
package quant

import (
	"fmt"
	"math"
)

// PackBinary packs the sign bits of a float vector into D/8 bytes, one
// bit per dimension: bit i is 1 iff v[i] >= 0. len(v) must be a
// multiple of 8.
func PackBinary(v []float32) ([]byte, error) {
	if len(v)%8 != 0 {
		return nil, fmt.Errorf("quant: dimension %d is not a multiple of 8", len(v))
	}
	packed := make([]byte, len(v)/8)
	for i, val := range v {
		if val >= 0 {
			packed[i/8] |= 1 << uint(i%8)
		}
	}
	return packed, nil
}

// QuantizeInt8 linearly quantizes a float vector to signed bytes in
// [-127, 127], scaling by the largest absolute component so the
// quantization is magnitude-consistent with v as spec §4.1 requires.
func QuantizeInt8(v []float32) []int8 {
	var maxAbs float32
	for _, val := range v {
		a := val
		if a < 0 {
			a = -a
		}
		if a > maxAbs {
			maxAbs = a
		}
	}
	out := make([]int8, len(v))
	if maxAbs == 0 {
		return out
	}
	scale := float32(127) / maxAbs
	for i, val := range v {
		q := math.Round(float64(val * scale))
		switch {
		case q > 127:
			q = 127
		case q < -127:
			q = -127
		}
		out[i] = int8(q)
	}
	return out
}
