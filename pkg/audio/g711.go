// Copyright 2025 VeloxVOIP.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// 	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package audio

import (
	msdk "github.com/livekit/media-sdk"
)

// G.711 mu-law companding, as carried on North American trunks. One byte
// per sample at 8kHz.

const (
	ulawBias = 0x84
	ulawClip = 32635
)

var ulawSegments = [8]int32{0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF, 0x1FFF, 0x3FFF, 0x7FFF}

// EncodeUlaw compresses a single linear PCM16 sample to one mu-law byte.
func EncodeUlaw(sample int16) byte {
	// Widened so negating math.MinInt16 stays in range.
	s := int32(sample)
	sign := byte(0)
	if s < 0 {
		sign = 0x80
		s = -s
	}
	if s > ulawClip {
		s = ulawClip
	}
	s += ulawBias

	seg := 0
	for seg < 8 && s > ulawSegments[seg] {
		seg++
	}

	mantissa := byte(s>>(seg+3)) & 0x0F
	return ^(sign | byte(seg)<<4 | mantissa)
}

// DecodeUlaw expands one mu-law byte back to a linear PCM16 sample.
func DecodeUlaw(u byte) int16 {
	u = ^u
	sign := u & 0x80
	seg := (u >> 4) & 0x07
	mantissa := u & 0x0F

	sample := (int16(mantissa)<<3 + ulawBias) << seg
	sample -= ulawBias
	if sign != 0 {
		return -sample
	}
	return sample
}

// DecodeUlawInto expands a mu-law payload into a PCM16Sample, reusing the
// capacity of sample when it suffices. Returns the slice written to (may
// be reallocated).
func DecodeUlawInto(buf []byte, sample msdk.PCM16Sample) msdk.PCM16Sample {
	if cap(sample) < len(buf) {
		sample = make(msdk.PCM16Sample, len(buf))
	} else {
		sample = sample[:len(buf)]
	}
	for i, u := range buf {
		sample[i] = DecodeUlaw(u)
	}
	return sample
}

// EncodeUlawInto compresses a PCM16Sample into a mu-law payload, reusing
// the capacity of buf when it suffices. Returns the slice written to (may
// be reallocated).
func EncodeUlawInto(sample msdk.PCM16Sample, buf []byte) []byte {
	if cap(buf) < len(sample) {
		buf = make([]byte, len(sample))
	} else {
		buf = buf[:len(sample)]
	}
	for i, s := range sample {
		buf[i] = EncodeUlaw(s)
	}
	return buf
}
