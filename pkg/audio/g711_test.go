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
	"testing"

	msdk "github.com/livekit/media-sdk"
)

func TestUlawKnownValues(t *testing.T) {
	tests := []struct {
		name   string
		sample int16
		want   byte
	}{
		{name: "zero", sample: 0, want: 0xFF},
		{name: "max positive", sample: 32767, want: 0x80},
		{name: "max negative", sample: -32768, want: 0x00},
		{name: "silence floor", sample: -1, want: 0x7F},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := EncodeUlaw(tc.sample); got != tc.want {
				t.Errorf("EncodeUlaw(%d) = %#x, want %#x", tc.sample, got, tc.want)
			}
		})
	}
}

func TestUlawRoundTrip(t *testing.T) {
	// Quantization error grows with amplitude; each segment doubles the
	// step size. These inputs stay below the clip region, where error
	// stays within half the top-segment step.
	samples := []int16{0, 1, -1, 100, -100, 1000, -1000, 8000, -8000, 20000, -20000, 32000, -32000}
	for _, s := range samples {
		decoded := DecodeUlaw(EncodeUlaw(s))
		diff := int32(decoded) - int32(s)
		if diff < 0 {
			diff = -diff
		}
		// The top segment quantizes in steps of 1024 linear units.
		if diff > 512 {
			t.Errorf("round trip of %d gave %d (diff %d)", s, decoded, diff)
		}
	}
}

func TestUlawIdempotentEncoding(t *testing.T) {
	// Decode then re-encode must reproduce the same byte for every code.
	for b := 0; b < 256; b++ {
		decoded := DecodeUlaw(byte(b))
		re := EncodeUlaw(decoded)
		// 0x7F and 0xFF both decode to zero, positive zero re-encodes to 0xFF.
		if byte(b) == 0x7F && re == 0xFF {
			continue
		}
		if re != byte(b) {
			t.Errorf("code %#x decoded to %d, re-encoded %#x", b, decoded, re)
		}
	}
}

func TestDecodeUlawIntoReusesBuffer(t *testing.T) {
	buf := []byte{0xFF, 0x80, 0x00}
	sample := make(msdk.PCM16Sample, 0, 16)

	out := DecodeUlawInto(buf, sample)
	if len(out) != len(buf) {
		t.Fatalf("expected %d samples, got %d", len(buf), len(out))
	}
	if cap(out) != 16 {
		t.Errorf("expected buffer reuse, got cap %d", cap(out))
	}

	grown := DecodeUlawInto(make([]byte, 32), out)
	if len(grown) != 32 {
		t.Fatalf("expected 32 samples, got %d", len(grown))
	}
}

func TestEncodeUlawInto(t *testing.T) {
	sample := msdk.PCM16Sample{0, 1000, -1000, 32000}
	out := EncodeUlawInto(sample, nil)
	if len(out) != len(sample) {
		t.Fatalf("expected %d bytes, got %d", len(sample), len(out))
	}
	for i := range sample {
		if out[i] != EncodeUlaw(sample[i]) {
			t.Errorf("byte %d: got %#x, want %#x", i, out[i], EncodeUlaw(sample[i]))
		}
	}
}
