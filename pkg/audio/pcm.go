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
	"encoding/binary"
	"io"

	msdk "github.com/livekit/media-sdk"
)

const (
	// SampleRate is the PCM rate shared by the carrier leg and the model
	// stream. Telephone audio is narrowband.
	SampleRate = 8000

	BitsPerSample = 16
	Channels      = 1

	// MimeType identifies raw little-endian PCM frames on the model stream.
	MimeType = "audio/lpcm"
)

// BytesToPCM16Into converts little-endian bytes to a PCM16Sample, reusing
// the capacity of sample when it suffices. Returns the slice written to
// (may be reallocated).
//
//	var sample msdk.PCM16Sample
//	for {
//	    buf := readAudioBytes()
//	    sample = audio.BytesToPCM16Into(buf, sample)
//	    processAudio(sample)
//	}
//
// Inputs with an odd trailing byte have it discarded; telephony frames are
// not guaranteed to arrive sample-aligned.
func BytesToPCM16Into(buf []byte, sample msdk.PCM16Sample) msdk.PCM16Sample {
	needed := len(buf) / 2

	if cap(sample) < needed {
		sample = make(msdk.PCM16Sample, needed)
	} else {
		sample = sample[:needed]
	}

	for i := 0; i+1 < len(buf); i += 2 {
		sample[i/2] = int16(binary.LittleEndian.Uint16(buf[i : i+2]))
	}

	return sample
}

// PCM16ToBytesInto converts a PCM16Sample to little-endian bytes, reusing
// the capacity of buf when it suffices. Returns the slice written to (may
// be reallocated).
func PCM16ToBytesInto(sample msdk.PCM16Sample, buf []byte) ([]byte, error) {
	needed := sample.Size()

	if cap(buf) < needed {
		buf = make([]byte, needed)
	} else {
		buf = buf[:needed]
	}

	n, err := sample.CopyTo(buf)
	if err != nil {
		return nil, err
	}
	if n != needed {
		return nil, io.ErrShortWrite
	}

	return buf, nil
}
