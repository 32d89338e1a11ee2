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

package twilio

import (
	"encoding/json"

	"github.com/veloxvoip/callengine/pkg/errors"
)

// Media-stream frames exchanged over the carrier's persistent websocket.
// Lifecycle events the engine does not handle are reported with their
// discriminator and otherwise ignored by callers.

const (
	FrameConnected = "connected"
	FrameStart     = "start"
	FrameMedia     = "media"
	FrameStop      = "stop"
	FrameMark      = "mark"
)

// StartFrame announces the call and stream identifiers.
type StartFrame struct {
	StreamSID        string            `json:"streamSid"`
	AccountSID       string            `json:"accountSid"`
	CallSID          string            `json:"callSid"`
	Tracks           []string          `json:"tracks"`
	CustomParameters map[string]string `json:"customParameters"`
}

// MediaFrame carries one chunk of base64, mu-law compressed audio.
type MediaFrame struct {
	Track     string `json:"track"`
	Chunk     string `json:"chunk"`
	Timestamp string `json:"timestamp"`
	Payload   string `json:"payload"`
}

// StreamFrame is one decoded inbound frame. Exactly the field matching
// Event is populated.
type StreamFrame struct {
	Event string
	Start *StartFrame
	Media *MediaFrame
}

// ParseStreamFrame decodes one inbound media-stream message.
func ParseStreamFrame(msg []byte) (*StreamFrame, error) {
	var raw struct {
		Event string          `json:"event"`
		Start json.RawMessage `json:"start"`
		Media json.RawMessage `json:"media"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return nil, errors.Wrap(err, "could not parse media stream frame")
	}
	if raw.Event == "" {
		return nil, errors.New("media stream frame missing event discriminator")
	}

	frame := &StreamFrame{Event: raw.Event}
	switch raw.Event {
	case FrameStart:
		frame.Start = &StartFrame{}
		if err := json.Unmarshal(raw.Start, frame.Start); err != nil {
			return nil, errors.Wrap(err, "could not parse start frame")
		}
	case FrameMedia:
		frame.Media = &MediaFrame{}
		if err := json.Unmarshal(raw.Media, frame.Media); err != nil {
			return nil, errors.Wrap(err, "could not parse media frame")
		}
	}
	return frame, nil
}

type outboundMediaFrame struct {
	Event string `json:"event"`
	Media struct {
		Track   string `json:"track"`
		Payload string `json:"payload"`
	} `json:"media"`
	StreamSID string `json:"streamSid"`
}

// OutboundMedia encodes an audio payload frame for the carrier: the
// payload is base64, mu-law compressed audio for the given track.
func OutboundMedia(streamSID, track, payload string) ([]byte, error) {
	frame := outboundMediaFrame{Event: FrameMedia, StreamSID: streamSID}
	frame.Media.Track = track
	frame.Media.Payload = payload
	return json.Marshal(frame)
}
