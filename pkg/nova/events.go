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

package nova

import (
	"encoding/json"
	"fmt"

	"github.com/veloxvoip/callengine/pkg/audio"
	"github.com/veloxvoip/callengine/pkg/errors"
)

// Wire protocol of the speech-to-speech stream. Every frame in either
// direction is a JSON envelope {"event": {...}} holding exactly one event
// keyed by its type.

const (
	RoleSystem    = "SYSTEM"
	RoleUser      = "USER"
	RoleAssistant = "ASSISTANT"
	RoleTool      = "TOOL"

	ContentTypeText  = "TEXT"
	ContentTypeAudio = "AUDIO"
	ContentTypeTool  = "TOOL"
)

// Inbound event type tags.
const (
	EventContentStart = "contentStart"
	EventTextOutput   = "textOutput"
	EventAudioOutput  = "audioOutput"
	EventToolUse      = "toolUse"
	EventContentEnd   = "contentEnd"
	EventError        = "error"
)

// ToolSpec declares one callable tool in promptStart.
type ToolSpec struct {
	Name        string
	Description string
	// Schema is the JSON schema of the tool's arguments.
	Schema json.RawMessage
}

type inferenceConfiguration struct {
	MaxTokens   int     `json:"maxTokens"`
	TopP        float64 `json:"topP"`
	Temperature float64 `json:"temperature"`
}

type textConfiguration struct {
	MediaType string `json:"mediaType"`
}

type audioOutputConfiguration struct {
	MediaType       string `json:"mediaType"`
	SampleRateHertz int    `json:"sampleRateHertz"`
	SampleSizeBits  int    `json:"sampleSizeBits"`
	ChannelCount    int    `json:"channelCount"`
	VoiceID         string `json:"voiceId"`
	Encoding        string `json:"encoding"`
	AudioType       string `json:"audioType"`
}

type audioInputConfiguration struct {
	MediaType       string `json:"mediaType"`
	SampleRateHertz int    `json:"sampleRateHertz"`
	SampleSizeBits  int    `json:"sampleSizeBits"`
	ChannelCount    int    `json:"channelCount"`
	AudioType       string `json:"audioType"`
	Encoding        string `json:"encoding"`
}

type toolSpecWire struct {
	ToolSpec struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		InputSchema struct {
			JSON string `json:"json"`
		} `json:"inputSchema"`
	} `json:"toolSpec"`
}

type toolResultInputConfiguration struct {
	ToolUseID              string            `json:"toolUseId"`
	Type                   string            `json:"type"`
	TextInputConfiguration textConfiguration `json:"textInputConfiguration"`
}

type sessionStartEvent struct {
	InferenceConfiguration inferenceConfiguration `json:"inferenceConfiguration"`
}

type promptStartEvent struct {
	PromptName               string                   `json:"promptName"`
	TextOutputConfiguration  textConfiguration        `json:"textOutputConfiguration"`
	AudioOutputConfiguration audioOutputConfiguration `json:"audioOutputConfiguration"`
	ToolUseOutputConfiguration textConfiguration      `json:"toolUseOutputConfiguration"`
	ToolConfiguration        struct {
		Tools []toolSpecWire `json:"tools"`
	} `json:"toolConfiguration"`
}

type contentStartEvent struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Type        string `json:"type"`
	Interactive bool   `json:"interactive"`
	Role        string `json:"role,omitempty"`

	TextInputConfiguration       *textConfiguration            `json:"textInputConfiguration,omitempty"`
	AudioInputConfiguration      *audioInputConfiguration      `json:"audioInputConfiguration,omitempty"`
	ToolResultInputConfiguration *toolResultInputConfiguration `json:"toolResultInputConfiguration,omitempty"`
}

type textInputEvent struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Content     string `json:"content"`
}

type audioInputEvent struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Content     string `json:"content"` // base64 PCM16
}

type toolResultEvent struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Content     string `json:"content"` // JSON-encoded result
}

type contentEndEvent struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
}

type promptEndEvent struct {
	PromptName string `json:"promptName"`
}

type sessionEndEvent struct{}

type outboundBody struct {
	SessionStart *sessionStartEvent `json:"sessionStart,omitempty"`
	PromptStart  *promptStartEvent  `json:"promptStart,omitempty"`
	ContentStart *contentStartEvent `json:"contentStart,omitempty"`
	TextInput    *textInputEvent    `json:"textInput,omitempty"`
	AudioInput   *audioInputEvent   `json:"audioInput,omitempty"`
	ToolResult   *toolResultEvent   `json:"toolResult,omitempty"`
	ContentEnd   *contentEndEvent   `json:"contentEnd,omitempty"`
	PromptEnd    *promptEndEvent    `json:"promptEnd,omitempty"`
	SessionEnd   *sessionEndEvent   `json:"sessionEnd,omitempty"`
}

type outboundEnvelope struct {
	Event outboundBody `json:"event"`
}

func marshalEvent(body outboundBody) (json.RawMessage, error) {
	return json.Marshal(outboundEnvelope{Event: body})
}

func newTextConfiguration() textConfiguration {
	return textConfiguration{MediaType: "text/plain"}
}

func newAudioOutputConfiguration(voiceID string) audioOutputConfiguration {
	return audioOutputConfiguration{
		MediaType:       audio.MimeType,
		SampleRateHertz: audio.SampleRate,
		SampleSizeBits:  audio.BitsPerSample,
		ChannelCount:    audio.Channels,
		VoiceID:         voiceID,
		Encoding:        "base64",
		AudioType:       "SPEECH",
	}
}

func newAudioInputConfiguration() audioInputConfiguration {
	return audioInputConfiguration{
		MediaType:       audio.MimeType,
		SampleRateHertz: audio.SampleRate,
		SampleSizeBits:  audio.BitsPerSample,
		ChannelCount:    audio.Channels,
		AudioType:       "SPEECH",
		Encoding:        "base64",
	}
}

// Inbound events.

type (
	InboundContentStart struct {
		PromptName            string `json:"promptName"`
		ContentName           string `json:"contentName"`
		Type                  string `json:"type"`
		Role                  string `json:"role"`
		AdditionalModelFields string `json:"additionalModelFields"`
	}

	InboundTextOutput struct {
		PromptName  string `json:"promptName"`
		ContentName string `json:"contentName"`
		Role        string `json:"role"`
		Content     string `json:"content"`
	}

	InboundAudioOutput struct {
		PromptName  string `json:"promptName"`
		ContentName string `json:"contentName"`
		Content     string `json:"content"` // base64 PCM16
	}

	InboundToolUse struct {
		PromptName  string `json:"promptName"`
		ContentName string `json:"contentName"`
		ToolUseID   string `json:"toolUseId"`
		ToolName    string `json:"toolName"`
		Content     string `json:"content"` // JSON-encoded arguments
	}

	InboundContentEnd struct {
		PromptName  string `json:"promptName"`
		ContentName string `json:"contentName"`
		Type        string `json:"type"`
		StopReason  string `json:"stopReason"`
	}
)

// InboundEvent is the tagged union of one decoded response chunk. Type
// always names the single event key of the envelope; the matching field is
// populated for the known event kinds, Raw carries the payload for all.
type InboundEvent struct {
	Type string
	Raw  json.RawMessage

	ContentStart *InboundContentStart
	TextOutput   *InboundTextOutput
	AudioOutput  *InboundAudioOutput
	ToolUse      *InboundToolUse
	ContentEnd   *InboundContentEnd
}

// ParseInbound decodes one response chunk. The envelope must contain
// exactly one event key; unknown keys decode to an InboundEvent carrying
// only Type and Raw so the wildcard handler still sees them.
func ParseInbound(msg []byte) (*InboundEvent, error) {
	var envelope struct {
		Event map[string]json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(msg, &envelope); err != nil {
		return nil, errors.Wrap(err, "could not parse stream chunk")
	}
	if len(envelope.Event) != 1 {
		return nil, errors.New(fmt.Sprintf("stream chunk carries %d events, want 1", len(envelope.Event)))
	}

	ev := &InboundEvent{}
	for eventType, raw := range envelope.Event {
		ev.Type = eventType
		ev.Raw = raw
	}

	var err error
	switch ev.Type {
	case EventContentStart:
		ev.ContentStart = &InboundContentStart{}
		err = json.Unmarshal(ev.Raw, ev.ContentStart)
	case EventTextOutput:
		ev.TextOutput = &InboundTextOutput{}
		err = json.Unmarshal(ev.Raw, ev.TextOutput)
	case EventAudioOutput:
		ev.AudioOutput = &InboundAudioOutput{}
		err = json.Unmarshal(ev.Raw, ev.AudioOutput)
	case EventToolUse:
		ev.ToolUse = &InboundToolUse{}
		err = json.Unmarshal(ev.Raw, ev.ToolUse)
	case EventContentEnd:
		ev.ContentEnd = &InboundContentEnd{}
		err = json.Unmarshal(ev.Raw, ev.ContentEnd)
	}
	if err != nil {
		return nil, errors.Wrap(err, "could not parse "+ev.Type+" event")
	}
	return ev, nil
}
