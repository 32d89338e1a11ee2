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
	"encoding/xml"
)

// TwiML document builders for the call-control instructions the engine
// issues: hangups, transfers, voicemail recording and media streams.

type twimlResponse struct {
	XMLName xml.Name      `xml:"Response"`
	Verbs   []interface{} `xml:",omitempty"`
}

type sayVerb struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type hangupVerb struct {
	XMLName xml.Name `xml:"Hangup"`
}

type dialVerb struct {
	XMLName  xml.Name `xml:"Dial"`
	CallerID string   `xml:"callerId,attr,omitempty"`
	Number   string   `xml:",chardata"`
}

type recordVerb struct {
	XMLName                     xml.Name `xml:"Record"`
	Action                      string   `xml:"action,attr,omitempty"`
	MaxLength                   int      `xml:"maxLength,attr,omitempty"`
	Transcribe                  bool     `xml:"transcribe,attr,omitempty"`
	RecordingStatusCallback     string   `xml:"recordingStatusCallback,attr,omitempty"`
	PlayBeep                    bool     `xml:"playBeep,attr"`
	FinishOnKey                 string   `xml:"finishOnKey,attr,omitempty"`
}

type pauseVerb struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr"`
}

type streamNoun struct {
	XMLName xml.Name `xml:"Stream"`
	URL     string   `xml:"url,attr"`
}

type connectVerb struct {
	XMLName xml.Name `xml:"Connect"`
	Stream  streamNoun
}

func render(verbs ...interface{}) string {
	doc, err := xml.Marshal(twimlResponse{Verbs: verbs})
	if err != nil {
		// The verb structs are fixed shapes, marshaling cannot fail at
		// runtime with well-formed inputs.
		return "<Response/>"
	}
	return xml.Header + string(doc)
}

// Hangup speaks the farewell, then ends the call.
func Hangup(farewell string) string {
	if farewell == "" {
		return render(hangupVerb{})
	}
	return render(sayVerb{Text: farewell}, hangupVerb{})
}

// Transfer redirects the call leg to destination, optionally speaking a
// briefing message first (warm transfer).
func Transfer(destination, callerID, briefing string) string {
	verbs := make([]interface{}, 0, 2)
	if briefing != "" {
		verbs = append(verbs, sayVerb{Text: briefing})
	}
	verbs = append(verbs, dialVerb{CallerID: callerID, Number: destination})
	return render(verbs...)
}

// Voicemail switches the call into a recording flow: a prompt, a beep and
// a bounded recording.
func Voicemail(prompt, statusCallback string, maxSeconds int, transcribe bool) string {
	if maxSeconds <= 0 {
		maxSeconds = 120
	}
	return render(
		sayVerb{Text: prompt},
		recordVerb{
			MaxLength:               maxSeconds,
			Transcribe:              transcribe,
			RecordingStatusCallback: statusCallback,
			PlayBeep:                true,
			FinishOnKey:             "#",
		},
		sayVerb{Text: "We did not receive a message. Goodbye."},
		hangupVerb{},
	)
}

// ConnectStream answers a call by bridging its media to the engine's
// websocket endpoint.
func ConnectStream(wsURL string) string {
	return render(connectVerb{Stream: streamNoun{URL: wsURL}})
}
