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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/veloxvoip/callengine/pkg/config"
	"github.com/veloxvoip/callengine/pkg/errors"
)

func TestTwiMLHangup(t *testing.T) {
	doc := Hangup("Thank you for calling, goodbye!")
	if !strings.Contains(doc, "<Say>Thank you for calling, goodbye!</Say>") {
		t.Errorf("missing farewell: %s", doc)
	}
	if !strings.Contains(doc, "<Hangup>") && !strings.Contains(doc, "<Hangup/>") {
		t.Errorf("missing hangup verb: %s", doc)
	}

	bare := Hangup("")
	if strings.Contains(bare, "<Say>") {
		t.Errorf("empty farewell rendered a Say verb: %s", bare)
	}
}

func TestTwiMLTransfer(t *testing.T) {
	warm := Transfer("+15551230000", "+15559990000", "Transferring you to billing.")
	if !strings.Contains(warm, "<Say>Transferring you to billing.</Say>") {
		t.Errorf("warm transfer missing briefing: %s", warm)
	}
	if !strings.Contains(warm, `callerId="+15559990000"`) || !strings.Contains(warm, "+15551230000") {
		t.Errorf("transfer missing dial target: %s", warm)
	}

	cold := Transfer("+15551230000", "", "")
	if strings.Contains(cold, "<Say>") {
		t.Errorf("cold transfer rendered a briefing: %s", cold)
	}
}

func TestTwiMLConnectStream(t *testing.T) {
	doc := ConnectStream("wss://engine.example.com/media-stream")
	if !strings.Contains(doc, `url="wss://engine.example.com/media-stream"`) {
		t.Errorf("missing stream url: %s", doc)
	}
}

func TestParseStreamFrame(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		event   string
		wantErr bool
	}{
		{
			name:    "start",
			payload: `{"event":"start","start":{"streamSid":"MZ1","callSid":"CA1","tracks":["inbound"]}}`,
			event:   FrameStart,
		},
		{
			name:    "media",
			payload: `{"event":"media","media":{"track":"inbound","payload":"//8A"}}`,
			event:   FrameMedia,
		},
		{
			name:    "unknown lifecycle event",
			payload: `{"event":"dtmf","dtmf":{"digit":"5"}}`,
			event:   "dtmf",
		},
		{
			name:    "missing discriminator",
			payload: `{"start":{}}`,
			wantErr: true,
		},
		{
			name:    "not json",
			payload: `{`,
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			frame, err := ParseStreamFrame([]byte(tc.payload))
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if frame.Event != tc.event {
				t.Errorf("event = %s, want %s", frame.Event, tc.event)
			}
		})
	}
}

func TestOutboundMediaShape(t *testing.T) {
	raw, err := OutboundMedia("MZ1", "outbound", "AAAA")
	if err != nil {
		t.Fatal(err)
	}
	var frame map[string]any
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatal(err)
	}
	if frame["event"] != "media" || frame["streamSid"] != "MZ1" {
		t.Errorf("unexpected frame %v", frame)
	}
	media, ok := frame["media"].(map[string]any)
	if !ok || media["track"] != "outbound" || media["payload"] != "AAAA" {
		t.Errorf("unexpected media %v", frame["media"])
	}
}

func TestClientUpdateCall(t *testing.T) {
	var gotPath, gotTwiml, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, _, _ = r.BasicAuth()
		_ = r.ParseForm()
		gotTwiml = r.PostFormValue("Twiml")
		_ = json.NewEncoder(w).Encode(Call{SID: "CA1", Status: "in-progress"})
	}))
	defer srv.Close()

	c := NewClient(&config.TwilioConfig{
		AccountSID: "AC1",
		APISID:     "SK1",
		APISecret:  "secret",
		BaseURL:    srv.URL,
	}, nil)

	if err := c.UpdateCall(context.Background(), "CA1", Hangup("Goodbye!")); err != nil {
		t.Fatalf("update call failed: %v", err)
	}
	if gotPath != "/Accounts/AC1/Calls/CA1.json" {
		t.Errorf("path = %s", gotPath)
	}
	if gotUser != "SK1" {
		t.Errorf("auth user = %s, want API key SID", gotUser)
	}
	if !strings.Contains(gotTwiml, "Hangup") {
		t.Errorf("twiml = %s", gotTwiml)
	}
}

func TestClientRejectedRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(&config.TwilioConfig{AccountSID: "AC1", BaseURL: srv.URL}, nil)
	err := c.UpdateCall(context.Background(), "CA404", Hangup(""))
	if err == nil {
		t.Fatal("expected error")
	}
	var terr *errors.TelephonyError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TelephonyError, got %T", err)
	}
	if terr.Status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", terr.Status)
	}
}
