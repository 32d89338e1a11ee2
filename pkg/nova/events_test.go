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
	"testing"
)

func TestParseInbound(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		typ     string
		wantErr bool
	}{
		{
			name:    "tool use",
			payload: `{"event":{"toolUse":{"toolUseId":"t-1","toolName":"transfer_call","content":"{\"department\":\"billing\"}"}}}`,
			typ:     EventToolUse,
		},
		{
			name:    "content end with stop reason",
			payload: `{"event":{"contentEnd":{"type":"TOOL","stopReason":"TOOL_USE"}}}`,
			typ:     EventContentEnd,
		},
		{
			name:    "unknown event kind",
			payload: `{"event":{"completionStart":{"promptName":"p"}}}`,
			typ:     "completionStart",
		},
		{
			name:    "not json",
			payload: `{"event":`,
			wantErr: true,
		},
		{
			name:    "empty envelope",
			payload: `{"event":{}}`,
			wantErr: true,
		},
		{
			name:    "two events in one chunk",
			payload: `{"event":{"textOutput":{},"audioOutput":{}}}`,
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := ParseInbound([]byte(tc.payload))
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ev.Type != tc.typ {
				t.Errorf("type = %s, want %s", ev.Type, tc.typ)
			}
		})
	}
}

func TestParseInboundToolUseFields(t *testing.T) {
	ev, err := ParseInbound([]byte(`{"event":{"toolUse":{"toolUseId":"t-9","toolName":"end_call","content":"{}"}}}`))
	if err != nil {
		t.Fatal(err)
	}
	if ev.ToolUse == nil {
		t.Fatal("toolUse payload not decoded")
	}
	if ev.ToolUse.ToolUseID != "t-9" || ev.ToolUse.ToolName != "end_call" {
		t.Errorf("unexpected toolUse %+v", ev.ToolUse)
	}
}

func TestResolveVoice(t *testing.T) {
	if id, err := ResolveVoice("Tiffany"); err != nil || id != "tiffany" {
		t.Errorf("ResolveVoice(Tiffany) = %q, %v", id, err)
	}
	if _, err := ResolveVoice("nobody"); err == nil {
		t.Error("expected error for unknown voice")
	}
}
