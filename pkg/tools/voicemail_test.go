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

package tools

import (
	"testing"
	"time"
)

func TestVoicemailLifecycle(t *testing.T) {
	store := NewVoicemailStore(time.Hour, []string{"emergency", "urgent"})

	rec := store.Open("CA1", "Please leave a message.")
	if rec.Status != VoicemailRecording || rec.Urgency != UrgencyNormal {
		t.Fatalf("opened record = %+v", rec)
	}

	if !store.UpdateRecording("CA1", "RE1", "https://api.example.com/RE1", 42) {
		t.Fatal("UpdateRecording returned false for open record")
	}
	got, ok := store.Get("CA1")
	if !ok || got.Status != VoicemailReceived || got.DurationSeconds != 42 {
		t.Errorf("after recording update: %+v", got)
	}

	if !store.AttachTranscription("CA1", "My flight was cancelled, nothing serious.") {
		t.Fatal("AttachTranscription returned false")
	}
	got, _ = store.Get("CA1")
	if got.Status != VoicemailTranscribed || got.Urgency != UrgencyNormal {
		t.Errorf("after transcription: %+v", got)
	}
}

func TestVoicemailUrgencyClassification(t *testing.T) {
	store := NewVoicemailStore(time.Hour, []string{"emergency", "urgent", "accident"})

	cases := []struct {
		name string
		text string
		want string
	}{
		{"urgent keyword", "This is URGENT, call me back", UrgencyHigh},
		{"accident keyword", "I was in an accident at the pickup lot", UrgencyHigh},
		{"plain message", "Just checking on my reservation", UrgencyNormal},
		{"empty transcription", "", UrgencyNormal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store.Open("CA-"+tc.name, "")
			store.AttachTranscription("CA-"+tc.name, tc.text)
			rec, _ := store.Get("CA-" + tc.name)
			if rec.Urgency != tc.want {
				t.Errorf("urgency = %s, want %s", rec.Urgency, tc.want)
			}
		})
	}
}

func TestVoicemailUnknownCall(t *testing.T) {
	store := NewVoicemailStore(time.Hour, nil)
	if store.UpdateRecording("CA-none", "RE1", "", 0) {
		t.Error("UpdateRecording succeeded for unknown call")
	}
	if store.AttachTranscription("CA-none", "hello") {
		t.Error("AttachTranscription succeeded for unknown call")
	}
	if got := store.Recent(); len(got) != 0 {
		t.Errorf("Recent() = %d records, want 0", len(got))
	}
}
