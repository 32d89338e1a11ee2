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
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

type VoicemailStatus string

const (
	VoicemailRecording   VoicemailStatus = "recording"
	VoicemailReceived    VoicemailStatus = "received"
	VoicemailTranscribed VoicemailStatus = "transcribed"
)

const (
	UrgencyNormal = "normal"
	UrgencyHigh   = "high"
)

// VoicemailRecord tracks one voicemail from the moment the call switches
// into the recording flow through the carrier's recording and
// transcription callbacks.
type VoicemailRecord struct {
	ID              string          `json:"id"`
	CallSID         string          `json:"callSid"`
	Prompt          string          `json:"prompt,omitempty"`
	RecordingSID    string          `json:"recordingSid,omitempty"`
	RecordingURL    string          `json:"recordingUrl,omitempty"`
	DurationSeconds int             `json:"durationSeconds,omitempty"`
	Transcription   string          `json:"transcription,omitempty"`
	Urgency         string          `json:"urgency"`
	Status          VoicemailStatus `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

const voicemailStoreSize = 1024

// VoicemailStore retains voicemail records for a bounded window, keyed by
// call SID. Transcriptions are scanned for urgent keywords so operators can
// triage the list.
type VoicemailStore struct {
	records        *expirable.LRU[string, *VoicemailRecord]
	urgentKeywords []string
}

func NewVoicemailStore(retention time.Duration, urgentKeywords []string) *VoicemailStore {
	return &VoicemailStore{
		records:        expirable.NewLRU[string, *VoicemailRecord](voicemailStoreSize, nil, retention),
		urgentKeywords: urgentKeywords,
	}
}

// Open creates a record when the call switches to the recording flow.
func (s *VoicemailStore) Open(callSID, prompt string) *VoicemailRecord {
	now := time.Now()
	rec := &VoicemailRecord{
		ID:        uuid.NewString(),
		CallSID:   callSID,
		Prompt:    prompt,
		Urgency:   UrgencyNormal,
		Status:    VoicemailRecording,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.records.Add(callSID, rec)
	return rec
}

// UpdateRecording attaches the carrier's recording details. Returns false
// when no voicemail was opened for the call.
func (s *VoicemailStore) UpdateRecording(callSID, recordingSID, url string, durationSeconds int) bool {
	rec, ok := s.records.Get(callSID)
	if !ok {
		return false
	}
	rec.RecordingSID = recordingSID
	rec.RecordingURL = url
	rec.DurationSeconds = durationSeconds
	rec.Status = VoicemailReceived
	rec.UpdatedAt = time.Now()
	return true
}

// AttachTranscription stores the transcription text and classifies urgency.
func (s *VoicemailStore) AttachTranscription(callSID, text string) bool {
	rec, ok := s.records.Get(callSID)
	if !ok {
		return false
	}
	rec.Transcription = text
	rec.Urgency = s.analyzeUrgency(text)
	rec.Status = VoicemailTranscribed
	rec.UpdatedAt = time.Now()
	return true
}

func (s *VoicemailStore) analyzeUrgency(text string) string {
	lower := strings.ToLower(text)
	for _, kw := range s.urgentKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return UrgencyHigh
		}
	}
	return UrgencyNormal
}

func (s *VoicemailStore) Get(callSID string) (*VoicemailRecord, bool) {
	return s.records.Get(callSID)
}

// Recent returns all retained voicemails, oldest first.
func (s *VoicemailStore) Recent() []*VoicemailRecord {
	return s.records.Values()
}
