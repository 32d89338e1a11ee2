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

package call

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/livekit/protocol/logger"

	"github.com/veloxvoip/callengine/pkg/config"
	"github.com/veloxvoip/callengine/pkg/twilio"
)

type CallStatus string

const (
	StatusActive    CallStatus = "active"
	StatusCompleted CallStatus = "completed"
	StatusFailed    CallStatus = "failed"
)

// TranscriptSegment is one ordered utterance of the conversation.
type TranscriptSegment struct {
	Timestamp time.Time `json:"timestamp"`
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
}

// CallRecord is the summary emitted to sinks when a call ends.
type CallRecord struct {
	CallSID      string              `json:"callSid"`
	StreamSID    string              `json:"streamSid"`
	RecordingSID string              `json:"recordingSid,omitempty"`
	StartedAt    time.Time           `json:"startedAt"`
	EndedAt      time.Time           `json:"endedAt,omitempty"`
	Status       CallStatus          `json:"status"`
	Topics       []string            `json:"topics,omitempty"`
	Segments     []TranscriptSegment `json:"segments"`
}

// Recorder tracks per-call transcripts and recording state, forwarding
// segments to the configured sinks in call order and the summary record on
// finalization.
type Recorder struct {
	log   logger.Logger
	conf  *config.RecordingConfig
	tw    *twilio.Client
	sinks []Sink

	mu      sync.Mutex
	records map[string]*CallRecord
}

func NewRecorder(conf *config.RecordingConfig, tw *twilio.Client, sinks []Sink, log logger.Logger) *Recorder {
	if log == nil {
		log = logger.GetLogger().WithComponent("recorder")
	}
	return &Recorder{
		log:     log,
		conf:    conf,
		tw:      tw,
		sinks:   sinks,
		records: make(map[string]*CallRecord),
	}
}

// Begin opens the call record and, when enabled, starts a carrier-side
// recording. Recording failures are logged, never fatal to the call.
func (r *Recorder) Begin(ctx context.Context, callSID, streamSID string) {
	rec := &CallRecord{
		CallSID:   callSID,
		StreamSID: streamSID,
		StartedAt: time.Now(),
		Status:    StatusActive,
	}

	r.mu.Lock()
	r.records[callSID] = rec
	r.mu.Unlock()

	if r.conf.PickupWebhook != "" {
		go r.notifyPickup(callSID, streamSID)
	}

	if r.conf.Enabled && r.tw != nil {
		recording, err := r.tw.CreateRecording(ctx, callSID, r.conf.StatusCallbackURL)
		if err != nil {
			r.log.Errorw("could not start call recording", err, "callSID", callSID)
			return
		}
		r.mu.Lock()
		rec.RecordingSID = recording.SID
		r.mu.Unlock()
	}
}

// notifyPickup tells the configured consumer that the agent answered.
func (r *Recorder) notifyPickup(callSID, streamSID string) {
	body, err := json.Marshal(map[string]any{
		"event":     "call_pickup",
		"callSid":   callSID,
		"streamSid": streamSID,
		"timestamp": time.Now(),
	})
	if err != nil {
		return
	}
	resp, err := pickupClient.Post(r.conf.PickupWebhook, "application/json", bytes.NewReader(body))
	if err != nil {
		r.log.Warnw("pickup webhook failed", err, "callSID", callSID)
		return
	}
	resp.Body.Close()
}

var pickupClient = &http.Client{Timeout: 5 * time.Second}

// AddTranscript appends one utterance to the call's transcript and fans it
// out to the sinks.
func (r *Recorder) AddTranscript(callSID, speaker, text string) {
	seg := TranscriptSegment{Timestamp: time.Now(), Speaker: speaker, Text: text}

	r.mu.Lock()
	rec, ok := r.records[callSID]
	if ok {
		rec.Segments = append(rec.Segments, seg)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	for _, sink := range r.sinks {
		if err := sink.WriteSegment(callSID, seg); err != nil {
			r.log.Warnw("transcript sink write failed", err, "callSID", callSID)
		}
	}
}

// SetTopics records the conversation topics detected by the guardrails,
// included in the summary flushed at finalization.
func (r *Recorder) SetTopics(callSID string, topics []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[callSID]; ok {
		rec.Topics = topics
	}
}

// Finalize marks the call's terminal status, flushes the summary to the
// sinks and discards the record. Later calls for the same SID are no-ops.
func (r *Recorder) Finalize(ctx context.Context, callSID string, status CallStatus) {
	r.mu.Lock()
	rec, ok := r.records[callSID]
	if ok {
		delete(r.records, callSID)
		rec.EndedAt = time.Now()
		rec.Status = status
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	if rec.RecordingSID != "" && r.tw != nil {
		if err := r.tw.StopRecording(ctx, callSID, rec.RecordingSID); err != nil {
			r.log.Warnw("could not stop call recording", err, "callSID", callSID)
		}
	}

	for _, sink := range r.sinks {
		if err := sink.WriteSummary(rec); err != nil {
			r.log.Warnw("summary sink write failed", err, "callSID", callSID)
		}
	}
	r.log.Infow("call record finalized",
		"callSID", callSID, "status", status, "segments", len(rec.Segments))
}

// Transcript returns a snapshot of the call's segments so far.
func (r *Recorder) Transcript(callSID string) []TranscriptSegment {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[callSID]
	if !ok {
		return nil
	}
	return append([]TranscriptSegment(nil), rec.Segments...)
}
