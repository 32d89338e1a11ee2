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
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/veloxvoip/callengine/pkg/config"
)

type memorySink struct {
	mu        sync.Mutex
	segments  []TranscriptSegment
	summaries []*CallRecord
}

func (s *memorySink) WriteSegment(callSID string, seg TranscriptSegment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = append(s.segments, seg)
	return nil
}

func (s *memorySink) WriteSummary(rec *CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, rec)
	return nil
}

func TestRecorderLifecycle(t *testing.T) {
	sink := &memorySink{}
	rec := NewRecorder(&config.RecordingConfig{}, nil, []Sink{sink}, nil)
	ctx := context.Background()

	rec.Begin(ctx, "CA1", "MZ1")
	rec.AddTranscript("CA1", "user", "I'd like to check my booking")
	rec.AddTranscript("CA1", "assistant", "Of course, one moment")
	rec.Finalize(ctx, "CA1", StatusCompleted)

	if len(sink.segments) != 2 {
		t.Fatalf("sink got %d segments, want 2", len(sink.segments))
	}
	if sink.segments[0].Speaker != "user" || sink.segments[1].Speaker != "assistant" {
		t.Error("segments out of call order")
	}
	if sink.segments[1].Timestamp.Before(sink.segments[0].Timestamp) {
		t.Error("timestamps out of order")
	}

	if len(sink.summaries) != 1 {
		t.Fatalf("sink got %d summaries, want 1", len(sink.summaries))
	}
	summary := sink.summaries[0]
	if summary.Status != StatusCompleted || len(summary.Segments) != 2 {
		t.Errorf("unexpected summary %+v", summary)
	}
	if summary.EndedAt.IsZero() {
		t.Error("summary missing end time")
	}

	// A second finalize for the same call is a no-op.
	rec.Finalize(ctx, "CA1", StatusFailed)
	if len(sink.summaries) != 1 {
		t.Errorf("double finalize emitted %d summaries", len(sink.summaries))
	}

	// Transcripts after finalize are dropped.
	rec.AddTranscript("CA1", "user", "too late")
	if len(sink.segments) != 2 {
		t.Error("segment accepted after finalize")
	}
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	if err != nil {
		t.Fatal(err)
	}

	segs := []TranscriptSegment{
		{Speaker: "user", Text: "hello"},
		{Speaker: "assistant", Text: "hi there"},
	}
	for _, seg := range segs {
		if err := sink.WriteSegment("CA9", seg); err != nil {
			t.Fatal(err)
		}
	}

	f, err := os.Open(filepath.Join(dir, "CA9.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines []TranscriptSegment
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var seg TranscriptSegment
		if err := json.Unmarshal(scanner.Bytes(), &seg); err != nil {
			t.Fatalf("bad jsonl line: %v", err)
		}
		lines = append(lines, seg)
	}
	if len(lines) != 2 || lines[0].Text != "hello" || lines[1].Text != "hi there" {
		t.Errorf("unexpected transcript lines %+v", lines)
	}

	if err := sink.WriteSummary(&CallRecord{CallSID: "CA9", Status: StatusCompleted, Segments: segs}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "CA9.json"))
	if err != nil {
		t.Fatal(err)
	}
	var rec CallRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Status != StatusCompleted || len(rec.Segments) != 2 {
		t.Errorf("unexpected summary %+v", rec)
	}
}
