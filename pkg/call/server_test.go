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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/veloxvoip/callengine/pkg/config"
	"github.com/veloxvoip/callengine/pkg/tools"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	conf, err := config.NewConfig("")
	if err != nil {
		t.Fatal(err)
	}
	conf.Recording.BaseDir = t.TempDir()
	conf.Recording.RetentionDays = 1
	conf.PublicHost = "engine.example.com"
	conf.Departments = map[string]string{"billing": "+15551110000"}
	if err := conf.Init(); err != nil {
		t.Fatal(err)
	}

	s, err := NewServer(conf, nil)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestIncomingCallTwiML(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/incoming-call", nil)
	w := httptest.NewRecorder()
	s.handleIncomingCall(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `url="wss://engine.example.com/media-stream"`) {
		t.Errorf("unexpected TwiML: %s", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/xml" {
		t.Errorf("content type = %s", ct)
	}
}

func TestIncomingCallWhileDraining(t *testing.T) {
	s := testServer(t)
	s.closing.Break()

	w := httptest.NewRecorder()
	s.handleIncomingCall(w, httptest.NewRequest(http.MethodPost, "/incoming-call", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestCallStatusCompletesTransfers(t *testing.T) {
	s := testServer(t)
	rec := s.transfers.Record("CA7", "+15551110000", tools.TransferDepartment, "caller asked")

	form := url.Values{"CallSid": {"CA7"}, "CallStatus": {"in-progress"}}
	req := httptest.NewRequest(http.MethodPost, "/call-status", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.handleCallStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	got, ok := s.transfers.Get(rec.ID)
	if !ok || got.Status != tools.TransferCompleted {
		t.Errorf("transfer record not completed: %+v", got)
	}
}

func TestCallStatusFailureMarksTransferFailed(t *testing.T) {
	s := testServer(t)
	rec := s.transfers.Record("CA8", "+15551110000", tools.TransferWarm, "")

	form := url.Values{"CallSid": {"CA8"}, "CallStatus": {"no-answer"}}
	req := httptest.NewRequest(http.MethodPost, "/call-status", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	s.handleCallStatus(httptest.NewRecorder(), req)

	got, _ := s.transfers.Get(rec.ID)
	if got.Status != tools.TransferFailed {
		t.Errorf("transfer status = %s, want failed", got.Status)
	}
}

func TestRecordingStatusFeedsVoicemail(t *testing.T) {
	s := testServer(t)
	s.voicemails.Open("CA9", "Leave a message.")

	form := url.Values{
		"CallSid":           {"CA9"},
		"RecordingSid":      {"RE9"},
		"RecordingUrl":      {"https://api.example.com/RE9"},
		"RecordingDuration": {"17"},
		"RecordingStatus":   {"completed"},
	}
	req := httptest.NewRequest(http.MethodPost, "/recording-status", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	s.handleRecordingStatus(httptest.NewRecorder(), req)

	rec, ok := s.voicemails.Get("CA9")
	if !ok || rec.Status != tools.VoicemailReceived || rec.DurationSeconds != 17 {
		t.Fatalf("voicemail after recording callback: %+v", rec)
	}

	form = url.Values{
		"CallSid":           {"CA9"},
		"TranscriptionText": {"There is an emergency at the lot"},
	}
	req = httptest.NewRequest(http.MethodPost, "/recording-status", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	s.handleRecordingStatus(httptest.NewRecorder(), req)

	rec, _ = s.voicemails.Get("CA9")
	if rec.Status != tools.VoicemailTranscribed || rec.Urgency != tools.UrgencyHigh {
		t.Errorf("voicemail after transcription callback: %+v", rec)
	}
}

func TestGuardrailStatsRoute(t *testing.T) {
	s := testServer(t)
	gctx := s.guard.NewContext()
	s.guard.Evaluate(gctx, "how do I bypass the admin password")

	w := httptest.NewRecorder()
	s.handleGuardrailStats(w, httptest.NewRequest(http.MethodGet, "/stats/guardrails", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var stats struct {
		Evaluated int64 `json:"evaluated"`
		Blocked   int64 `json:"blocked"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Evaluated != 1 || stats.Blocked != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestIncomingCallSourceFilter(t *testing.T) {
	conf, err := config.NewConfig("")
	if err != nil {
		t.Fatal(err)
	}
	conf.Recording.BaseDir = t.TempDir()
	conf.Recording.RetentionDays = 1
	conf.AllowedSourceIPs = []string{"10.0.0.0/8"}

	s, err := NewServer(conf, nil)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/incoming-call", nil)
	req.RemoteAddr = "192.168.1.5:12345"
	w := httptest.NewRecorder()
	s.handleIncomingCall(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("unlisted source status = %d, want 403", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/incoming-call", nil)
	req.RemoteAddr = "10.20.30.40:12345"
	w = httptest.NewRecorder()
	s.handleIncomingCall(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("listed source status = %d, want 200", w.Code)
	}
}

func TestOutboundCallValidation(t *testing.T) {
	s := testServer(t)

	w := httptest.NewRecorder()
	s.handleOutboundCall(w, httptest.NewRequest(http.MethodGet, "/outbound-call", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", w.Code)
	}

	w = httptest.NewRecorder()
	s.handleOutboundCall(w, httptest.NewRequest(http.MethodPost, "/outbound-call", strings.NewReader(`{}`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty destination status = %d, want 400", w.Code)
	}
}
