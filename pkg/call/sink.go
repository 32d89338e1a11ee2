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
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/veloxvoip/callengine/pkg/errors"
)

// Sink consumes a call's transcript segments in order and its final
// summary record.
type Sink interface {
	WriteSegment(callSID string, seg TranscriptSegment) error
	WriteSummary(rec *CallRecord) error
}

// FileSink appends transcript segments as JSON lines under the base
// directory and writes the summary record next to them.
type FileSink struct {
	baseDir string
	mu      sync.Mutex
}

func NewFileSink(baseDir string) (*FileSink, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "could not create transcript directory")
	}
	return &FileSink{baseDir: baseDir}, nil
}

func (s *FileSink) WriteSegment(callSID string, seg TranscriptSegment) error {
	line, err := json.Marshal(seg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.segmentPath(callSID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(line, '\n'))
	return err
}

func (s *FileSink) WriteSummary(rec *CallRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.WriteFile(filepath.Join(s.baseDir, rec.CallSID+".json"), data, 0o644)
}

func (s *FileSink) segmentPath(callSID string) string {
	return filepath.Join(s.baseDir, callSID+".jsonl")
}

// WebhookSink posts segments and summaries to a consumer endpoint.
type WebhookSink struct {
	url        string
	httpClient *http.Client
}

func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		url:        url,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *WebhookSink) WriteSegment(callSID string, seg TranscriptSegment) error {
	return s.post(map[string]any{
		"type":      "segment",
		"callSid":   callSID,
		"timestamp": seg.Timestamp,
		"speaker":   seg.Speaker,
		"text":      seg.Text,
	})
}

func (s *WebhookSink) WriteSummary(rec *CallRecord) error {
	return s.post(map[string]any{
		"type":    "summary",
		"callSid": rec.CallSID,
		"record":  rec,
	})
}

func (s *WebhookSink) post(payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Post(s.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.New("webhook rejected transcript payload")
	}
	return nil
}
