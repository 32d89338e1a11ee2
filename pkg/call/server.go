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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/frostbyte73/core"
	"github.com/gorilla/websocket"

	"github.com/livekit/protocol/logger"

	"github.com/veloxvoip/callengine/pkg/config"
	"github.com/veloxvoip/callengine/pkg/guardrails"
	"github.com/veloxvoip/callengine/pkg/ipvalidator"
	"github.com/veloxvoip/callengine/pkg/nova"
	"github.com/veloxvoip/callengine/pkg/stats"
	"github.com/veloxvoip/callengine/pkg/tools"
	"github.com/veloxvoip/callengine/pkg/twilio"
)

// Server terminates the carrier's webhooks and media-stream websockets and
// spins up one Orchestrator per call.
type Server struct {
	log  logger.Logger
	conf *config.Config
	mon  *stats.Monitor

	registry   *nova.Registry
	dispatcher *tools.Dispatcher
	guard      *guardrails.Evaluator
	recorder   *Recorder
	transfers  *tools.TransferLog
	voicemails *tools.VoicemailStore
	tw         *twilio.Client

	httpSrv   *http.Server
	upgrader  websocket.Upgrader
	srcFilter *ipvalidator.Validator
	closing   core.Fuse
}

type ServerOption func(*Server)

func WithServerLogger(log logger.Logger) ServerOption {
	return func(s *Server) {
		s.log = log
	}
}

func NewServer(conf *config.Config, mon *stats.Monitor, opts ...ServerOption) (*Server, error) {
	s := &Server{
		log:  logger.GetLogger().WithComponent("server"),
		conf: conf,
		mon:  mon,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The carrier connects server-to-server, there is no browser
			// origin to verify.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	retention := time.Duration(conf.Recording.RetentionDays) * 24 * time.Hour
	s.registry = nova.NewRegistry()
	s.tw = twilio.NewClient(&conf.Twilio, s.log)
	s.transfers = tools.NewTransferLog(retention)
	s.voicemails = tools.NewVoicemailStore(retention, conf.Guardrails.EmergencyKeywords)
	s.dispatcher = tools.NewDispatcher(conf, s.tw, s.transfers, mon, s.log,
		tools.WithVoicemailStore(s.voicemails))
	s.guard = guardrails.NewEvaluator(&conf.Guardrails, s.log)

	sinks, err := buildSinks(&conf.Recording)
	if err != nil {
		return nil, err
	}
	s.recorder = NewRecorder(&conf.Recording, s.tw, sinks, s.log)

	if len(conf.AllowedSourceIPs) > 0 {
		s.srcFilter, err = ipvalidator.NewValidator(conf.AllowedSourceIPs)
		if err != nil {
			return nil, err
		}
		s.log.Infow("restricting carrier routes", "networks", s.srcFilter.Networks())
	}

	return s, nil
}

// allowedSource gates carrier-facing routes when an IP allowlist is set.
func (s *Server) allowedSource(w http.ResponseWriter, r *http.Request) bool {
	if s.srcFilter == nil || s.srcFilter.IsAllowed(r.RemoteAddr) {
		return true
	}
	s.log.Warnw("rejected request from unlisted source", nil, "remoteAddr", r.RemoteAddr, "path", r.URL.Path)
	http.Error(w, "forbidden", http.StatusForbidden)
	return false
}

func buildSinks(conf *config.RecordingConfig) ([]Sink, error) {
	var sinks []Sink
	if conf.BaseDir != "" {
		fs, err := NewFileSink(conf.BaseDir)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fs)
	}
	if conf.TranscriptWebhook != "" {
		sinks = append(sinks, NewWebhookSink(conf.TranscriptWebhook))
	}
	return sinks, nil
}

func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/incoming-call", s.handleIncomingCall)
	mux.HandleFunc("/media-stream", s.handleMediaStream)
	mux.HandleFunc("/outbound-call", s.handleOutboundCall)
	mux.HandleFunc("/call-status", s.handleCallStatus)
	mux.HandleFunc("/recording-status", s.handleRecordingStatus)
	mux.HandleFunc("/calls", s.handleActiveCalls)
	mux.HandleFunc("/transfers", s.handleTransfers)
	mux.HandleFunc("/voicemails", s.handleVoicemails)
	mux.HandleFunc("/stats/guardrails", s.handleGuardrailStats)

	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.conf.ListenPort),
		Handler: mux,
	}

	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorw("http server failed", err)
		}
	}()
	s.log.Infow("call server started", "port", s.conf.ListenPort)
	return nil
}

// Stop drains active sessions, then shuts the listener down.
func (s *Server) Stop(ctx context.Context) {
	if s.closing.IsBroken() {
		return
	}
	s.closing.Break()

	s.registry.CloseAll(ctx)
	if s.httpSrv != nil {
		_ = s.httpSrv.Shutdown(ctx)
	}
}

// ActiveCalls reports how many calls are currently bridged.
func (s *Server) ActiveCalls() int {
	return s.registry.Len()
}

// handleIncomingCall answers the carrier's call webhook with instructions
// to bridge the call's media to this server.
func (s *Server) handleIncomingCall(w http.ResponseWriter, r *http.Request) {
	if !s.allowedSource(w, r) {
		return
	}
	if s.closing.IsBroken() {
		http.Error(w, "draining", http.StatusServiceUnavailable)
		return
	}
	host := s.conf.PublicHost
	if host == "" {
		host = r.Host
	}
	doc := twilio.ConnectStream("wss://" + host + "/media-stream")
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(doc))
}

func (s *Server) handleMediaStream(w http.ResponseWriter, r *http.Request) {
	if !s.allowedSource(w, r) {
		return
	}
	if s.closing.IsBroken() {
		http.Error(w, "draining", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorw("media stream upgrade failed", err)
		return
	}

	o := NewOrchestrator(s.conf, conn, s.registry, s.dispatcher, s.guard, s.recorder, s.mon, s.log)
	// Blocks for the life of the call; the request context dies once the
	// handler returns, so the stream must be serviced here.
	o.HandleStream(context.Background())
}

// handleOutboundCall originates a call whose answered leg is bridged back
// into the engine.
func (s *Server) handleOutboundCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		To string `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.To == "" {
		http.Error(w, "missing destination", http.StatusBadRequest)
		return
	}

	host := s.conf.PublicHost
	if host == "" {
		host = r.Host
	}
	c, err := s.tw.CreateCall(r.Context(), req.To, "https://"+host+"/incoming-call")
	if err != nil {
		s.log.Errorw("outbound call failed", err, "to", req.To)
		http.Error(w, "call failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"callSid": c.SID, "status": c.Status})
}

// handleCallStatus receives the carrier's delivery-status callbacks and
// completes pending transfer records.
func (s *Server) handleCallStatus(w http.ResponseWriter, r *http.Request) {
	if !s.allowedSource(w, r) {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	callSID := r.PostFormValue("CallSid")
	status := r.PostFormValue("CallStatus")
	s.log.Infow("call status callback", "callSID", callSID, "status", status)

	for _, rec := range s.transfers.ByCall(callSID) {
		if rec.Status != tools.TransferInitiated {
			continue
		}
		switch status {
		case "in-progress", "completed":
			s.transfers.UpdateStatus(rec.ID, tools.TransferCompleted)
		case "failed", "busy", "no-answer", "canceled":
			s.transfers.UpdateStatus(rec.ID, tools.TransferFailed)
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleRecordingStatus(w http.ResponseWriter, r *http.Request) {
	if !s.allowedSource(w, r) {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	callSID := r.PostFormValue("CallSid")
	s.log.Infow("recording status callback",
		"callSID", callSID,
		"recordingSID", r.PostFormValue("RecordingSid"),
		"status", r.PostFormValue("RecordingStatus"))

	if sid := r.PostFormValue("RecordingSid"); sid != "" {
		duration, _ := strconv.Atoi(r.PostFormValue("RecordingDuration"))
		s.voicemails.UpdateRecording(callSID, sid, r.PostFormValue("RecordingUrl"), duration)
	}
	if text := r.PostFormValue("TranscriptionText"); text != "" {
		if s.voicemails.AttachTranscription(callSID, text) {
			if rec, ok := s.voicemails.Get(callSID); ok && rec.Urgency == tools.UrgencyHigh {
				s.log.Warnw("urgent voicemail received", nil, "callSID", callSID)
			}
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleTransfers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"stats":     s.transfers.Stats(),
		"transfers": s.transfers.Recent(),
	})
}

func (s *Server) handleVoicemails(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"voicemails": s.voicemails.Recent(),
	})
}

func (s *Server) handleGuardrailStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.guard.Stats())
}

func (s *Server) handleActiveCalls(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"active": s.registry.Len(),
		"calls":  s.registry.IDs(),
	})
}
