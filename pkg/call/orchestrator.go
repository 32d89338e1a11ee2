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
	"encoding/base64"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/frostbyte73/core"
	"github.com/gorilla/websocket"

	msdk "github.com/livekit/media-sdk"
	"github.com/livekit/protocol/logger"

	"github.com/veloxvoip/callengine/pkg/audio"
	"github.com/veloxvoip/callengine/pkg/config"
	"github.com/veloxvoip/callengine/pkg/guardrails"
	"github.com/veloxvoip/callengine/pkg/nova"
	"github.com/veloxvoip/callengine/pkg/stats"
	"github.com/veloxvoip/callengine/pkg/tools"
	"github.com/veloxvoip/callengine/pkg/twilio"
)

const (
	trackInbound  = "inbound"
	trackOutbound = "outbound"

	// Greeting audio is fed to the stream in telephony-sized frames so the
	// model hears it at real-time cadence.
	greetingFrameBytes = 320 // 20ms of 8kHz PCM16
)

// Orchestrator owns the full lifecycle of one call: the carrier media
// stream on one side, a protocol session on the other, with the guardrail
// evaluator and tool dispatcher in between.
type Orchestrator struct {
	log  logger.Logger
	conf *config.Config

	registry   *nova.Registry
	dispatcher *tools.Dispatcher
	guard      *guardrails.Evaluator
	recorder   *Recorder
	mon        *stats.Monitor

	conn    *websocket.Conn // carrier media stream
	writeMu sync.Mutex

	ctx       context.Context
	session   *nova.Session
	client    *nova.StreamClient
	guardCtx  *guardrails.Context
	callSID   string
	streamSID string
	startedAt time.Time

	hangupFired atomic.Bool
	closed      core.Fuse
	teardown    sync.Once

	// Reusable buffers for the audio hot paths. Only the PCM byte slices
	// handed to the session are freshly allocated, since the session
	// retains them in its queue.
	inPCM   msdk.PCM16Sample
	outPCM  msdk.PCM16Sample
	ulawBuf []byte
}

var _ tools.CallHandle = (*Orchestrator)(nil)

func NewOrchestrator(conf *config.Config, conn *websocket.Conn, registry *nova.Registry,
	dispatcher *tools.Dispatcher, guard *guardrails.Evaluator, recorder *Recorder,
	mon *stats.Monitor, log logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.GetLogger().WithComponent("orchestrator")
	}
	return &Orchestrator{
		log:        log,
		conf:       conf,
		conn:       conn,
		registry:   registry,
		dispatcher: dispatcher,
		guard:      guard,
		recorder:   recorder,
		mon:        mon,
	}
}

func (o *Orchestrator) CallSID() string { return o.callSID }

// MarkHangup claims the call's single hang-up slot.
func (o *Orchestrator) MarkHangup() bool {
	return !o.hangupFired.Swap(true)
}

// ScheduleClose tears the call down after the delay, letting in-flight
// audio play out first.
func (o *Orchestrator) ScheduleClose(delay time.Duration) {
	time.AfterFunc(delay, func() {
		o.Teardown(context.Background(), StatusCompleted)
	})
}

// ForceClose abandons the graceful teardown handshake.
func (o *Orchestrator) ForceClose() {
	if o.session != nil {
		o.session.ForceClose()
	}
	o.Teardown(context.Background(), StatusFailed)
}

// HandleStream services the carrier media connection until it closes.
func (o *Orchestrator) HandleStream(ctx context.Context) {
	o.ctx = ctx
	defer o.Teardown(ctx, StatusCompleted)

	for {
		select {
		case <-o.closed.Watch():
			return
		case <-ctx.Done():
			return
		default:
		}

		_, msg, err := o.conn.ReadMessage()
		if err != nil {
			if !o.closed.IsBroken() &&
				websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				o.log.Errorw("media stream read error", err)
			}
			return
		}

		frame, err := twilio.ParseStreamFrame(msg)
		if err != nil {
			o.log.Warnw("dropping malformed media stream frame", err)
			continue
		}

		switch frame.Event {
		case twilio.FrameConnected:
			o.log.Debugw("media stream connected")
		case twilio.FrameStart:
			if err := o.handleStart(ctx, frame.Start); err != nil {
				o.log.Errorw("failed to start call session", err)
				o.Teardown(ctx, StatusFailed)
				return
			}
		case twilio.FrameMedia:
			o.handleMedia(frame.Media)
		case twilio.FrameStop:
			o.log.Infow("media stream stopped", "callSID", o.callSID)
			return
		default:
			// Other lifecycle events carry nothing the engine acts on.
			o.log.Debugw("ignoring media stream event", "event", frame.Event)
		}
	}
}

func (o *Orchestrator) handleStart(ctx context.Context, start *twilio.StartFrame) error {
	o.callSID = start.CallSID
	o.streamSID = start.StreamSID
	o.startedAt = time.Now()
	o.log = o.log.WithValues("callSID", o.callSID)

	voiceID, err := nova.ResolveVoice(o.conf.Agent.VoiceID)
	if err != nil {
		return err
	}

	session := nova.NewSession(o.callSID, &o.conf.Stream, o.log)
	if err := o.registry.Register(session); err != nil {
		return err
	}
	o.session = session
	o.guardCtx = o.guard.NewContext()

	session.OnEvent(nova.EventTextOutput, o.onTextOutput)
	session.OnEvent(nova.EventAudioOutput, o.onAudioOutput)
	session.OnEvent(nova.EventContentEnd, o.onContentEnd)
	session.OnEvent(nova.EventError, o.onStreamError)

	transport := nova.NewWebSocketTransport(&o.conf.Stream, o.log)
	client := nova.NewStreamClient(session, transport, o.log)
	if err := client.Run(ctx); err != nil {
		o.registry.Remove(session.ID())
		return err
	}
	o.client = client

	session.StartSession()
	session.StartPrompt(voiceID, tools.Specs())
	if prompt := o.conf.Agent.SystemPrompt; prompt != "" {
		session.SendSystemPrompt(prompt)
	}
	session.StartAudio()

	o.recorder.Begin(ctx, o.callSID, o.streamSID)
	o.mon.CallStarted()
	o.log.Infow("call session started", "streamSID", o.streamSID)

	if o.conf.Agent.GreetingAudio != "" {
		go o.sendGreeting(o.conf.Agent.GreetingAudio)
	}
	return nil
}

func (o *Orchestrator) handleMedia(media *twilio.MediaFrame) {
	if media.Track != "" && media.Track != trackInbound {
		return
	}
	ulaw, err := base64.StdEncoding.DecodeString(media.Payload)
	if err != nil {
		o.log.Warnw("dropping undecodable media payload", err)
		return
	}

	o.inPCM = audio.DecodeUlawInto(ulaw, o.inPCM)
	pcm, err := audio.PCM16ToBytesInto(o.inPCM, nil)
	if err != nil {
		o.log.Warnw("could not convert media payload", err)
		return
	}

	dropped, err := o.session.StreamAudio(pcm)
	if err != nil {
		// The session is not ready for audio yet or already closing.
		return
	}
	if dropped {
		o.mon.AudioChunkDropped()
	}
}

// sendGreeting streams pre-recorded PCM16 into the session so the agent
// speaks first.
func (o *Orchestrator) sendGreeting(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		o.log.Warnw("could not read greeting audio", err, "path", path)
		return
	}
	for off := 0; off < len(data); off += greetingFrameBytes {
		if o.closed.IsBroken() {
			return
		}
		end := off + greetingFrameBytes
		if end > len(data) {
			end = len(data)
		}
		chunk := make([]byte, end-off)
		copy(chunk, data[off:end])
		if _, err := o.session.StreamAudio(chunk); err != nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func (o *Orchestrator) onTextOutput(ev *nova.InboundEvent) {
	t := ev.TextOutput
	if t == nil || t.Content == "" {
		return
	}
	speaker := strings.ToLower(t.Role)
	o.recorder.AddTranscript(o.callSID, speaker, t.Content)

	if t.Role == nova.RoleAssistant {
		if o.dispatcher.MaybeBackupHangup(o.ctx, o, t.Content) {
			return
		}
	}

	verdict := o.guard.Evaluate(o.guardCtx, t.Content)
	if verdict.Allowed {
		return
	}
	o.mon.GuardrailVerdict(string(verdict.Action))
	o.log.Infow("guardrail denial",
		"action", verdict.Action, "reason", verdict.Reason, "role", t.Role)

	switch verdict.Action {
	case guardrails.ActionContinue, guardrails.ActionRedirect:
		// Steer the model back on topic; it speaks the message.
		o.session.SendText(nova.RoleSystem, verdict.Message)
	case guardrails.ActionEscalate:
		if verdict.Message != "" {
			o.session.SendText(nova.RoleSystem, verdict.Message)
		}
		if err := o.dispatcher.Escalate(o.ctx, o, verdict.Reason); err != nil {
			o.log.Errorw("escalation failed", err)
		}
	case guardrails.ActionTerminate:
		if err := o.dispatcher.HangUp(o.ctx, o, verdict.Message); err != nil {
			o.log.Errorw("guardrail hang-up failed", err)
		}
	}
}

func (o *Orchestrator) onAudioOutput(ev *nova.InboundEvent) {
	a := ev.AudioOutput
	if a == nil || a.Content == "" {
		return
	}
	pcmBytes, err := base64.StdEncoding.DecodeString(a.Content)
	if err != nil {
		o.log.Warnw("dropping undecodable audio output", err)
		return
	}

	o.outPCM = audio.BytesToPCM16Into(pcmBytes, o.outPCM)
	o.ulawBuf = audio.EncodeUlawInto(o.outPCM, o.ulawBuf)

	frame, err := twilio.OutboundMedia(o.streamSID, trackOutbound,
		base64.StdEncoding.EncodeToString(o.ulawBuf))
	if err != nil {
		o.log.Errorw("could not encode outbound media frame", err)
		return
	}
	o.writeCarrier(frame)
}

func (o *Orchestrator) onContentEnd(ev *nova.InboundEvent) {
	ce := ev.ContentEnd
	if ce == nil || ce.Type != nova.ContentTypeTool {
		return
	}
	inv, ok := o.session.TakePendingTool()
	if !ok {
		return
	}

	result := o.dispatcher.Dispatch(o.ctx, o, inv)
	if err := o.session.SendToolResult(inv.ToolUseID, result); err != nil {
		o.log.Errorw("could not deliver tool result", err, "tool", inv.Name)
	}
}

func (o *Orchestrator) onStreamError(ev *nova.InboundEvent) {
	o.log.Errorw("model stream error", nil, "payload", string(ev.Raw))
	o.Teardown(o.ctx, StatusFailed)
}

func (o *Orchestrator) writeCarrier(frame []byte) {
	if o.closed.IsBroken() {
		return
	}
	o.writeMu.Lock()
	defer o.writeMu.Unlock()
	if err := o.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		o.log.Warnw("failed to write media frame", err)
	}
}

// Teardown converges every close trigger (hangup, transport error, carrier
// disconnect, forced close) onto one teardown sequence.
func (o *Orchestrator) Teardown(ctx context.Context, status CallStatus) {
	o.teardown.Do(func() {
		o.closed.Break()

		if o.callSID != "" {
			if o.guardCtx != nil {
				o.recorder.SetTopics(o.callSID, o.guardCtx.Topics())
			}
			o.recorder.Finalize(ctx, o.callSID, status)
		}
		if o.session != nil {
			o.registry.Remove(o.session.ID())
			if err := o.session.Close(ctx); err != nil {
				o.log.Warnw("session close", err)
			}
		}
		if o.client != nil {
			// The write loop exits on its own once the session queue
			// drains; this only covers a transport stuck mid-read.
			o.client.Close()
		}
		_ = o.conn.Close()

		if o.callSID != "" {
			o.mon.CallEnded(string(status), time.Since(o.startedAt))
		}
		o.log.Infow("call torn down", "status", status)
	})
}
