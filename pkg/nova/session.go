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
	"context"
	"encoding/base64"
	"encoding/json"
	"runtime"
	"sync"
	"time"

	"github.com/frostbyte73/core"
	"github.com/google/uuid"

	"github.com/livekit/protocol/logger"

	"github.com/veloxvoip/callengine/pkg/config"
	"github.com/veloxvoip/callengine/pkg/errors"
)

const (
	// Inbound telephony audio waiting to be sent. When full, the oldest
	// chunk is dropped; for live speech recency beats completeness.
	maxAudioQueueDepth = 200

	// Chunks forwarded per drain turn before yielding to other sessions.
	audioDrainBatch = 5

	// Settle delays between teardown steps. The transport is asynchronous,
	// each step must land before the next is issued.
	contentEndSettle = 500 * time.Millisecond
	promptEndSettle  = 300 * time.Millisecond
	sessionEndSettle = 300 * time.Millisecond
)

// HandlerFunc consumes one decoded inbound event.
type HandlerFunc func(ev *InboundEvent)

// AnyHandlerFunc is the wildcard handler, invoked after the typed one for
// every inbound event including unknown kinds.
type AnyHandlerFunc func(eventType string, raw json.RawMessage)

// ToolInvocation is the model's pending tool request, recorded between the
// toolUse event and the paired contentEnd of type TOOL. At most one is in
// flight per session.
type ToolInvocation struct {
	Name      string
	ToolUseID string
	Content   string
}

// Session owns one call's conversation with the speech-to-speech stream:
// the ordered outbound event queue, the phase state machine and inbound
// event dispatch. All methods are safe for concurrent use.
type Session struct {
	id         string
	promptName string
	log        logger.Logger
	stream     *config.StreamConfig

	mu               sync.Mutex
	queue            []json.RawMessage
	audioQueue       [][]byte
	audioDraining    bool
	audioContentName string
	sessionStarted   bool
	promptStarted    bool
	audioStarted     bool
	cleanupStarted   bool
	pendingTool      *ToolInvocation
	handlers         map[string]HandlerFunc
	anyHandler       AnyHandlerFunc
	createdAt        time.Time
	lastActivity     time.Time

	// Buffered to 1: the pull loop only needs to learn "something was
	// queued since you last looked".
	queueSignal chan struct{}

	closed core.Fuse
}

// NewSession creates a session for one call. The id is the opaque session
// key, never reused across calls.
func NewSession(id string, stream *config.StreamConfig, log logger.Logger) *Session {
	if log == nil {
		log = logger.GetLogger().WithComponent("session")
	}
	now := time.Now()
	return &Session{
		id:               id,
		promptName:       uuid.NewString(),
		audioContentName: uuid.NewString(),
		log:              log.WithValues("sessionID", id),
		stream:           stream,
		handlers:         make(map[string]HandlerFunc),
		queueSignal:      make(chan struct{}, 1),
		createdAt:        now,
		lastActivity:     now,
	}
}

func (s *Session) ID() string { return s.id }

// PromptName returns the identifier scoping this session's conversation.
func (s *Session) PromptName() string { return s.promptName }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Active reports whether the session still accepts events.
func (s *Session) Active() bool {
	return !s.closed.IsBroken()
}

// Closed returns a channel closed when the session has fully shut down.
func (s *Session) Closed() <-chan struct{} {
	return s.closed.Watch()
}

// OnEvent registers the typed handler for one inbound event kind,
// replacing any previous one.
func (s *Session) OnEvent(eventType string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[eventType] = h
}

// OnAny registers the wildcard handler invoked for every inbound event.
func (s *Session) OnAny(h AnyHandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anyHandler = h
}

// StartSession queues the session-start event with the configured
// inference parameters. Safe to call repeatedly, only the first call
// emits.
func (s *Session) StartSession() {
	s.mu.Lock()
	if s.sessionStarted || s.closed.IsBroken() {
		s.mu.Unlock()
		return
	}
	s.sessionStarted = true
	s.mu.Unlock()

	s.enqueue(outboundBody{SessionStart: &sessionStartEvent{
		InferenceConfiguration: inferenceConfiguration{
			MaxTokens:   s.stream.MaxTokens,
			TopP:        s.stream.TopP,
			Temperature: s.stream.Temperature,
		},
	}})
}

// StartPrompt queues the prompt-start event declaring the output voice and
// the callable tools. Safe to call repeatedly, only the first call emits.
func (s *Session) StartPrompt(voiceID string, tools []ToolSpec) {
	s.mu.Lock()
	if s.promptStarted || s.closed.IsBroken() {
		s.mu.Unlock()
		return
	}
	s.promptStarted = true
	s.mu.Unlock()

	ev := &promptStartEvent{
		PromptName:                 s.promptName,
		TextOutputConfiguration:    newTextConfiguration(),
		AudioOutputConfiguration:   newAudioOutputConfiguration(voiceID),
		ToolUseOutputConfiguration: textConfiguration{MediaType: "application/json"},
	}
	ev.ToolConfiguration.Tools = make([]toolSpecWire, 0, len(tools))
	for _, t := range tools {
		var w toolSpecWire
		w.ToolSpec.Name = t.Name
		w.ToolSpec.Description = t.Description
		w.ToolSpec.InputSchema.JSON = string(t.Schema)
		ev.ToolConfiguration.Tools = append(ev.ToolConfiguration.Tools, w)
	}
	s.enqueue(outboundBody{PromptStart: ev})
}

// SendText queues one complete text content unit under a fresh content id.
func (s *Session) SendText(role, content string) {
	if s.closed.IsBroken() {
		return
	}
	contentName := uuid.NewString()
	s.enqueue(outboundBody{ContentStart: &contentStartEvent{
		PromptName:             s.promptName,
		ContentName:            contentName,
		Type:                   ContentTypeText,
		Interactive:            true,
		Role:                   role,
		TextInputConfiguration: ptr(newTextConfiguration()),
	}})
	s.enqueue(outboundBody{TextInput: &textInputEvent{
		PromptName:  s.promptName,
		ContentName: contentName,
		Content:     content,
	}})
	s.enqueue(outboundBody{ContentEnd: &contentEndEvent{
		PromptName:  s.promptName,
		ContentName: contentName,
	}})
}

// SendSystemPrompt establishes the agent's behavioral instructions.
func (s *Session) SendSystemPrompt(prompt string) {
	s.SendText(RoleSystem, prompt)
}

// StartAudio opens the user audio content unit. Every chunk accepted by
// StreamAudio afterwards reuses its content id. Safe to call repeatedly,
// only the first call emits.
func (s *Session) StartAudio() {
	s.mu.Lock()
	if s.audioStarted || s.closed.IsBroken() {
		s.mu.Unlock()
		return
	}
	s.audioStarted = true
	s.mu.Unlock()

	s.enqueue(outboundBody{ContentStart: &contentStartEvent{
		PromptName:              s.promptName,
		ContentName:             s.audioContentName,
		Type:                    ContentTypeAudio,
		Interactive:             true,
		Role:                    RoleUser,
		AudioInputConfiguration: ptr(newAudioInputConfiguration()),
	}})
}

// StreamAudio admits one inbound PCM16 chunk onto the bounded audio queue.
// When the queue is full the oldest chunk is dropped; the return value
// reports whether a drop occurred. Chunks are rejected until StartAudio
// has run.
func (s *Session) StreamAudio(pcm []byte) (dropped bool, err error) {
	s.mu.Lock()
	if s.closed.IsBroken() || !s.audioStarted {
		s.mu.Unlock()
		return false, errors.ErrStreamNotReady
	}
	s.lastActivity = time.Now()
	if len(s.audioQueue) >= maxAudioQueueDepth {
		s.audioQueue = s.audioQueue[1:]
		dropped = true
	}
	s.audioQueue = append(s.audioQueue, pcm)
	if !s.audioDraining {
		s.audioDraining = true
		go s.drainAudio()
	}
	s.mu.Unlock()
	return dropped, nil
}

// drainAudio forwards queued chunks in small batches, yielding between
// batches so concurrent sessions share the scheduler fairly. Exactly one
// drain task runs per session at a time.
func (s *Session) drainAudio() {
	for {
		s.mu.Lock()
		if s.closed.IsBroken() || len(s.audioQueue) == 0 {
			s.audioDraining = false
			s.mu.Unlock()
			return
		}
		n := len(s.audioQueue)
		if n > audioDrainBatch {
			n = audioDrainBatch
		}
		batch := s.audioQueue[:n]
		s.audioQueue = s.audioQueue[n:]
		contentName := s.audioContentName
		s.mu.Unlock()

		for _, pcm := range batch {
			s.enqueue(outboundBody{AudioInput: &audioInputEvent{
				PromptName:  s.promptName,
				ContentName: contentName,
				Content:     base64.StdEncoding.EncodeToString(pcm),
			}})
		}
		runtime.Gosched()
	}
}

// RecordToolUse stores the pending tool request until the paired
// content-end of type TOOL arrives.
func (s *Session) RecordToolUse(name, toolUseID, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingTool = &ToolInvocation{Name: name, ToolUseID: toolUseID, Content: content}
}

// TakePendingTool returns and clears the recorded tool request.
func (s *Session) TakePendingTool() (ToolInvocation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingTool == nil {
		return ToolInvocation{}, false
	}
	inv := *s.pendingTool
	s.pendingTool = nil
	return inv, true
}

// SendToolResult queues the tool result content unit. The unit uses a
// fresh content id, never the audio content id.
func (s *Session) SendToolResult(toolUseID string, result any) error {
	if s.closed.IsBroken() {
		return errors.ErrSessionClosed
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, "could not encode tool result")
	}
	contentName := uuid.NewString()
	s.enqueue(outboundBody{ContentStart: &contentStartEvent{
		PromptName:  s.promptName,
		ContentName: contentName,
		Type:        ContentTypeTool,
		Interactive: false,
		Role:        RoleTool,
		ToolResultInputConfiguration: &toolResultInputConfiguration{
			ToolUseID:              toolUseID,
			Type:                   ContentTypeText,
			TextInputConfiguration: newTextConfiguration(),
		},
	}})
	s.enqueue(outboundBody{ToolResult: &toolResultEvent{
		PromptName:  s.promptName,
		ContentName: contentName,
		Content:     string(payload),
	}})
	s.enqueue(outboundBody{ContentEnd: &contentEndEvent{
		PromptName:  s.promptName,
		ContentName: contentName,
	}})
	return nil
}

// NextEvent supplies the next outbound frame, blocking until one is
// queued, the session closes, or ctx expires. Once the queue is drained
// after close it returns ErrSessionClosed so the transport can end the
// stream cleanly.
func (s *Session) NextEvent(ctx context.Context) (json.RawMessage, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ev, nil
		}
		s.mu.Unlock()

		if s.closed.IsBroken() {
			return nil, errors.ErrSessionClosed
		}
		select {
		case <-s.closed.Watch():
			return nil, errors.ErrSessionClosed
		case <-s.queueSignal:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Dispatch routes one decoded inbound event to the typed handler, then the
// wildcard handler. Tool requests are recorded before dispatch so the
// contentEnd handler can retrieve them.
func (s *Session) Dispatch(ev *InboundEvent) {
	if ev.Type == EventToolUse && ev.ToolUse != nil {
		s.RecordToolUse(ev.ToolUse.ToolName, ev.ToolUse.ToolUseID, ev.ToolUse.Content)
	}

	s.mu.Lock()
	s.lastActivity = time.Now()
	h := s.handlers[ev.Type]
	any := s.anyHandler
	s.mu.Unlock()

	if h != nil {
		h(ev)
	}
	if any != nil {
		any(ev.Type, ev.Raw)
	}
}

// EmitError surfaces a transport-level failure as a synthetic error event.
func (s *Session) EmitError(err error) {
	payload, _ := json.Marshal(map[string]string{"message": err.Error()})
	s.Dispatch(&InboundEvent{Type: EventError, Raw: payload})
}

// beginCleanup marks teardown in progress. Returns false if another
// trigger already claimed it.
func (s *Session) beginCleanup() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cleanupStarted {
		return false
	}
	s.cleanupStarted = true
	return true
}

// Close runs the graceful teardown sequence: audio content-end, prompt-end
// and session-end, each only if its start was sent, with a settle delay
// after each so the asynchronous transport preserves order. Safe to call
// from any reached state and idempotent under concurrent triggers.
func (s *Session) Close(ctx context.Context) error {
	if !s.beginCleanup() {
		return nil
	}

	s.mu.Lock()
	audioStarted := s.audioStarted
	promptStarted := s.promptStarted
	sessionStarted := s.sessionStarted
	s.audioQueue = nil
	s.mu.Unlock()

	if audioStarted {
		s.enqueue(outboundBody{ContentEnd: &contentEndEvent{
			PromptName:  s.promptName,
			ContentName: s.audioContentName,
		}})
		s.settle(ctx, contentEndSettle)
	}
	if promptStarted {
		s.enqueue(outboundBody{PromptEnd: &promptEndEvent{PromptName: s.promptName}})
		s.settle(ctx, promptEndSettle)
	}
	if sessionStarted {
		s.enqueue(outboundBody{SessionEnd: &sessionEndEvent{}})
		s.settle(ctx, sessionEndSettle)
	}

	s.closed.Break()
	s.log.Infow("session closed")
	return nil
}

// ForceClose skips the teardown handshake, drops all queued events and
// immediately marks the session inactive. Last-resort path only.
func (s *Session) ForceClose() {
	s.beginCleanup()
	s.mu.Lock()
	s.queue = nil
	s.audioQueue = nil
	s.mu.Unlock()
	s.closed.Break()
	s.log.Warnw("session force closed", nil)
}

func (s *Session) settle(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (s *Session) enqueue(body outboundBody) {
	raw, err := marshalEvent(body)
	if err != nil {
		s.log.Errorw("failed to encode outbound event", err)
		return
	}
	s.mu.Lock()
	if s.closed.IsBroken() {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, raw)
	s.mu.Unlock()

	select {
	case s.queueSignal <- struct{}{}:
	default:
	}
}

func ptr[T any](v T) *T { return &v }
