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

package guardrails

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/livekit/protocol/logger"

	"github.com/veloxvoip/callengine/pkg/config"
)

// Action is the recommended handling for a denied utterance.
type Action string

const (
	ActionContinue  Action = "continue"
	ActionEscalate  Action = "escalate"
	ActionTerminate Action = "terminate"
	ActionRedirect  Action = "redirect"
)

// Verdict is the policy decision for one utterance.
type Verdict struct {
	Allowed bool
	Reason  string
	Action  Action
	// Message, when set, should be spoken to the caller.
	Message string
}

var allow = Verdict{Allowed: true}

const (
	blockedRedirectMessage = "I'm sorry, I can only assist with questions about our services. How else can I help you today?"
	terminateMessage       = "I'm unable to continue this conversation. Please contact our support line if you need further assistance."
	escalateMessage        = "Let me connect you with a representative who can better assist you."
)

// farewellPhrases mirror the hang-up wording used by the tool dispatcher.
// Utterances matching them bypass evaluation entirely so the evaluator
// cannot contradict an in-flight graceful hangup.
var farewellPhrases = []string{
	"thank you for calling",
	"goodbye",
	"have a great day",
	"have a wonderful day",
	"take care",
}

// IsFarewell reports whether text is a recognizable call-ending pleasantry.
func IsFarewell(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range farewellPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Context accumulates one session's policy state. Counters only grow until
// the context is discarded at session end, and an escalated context is
// never un-escalated.
type Context struct {
	mu                 sync.Mutex
	messageCount       int
	inappropriateCount int
	startTime          time.Time
	lastActivity       time.Time
	topics             map[string]struct{}
	escalated          bool

	rateCount       int
	rateWindowStart time.Time
}

func (c *Context) MessageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messageCount
}

func (c *Context) Escalated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.escalated
}

// Topics returns the allowed-topic keywords detected so far.
func (c *Context) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.topics))
	for t := range c.topics {
		out = append(out, t)
	}
	return out
}

// Stats is an engine-wide snapshot of verdicts across all sessions.
type Stats struct {
	Evaluated  int64 `json:"evaluated"`
	Blocked    int64 `json:"blocked"`
	Emergency  int64 `json:"emergency"`
	Escalated  int64 `json:"escalated"`
	Terminated int64 `json:"terminated"`
}

// Evaluator applies the configured conversation policy. Aggregate counters
// aside, it is stateless; all per-session state lives in a Context.
type Evaluator struct {
	log  logger.Logger
	conf *config.GuardrailConfig

	evaluated  atomic.Int64
	blocked    atomic.Int64
	emergency  atomic.Int64
	escalated  atomic.Int64
	terminated atomic.Int64
}

func NewEvaluator(conf *config.GuardrailConfig, log logger.Logger) *Evaluator {
	if log == nil {
		log = logger.GetLogger().WithComponent("guardrails")
	}
	return &Evaluator{log: log, conf: conf}
}

// NewContext creates the per-session policy state.
func (e *Evaluator) NewContext() *Context {
	now := time.Now()
	return &Context{
		startTime:       now,
		lastActivity:    now,
		topics:          make(map[string]struct{}),
		rateWindowStart: now,
	}
}

// Evaluate inspects one utterance from either party and returns the policy
// verdict. Checks short-circuit on first match; farewell pleasantries
// bypass evaluation entirely.
func (e *Evaluator) Evaluate(ctx *Context, utterance string) Verdict {
	if IsFarewell(utterance) {
		return allow
	}
	e.evaluated.Add(1)

	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	now := time.Now()
	ctx.lastActivity = now
	ctx.messageCount++

	if now.Sub(ctx.startTime) > e.conf.MaxSessionDuration {
		ctx.escalated = true
		e.escalated.Add(1)
		return Verdict{
			Reason:  "maximum session duration exceeded",
			Action:  ActionEscalate,
			Message: escalateMessage,
		}
	}

	if ctx.messageCount > e.conf.MaxConversationLength {
		ctx.escalated = true
		e.escalated.Add(1)
		return Verdict{
			Reason:  "maximum conversation length exceeded",
			Action:  ActionEscalate,
			Message: escalateMessage,
		}
	}

	lower := strings.ToLower(utterance)

	if kw := matchKeyword(lower, e.conf.BlockedKeywords); kw != "" {
		ctx.inappropriateCount++
		e.blocked.Add(1)
		if ctx.inappropriateCount >= e.conf.MaxInappropriateAttempts {
			e.terminated.Add(1)
			return Verdict{
				Reason:  "blocked content: " + kw,
				Action:  ActionTerminate,
				Message: terminateMessage,
			}
		}
		return Verdict{
			Reason:  "blocked content: " + kw,
			Action:  ActionContinue,
			Message: blockedRedirectMessage,
		}
	}

	// Blocked content takes precedence, the emergency check only runs when
	// step 4 did not match.
	if kw := matchKeyword(lower, e.conf.EmergencyKeywords); kw != "" {
		ctx.escalated = true
		e.emergency.Add(1)
		e.escalated.Add(1)
		return Verdict{
			Reason:  "emergency keyword: " + kw,
			Action:  ActionEscalate,
			Message: escalateMessage,
		}
	}

	if now.Sub(ctx.rateWindowStart) > e.conf.RateLimitWindow {
		ctx.rateCount = 0
		ctx.rateWindowStart = now
	}
	ctx.rateCount++
	if ctx.rateCount > e.conf.MaxRequestsPerWindow {
		ctx.escalated = true
		e.escalated.Add(1)
		return Verdict{
			Reason:  "rate limit exceeded",
			Action:  ActionEscalate,
			Message: escalateMessage,
		}
	}

	for _, topic := range e.conf.AllowedTopics {
		if strings.Contains(lower, strings.ToLower(topic)) {
			ctx.topics[topic] = struct{}{}
		}
	}
	return allow
}

// Stats snapshots the aggregate verdict counters.
func (e *Evaluator) Stats() Stats {
	return Stats{
		Evaluated:  e.evaluated.Load(),
		Blocked:    e.blocked.Load(),
		Emergency:  e.emergency.Load(),
		Escalated:  e.escalated.Load(),
		Terminated: e.terminated.Load(),
	}
}

func matchKeyword(lower string, keywords []string) string {
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return kw
		}
	}
	return ""
}
