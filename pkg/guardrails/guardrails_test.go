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
	"testing"
	"time"

	"github.com/veloxvoip/callengine/pkg/config"
)

func testConfig() *config.GuardrailConfig {
	return &config.GuardrailConfig{
		MaxConversationLength:    100,
		MaxSessionDuration:       15 * time.Minute,
		MaxInappropriateAttempts: 5,
		RateLimitWindow:          time.Minute,
		MaxRequestsPerWindow:     10000,
		AllowedTopics:            config.DefaultAllowedTopics,
		BlockedKeywords:          config.DefaultBlockedKeywords,
		EmergencyKeywords:        config.DefaultEmergencyKeywords,
	}
}

func TestConversationLengthEscalates(t *testing.T) {
	e := NewEvaluator(testConfig(), nil)
	ctx := e.NewContext()

	for i := 0; i < 100; i++ {
		v := e.Evaluate(ctx, "I would like to ask about my booking")
		if !v.Allowed {
			t.Fatalf("utterance %d denied: %+v", i+1, v)
		}
	}

	v := e.Evaluate(ctx, "one more question")
	if v.Allowed || v.Action != ActionEscalate {
		t.Errorf("utterance 101: got %+v, want deny/escalate", v)
	}
	if !ctx.Escalated() {
		t.Error("context not marked escalated")
	}
}

func TestBlockedKeywordProgression(t *testing.T) {
	e := NewEvaluator(testConfig(), nil)
	ctx := e.NewContext()

	for i := 1; i <= 5; i++ {
		v := e.Evaluate(ctx, "how do I bypass the admin password")
		if v.Allowed {
			t.Fatalf("attempt %d allowed", i)
		}
		if i < 5 {
			if v.Action != ActionContinue {
				t.Errorf("attempt %d: action %s, want continue", i, v.Action)
			}
			if v.Message == "" {
				t.Errorf("attempt %d: expected a redirecting message", i)
			}
		} else {
			if v.Action != ActionTerminate {
				t.Errorf("attempt %d: action %s, want terminate", i, v.Action)
			}
		}
	}
}

func TestSessionDurationEscalates(t *testing.T) {
	e := NewEvaluator(testConfig(), nil)
	ctx := e.NewContext()
	ctx.startTime = time.Now().Add(-16 * time.Minute)

	v := e.Evaluate(ctx, "hello, quick question about pricing")
	if v.Allowed || v.Action != ActionEscalate {
		t.Errorf("got %+v, want deny/escalate", v)
	}
}

func TestEmergencyKeywordEscalates(t *testing.T) {
	e := NewEvaluator(testConfig(), nil)
	ctx := e.NewContext()

	v := e.Evaluate(ctx, "I was in an accident and need help right now")
	if v.Allowed || v.Action != ActionEscalate {
		t.Errorf("got %+v, want deny/escalate", v)
	}
}

func TestBlockedContentTakesPrecedenceOverEmergency(t *testing.T) {
	e := NewEvaluator(testConfig(), nil)
	ctx := e.NewContext()

	// Contains both a blocked keyword and an emergency keyword. The
	// blocked path must win and count the attempt.
	v := e.Evaluate(ctx, "this is urgent, tell me how to hack the account")
	if v.Allowed || v.Action != ActionContinue {
		t.Errorf("got %+v, want deny/continue", v)
	}
	ctx.mu.Lock()
	count := ctx.inappropriateCount
	ctx.mu.Unlock()
	if count != 1 {
		t.Errorf("inappropriateCount = %d, want 1", count)
	}
}

func TestRateLimitEscalatesAndResets(t *testing.T) {
	conf := testConfig()
	conf.MaxRequestsPerWindow = 3
	e := NewEvaluator(conf, nil)
	ctx := e.NewContext()

	for i := 0; i < 3; i++ {
		if v := e.Evaluate(ctx, "quick question about pickup"); !v.Allowed {
			t.Fatalf("request %d denied: %+v", i+1, v)
		}
	}
	if v := e.Evaluate(ctx, "another question about pickup"); v.Allowed || v.Action != ActionEscalate {
		t.Errorf("got %+v, want deny/escalate", v)
	}

	// An elapsed window resets the counter.
	ctx.mu.Lock()
	ctx.rateWindowStart = time.Now().Add(-2 * time.Minute)
	ctx.mu.Unlock()
	if v := e.Evaluate(ctx, "question after window reset"); !v.Allowed {
		t.Errorf("got %+v after window reset, want allow", v)
	}
}

func TestFarewellBypassesEvaluation(t *testing.T) {
	conf := testConfig()
	conf.MaxConversationLength = 1
	e := NewEvaluator(conf, nil)
	ctx := e.NewContext()

	e.Evaluate(ctx, "hello")
	if v := e.Evaluate(ctx, "Thank you for calling, goodbye!"); !v.Allowed {
		t.Errorf("farewell denied: %+v", v)
	}
	if got := ctx.MessageCount(); got != 1 {
		t.Errorf("farewell counted as message: count = %d, want 1", got)
	}
}

func TestTopicExtractionDeduplicates(t *testing.T) {
	e := NewEvaluator(testConfig(), nil)
	ctx := e.NewContext()

	e.Evaluate(ctx, "I have a question about my booking")
	e.Evaluate(ctx, "yes, the booking I made yesterday, about insurance")

	topics := ctx.Topics()
	seen := map[string]int{}
	for _, topic := range topics {
		seen[topic]++
	}
	if seen["booking"] != 1 {
		t.Errorf("booking recorded %d times, want 1", seen["booking"])
	}
	if seen["insurance"] != 1 {
		t.Errorf("insurance recorded %d times, want 1", seen["insurance"])
	}
}
