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
	"context"
	"time"

	"github.com/livekit/protocol/logger"

	"github.com/veloxvoip/callengine/pkg/config"
	"github.com/veloxvoip/callengine/pkg/errors"
	"github.com/veloxvoip/callengine/pkg/guardrails"
	"github.com/veloxvoip/callengine/pkg/nova"
	"github.com/veloxvoip/callengine/pkg/stats"
	"github.com/veloxvoip/callengine/pkg/twilio"
)

const (
	DefaultMaxRetries     = 3
	DefaultRetryBaseDelay = time.Second

	DefaultFarewell = "Thank you for calling. Goodbye!"

	// Connection closure after a successful hang-up waits for the farewell
	// to finish playing: proportional to its length, bounded both ways.
	closeDelayPerChar = 50 * time.Millisecond
	minCloseDelay     = 2 * time.Second
	maxCloseDelay     = 5 * time.Second
)

// CallHandle is the dispatcher's view of one live call's media path.
type CallHandle interface {
	CallSID() string
	// MarkHangup claims the call's single hang-up slot; only the first
	// caller gets true. Both the end_call tool and the backup farewell
	// detector funnel through it, so the hang-up fires at most once.
	MarkHangup() bool
	// ScheduleClose tears down the media connection after the delay.
	ScheduleClose(delay time.Duration)
	// ForceClose tears the media connection down immediately.
	ForceClose()
}

// Dispatcher turns model tool invocations, and detected spoken farewells,
// into telephony control actions with bounded retries.
type Dispatcher struct {
	log        logger.Logger
	conf       *config.Config
	tw         *twilio.Client
	transfers  *TransferLog
	voicemails *VoicemailStore
	mon        *stats.Monitor

	maxRetries     int
	retryBaseDelay time.Duration
}

type DispatcherOption func(*Dispatcher)

// WithRetryPolicy overrides the retry ceiling and base delay.
func WithRetryPolicy(maxRetries int, baseDelay time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.maxRetries = maxRetries
		d.retryBaseDelay = baseDelay
	}
}

// WithVoicemailStore enables voicemail record tracking.
func WithVoicemailStore(store *VoicemailStore) DispatcherOption {
	return func(d *Dispatcher) {
		d.voicemails = store
	}
}

func NewDispatcher(conf *config.Config, tw *twilio.Client, transfers *TransferLog, mon *stats.Monitor, log logger.Logger, opts ...DispatcherOption) *Dispatcher {
	if log == nil {
		log = logger.GetLogger().WithComponent("dispatcher")
	}
	d := &Dispatcher{
		log:            log,
		conf:           conf,
		tw:             tw,
		transfers:      transfers,
		mon:            mon,
		maxRetries:     DefaultMaxRetries,
		retryBaseDelay: DefaultRetryBaseDelay,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch executes one tool invocation and returns the result payload to
// deliver back on the session. Unrecognized tools return a structured
// "not supported" result, never an error.
func (d *Dispatcher) Dispatch(ctx context.Context, call CallHandle, inv nova.ToolInvocation) map[string]any {
	log := d.log.WithValues("callSID", call.CallSID(), "tool", inv.Name)
	log.Infow("dispatching tool", "toolUseID", inv.ToolUseID)

	var result map[string]any
	switch inv.Name {
	case ToolEndCall:
		args := parseArgs[EndCallArgs](inv.Content)
		if err := d.HangUp(ctx, call, args.Message); err != nil {
			result = map[string]any{"message": "The call could not be ended cleanly", "success": false}
		} else {
			result = map[string]any{"message": "Call ended", "success": true}
		}

	case ToolTransferCall, ToolWarmTransfer, ToolColdTransfer:
		args := parseArgs[TransferArgs](inv.Content)
		kind := TransferDepartment
		if inv.Name == ToolWarmTransfer {
			kind = TransferWarm
		} else if inv.Name == ToolColdTransfer {
			kind = TransferCold
		}
		result = d.transferResult(d.Transfer(ctx, call, kind, args.Department, args.Reason))

	case ToolSupport:
		args := parseArgs[TransferArgs](inv.Content)
		result = d.transferResult(d.Transfer(ctx, call, TransferDepartment, d.conf.DefaultDepartment, args.Reason))

	case ToolVoicemail:
		args := parseArgs[VoicemailArgs](inv.Content)
		if err := d.Voicemail(ctx, call, args.Prompt); err != nil {
			result = map[string]any{"message": "Voicemail is unavailable right now", "success": false}
		} else {
			result = map[string]any{"message": "Switched to voicemail", "success": true}
		}

	case ToolScheduleCallback:
		args := parseArgs[CallbackArgs](inv.Content)
		// Recording the request is the whole action, no telephony call.
		log.Infow("callback requested",
			"phoneNumber", args.PhoneNumber,
			"preferredTime", args.PreferredTime,
			"reason", args.Reason)
		result = map[string]any{"message": "A callback has been scheduled", "success": true}

	case ToolPolicyDetails:
		args := parseArgs[PolicyArgs](inv.Content)
		result = lookupPolicy(args.PolicyType)

	case ToolReservationStatus:
		args := parseArgs[ReservationArgs](inv.Content)
		result = lookupReservation(args.ReservationID)

	case ToolCancelReservation:
		args := parseArgs[ReservationArgs](inv.Content)
		result = cancelReservation(args.ReservationID)

	case ToolDate:
		result = map[string]any{"date": time.Now().Format("Monday, January 2, 2006"), "success": true}

	case ToolTime:
		result = map[string]any{"time": time.Now().Format("3:04 PM"), "success": true}

	default:
		log.Warnw("unknown tool requested", errors.ErrUnknownTool)
		result = map[string]any{"message": "I cannot help you with that request", "success": false}
	}

	d.mon.ToolDispatched(inv.Name, resultLabel(result))
	return result
}

func resultLabel(result map[string]any) string {
	if ok, _ := result["success"].(bool); ok {
		return "ok"
	}
	return "failed"
}

func (d *Dispatcher) transferResult(err error) map[string]any {
	if err != nil {
		return map[string]any{"message": "The transfer could not be completed", "success": false}
	}
	return map[string]any{"message": "Transferring the call now", "success": true}
}

// HangUp ends the call with a spoken farewell, retrying the control call
// and falling back to a forced connection close. A successful hang-up
// schedules closure after the farewell has played out. At most one
// hang-up fires per call regardless of trigger path.
func (d *Dispatcher) HangUp(ctx context.Context, call CallHandle, farewell string) error {
	if farewell == "" {
		farewell = DefaultFarewell
	}
	if !call.MarkHangup() {
		d.log.Debugw("hang-up already fired", "callSID", call.CallSID())
		return nil
	}

	err := d.withRetry(ctx, call, "hang up", func() error {
		return d.tw.UpdateCall(ctx, call.CallSID(), twilio.Hangup(farewell))
	})
	if err != nil {
		return err
	}
	call.ScheduleClose(closeDelay(farewell))
	return nil
}

// MaybeBackupHangup is the safety net for spoken farewells the model did
// not pair with an end_call invocation. Returns whether a hang-up was
// triggered by this call.
func (d *Dispatcher) MaybeBackupHangup(ctx context.Context, call CallHandle, spokenText string) bool {
	if !guardrails.IsFarewell(spokenText) {
		return false
	}
	d.log.Infow("farewell detected without end_call, triggering backup hang-up",
		"callSID", call.CallSID())
	_ = d.HangUp(ctx, call, spokenText)
	return true
}

// Transfer redirects the call leg to a department-resolved destination.
// Warm transfers speak a briefing before dialing.
func (d *Dispatcher) Transfer(ctx context.Context, call CallHandle, kind TransferKind, department, reason string) error {
	dest, ok := d.conf.ResolveDepartment(department)
	if !ok {
		d.log.Warnw("no destination for department", nil, "department", department)
		return errors.New("no destination configured for department " + department)
	}

	rec := d.transfers.Record(call.CallSID(), dest, kind, reason)
	briefing := ""
	if kind == TransferWarm {
		briefing = "Please hold while I transfer you to our " + department + " team."
	}

	err := d.withRetry(ctx, call, "transfer", func() error {
		return d.tw.UpdateCall(ctx, call.CallSID(), twilio.Transfer(dest, d.conf.Twilio.FromNumber, briefing))
	})
	if err != nil {
		d.transfers.UpdateStatus(rec.ID, TransferFailed)
		return err
	}
	// Completion comes from the delivery-status callback, the record stays
	// initiated until then.
	return nil
}

// Escalate routes the call to a human: the emergency number when
// configured, otherwise the default department.
func (d *Dispatcher) Escalate(ctx context.Context, call CallHandle, reason string) error {
	if d.conf.EmergencyNumber != "" {
		rec := d.transfers.Record(call.CallSID(), d.conf.EmergencyNumber, TransferEmergency, reason)
		err := d.withRetry(ctx, call, "escalate", func() error {
			return d.tw.UpdateCall(ctx, call.CallSID(), twilio.Transfer(d.conf.EmergencyNumber, d.conf.Twilio.FromNumber, ""))
		})
		if err != nil {
			d.transfers.UpdateStatus(rec.ID, TransferFailed)
		}
		return err
	}
	return d.Transfer(ctx, call, TransferDepartment, d.conf.DefaultDepartment, reason)
}

// Voicemail switches the call into a recording flow and opens a voicemail
// record for the later recording and transcription callbacks.
func (d *Dispatcher) Voicemail(ctx context.Context, call CallHandle, prompt string) error {
	if prompt == "" {
		prompt = "Please leave a message after the beep."
	}
	err := d.withRetry(ctx, call, "voicemail", func() error {
		return d.tw.UpdateCall(ctx, call.CallSID(),
			twilio.Voicemail(prompt, d.conf.Recording.StatusCallbackURL, 0, d.conf.Recording.EnableTranscription))
	})
	if err != nil {
		return err
	}
	if d.voicemails != nil {
		d.voicemails.Open(call.CallSID(), prompt)
	}
	return nil
}

// withRetry runs the control call up to the retry ceiling, waiting
// attempt*baseDelay between attempts. Exhausting retries force-closes the
// media connection so the call never lingers in an indeterminate state.
func (d *Dispatcher) withRetry(ctx context.Context, call CallHandle, op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		d.log.Warnw("control call failed", lastErr,
			"op", op, "callSID", call.CallSID(), "attempt", attempt)
		if attempt == d.maxRetries {
			break
		}
		t := time.NewTimer(time.Duration(attempt) * d.retryBaseDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			call.ForceClose()
			return errors.Wrap(ctx.Err(), op)
		}
		t.Stop()
	}

	d.log.Errorw("retries exhausted, force closing connection", lastErr,
		"op", op, "callSID", call.CallSID())
	call.ForceClose()
	return errors.Wrap(errors.ErrRetriesExhausted, op)
}

func closeDelay(farewell string) time.Duration {
	delay := time.Duration(len(farewell)) * closeDelayPerChar
	if delay < minCloseDelay {
		delay = minCloseDelay
	}
	if delay > maxCloseDelay {
		delay = maxCloseDelay
	}
	return delay
}
