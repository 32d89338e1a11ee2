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

package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNoConfig         = errors.New("no config provided")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionExists    = errors.New("session already exists")
	ErrSessionClosed    = errors.New("session is closed")
	ErrStreamNotReady   = errors.New("media stream not started")
	ErrUnknownTool      = errors.New("tool not supported")
	ErrInvalidVoice     = errors.New("invalid voice id")
	ErrTransportClosed  = errors.New("transport closed")
	ErrRetriesExhausted = errors.New("retries exhausted")
)

func ErrCouldNotParseConfig(err error) error {
	return errors.Wrap(err, "could not parse config")
}

func New(msg string) error {
	return errors.New(msg)
}

func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// TelephonyError represents a rejected or failed call-control request.
type TelephonyError struct {
	Op      string // e.g. "update_call", "create_recording"
	CallSID string
	Status  int
	Err     error
}

func (e *TelephonyError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("telephony error [%s] call=%s status=%d: %v", e.Op, e.CallSID, e.Status, e.Err)
	}
	return fmt.Sprintf("telephony error [%s] call=%s: %v", e.Op, e.CallSID, e.Err)
}

func (e *TelephonyError) Unwrap() error {
	return e.Err
}

func NewTelephonyError(op, callSID string, status int, err error) *TelephonyError {
	return &TelephonyError{Op: op, CallSID: callSID, Status: status, Err: err}
}

// ProtocolError represents a malformed or unexpected stream payload.
// These are logged and dropped, never fatal to a session.
type ProtocolError struct {
	SessionID string
	Detail    string
	Err       error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error session=%s %s: %v", e.SessionID, e.Detail, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func NewProtocolError(sessionID, detail string, err error) *ProtocolError {
	return &ProtocolError{SessionID: sessionID, Detail: detail, Err: err}
}
