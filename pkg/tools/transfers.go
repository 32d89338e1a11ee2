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
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

type TransferKind string

const (
	TransferWarm       TransferKind = "warm"
	TransferCold       TransferKind = "cold"
	TransferDepartment TransferKind = "department"
	TransferEmergency  TransferKind = "emergency"
)

type TransferStatus string

const (
	TransferInitiated TransferStatus = "initiated"
	TransferCompleted TransferStatus = "completed"
	TransferFailed    TransferStatus = "failed"
)

// TransferRecord tracks one attempted transfer or escalation from dispatch
// through its delivery-status callback.
type TransferRecord struct {
	ID          string         `json:"id"`
	CallSID     string         `json:"callSid"`
	Destination string         `json:"destination"`
	Kind        TransferKind   `json:"kind"`
	Reason      string         `json:"reason,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Status      TransferStatus `json:"status"`
}

const transferLogSize = 1024

// TransferLog retains transfer records for a bounded window, purging the
// oldest or expired entries automatically.
type TransferLog struct {
	records *expirable.LRU[string, *TransferRecord]
}

func NewTransferLog(retention time.Duration) *TransferLog {
	return &TransferLog{
		records: expirable.NewLRU[string, *TransferRecord](transferLogSize, nil, retention),
	}
}

// Record creates a new transfer record in the initiated state.
func (l *TransferLog) Record(callSID, destination string, kind TransferKind, reason string) *TransferRecord {
	rec := &TransferRecord{
		ID:          uuid.NewString(),
		CallSID:     callSID,
		Destination: destination,
		Kind:        kind,
		Reason:      reason,
		Timestamp:   time.Now(),
		Status:      TransferInitiated,
	}
	l.records.Add(rec.ID, rec)
	return rec
}

// UpdateStatus transitions a record, keyed by transfer id. Returns false if
// the record aged out.
func (l *TransferLog) UpdateStatus(id string, status TransferStatus) bool {
	rec, ok := l.records.Get(id)
	if !ok {
		return false
	}
	rec.Status = status
	return true
}

func (l *TransferLog) Get(id string) (*TransferRecord, bool) {
	return l.records.Get(id)
}

// Recent returns all retained records, oldest first.
func (l *TransferLog) Recent() []*TransferRecord {
	return l.records.Values()
}

// Stats counts retained records by status.
func (l *TransferLog) Stats() map[TransferStatus]int {
	out := make(map[TransferStatus]int)
	for _, rec := range l.records.Values() {
		out[rec.Status]++
	}
	return out
}

// ByCall returns the transfers attempted for a call, newest last.
func (l *TransferLog) ByCall(callSID string) []*TransferRecord {
	var out []*TransferRecord
	for _, rec := range l.records.Values() {
		if rec.CallSID == callSID {
			out = append(out, rec)
		}
	}
	return out
}
