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
	"encoding/json"
	"time"

	"github.com/veloxvoip/callengine/pkg/nova"
)

// Tool names the model may invoke.
const (
	ToolEndCall           = "end_call"
	ToolTransferCall      = "transfer_call"
	ToolWarmTransfer      = "warm_transfer"
	ToolColdTransfer      = "cold_transfer"
	ToolVoicemail         = "voicemail"
	ToolScheduleCallback  = "schedule_callback"
	ToolSupport           = "support" // legacy alias for a support-department transfer
	ToolPolicyDetails     = "getPolicyDetails"
	ToolReservationStatus = "getReservationStatus"
	ToolCancelReservation = "cancelReservation"
	ToolDate              = "getDateTool"
	ToolTime              = "getTimeTool"
)

// Argument shapes, validated at the dispatch boundary.

type EndCallArgs struct {
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

type TransferArgs struct {
	Department string `json:"department"`
	Number     string `json:"number"`
	Reason     string `json:"reason"`
}

type VoicemailArgs struct {
	Prompt string `json:"prompt"`
}

type CallbackArgs struct {
	PhoneNumber   string `json:"phoneNumber"`
	PreferredTime string `json:"preferredTime"`
	Reason        string `json:"reason"`
}

type PolicyArgs struct {
	PolicyType string `json:"policyType"`
}

type ReservationArgs struct {
	ReservationID string `json:"reservationId"`
}

func parseArgs[T any](content string) T {
	var args T
	if content != "" {
		// Malformed arguments fall through to zero values; tool handlers
		// must cope with missing fields.
		_ = json.Unmarshal([]byte(content), &args)
	}
	return args
}

// Specs declares the callable tools announced in the prompt-start event.
func Specs() []nova.ToolSpec {
	return []nova.ToolSpec{
		{
			Name:        ToolEndCall,
			Description: "End the call gracefully with a spoken farewell. Use when the caller says goodbye or the conversation is complete.",
			Schema:      objectSchema(`{"message":{"type":"string","description":"Farewell message to speak before hanging up"},"reason":{"type":"string","description":"Why the call is ending"}}`, nil),
		},
		{
			Name:        ToolTransferCall,
			Description: "Transfer the caller to a department.",
			Schema:      objectSchema(`{"department":{"type":"string","description":"Destination department name"},"reason":{"type":"string"}}`, []string{"department"}),
		},
		{
			Name:        ToolWarmTransfer,
			Description: "Transfer the caller to a department after briefing them about the handoff.",
			Schema:      objectSchema(`{"department":{"type":"string"},"reason":{"type":"string"}}`, []string{"department"}),
		},
		{
			Name:        ToolColdTransfer,
			Description: "Transfer the caller to a department immediately, without a briefing.",
			Schema:      objectSchema(`{"department":{"type":"string"},"reason":{"type":"string"}}`, []string{"department"}),
		},
		{
			Name:        ToolVoicemail,
			Description: "Switch the call into voicemail so the caller can leave a recorded message.",
			Schema:      objectSchema(`{"prompt":{"type":"string","description":"Message played before the beep"}}`, nil),
		},
		{
			Name:        ToolScheduleCallback,
			Description: "Record a callback request. No transfer occurs.",
			Schema:      objectSchema(`{"phoneNumber":{"type":"string"},"preferredTime":{"type":"string"},"reason":{"type":"string"}}`, []string{"phoneNumber"}),
		},
		{
			Name:        ToolSupport,
			Description: "Connect the caller with customer support.",
			Schema:      objectSchema(`{"reason":{"type":"string"}}`, nil),
		},
		{
			Name:        ToolPolicyDetails,
			Description: "Look up rental policy details such as age requirements, insurance or cancellation terms.",
			Schema:      objectSchema(`{"policyType":{"type":"string","description":"Policy area to look up"}}`, nil),
		},
		{
			Name:        ToolReservationStatus,
			Description: "Look up the status of an existing reservation.",
			Schema:      objectSchema(`{"reservationId":{"type":"string"}}`, []string{"reservationId"}),
		},
		{
			Name:        ToolCancelReservation,
			Description: "Cancel an existing reservation.",
			Schema:      objectSchema(`{"reservationId":{"type":"string"}}`, []string{"reservationId"}),
		},
		{
			Name:        ToolDate,
			Description: "Get today's date.",
			Schema:      objectSchema(`{}`, nil),
		},
		{
			Name:        ToolTime,
			Description: "Get the current time.",
			Schema:      objectSchema(`{}`, nil),
		},
	}
}

func objectSchema(properties string, required []string) json.RawMessage {
	schema := `{"type":"object","properties":` + properties
	if len(required) > 0 {
		req, _ := json.Marshal(required)
		schema += `,"required":` + string(req)
	}
	schema += `}`
	return json.RawMessage(schema)
}

// Canned business lookups. Production deployments replace these with
// knowledge-base calls; the shapes are what the model consumes.

var policyCatalog = map[string]string{
	"age":          "Renters must be at least 21 years old. Drivers under 25 may incur a young driver surcharge.",
	"insurance":    "Collision damage waiver and liability coverage are available at the counter. Personal auto policies may extend to rentals.",
	"cancellation": "Reservations can be cancelled free of charge up to 24 hours before pickup. Later cancellations incur a one-day charge.",
	"license":      "A valid driver's license held for at least one year is required. International renters need a passport as well.",
	"fuel":         "Vehicles are provided with a full tank and must be returned full, or a refueling fee applies.",
}

func lookupPolicy(policyType string) map[string]any {
	if detail, ok := policyCatalog[policyType]; ok {
		return map[string]any{"policyType": policyType, "details": detail, "success": true}
	}
	details := make(map[string]string, len(policyCatalog))
	for k, v := range policyCatalog {
		details[k] = v
	}
	return map[string]any{"policies": details, "success": true}
}

func lookupReservation(id string) map[string]any {
	if id == "" {
		return map[string]any{"message": "A reservation id is required", "success": false}
	}
	return map[string]any{
		"reservationId": id,
		"status":        "confirmed",
		"pickupDate":    time.Now().AddDate(0, 0, 2).Format("2006-01-02"),
		"vehicleClass":  "midsize",
		"success":       true,
	}
}

func cancelReservation(id string) map[string]any {
	if id == "" {
		return map[string]any{"message": "A reservation id is required", "success": false}
	}
	return map[string]any{
		"reservationId": id,
		"status":        "cancelled",
		"success":       true,
	}
}
